package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T, h http.HandlerFunc) (http.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return LoggingMiddleware(zap.New(core))(h), logs
}

func onlyEntry(t *testing.T, logs *observer.ObservedLogs) map[string]any {
	t.Helper()
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "http request", entries[0].Message)
	return entries[0].ContextMap()
}

func TestLoggingMiddleware(t *testing.T) {
	handler, logs := observed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.RemoteAddr = "10.0.0.5:4242"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	fields := onlyEntry(t, logs)
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/api/v1/sessions", fields["path"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.Equal(t, "10.0.0.5:4242", fields["client_ip"])
	assert.Contains(t, fields, "duration_ms")

	id := w.Header().Get("X-Request-ID")
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated request id is a uuid")
	assert.Equal(t, id, fields["request_id"])
}

func TestLoggingMiddleware_ReusesRequestID(t *testing.T) {
	handler, logs := observed(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "upstream-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "upstream-42", onlyEntry(t, logs)["request_id"])
}

func TestLoggingMiddleware_XForwardedFor(t *testing.T) {
	handler, logs := observed(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", onlyEntry(t, logs)["client_ip"])
}

func TestLoggingMiddleware_Flush(t *testing.T) {
	handler, logs := observed(t, func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Write([]byte("chunk"))
		f.Flush()
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, w.Flushed)
	assert.EqualValues(t, http.StatusOK, onlyEntry(t, logs)["status"])
}

func TestLoggingMiddleware_Hijack(t *testing.T) {
	handler, logs := observed(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "no hijacker", http.StatusInternalServerError)
			return
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		buf.WriteString("HTTP/1.1 204 No Content\r\nConnection: close\r\n\r\n")
		buf.Flush()
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, http.StatusSwitchingProtocols, onlyEntry(t, logs)["status"])
}
