package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/session"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Stream message types
const (
	MessageView     = "view"
	MessageReplaced = "replaced"
	MessageError    = "error"
	MessageClosed   = "closed"
)

// StreamMessage is one frame pushed to stream clients.
type StreamMessage struct {
	Type  string                `json:"type"`
	Data  any                   `json:"data,omitempty"`
	Error *response.ErrorDetail `json:"error,omitempty"`
}

// StreamHandler pushes the replay view of a session over a WebSocket.
// Clients may send PlaybackRequest frames to control playback.
type StreamHandler struct {
	app      *app.App
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(a *app.App, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		app: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// Serve upgrades the connection and streams views until the client leaves
// or the session ends.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if m := h.app.Metrics(); m != nil {
		m.StreamOpened()
		defer m.StreamClosed()
	}
	h.logger.Debug("stream opened", zap.String("session", s.ID))

	replies := make(chan StreamMessage, 8)
	done := make(chan struct{})
	quit := make(chan struct{})
	go h.readPump(conn, s, replies, done, quit)

	h.writePump(conn, s, replies, done)
	close(quit)
	h.logger.Debug("stream closed", zap.String("session", s.ID))
}

// readPump applies playback commands sent by the client
func (h *StreamHandler) readPump(conn *websocket.Conn, s *session.Session, replies chan<- StreamMessage, done chan<- struct{}, quit <-chan struct{}) {
	defer close(done)

	reply := func(err error) bool {
		select {
		case replies <- errorMessage(err):
			return true
		case <-quit:
			return false
		}
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("unexpected stream close", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}

		var req PlaybackRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !reply(core.WrapError(core.ErrInvalidArgument, err)) {
				return
			}
			continue
		}
		if _, err := Apply(s.Driver(), req); err != nil {
			if !reply(err) {
				return
			}
			continue
		}
		if m := h.app.Metrics(); m != nil {
			m.RecordPlaybackAction(req.Action)
		}
	}
}

// writePump owns every write to the connection. Position changes come from
// the session driver; a closed subscription means the dataset was replaced
// or the session ended.
func (h *StreamHandler) writePump(conn *websocket.Conn, s *session.Session, replies <-chan StreamMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	positions, cancel := s.Subscribe()
	defer func() { cancel() }()

	if !write(conn, StreamMessage{Type: MessageView, Data: s.View()}) {
		return
	}

	for {
		select {
		case <-done:
			return

		case pos, ok := <-positions:
			if ok {
				if !write(conn, StreamMessage{Type: MessageView, Data: s.ViewAt(pos)}) {
					return
				}
				continue
			}
			cancel()
			if s.Closed() {
				write(conn, StreamMessage{Type: MessageClosed})
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			positions, cancel = s.Subscribe()
			if !write(conn, StreamMessage{Type: MessageReplaced, Data: s.Summary()}) ||
				!write(conn, StreamMessage{Type: MessageView, Data: s.View()}) {
				return
			}

		case msg := <-replies:
			if !write(conn, msg) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, msg StreamMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg) == nil
}

func errorMessage(err error) StreamMessage {
	detail := response.ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error()}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return StreamMessage{Type: MessageError, Error: &detail}
}
