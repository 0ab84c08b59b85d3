package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// family gathers reg and returns the named metric family, or nil
func family(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if family(t, reg, "go_goroutines") == nil {
		t.Error("expected go runtime metrics to be registered")
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/api/v1/sessions/{id}", tt.status, 0.01)

			mf := family(t, reg, "http_requests_total")
			if mf == nil {
				t.Fatal("expected http_requests_total metric")
			}
			if got := labelValue(mf.GetMetric()[0], "status"); got != tt.expected {
				t.Errorf("expected status label %s for status code %d, got %s", tt.expected, tt.status, got)
			}
		})
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	mf := family(t, reg, "http_requests_in_flight")
	if mf == nil {
		t.Fatal("expected http_requests_in_flight metric")
	}
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("expected in-flight gauge to be 1, got %v", v)
	}
}

func TestRegistry_DurationHistogram(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRequest("POST", "/api/v1/sessions", 201, 0.123)

	mf := family(t, reg, "http_request_duration_seconds")
	if mf == nil {
		t.Fatal("expected http_request_duration_seconds metric")
	}
	hist := mf.GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 1 {
		t.Errorf("expected sample count 1, got %d", hist.GetSampleCount())
	}
	if hist.GetSampleSum() < 0.12 || hist.GetSampleSum() > 0.13 {
		t.Errorf("expected sample sum ~0.123, got %v", hist.GetSampleSum())
	}
}

func TestRegistry_Uploads(t *testing.T) {
	reg := NewRegistry()

	reg.RecordUpload("accepted", 500)
	reg.RecordUpload("rejected", 0)
	reg.RecordUpload("rejected", 0)

	mf := family(t, reg, "btviz_uploads_total")
	if mf == nil {
		t.Fatal("expected btviz_uploads_total metric")
	}
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		counts[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if counts["accepted"] != 1 || counts["rejected"] != 2 {
		t.Errorf("unexpected upload counts %v", counts)
	}

	hist := family(t, reg, "btviz_dataset_candles").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 1 || hist.GetSampleSum() != 500 {
		t.Errorf("expected one 500-candle sample, got %d/%v", hist.GetSampleCount(), hist.GetSampleSum())
	}
}

func TestRegistry_Playback(t *testing.T) {
	reg := NewRegistry()

	reg.SetSessionsActive(3)
	reg.RecordTick()
	reg.RecordTick()
	reg.RecordPlaybackAction("seek")
	reg.StreamOpened()
	reg.StreamOpened()
	reg.StreamClosed()

	if v := family(t, reg, "btviz_sessions_active").GetMetric()[0].GetGauge().GetValue(); v != 3 {
		t.Errorf("expected 3 sessions, got %v", v)
	}
	if v := family(t, reg, "btviz_playback_ticks_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("expected 2 ticks, got %v", v)
	}
	if m := family(t, reg, "btviz_playback_actions_total").GetMetric()[0]; labelValue(m, "action") != "seek" {
		t.Errorf("expected seek action label")
	}
	if v := family(t, reg, "btviz_stream_clients").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("expected 1 stream client, got %v", v)
	}
}

func TestRegistry_ExportsAndNotifications(t *testing.T) {
	reg := NewRegistry()

	reg.RecordExport("success")
	reg.RecordNotification("webhook", "failed")

	if family(t, reg, "btviz_exports_total") == nil {
		t.Error("expected btviz_exports_total metric")
	}
	m := family(t, reg, "btviz_notifications_total").GetMetric()[0]
	if labelValue(m, "notifier") != "webhook" || labelValue(m, "status") != "failed" {
		t.Errorf("unexpected notification labels %v", m.GetLabel())
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}
