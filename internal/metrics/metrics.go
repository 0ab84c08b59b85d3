package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Replay metrics
	uploadsTotal    *prometheus.CounterVec
	datasetCandles  prometheus.Histogram
	sessionsActive  prometheus.Gauge
	playbackTicks   prometheus.Counter
	playbackActions *prometheus.CounterVec
	streamClients   prometheus.Gauge
	exportsTotal    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btviz_uploads_total",
			Help: "Total number of backtest uploads by result",
		},
		[]string{"result"},
	)
	r.datasetCandles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "btviz_dataset_candles",
			Help:    "Number of candles per accepted dataset",
			Buckets: prometheus.ExponentialBuckets(100, 4, 6),
		},
	)
	r.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "btviz_sessions_active",
			Help: "Number of live replay sessions",
		},
	)
	r.playbackTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "btviz_playback_ticks_total",
			Help: "Total number of timer-driven playback advances",
		},
	)
	r.playbackActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btviz_playback_actions_total",
			Help: "Total number of playback control actions",
		},
		[]string{"action"},
	)
	r.streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "btviz_stream_clients",
			Help: "Number of connected playback stream clients",
		},
	)
	r.exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btviz_exports_total",
			Help: "Total number of report exports",
		},
		[]string{"status"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btviz_notifications_total",
			Help: "Total number of load notifications sent",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.uploadsTotal)
	reg.MustRegister(r.datasetCandles)
	reg.MustRegister(r.sessionsActive)
	reg.MustRegister(r.playbackTicks)
	reg.MustRegister(r.playbackActions)
	reg.MustRegister(r.streamClients)
	reg.MustRegister(r.exportsTotal)
	reg.MustRegister(r.notifications)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordUpload records an upload outcome; candles is ignored for rejects.
func (r *Registry) RecordUpload(result string, candles int) {
	r.uploadsTotal.WithLabelValues(result).Inc()
	if result == "accepted" {
		r.datasetCandles.Observe(float64(candles))
	}
}

// SetSessionsActive sets the number of live sessions.
func (r *Registry) SetSessionsActive(count int) {
	r.sessionsActive.Set(float64(count))
}

// RecordTick counts one playback advance.
func (r *Registry) RecordTick() {
	r.playbackTicks.Inc()
}

// RecordPlaybackAction counts a playback control action.
func (r *Registry) RecordPlaybackAction(action string) {
	r.playbackActions.WithLabelValues(action).Inc()
}

// StreamOpened increments connected stream clients.
func (r *Registry) StreamOpened() {
	r.streamClients.Inc()
}

// StreamClosed decrements connected stream clients.
func (r *Registry) StreamClosed() {
	r.streamClients.Dec()
}

// RecordExport records a report export.
func (r *Registry) RecordExport(status string) {
	r.exportsTotal.WithLabelValues(status).Inc()
}

// RecordNotification records a notifier delivery.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// UploadsTotal exposes the upload counter.
func (r *Registry) UploadsTotal() *prometheus.CounterVec { return r.uploadsTotal }

// ExportsTotal exposes the export counter.
func (r *Registry) ExportsTotal() *prometheus.CounterVec { return r.exportsTotal }

// NotificationsTotal exposes the notification counter.
func (r *Registry) NotificationsTotal() *prometheus.CounterVec { return r.notifications }
