// Package app wires validation, sessions, exports and notifications
// together for the server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/newthinker/btviz/internal/config"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/dataset"
	"github.com/newthinker/btviz/internal/metrics"
	"github.com/newthinker/btviz/internal/notifier"
	"github.com/newthinker/btviz/internal/notifier/telegram"
	"github.com/newthinker/btviz/internal/notifier/webhook"
	"github.com/newthinker/btviz/internal/playback"
	"github.com/newthinker/btviz/internal/report"
	"github.com/newthinker/btviz/internal/session"
	"github.com/newthinker/btviz/internal/storage/archive"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Upload results recorded in metrics
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// Option customises an App
type Option func(*App)

// WithMetrics records uploads, sessions, ticks, exports and notifications
func WithMetrics(reg *metrics.Registry) Option {
	return func(a *App) { a.metrics = reg }
}

// WithClock drives playback from a custom clock
func WithClock(c playback.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithStorage overrides the export backend selected by the config
func WithStorage(s archive.Storage) Option {
	return func(a *App) { a.store = s }
}

// App is the main application orchestrator
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	validator *dataset.Validator
	sessions  *session.Manager
	notifiers *notifier.Registry
	exporter  *report.Exporter
	store     archive.Storage
	metrics   *metrics.Registry
	clock     playback.Clock
	debounce  time.Duration // quiet period before a watched file is reloaded

	pending sync.WaitGroup // in-flight notifications

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new App instance
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		notifiers: notifier.NewRegistry(),
		debounce:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}

	v, err := dataset.NewValidator(cfg.Upload.StrictValidation)
	if err != nil {
		return nil, fmt.Errorf("compiling dataset schema: %w", err)
	}
	a.validator = v

	if a.store == nil {
		store, err := archive.New(cfg.Export)
		if err != nil {
			return nil, fmt.Errorf("opening export storage: %w", err)
		}
		a.store = store
	}
	a.exporter = report.NewExporter(a.store, cfg.Playback.VisibleWindow, logger)

	sessOpts := session.Options{
		AlignTolerance: cfg.Playback.AlignTolerance,
		Window:         cfg.Playback.VisibleWindow,
		DefaultSpeed:   cfg.Playback.DefaultSpeed,
		Clock:          a.clock,
		Logger:         logger,
	}
	if a.metrics != nil {
		reg := a.metrics
		sessOpts.OnTick = func(string, playback.Position) { reg.RecordTick() }
	}
	a.sessions = session.NewManager(cfg.Sessions.Max, cfg.Sessions.TTL, sessOpts)

	return a, nil
}

// RegisterNotifier adds a notifier to the app
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.notifiers.Register(n)
}

// RegisterConfiguredNotifiers creates and registers every enabled notifier
// from the config
func (a *App) RegisterConfiguredNotifiers() error {
	ns, err := BuildNotifiers(a.cfg.Notifiers)
	if err != nil {
		return err
	}
	for _, n := range ns {
		if err := a.notifiers.Register(n); err != nil {
			return err
		}
		a.logger.Info("notifier registered", zap.String("notifier", n.Name()))
	}
	return nil
}

// BuildNotifiers initialises the enabled notifiers of a config
func BuildNotifiers(cfgs map[string]config.NotifierConfig) ([]notifier.Notifier, error) {
	var out []notifier.Notifier
	for name, c := range cfgs {
		if !c.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch c.Kind(name) {
		case "webhook":
			n = &webhook.Webhook{}
			params["url"] = c.URL
			if c.Headers != nil {
				params["headers"] = c.Headers
			}
			if c.Timeout > 0 {
				params["timeout"] = c.Timeout
			}
		case "telegram":
			n = telegram.New(c.BotToken, c.ChatID)
			params["bot_token"] = c.BotToken
			params["chat_id"] = c.ChatID
			params["api_url"] = c.APIURL
		default:
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier type %q", c.Kind(name)))
		}

		if err := n.Init(notifier.Config{Type: c.Kind(name), Params: params}); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("notifier %s: %w", name, err))
		}
		out = append(out, n)
	}
	return out, nil
}

// Config returns the loaded configuration
func (a *App) Config() *config.Config { return a.cfg }

// Sessions returns the session manager
func (a *App) Sessions() *session.Manager { return a.sessions }

// Metrics returns the metrics registry, nil when disabled
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Validator returns the dataset validator
func (a *App) Validator() *dataset.Validator { return a.validator }

// Load validates a backtest file and opens a session on it
func (a *App) Load(r io.Reader) (*session.Session, error) {
	ds, err := a.validator.Load(r)
	if err != nil {
		a.rejected("", err)
		return nil, err
	}
	s, err := a.sessions.Create(ds)
	if err != nil {
		a.rejected("", err)
		return nil, err
	}
	a.accepted(notifier.KindLoaded, s, ds)
	return s, nil
}

// Replace validates a backtest file and swaps it into an existing session
func (a *App) Replace(id string, r io.Reader) (*session.Session, error) {
	if _, err := a.sessions.Get(id); err != nil {
		return nil, err
	}
	ds, err := a.validator.Load(r)
	if err != nil {
		a.rejected(id, err)
		return nil, err
	}
	s, err := a.sessions.Replace(id, ds)
	if err != nil {
		a.rejected(id, err)
		return nil, err
	}
	a.accepted(notifier.KindReplaced, s, ds)
	return s, nil
}

// Delete closes a session
func (a *App) Delete(id string) error {
	if err := a.sessions.Delete(id); err != nil {
		return err
	}
	a.updateSessionGauge()
	return nil
}

// Export renders a session report into the export storage
func (a *App) Export(ctx context.Context, id string, req report.Request) (*report.Result, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	res, err := a.exporter.Export(ctx, s, req)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordExport(status)
	}
	if err != nil {
		a.logger.Error("export failed", zap.String("session", id), zap.Error(err))
		return nil, err
	}

	sum := s.Summary()
	a.notify(notifier.Event{
		Kind:      notifier.KindExported,
		SessionID: id,
		Symbol:    sum.Symbol,
		Candles:   sum.Candles,
		Trades:    sum.Trades,
		Location:  res.Location,
		At:        time.Now(),
	})
	return res, nil
}

// Reports lists exported report directories for a symbol
func (a *App) Reports(ctx context.Context, symbol string) ([]string, error) {
	return a.exporter.List(ctx, symbol)
}

// Start sweeps idle sessions until ctx is canceled or Stop is called
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	interval := a.cfg.Sessions.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.logger.Info("btviz starting",
		zap.Int("max_sessions", a.cfg.Sessions.Max),
		zap.Duration("session_ttl", a.cfg.Sessions.TTL),
		zap.Int("notifiers", a.notifiers.Len()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			if n := a.sessions.Sweep(); n > 0 {
				a.logger.Debug("swept idle sessions", zap.Int("count", n))
			}
			a.updateSessionGauge()
		}
	}
}

// Stop stops the sweep loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close waits for pending notifications and closes every session
func (a *App) Close() {
	a.Stop()
	a.pending.Wait()
	a.sessions.Close()
	a.updateSessionGauge()
}

// Stats returns application statistics
func (a *App) Stats() map[string]any {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()

	return map[string]any{
		"running":   running,
		"sessions":  a.sessions.Len(),
		"notifiers": a.notifiers.Len(),
		"strict":    a.validator.Strict(),
	}
}

func (a *App) accepted(kind notifier.Kind, s *session.Session, ds *core.Dataset) {
	if a.metrics != nil {
		a.metrics.RecordUpload(ResultAccepted, len(ds.OHLCHistory))
	}
	a.updateSessionGauge()
	a.notify(notifier.Event{
		Kind:      kind,
		SessionID: s.ID,
		Symbol:    ds.Symbol,
		Candles:   len(ds.OHLCHistory),
		Trades:    len(ds.TradeHistory),
		At:        time.Now(),
	})
}

func (a *App) rejected(id string, err error) {
	a.logger.Warn("backtest rejected", zap.String("session", id), zap.Error(err))
	if a.metrics != nil {
		a.metrics.RecordUpload(ResultRejected, 0)
	}
	a.notify(notifier.Event{
		Kind:      notifier.KindRejected,
		SessionID: id,
		Reason:    err.Error(),
		At:        time.Now(),
	})
}

func (a *App) updateSessionGauge() {
	if a.metrics != nil {
		a.metrics.SetSessionsActive(a.sessions.Len())
	}
}

// notify delivers the event in the background
func (a *App) notify(ev notifier.Event) {
	if a.notifiers.Len() == 0 {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		errs := a.notifiers.NotifyAll(ctx, ev)
		for _, n := range a.notifiers.GetAll() {
			status := "success"
			if err, failed := errs[n.Name()]; failed {
				status = "error"
				a.logger.Warn("notification failed",
					zap.String("notifier", n.Name()),
					zap.String("kind", string(ev.Kind)),
					zap.Error(core.WrapError(core.ErrNotifierFailed, err)),
				)
			}
			if a.metrics != nil {
				a.metrics.RecordNotification(n.Name(), status)
			}
		}
	}()
}
