// Package session keeps loaded backtests and their playback state in memory.
package session

import (
	"sync"
	"time"

	"github.com/newthinker/btviz/internal/align"
	"github.com/newthinker/btviz/internal/backtest"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/playback"
	"github.com/newthinker/btviz/internal/series"
	"go.uber.org/zap"
)

// Options configures every session created by a Manager
type Options struct {
	AlignTolerance time.Duration
	Window         int
	DefaultSpeed   float64
	Clock          playback.Clock
	Logger         *zap.Logger
	OnTick         func(id string, p playback.Position)
}

// Summary describes a loaded session
type Summary struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Indicators      []string         `json:"indicators"`
	StartingBalance float64          `json:"starting_balance"`
	ExchangeRate    float64          `json:"exchange_rate"`
	Candles         int              `json:"candles"`
	Trades          int              `json:"trades"`
	AlignedTrades   int              `json:"aligned_trades"`
	Timeframe       string           `json:"timeframe"`
	Metrics         backtest.Metrics `json:"metrics"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// View is the replay state at the current playback position
type View struct {
	playback.Position
	Time       int64          `json:"time"`
	Candle     core.Candle    `json:"candle"`
	Visible    align.Range    `json:"visible"`
	Bounds     align.Bounds   `json:"bounds"`
	Markers    []align.Marker `json:"markers"`
	Balance    float64        `json:"balance"`
	ProfitLoss float64        `json:"profit_loss"`
}

// snapshot holds a dataset with every series derived from it. It is built
// once per load and never modified.
type snapshot struct {
	dataset   *core.Dataset
	candles   []core.Candle
	balance   []core.BalancePoint
	metrics   backtest.Metrics
	timeframe string
	aligned   []align.AlignedTrade
	markers   []align.Marker
}

func newSnapshot(ds *core.Dataset, tolerance time.Duration) (*snapshot, error) {
	if ds == nil || len(ds.OHLCHistory) == 0 {
		return nil, core.ErrNoData
	}
	candles, err := series.ToCandles(ds.OHLCHistory)
	if err != nil {
		return nil, core.WrapError(core.ErrValidation, err)
	}
	balance, err := series.ToBalanceSeries(ds.TradeHistory, ds.StartingBalance)
	if err != nil {
		return nil, core.WrapError(core.ErrValidation, err)
	}
	aligned := align.AlignTrades(candles, ds.TradeHistory, tolerance)

	return &snapshot{
		dataset:   ds,
		candles:   candles,
		balance:   balance,
		metrics:   backtest.ComputeMetrics(ds.TradeHistory, ds.StartingBalance),
		timeframe: series.DetectTimeframe(ds.OHLCHistory),
		aligned:   aligned,
		markers:   align.Markers(candles, aligned),
	}, nil
}

// Session is one loaded backtest with its own playback driver
type Session struct {
	ID string

	mu        sync.RWMutex
	snap      *snapshot
	driver    *playback.Driver
	createdAt time.Time
	updatedAt time.Time
	lastSeen  time.Time
	closed    bool

	opts Options
}

func newSession(id string, ds *core.Dataset, opts Options, now time.Time) (*Session, error) {
	s := &Session{ID: id, opts: opts, createdAt: now}
	if err := s.load(ds, now); err != nil {
		return nil, err
	}
	return s, nil
}

// load derives a new snapshot and driver and swaps them in. The previous
// driver is closed after the swap.
func (s *Session) load(ds *core.Dataset, now time.Time) error {
	snap, err := newSnapshot(ds, s.opts.AlignTolerance)
	if err != nil {
		return err
	}

	driverOpts := []playback.Option{
		playback.WithSpeed(s.opts.DefaultSpeed),
		playback.WithLogger(s.opts.Logger),
	}
	if s.opts.Clock != nil {
		driverOpts = append(driverOpts, playback.WithClock(s.opts.Clock))
	}
	if s.opts.OnTick != nil {
		id, hook := s.ID, s.opts.OnTick
		driverOpts = append(driverOpts, playback.WithTickHook(func(p playback.Position) { hook(id, p) }))
	}
	driver, err := playback.NewDriver(len(snap.candles), driverOpts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		driver.Close()
		return core.ErrSessionClosed
	}
	old := s.driver
	s.snap, s.driver = snap, driver
	s.updatedAt, s.lastSeen = now, now
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (s *Session) current() (*snapshot, *playback.Driver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.driver
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) active() bool {
	_, driver := s.current()
	return driver.Active()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Dataset returns the loaded dataset
func (s *Session) Dataset() *core.Dataset {
	snap, _ := s.current()
	return snap.dataset
}

// Candles returns the chart candles
func (s *Session) Candles() []core.Candle {
	snap, _ := s.current()
	return snap.candles
}

// Balance returns the balance curve
func (s *Session) Balance() []core.BalancePoint {
	snap, _ := s.current()
	return snap.balance
}

// Markers returns every trade marker
func (s *Session) Markers() []align.Marker {
	snap, _ := s.current()
	return snap.markers
}

// AlignedTrades returns the trades resolved onto candles
func (s *Session) AlignedTrades() []align.AlignedTrade {
	snap, _ := s.current()
	return snap.aligned
}

// Metrics returns the performance metrics
func (s *Session) Metrics() backtest.Metrics {
	snap, _ := s.current()
	return snap.metrics
}

// Timeframe returns the detected sampling interval label
func (s *Session) Timeframe() string {
	snap, _ := s.current()
	return snap.timeframe
}

// Driver returns the playback driver of the current dataset
func (s *Session) Driver() *playback.Driver {
	_, d := s.current()
	return d
}

// Subscribe follows position changes of the current driver. The channel
// closes when the dataset is replaced or the session ends.
func (s *Session) Subscribe() (<-chan playback.Position, func()) {
	return s.Driver().Subscribe()
}

// Closed reports whether the session has been torn down
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Summary describes the session
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds := s.snap.dataset
	return Summary{
		ID:              s.ID,
		Symbol:          ds.Symbol,
		Indicators:      ds.Indicators,
		StartingBalance: ds.StartingBalance,
		ExchangeRate:    ds.ExchangeRate,
		Candles:         len(s.snap.candles),
		Trades:          len(ds.TradeHistory),
		AlignedTrades:   len(s.snap.aligned),
		Timeframe:       s.snap.timeframe,
		Metrics:         s.snap.metrics,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

// View returns the replay state at the current position
func (s *Session) View() View {
	snap, d := s.current()
	return s.viewAt(snap, d.Position())
}

// ViewAt returns the replay state for a position of the current driver
func (s *Session) ViewAt(p playback.Position) View {
	snap, _ := s.current()
	return s.viewAt(snap, p)
}

func (s *Session) viewAt(snap *snapshot, p playback.Position) View {
	n := len(snap.candles)
	idx := min(max(p.Index, 0), n-1)
	visible := align.VisibleRange(n, idx, s.opts.Window)
	balance, pl := align.BalanceAt(snap.candles, snap.dataset.TradeHistory, snap.dataset.StartingBalance, idx)

	return View{
		Position:   p,
		Time:       snap.candles[idx].Time,
		Candle:     snap.candles[idx],
		Visible:    visible,
		Bounds:     align.ChartBounds(snap.candles[visible.From:visible.To+1], 0),
		Markers:    align.VisibleMarkers(snap.markers, idx),
		Balance:    balance,
		ProfitLoss: pl,
	}
}

// Close stops playback and releases subscribers
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	d := s.driver
	s.mu.Unlock()

	d.Close()
}
