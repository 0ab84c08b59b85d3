// Package playback drives the replay position of a loaded backtest.
package playback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/newthinker/btviz/internal/core"
	"go.uber.org/zap"
)

// State is the playback state
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
)

// DefaultSpeed is the initial playback speed multiplier
const DefaultSpeed = 1.0

// Speeds lists the accepted speed multipliers
var Speeds = []float64{0.5, 1, 2, 5, 10}

// ValidSpeed reports whether s is one of Speeds
func ValidSpeed(s float64) bool {
	for _, v := range Speeds {
		if v == s {
			return true
		}
	}
	return false
}

// Interval returns the tick period for a speed multiplier
func Interval(speed float64) time.Duration {
	return time.Duration(float64(time.Second) / speed)
}

// Position is a snapshot of the driver
type Position struct {
	Index    int     `json:"index"`
	Length   int     `json:"length"`
	State    State   `json:"state"`
	Speed    float64 `json:"speed"`
	Progress float64 `json:"progress"` // percent of the series replayed
}

// Clock schedules ticks
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Driver
type Option func(*Driver)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithSpeed sets the initial speed; invalid speeds are ignored
func WithSpeed(s float64) Option {
	return func(d *Driver) {
		if ValidSpeed(s) {
			d.speed = s
		}
	}
}

// WithLogger sets the driver logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTickHook registers a callback invoked after every timer tick
func WithTickHook(fn func(Position)) Option {
	return func(d *Driver) { d.onTick = fn }
}

// Driver advances a candle index on a timer. It starts stopped at index 0
// and never leaves [0, length-1]. A Driver owns a goroutine while playing;
// Close must be called to release it.
type Driver struct {
	mu     sync.Mutex
	length int
	index  int
	state  State
	speed  float64

	// per-run channels, nil while stopped
	stop chan struct{}
	done chan struct{}

	subs    map[int]chan Position
	nextSub int
	closed  bool

	clock  Clock
	logger *zap.Logger
	onTick func(Position)
}

// NewDriver creates a stopped driver over a series of the given length
func NewDriver(length int, opts ...Option) (*Driver, error) {
	if length < 1 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("playback needs at least one candle"))
	}
	d := &Driver{
		length: length,
		state:  StateStopped,
		speed:  DefaultSpeed,
		subs:   make(map[int]chan Position),
		clock:  realClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Position returns the current snapshot
func (d *Driver) Position() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

// Play starts the timer unless playback is already at the last candle.
// Playing an already playing driver is a no-op.
func (d *Driver) Play() (Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.positionLocked(), core.ErrSessionClosed
	}
	if d.state == StatePlaying || d.index >= d.length-1 {
		return d.positionLocked(), nil
	}

	d.state = StatePlaying
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)

	d.logger.Debug("playback started", zap.Int("index", d.index), zap.Float64("speed", d.speed))
	p := d.positionLocked()
	d.publishLocked(p)
	return p, nil
}

// Pause stops the timer and keeps the index
func (d *Driver) Pause() Position {
	return d.update(func() {})
}

// Toggle pauses a playing driver and plays a stopped one
func (d *Driver) Toggle() (Position, error) {
	if d.Position().State == StatePlaying {
		return d.Pause(), nil
	}
	return d.Play()
}

// Seek moves to index, clamped into range, and stops playback
func (d *Driver) Seek(index int) Position {
	return d.update(func() { d.index = d.clamp(index) })
}

// SeekFraction moves to round(f*(length-1)) and stops playback
func (d *Driver) SeekFraction(f float64) Position {
	return d.update(func() {
		if math.IsNaN(f) {
			return
		}
		d.index = d.clamp(int(math.Round(f * float64(d.length-1))))
	})
}

// Step moves delta candles, clamped into range, and stops playback
func (d *Driver) Step(delta int) Position {
	return d.update(func() { d.index = d.clamp(d.index + delta) })
}

// SkipToStart seeks to the first candle
func (d *Driver) SkipToStart() Position {
	return d.Seek(0)
}

// SkipToEnd seeks to the last candle
func (d *Driver) SkipToEnd() Position {
	return d.Seek(d.length - 1)
}

// SetSpeed changes the speed multiplier. A playing driver picks it up on
// its next tick.
func (d *Driver) SetSpeed(s float64) (Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.positionLocked(), core.ErrSessionClosed
	}
	if !ValidSpeed(s) {
		return d.positionLocked(), core.WrapError(core.ErrInvalidArgument,
			fmt.Errorf("speed must be one of %v, got %v", Speeds, s))
	}
	d.speed = s
	p := d.positionLocked()
	d.publishLocked(p)
	return p, nil
}

// Subscribe returns a channel receiving every position change. Slow readers
// only see the latest position. The cancel func releases the subscription.
func (d *Driver) Subscribe() (<-chan Position, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan Position, 1)
	if d.closed {
		close(ch)
		return ch, func() {}
	}

	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if sub, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops the timer, waits for its goroutine and closes every
// subscription. It is safe to call more than once.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	done := d.stopLocked()
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	d.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Active reports whether the driver is playing or has subscribers
func (d *Driver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && (d.state == StatePlaying || len(d.subs) > 0)
}

// update applies fn with playback stopped and publishes the result. A closed
// driver keeps its last position.
func (d *Driver) update(fn func()) Position {
	d.mu.Lock()
	if d.closed {
		p := d.positionLocked()
		d.mu.Unlock()
		return p
	}
	done := d.stopLocked()
	fn()
	p := d.positionLocked()
	d.publishLocked(p)
	d.mu.Unlock()

	if done != nil {
		<-done
	}
	return p
}

func (d *Driver) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		d.mu.Lock()
		interval := Interval(d.speed)
		d.mu.Unlock()

		select {
		case <-stop:
			return
		case <-d.clock.After(interval):
		}

		p, more := d.tick(stop)
		if d.onTick != nil {
			d.onTick(p)
		}
		if !more {
			return
		}
	}
}

// tick advances one candle and reports whether the run continues
func (d *Driver) tick(stop <-chan struct{}) (Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-stop:
		// paused between the timer firing and taking the lock
		return d.positionLocked(), false
	default:
	}

	if d.index < d.length-1 {
		d.index++
	}
	more := true
	if d.index >= d.length-1 {
		// end of series; done is closed by run on return
		close(d.stop)
		d.stop, d.done = nil, nil
		d.state = StateStopped
		more = false
		d.logger.Debug("playback reached end", zap.Int("index", d.index))
	}

	p := d.positionLocked()
	d.publishLocked(p)
	return p, more
}

// stopLocked ends the current run and returns its done channel
func (d *Driver) stopLocked() chan struct{} {
	if d.state != StatePlaying {
		return nil
	}
	close(d.stop)
	done := d.done
	d.stop, d.done = nil, nil
	d.state = StateStopped
	return done
}

func (d *Driver) positionLocked() Position {
	return Position{
		Index:    d.index,
		Length:   d.length,
		State:    d.state,
		Speed:    d.speed,
		Progress: Progress(d.index, d.length),
	}
}

// WithIndex returns the position moved to index, clamped to the series
func (p Position) WithIndex(index int) Position {
	p.Index = min(max(index, 0), max(p.Length-1, 0))
	p.Progress = Progress(p.Index, p.Length)
	return p
}

// Progress is the percentage of a series of length candles replayed at index
func Progress(index, length int) float64 {
	if length <= 1 {
		return 0
	}
	return float64(index) / float64(length-1) * 100
}

func (d *Driver) publishLocked(p Position) {
	for _, ch := range d.subs {
		select {
		case ch <- p:
		default:
			// drop the stale value so the latest position wins
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

func (d *Driver) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i > d.length-1 {
		return d.length - 1
	}
	return i
}
