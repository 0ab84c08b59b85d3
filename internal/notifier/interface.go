package notifier

import (
	"context"
	"fmt"
	"time"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Kind identifies what happened to a dataset
type Kind string

const (
	KindLoaded   Kind = "dataset.loaded"
	KindReplaced Kind = "dataset.replaced"
	KindRejected Kind = "dataset.rejected"
	KindExported Kind = "report.exported"
)

// Event describes a dataset load outcome or a finished export
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Candles   int       `json:"candles"`
	Trades    int       `json:"trades"`
	Reason    string    `json:"reason,omitempty"`   // rejection cause
	Location  string    `json:"location,omitempty"` // exported report
	At        time.Time `json:"at"`
}

// Failed reports whether the event is a rejection
func (e Event) Failed() bool {
	return e.Kind == KindRejected
}

// Title is a one-line headline for the event
func (e Event) Title() string {
	switch e.Kind {
	case KindLoaded:
		return "Backtest data loaded successfully"
	case KindReplaced:
		return "Backtest data replaced"
	case KindRejected:
		return "Failed to load backtest data"
	case KindExported:
		return "Backtest report exported"
	default:
		return string(e.Kind)
	}
}

// Description summarises the event, e.g. "QQQ - 500 candles and 12 trades"
func (e Event) Description() string {
	switch e.Kind {
	case KindRejected:
		return e.Reason
	case KindExported:
		return fmt.Sprintf("%s report stored at %s", e.Symbol, e.Location)
	default:
		return fmt.Sprintf("%s - %d candles and %d trades", e.Symbol, e.Candles, e.Trades)
	}
}

// Notifier delivers events to an external channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single event
	Send(ctx context.Context, event Event) error
}
