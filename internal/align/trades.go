package align

import (
	"time"

	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/series"
)

// MarkerKind tells entry markers from exit markers
type MarkerKind string

const (
	MarkerEntry MarkerKind = "entry"
	MarkerExit  MarkerKind = "exit"
)

// AlignedTrade is a trade resolved onto candle positions
type AlignedTrade struct {
	TradeIndex int        `json:"trade_index"`
	Trade      core.Trade `json:"trade"`
	OpenIndex  int        `json:"open_index"`
	CloseIndex int        `json:"close_index"` // -1 when the close could not be resolved
}

// Marker is one point of a trade overlay on the candle chart
type Marker struct {
	TradeIndex  int        `json:"trade_index"`
	Kind        MarkerKind `json:"kind"`
	Side        core.Side  `json:"side"`
	CandleIndex int        `json:"candle_index"`
	Time        int64      `json:"time"`
	Price       float64    `json:"price"`
	ProfitNet   float64    `json:"profit_net"`
}

// Aligner resolves trade timestamps against one candle series
type Aligner struct {
	times     []int64
	tolerance int64
}

// NewAligner creates an aligner over ascending candles. A positive tolerance
// rejects matches whose nearest candle is farther away than it.
func NewAligner(candles []core.Candle, tolerance time.Duration) *Aligner {
	return &Aligner{
		times:     series.Times(candles),
		tolerance: int64(tolerance / time.Second),
	}
}

// Resolve returns the nearest candle index for a timestamp, or false when the
// timestamp cannot be placed on the series
func (a *Aligner) Resolve(ts string) (int, bool) {
	if len(a.times) == 0 || ts == "" {
		return -1, false
	}
	target, err := series.Unix(ts)
	if err != nil {
		return -1, false
	}
	idx := NearestIndex(a.times, target)
	if a.tolerance > 0 && abs(a.times[idx]-target) > a.tolerance {
		return -1, false
	}
	return idx, true
}

// AlignTrades resolves every trade's open and close onto candle indices.
// Trades whose open has no matching candle are left out of the result; the
// dataset itself is untouched.
func AlignTrades(candles []core.Candle, trades []core.Trade, tolerance time.Duration) []AlignedTrade {
	a := NewAligner(candles, tolerance)
	out := make([]AlignedTrade, 0, len(trades))

	for i, t := range trades {
		openIdx, ok := a.Resolve(t.OpenTime)
		if !ok {
			continue
		}
		closeIdx, ok := a.Resolve(t.CloseTime)
		if !ok {
			closeIdx = -1
		}
		out = append(out, AlignedTrade{
			TradeIndex: i,
			Trade:      t,
			OpenIndex:  openIdx,
			CloseIndex: closeIdx,
		})
	}
	return out
}

// Markers flattens aligned trades into entry and exit markers ordered by
// trade. An exit on the same candle as its entry is not repeated.
func Markers(candles []core.Candle, aligned []AlignedTrade) []Marker {
	out := make([]Marker, 0, len(aligned)*2)
	for _, at := range aligned {
		out = append(out, Marker{
			TradeIndex:  at.TradeIndex,
			Kind:        MarkerEntry,
			Side:        at.Trade.OrderType,
			CandleIndex: at.OpenIndex,
			Time:        candles[at.OpenIndex].Time,
			Price:       at.Trade.OpenPrice,
			ProfitNet:   at.Trade.ProfitNet,
		})
		if at.CloseIndex >= 0 && at.CloseIndex != at.OpenIndex {
			out = append(out, Marker{
				TradeIndex:  at.TradeIndex,
				Kind:        MarkerExit,
				Side:        at.Trade.OrderType,
				CandleIndex: at.CloseIndex,
				Time:        candles[at.CloseIndex].Time,
				Price:       at.Trade.ClosePrice,
				ProfitNet:   at.Trade.ProfitNet,
			})
		}
	}
	return out
}

// MarkersByCandle groups markers by candle index
func MarkersByCandle(markers []Marker) map[int][]Marker {
	out := make(map[int][]Marker)
	for _, m := range markers {
		out[m.CandleIndex] = append(out[m.CandleIndex], m)
	}
	return out
}

// VisibleMarkers returns the markers whose candle has been reached by the
// playback position
func VisibleMarkers(markers []Marker, index int) []Marker {
	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.CandleIndex <= index {
			out = append(out, m)
		}
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
