package align

import (
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/series"
)

// DefaultWindow is the number of candles shown around the playback position
const DefaultWindow = 50

// Range is an inclusive span of candle indices
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Len returns the number of indices in the range
func (r Range) Len() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// VisibleRange centres a window of the given size on index, clamped to a
// series of length n
func VisibleRange(n, index, window int) Range {
	if n <= 0 {
		return Range{From: 0, To: -1}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	index = clamp(index, 0, n-1)
	half := window / 2
	return Range{
		From: max(0, index-half),
		To:   min(n-1, index+half),
	}
}

// Bounds is the padded price range of a set of candles
type Bounds struct {
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	PriceRange float64 `json:"price_range"`
}

// ChartBounds returns the low/high of the last `visible` candles padded by 5%
func ChartBounds(candles []core.Candle, visible int) Bounds {
	if len(candles) == 0 {
		return Bounds{}
	}
	if visible > 0 && visible < len(candles) {
		candles = candles[len(candles)-visible:]
	}

	minPrice, maxPrice := candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		minPrice = min(minPrice, c.Low)
		maxPrice = max(maxPrice, c.High)
	}

	padding := (maxPrice - minPrice) * 0.05
	return Bounds{
		MinPrice:   minPrice - padding,
		MaxPrice:   maxPrice + padding,
		PriceRange: maxPrice - minPrice + padding*2,
	}
}

// BalanceAt returns the account balance once every trade closed at or before
// the given candle has settled. Without such a trade it is the starting balance.
func BalanceAt(candles []core.Candle, trades []core.Trade, startingBalance float64, index int) (balance, profitLoss float64) {
	if index < 0 || index >= len(candles) {
		return startingBalance, 0
	}
	current := candles[index].Time

	balance = startingBalance
	for _, t := range trades {
		if !t.IsClosed() {
			continue
		}
		closeTs, err := series.Unix(t.CloseTime)
		if err != nil || closeTs > current {
			continue
		}
		balance = t.Balance
	}
	return balance, balance - startingBalance
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
