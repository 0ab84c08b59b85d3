// Package indicator computes the moving averages a backtest names in its
// indicator list, aligned to the candle series for chart overlays.
package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/newthinker/btviz/internal/core"
)

// Kind is a supported overlay type
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
)

// Spec is a parsed indicator name such as "sma_20"
type Spec struct {
	Kind   Kind
	Period int
}

func (s Spec) String() string {
	return fmt.Sprintf("%s(%d)", strings.ToUpper(string(s.Kind)), s.Period)
}

// Overlay is an indicator line. Values has one entry per candle and is NaN
// until the warm-up period is complete.
type Overlay struct {
	Name   string
	Spec   Spec
	Values []float64
}

// Parse reads names like "sma_20", "EMA-12" or "sma20". ok is false for
// anything that is not a price overlay.
func Parse(name string) (Spec, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, kind := range []Kind{KindSMA, KindEMA} {
		rest, found := strings.CutPrefix(n, string(kind))
		if !found {
			continue
		}
		rest = strings.TrimLeft(rest, "_- ")
		period, err := strconv.Atoi(rest)
		if err != nil || period < 1 {
			return Spec{}, false
		}
		return Spec{Kind: kind, Period: period}, true
	}
	return Spec{}, false
}

// Overlays computes every parseable indicator over the candle closes.
// Unknown names and duplicates are skipped.
func Overlays(candles []core.Candle, names []string) []Overlay {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	seen := make(map[Spec]bool)
	var out []Overlay
	for _, name := range names {
		spec, ok := Parse(name)
		if !ok || seen[spec] {
			continue
		}
		seen[spec] = true

		var values []float64
		switch spec.Kind {
		case KindSMA:
			values = SMA(closes, spec.Period)
		case KindEMA:
			values = EMA(closes, spec.Period)
		}
		out = append(out, Overlay{Name: spec.String(), Spec: spec, Values: values})
	}
	return out
}

// SMA calculates the simple moving average. The result is aligned with
// prices; the first period-1 entries are NaN.
func SMA(prices []float64, period int) []float64 {
	result := warmup(len(prices), period)
	if period < 1 || len(prices) < period {
		return result
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result[period-1] = sum / float64(period)

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result[i] = sum / float64(period)
	}
	return result
}

// EMA calculates the exponential moving average, seeded with the SMA of the
// first period prices. Aligned like SMA.
func EMA(prices []float64, period int) []float64 {
	result := warmup(len(prices), period)
	if period < 1 || len(prices) < period {
		return result
	}

	multiplier := 2.0 / float64(period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result[period-1] = ema

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result[i] = ema
	}
	return result
}

// warmup returns n values, NaN where no average exists yet
func warmup(n, period int) []float64 {
	result := make([]float64, n)
	for i := range result {
		if period < 1 || i < period-1 {
			result[i] = math.NaN()
		}
	}
	return result
}
