// Package series turns raw backtest records into time-keyed chart series.
package series

import (
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/btviz/internal/core"
)

// Layouts accepted for naive timestamps. They are tried in order.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses a backtest timestamp. Strings without a zone are
// interpreted as UTC; strings that carry an offset keep it.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Unix parses a timestamp and returns unix seconds
func Unix(s string) (int64, error) {
	t, err := ParseTime(s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// ToCandles projects the primary instrument of every OHLC sample into a
// candle. Output has the same length and order as the input.
func ToCandles(ohlc []core.OHLC) ([]core.Candle, error) {
	candles := make([]core.Candle, len(ohlc))
	for i, item := range ohlc {
		ts, err := Unix(item.Time)
		if err != nil {
			return nil, fmt.Errorf("ohlc_history[%d].time: %w", i, err)
		}
		candles[i] = core.Candle{
			Time:   ts,
			Open:   item.ETFOpen,
			High:   item.ETFHigh,
			Low:    item.ETFLow,
			Close:  item.ETFClose,
			Volume: item.ETFVolume,
		}
	}
	return candles, nil
}

// Times returns the candle timestamps, ascending when the candles are.
func Times(candles []core.Candle) []int64 {
	out := make([]int64, len(candles))
	for i, c := range candles {
		out[i] = c.Time
	}
	return out
}

// ToBalanceSeries builds the account balance curve. It is empty when there
// are no trades; otherwise it starts with the starting balance at the first
// trade's open time followed by one point per closed trade at its close time.
// Open trades have no close yet and are skipped.
func ToBalanceSeries(trades []core.Trade, startingBalance float64) ([]core.BalancePoint, error) {
	if len(trades) == 0 {
		return []core.BalancePoint{}, nil
	}

	first, err := Unix(trades[0].OpenTime)
	if err != nil {
		return nil, fmt.Errorf("trade_history[0].open_time: %w", err)
	}

	points := make([]core.BalancePoint, 0, len(trades)+1)
	points = append(points, core.BalancePoint{Time: first, Balance: startingBalance})

	for i, t := range trades {
		if !t.IsClosed() {
			continue
		}
		ts, err := Unix(t.CloseTime)
		if err != nil {
			return nil, fmt.Errorf("trade_history[%d].close_time: %w", i, err)
		}
		points = append(points, core.BalancePoint{Time: ts, Balance: t.Balance})
	}
	return points, nil
}
