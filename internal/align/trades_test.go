package align

import (
	"testing"
	"time"

	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hourlyCandles returns n candles one hour apart starting 2024-01-01 00:00 UTC
func hourlyCandles(n int) []core.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]core.Candle, n)
	for i := range out {
		out[i] = core.Candle{
			Time:  start.Add(time.Duration(i) * time.Hour).Unix(),
			Open:  100,
			High:  110 + float64(i),
			Low:   90 - float64(i),
			Close: 105,
		}
	}
	return out
}

func TestAlignTrades(t *testing.T) {
	candles := hourlyCandles(6)
	trades := []core.Trade{
		{OrderType: core.SideBuy, OpenTime: "2024-01-01 01:00:00", CloseTime: "2024-01-01 03:10:00", OpenPrice: 100, ClosePrice: 104, ProfitNet: 4},
		{OrderType: core.SideSell, OpenTime: "2024-01-01 04:29:00", CloseTime: "", OpenPrice: 106},
		{OrderType: core.SideBuy, OpenTime: "not a time", CloseTime: "2024-01-01 05:00:00"},
	}

	aligned := AlignTrades(candles, trades, 0)
	require.Len(t, aligned, 2)

	assert.Equal(t, 0, aligned[0].TradeIndex)
	assert.Equal(t, 1, aligned[0].OpenIndex)
	assert.Equal(t, 3, aligned[0].CloseIndex)

	assert.Equal(t, 1, aligned[1].TradeIndex)
	assert.Equal(t, 4, aligned[1].OpenIndex)
	assert.Equal(t, -1, aligned[1].CloseIndex, "open trade has no close")
}

func TestAlignTrades_Tolerance(t *testing.T) {
	candles := hourlyCandles(3)
	trades := []core.Trade{
		{OpenTime: "2024-01-01 00:00:30", CloseTime: "2024-01-01 02:00:00"},
		{OpenTime: "2024-01-01 09:00:00", CloseTime: "2024-01-01 10:00:00"}, // beyond the series
		{OpenTime: "2024-01-01 01:00:00", CloseTime: "2024-01-01 01:40:00"},
	}

	aligned := AlignTrades(candles, trades, time.Minute)
	require.Len(t, aligned, 2)
	assert.Equal(t, 0, aligned[0].TradeIndex)
	assert.Equal(t, 2, aligned[0].CloseIndex)
	assert.Equal(t, 2, aligned[1].TradeIndex)
	assert.Equal(t, -1, aligned[1].CloseIndex, "close 20 minutes off a candle exceeds tolerance")

	// Without tolerance the out-of-range trade clamps onto the last candle
	assert.Len(t, AlignTrades(candles, trades, 0), 3)
}

func TestAlignTrades_NoCandles(t *testing.T) {
	trades := []core.Trade{{OpenTime: "2024-01-01 00:00:00"}}
	assert.Empty(t, AlignTrades(nil, trades, 0))
}

func TestMarkers(t *testing.T) {
	candles := hourlyCandles(5)
	aligned := []AlignedTrade{
		{TradeIndex: 0, Trade: core.Trade{OrderType: core.SideBuy, OpenPrice: 1, ClosePrice: 2}, OpenIndex: 1, CloseIndex: 3},
		{TradeIndex: 1, Trade: core.Trade{OrderType: core.SideSell, OpenPrice: 3, ClosePrice: 4}, OpenIndex: 2, CloseIndex: 2},
		{TradeIndex: 2, Trade: core.Trade{OrderType: core.SideBuy, OpenPrice: 5}, OpenIndex: 4, CloseIndex: -1},
	}

	markers := Markers(candles, aligned)
	require.Len(t, markers, 4)

	assert.Equal(t, Marker{TradeIndex: 0, Kind: MarkerEntry, Side: core.SideBuy, CandleIndex: 1, Time: candles[1].Time, Price: 1}, markers[0])
	assert.Equal(t, MarkerExit, markers[1].Kind)
	assert.Equal(t, 3, markers[1].CandleIndex)
	assert.Equal(t, 2.0, markers[1].Price)
	assert.Equal(t, MarkerEntry, markers[2].Kind, "same-candle exit is not repeated")
	assert.Equal(t, 4, markers[3].CandleIndex)

	byCandle := MarkersByCandle(markers)
	assert.Len(t, byCandle[1], 1)
	assert.Len(t, byCandle[2], 1)
	assert.Empty(t, byCandle[0])

	visible := VisibleMarkers(markers, 2)
	require.Len(t, visible, 2)
	assert.Equal(t, 1, visible[0].CandleIndex)
	assert.Equal(t, 2, visible[1].CandleIndex)
}

func TestAligner_Resolve(t *testing.T) {
	a := NewAligner(hourlyCandles(3), 0)

	idx, ok := a.Resolve("2024-01-01 01:20:00")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = a.Resolve("")
	assert.False(t, ok)

	ts, _ := series.Unix("2024-01-01 02:00:00")
	idx, ok = a.Resolve(time.Unix(ts, 0).UTC().Format(time.RFC3339))
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}
