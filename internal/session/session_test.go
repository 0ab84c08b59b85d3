package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleClock never fires, so playback only moves when the test seeks
type idleClock struct{}

func (idleClock) After(time.Duration) <-chan time.Time { return nil }

func testDataset(symbol string, candles int) *core.Dataset {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	ds := &core.Dataset{Symbol: symbol, StartingBalance: 10000, ExchangeRate: 1}
	for i := 0; i < candles; i++ {
		p := 100 + float64(i)
		ds.OHLCHistory = append(ds.OHLCHistory, core.OHLC{
			Time:    start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04:05"),
			ETFOpen: p, ETFHigh: p + 2, ETFLow: p - 2, ETFClose: p + 1,
		})
	}
	ds.TradeHistory = []core.Trade{
		{Symbol: symbol, OrderType: core.SideBuy, OpenTime: ds.OHLCHistory[1].Time, OpenPrice: 101,
			CloseTime: ds.OHLCHistory[3].Time, ClosePrice: 104, ProfitNet: 30, Balance: 10030},
		{Symbol: symbol, OrderType: core.SideSell, OpenTime: ds.OHLCHistory[4].Time, OpenPrice: 105,
			CloseTime: ds.OHLCHistory[6].Time, ClosePrice: 107, ProfitNet: -20, Balance: 10010},
	}
	return ds
}

func newTestManager(maxSize int, ttl time.Duration) *Manager {
	return NewManager(maxSize, ttl, Options{Window: 4, DefaultSpeed: 1, Clock: idleClock{}})
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	s, err := m.Create(testDataset("QQQ", 10))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	sum := s.Summary()
	assert.Equal(t, "QQQ", sum.Symbol)
	assert.Equal(t, 10, sum.Candles)
	assert.Equal(t, 2, sum.Trades)
	assert.Equal(t, 2, sum.AlignedTrades)
	assert.Equal(t, "1h", sum.Timeframe)
	assert.Equal(t, 10010.0, sum.Metrics.FinalBalance)
	assert.Equal(t, 1, sum.Metrics.WinningTrades)

	assert.Len(t, s.Candles(), 10)
	assert.Len(t, s.Balance(), 3)
	assert.Len(t, s.Markers(), 4)

	_, err = m.Get("missing")
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestManager_CreateRejectsBadData(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	_, err := m.Create(&core.Dataset{Symbol: "QQQ", StartingBalance: 1})
	assert.True(t, errors.Is(err, core.ErrNoData))

	ds := testDataset("QQQ", 3)
	ds.OHLCHistory[1].Time = "yesterday"
	_, err = m.Create(ds)
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.Equal(t, 0, m.Len())
}

func TestManager_CreateWithOpenTrade(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	ds := testDataset("QQQ", 10)
	last := &ds.TradeHistory[1]
	last.CloseTime, last.ClosePrice, last.State = "", 0, "open"

	s, err := m.Create(ds)
	require.NoError(t, err)
	assert.Len(t, s.Balance(), 2, "curve ends at the last closed trade")
	assert.Len(t, s.Markers(), 3, "open trade has an entry marker only")

	aligned := s.AlignedTrades()
	require.Len(t, aligned, 2)
	assert.Equal(t, -1, aligned[1].CloseIndex)
}

func TestManager_EvictsOldest(t *testing.T) {
	m := newTestManager(2, time.Hour)
	defer m.Close()

	first, err := m.Create(testDataset("A", 5))
	require.NoError(t, err)
	_, err = m.Create(testDataset("B", 5))
	require.NoError(t, err)
	_, err = m.Create(testDataset("C", 5))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, err = m.Get(first.ID)
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
	assert.True(t, first.Closed())

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Symbol)
	assert.Equal(t, "C", list[1].Symbol)
}

func TestManager_TTL(t *testing.T) {
	m := newTestManager(10, time.Minute)
	defer m.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale, err := m.Create(testDataset("A", 5))
	require.NoError(t, err)
	now = now.Add(45 * time.Second)
	fresh, err := m.Create(testDataset("B", 5))
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.True(t, stale.Closed())

	_, err = m.Get(fresh.ID)
	require.NoError(t, err, "get refreshes the idle timer")
	now = now.Add(50 * time.Second)
	_, err = m.Get(fresh.ID)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(fresh.ID)
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
	assert.Equal(t, 0, m.Len())
}

func TestManager_TTL_ActiveSessionsKept(t *testing.T) {
	m := newTestManager(10, time.Minute)
	defer m.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	watched, err := m.Create(testDataset("A", 100))
	require.NoError(t, err)
	_, cancel := watched.Driver().Subscribe()
	playing, err := m.Create(testDataset("B", 100))
	require.NoError(t, err)
	_, err = playing.Driver().Play()
	require.NoError(t, err)

	for i := 0; i < 90; i++ {
		now = now.Add(time.Second)
		watched.Driver().Step(1)
		assert.Equal(t, 0, m.Sweep())
	}
	assert.False(t, watched.Closed())
	assert.False(t, playing.Closed())
	assert.Equal(t, 90, watched.Driver().Position().Index)

	// idle countdown starts once nobody watches or plays
	cancel()
	playing.Driver().Pause()
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, m.Sweep())
	now = now.Add(31 * time.Second)
	assert.Equal(t, 2, m.Sweep())
	assert.True(t, watched.Closed())
	assert.True(t, playing.Closed())
}

func TestManager_Replace(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	s, err := m.Create(testDataset("A", 10))
	require.NoError(t, err)
	oldDriver := s.Driver()
	sub, _ := s.Subscribe()
	oldDriver.Seek(7)
	<-sub

	_, err = m.Replace(s.ID, testDataset("B", 20))
	require.NoError(t, err)

	assert.Equal(t, "B", s.Dataset().Symbol)
	assert.Len(t, s.Candles(), 20)
	assert.NotSame(t, oldDriver, s.Driver())
	assert.Equal(t, 0, s.View().Index, "new dataset starts at the first candle")
	assert.Equal(t, playback.StateStopped, s.View().State)

	_, ok := <-sub
	assert.False(t, ok, "old driver subscriptions end on replace")

	_, err = m.Replace(s.ID, &core.Dataset{Symbol: "C"})
	assert.Error(t, err)
	assert.Equal(t, "B", s.Dataset().Symbol, "failed replace keeps the old dataset")

	_, err = m.Replace("missing", testDataset("D", 3))
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	s, err := m.Create(testDataset("A", 5))
	require.NoError(t, err)

	require.NoError(t, m.Delete(s.ID))
	assert.True(t, s.Closed())
	assert.True(t, errors.Is(m.Delete(s.ID), core.ErrSessionNotFound))

	_, err = s.Driver().Play()
	assert.True(t, errors.Is(err, core.ErrSessionClosed))
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(10, time.Hour)
	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, err := m.Create(testDataset(fmt.Sprintf("S%d", i), 5))
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	m.Close()
	assert.Equal(t, 0, m.Len())
	for _, s := range sessions {
		assert.True(t, s.Closed())
	}
}

func TestSession_View(t *testing.T) {
	m := newTestManager(10, time.Hour)
	defer m.Close()

	s, err := m.Create(testDataset("QQQ", 10))
	require.NoError(t, err)

	v := s.View()
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, 10, v.Length)
	assert.Equal(t, 10000.0, v.Balance)
	assert.Equal(t, 0.0, v.ProfitLoss)
	assert.Empty(t, v.Markers)
	assert.Equal(t, 0, v.Visible.From)
	assert.Equal(t, 2, v.Visible.To)

	s.Driver().Seek(4)
	v = s.View()
	assert.Equal(t, s.Candles()[4].Time, v.Time)
	assert.Equal(t, 10030.0, v.Balance)
	assert.Equal(t, 30.0, v.ProfitLoss)
	assert.Len(t, v.Markers, 3, "entry and exit of trade 1 plus entry of trade 2")
	assert.Equal(t, 2, v.Visible.From)
	assert.Equal(t, 6, v.Visible.To)

	v = s.ViewAt(playback.Position{Index: 9, Length: 10})
	assert.Equal(t, 10010.0, v.Balance)
	assert.Len(t, v.Markers, 4)
}

func TestSession_OnTick(t *testing.T) {
	ticks := make(chan string, 1)
	clock := make(chan time.Time, 1)
	m := NewManager(10, time.Hour, Options{
		DefaultSpeed: 1,
		Clock:        chanClock(clock),
		OnTick:       func(id string, p playback.Position) { ticks <- fmt.Sprintf("%s:%d", id, p.Index) },
	})
	defer m.Close()

	s, err := m.Create(testDataset("QQQ", 5))
	require.NoError(t, err)
	_, err = s.Driver().Play()
	require.NoError(t, err)
	clock <- time.Now()

	select {
	case got := <-ticks:
		assert.Equal(t, s.ID+":1", got)
	case <-time.After(time.Second):
		t.Fatal("tick hook not called")
	}
}

type chanClock chan time.Time

func (c chanClock) After(time.Duration) <-chan time.Time { return c }
