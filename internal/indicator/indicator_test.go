package indicator

import (
	"math"
	"testing"

	"github.com/newthinker/btviz/internal/core"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// [2] = (10+11+12)/3 = 11 ... [5] = (13+14+15)/3 = 14
	expected := []float64{math.NaN(), math.NaN(), 11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}
	for i, v := range expected {
		if math.IsNaN(v) {
			if !math.IsNaN(sma[i]) {
				t.Errorf("sma[%d] = %f, want NaN", i, sma[i])
			}
			continue
		}
		if sma[i] != v {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	sma := SMA([]float64{10, 11}, 5)

	if len(sma) != 2 {
		t.Fatalf("expected aligned slice, got %d values", len(sma))
	}
	for i, v := range sma {
		if !math.IsNaN(v) {
			t.Errorf("sma[%d] = %f, want NaN", i, v)
		}
	}
}

func TestEMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ema := EMA(prices, 3)

	if len(ema) != 6 {
		t.Fatalf("expected 6 values, got %d", len(ema))
	}
	if !math.IsNaN(ema[1]) {
		t.Errorf("expected NaN during warm-up, got %f", ema[1])
	}

	// First EMA = SMA = 11
	if ema[2] != 11 {
		t.Errorf("first EMA should equal SMA, got %f", ema[2])
	}
	// (12-11)*0.5+11
	if !almostEqual(ema[3], 12, 1e-9) {
		t.Errorf("ema[3] = %f, want 12", ema[3])
	}

	for i := 3; i < len(ema); i++ {
		if ema[i] <= ema[i-1] {
			t.Errorf("EMA should be increasing, ema[%d]=%f <= ema[%d]=%f", i, ema[i], i-1, ema[i-1])
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Spec
		ok   bool
	}{
		{"sma_20", Spec{KindSMA, 20}, true},
		{"EMA-12", Spec{KindEMA, 12}, true},
		{" sma50 ", Spec{KindSMA, 50}, true},
		{"rsi_14", Spec{}, false},
		{"sma", Spec{}, false},
		{"sma_0", Spec{}, false},
		{"ema_x", Spec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.name)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Parse(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOverlays(t *testing.T) {
	candles := make([]core.Candle, 5)
	for i := range candles {
		candles[i] = core.Candle{Close: float64(i + 1)}
	}

	got := Overlays(candles, []string{"sma_2", "rsi_14", "SMA_2", "ema_3"})
	if len(got) != 2 {
		t.Fatalf("expected 2 overlays, got %d", len(got))
	}
	if got[0].Name != "SMA(2)" || got[1].Name != "EMA(3)" {
		t.Errorf("unexpected names %q %q", got[0].Name, got[1].Name)
	}
	if got[0].Values[4] != 4.5 {
		t.Errorf("sma last = %f, want 4.5", got[0].Values[4])
	}
	if len(got[1].Values) != 5 || !math.IsNaN(got[1].Values[1]) {
		t.Errorf("ema not aligned: %v", got[1].Values)
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
