package series

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/btviz/internal/core"
)

// TimeframeUnknown is returned when the sampling interval cannot be inferred
const TimeframeUnknown = "unknown"

// Interval returns the absolute gap between the first two samples.
// Only that one gap is looked at, so irregular series may be misclassified.
func Interval(ohlc []core.OHLC) (time.Duration, bool) {
	if len(ohlc) < 2 {
		return 0, false
	}
	t1, err := ParseTime(ohlc[0].Time)
	if err != nil {
		return 0, false
	}
	t2, err := ParseTime(ohlc[1].Time)
	if err != nil {
		return 0, false
	}
	d := t2.Sub(t1)
	if d < 0 {
		d = -d
	}
	return d, true
}

// DetectTimeframe labels the sampling interval as "{n}m", "{n}h" or "{n}d"
func DetectTimeframe(ohlc []core.OHLC) string {
	d, ok := Interval(ohlc)
	if !ok {
		return TimeframeUnknown
	}
	return TimeframeLabel(d)
}

// TimeframeLabel formats a gap rounded to the nearest whole unit
func TimeframeLabel(d time.Duration) string {
	minutes := d.Minutes()
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm", int64(math.Round(minutes)))
	case minutes < 24*60:
		return fmt.Sprintf("%dh", int64(math.Round(minutes/60)))
	default:
		return fmt.Sprintf("%dd", int64(math.Round(minutes/(60*24))))
	}
}
