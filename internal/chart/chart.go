// Package chart renders the replay state of a backtest as an echarts page.
package chart

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/newthinker/btviz/internal/align"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/indicator"
)

const (
	colorBackground    = "#0f172a"
	colorTextPrimary   = "#e2e8f0"
	colorTextSecondary = "#94a3b8"
	colorBull          = "#22c55e"
	colorBear          = "#ef4444"
	colorBalance       = "#38bdf8"
	colorExit          = "#e2e8f0"

	widthPx         = 1200
	candleHeightPx  = 520
	balanceHeightPx = 280
	markerSize      = 14
)

var overlayColors = []string{"#f59e0b", "#a78bfa", "#f472b6", "#2dd4bf"}

// Input is everything needed to draw one replay frame
type Input struct {
	Symbol          string
	Timeframe       string
	Candles         []core.Candle
	Balance         []core.BalancePoint
	Markers         []align.Marker
	Indicators      []string // moving averages to overlay, e.g. "sma_20"
	StartingBalance float64
	Index           int // playback position
	Window          int // candles visible around Index
}

// Render writes a standalone HTML page with the candle and balance charts
func Render(w io.Writer, in Input) error {
	if len(in.Candles) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("no candles to render for %s", in.Symbol))
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s backtest replay", strings.ToUpper(in.Symbol))
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(Candlestick(in))
	if len(in.Balance) > 0 {
		page.AddCharts(BalanceLine(in))
	}
	return page.Render(w)
}

// RenderBytes renders the page into memory
func RenderBytes(in Input) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Candlestick builds the price chart zoomed on the visible window, with a
// cursor on the playback position and the markers reached so far
func Candlestick(in Input) *charts.Kline {
	n := len(in.Candles)
	index := min(max(in.Index, 0), max(n-1, 0))
	visible := align.VisibleRange(n, index, in.Window)
	bounds := align.ChartBounds(in.Candles[visible.From:visible.To+1], 0)
	xAxis := timeAxis(in.Candles)

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(candleHeightPx)),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s", strings.ToUpper(in.Symbol), in.Timeframe),
			Subtitle:   fmt.Sprintf("candle %d of %d", index+1, n),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(zoom(visible, n)),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       round(bounds.MinPrice, 4),
			Max:       round(bounds.MaxPrice, 4),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	data := make([]opts.KlineData, n)
	for i, c := range in.Candles {
		data[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
		charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "now", XAxis: xAxis[index]}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{Symbol: []string{"none", "none"}}),
	)

	for i, o := range indicator.Overlays(in.Candles, in.Indicators) {
		line := overlaySeries(o, overlayColors[i%len(overlayColors)])
		line.SetXAxis(xAxis)
		kline.Overlap(line)
	}

	if markers := align.VisibleMarkers(in.Markers, index); len(markers) > 0 {
		scatter := markerSeries(markers)
		scatter.SetXAxis(xAxis)
		kline.Overlap(scatter)
	}
	return kline
}

// markerSeries groups markers into buy entries, sell entries and exits
func markerSeries(markers []align.Marker) *charts.Scatter {
	var buys, sells, exits []opts.ScatterData
	for _, m := range markers {
		point := opts.ScatterData{
			Name:       fmt.Sprintf("trade %d %s", m.TradeIndex+1, m.Kind),
			Value:      []any{m.CandleIndex, round(m.Price, 6)},
			SymbolSize: markerSize,
		}
		switch {
		case m.Kind == align.MarkerExit:
			point.Symbol = "diamond"
			exits = append(exits, point)
		case m.Side == core.SideSell:
			point.Symbol = "pin"
			sells = append(sells, point)
		default:
			point.Symbol = "triangle"
			buys = append(buys, point)
		}
	}

	scatter := charts.NewScatter()
	scatter.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	scatter.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorExit}))
	return scatter
}

func overlaySeries(o indicator.Overlay, color string) *charts.Line {
	data := make([]opts.LineData, len(o.Values))
	for i, v := range o.Values {
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: round(v, 6)}
	}

	line := charts.NewLine()
	line.AddSeries(o.Name, data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1.5}),
	)
	return line
}

// BalanceLine builds the account balance curve with the starting balance marked
func BalanceLine(in Input) *charts.Line {
	xAxis := make([]string, len(in.Balance))
	data := make([]opts.LineData, len(in.Balance))
	for i, p := range in.Balance {
		xAxis[i] = label(p.Time)
		data[i] = opts.LineData{Value: round(p.Balance, 2)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(balanceHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Balance", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Balance", data,
		charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBalance, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorBalance, Opacity: opts.Float(0.15)}),
		charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "start", YAxis: in.StartingBalance}),
	)
	return line
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", widthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

// zoom converts a visible index range into slider percentages
func zoom(r align.Range, n int) opts.DataZoom {
	dz := opts.DataZoom{Type: "slider", XAxisIndex: []int{0}, Start: 0, End: 100}
	if n > 1 {
		dz.Start = float32(float64(r.From) / float64(n-1) * 100)
		dz.End = float32(float64(r.To) / float64(n-1) * 100)
	}
	return dz
}

func timeAxis(candles []core.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = label(c.Time)
	}
	return x
}

func label(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
