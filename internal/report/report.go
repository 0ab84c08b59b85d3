// Package report renders a session into a chart page plus a metrics file
// and stores both through the archive.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/btviz/internal/chart"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/playback"
	"github.com/newthinker/btviz/internal/session"
	"github.com/newthinker/btviz/internal/storage/archive"
	"go.uber.org/zap"
)

const (
	chartFile   = "chart.html"
	metricsFile = "metrics.json"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Request selects what to export
type Request struct {
	Index int    // playback position to freeze; negative means the current one
	Name  string // optional run name, defaults to a timestamp
}

// Result lists where the report was stored
type Result struct {
	ChartPath   string `json:"chart_path"`
	MetricsPath string `json:"metrics_path"`
	Location    string `json:"location"`
	Index       int    `json:"index"`
}

// Document is the metrics file content
type Document struct {
	Session    session.Summary `json:"session"`
	View       session.View    `json:"view"`
	ExportedAt time.Time       `json:"exported_at"`
}

// Exporter writes reports to a storage backend
type Exporter struct {
	store  archive.Storage
	window int
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. window is the number of candles shown
// around the exported position.
func NewExporter(store archive.Storage, window int, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, window: window, logger: logger, now: time.Now}
}

// Export renders the session at the requested index and stores it
func (e *Exporter) Export(ctx context.Context, s *session.Session, req Request) (*Result, error) {
	candles := s.Candles()
	pos := s.Driver().Position()
	if req.Index >= 0 {
		if req.Index >= len(candles) {
			return nil, core.WrapError(core.ErrInvalidArgument,
				fmt.Errorf("index %d out of range [0, %d)", req.Index, len(candles)))
		}
		pos = pos.WithIndex(req.Index)
		pos.State = playback.StateStopped
	}

	summary := s.Summary()
	page, err := chart.RenderBytes(chart.Input{
		Symbol:          summary.Symbol,
		Timeframe:       summary.Timeframe,
		Candles:         candles,
		Balance:         s.Balance(),
		Markers:         s.Markers(),
		Indicators:      s.Dataset().Indicators,
		StartingBalance: summary.StartingBalance,
		Index:           pos.Index,
		Window:          e.window,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrExportFailed, err)
	}

	now := e.now().UTC()
	doc, err := json.MarshalIndent(Document{Session: summary, View: s.ViewAt(pos), ExportedAt: now}, "", "  ")
	if err != nil {
		return nil, core.WrapError(core.ErrExportFailed, err)
	}

	dir := Dir(summary.Symbol, req.Name, now)
	res := &Result{
		ChartPath:   path.Join(dir, chartFile),
		MetricsPath: path.Join(dir, metricsFile),
		Location:    e.store.Location(dir),
		Index:       pos.Index,
	}
	if err := e.store.Write(ctx, res.ChartPath, page); err != nil {
		return nil, core.WrapError(core.ErrExportFailed, err)
	}
	if err := e.store.Write(ctx, res.MetricsPath, doc); err != nil {
		return nil, core.WrapError(core.ErrExportFailed, err)
	}

	e.logger.Info("report exported",
		zap.String("session", s.ID),
		zap.String("symbol", summary.Symbol),
		zap.Int("index", pos.Index),
		zap.String("location", res.Location),
	)
	return res, nil
}

// List returns stored report directories for a symbol
func (e *Exporter) List(ctx context.Context, symbol string) ([]string, error) {
	paths, err := e.store.List(ctx, sanitize(strings.ToUpper(symbol)))
	if err != nil {
		return nil, core.WrapError(core.ErrExportFailed, err)
	}
	var dirs []string
	for _, p := range paths {
		if path.Base(p) == chartFile {
			dirs = append(dirs, path.Dir(p))
		}
	}
	return dirs, nil
}

// Dir is the storage directory of one report
func Dir(symbol, name string, at time.Time) string {
	run := at.UTC().Format("20060102-150405")
	if name = sanitize(name); name != "" {
		run = name
	}
	sym := sanitize(strings.ToUpper(symbol))
	if sym == "" {
		sym = "UNKNOWN"
	}
	return sym + "/" + run
}

func sanitize(s string) string {
	return strings.Trim(unsafeName.ReplaceAllString(s, "_"), "._")
}
