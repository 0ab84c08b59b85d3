package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/newthinker/btviz/internal/align"
	"github.com/newthinker/btviz/internal/chart"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/session"
)

// IndexData holds data for the upload page
type IndexData struct {
	Title    string
	Sessions []session.Summary
}

// SessionData holds data for the replay dashboard
type SessionData struct {
	Title   string
	Summary session.Summary
	View    session.View
	Trades  []align.AlignedTrade
}

// Index renders the upload page with the list of loaded sessions
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, http.StatusOK, "index.html", IndexData{
		Title:    "Backtest Visualizer",
		Sessions: h.sessions.List(),
	})
}

// Session renders the replay dashboard of a session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sum := s.Summary()
	h.render(w, http.StatusOK, "session.html", SessionData{
		Title:   sum.Symbol + " replay",
		Summary: sum,
		View:    s.View(),
		Trades:  s.AlignedTrades(),
	})
}

// Chart renders the echarts page of a session at ?index=N, or at the
// current playback position
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	index := s.Driver().Position().Index
	if q := r.URL.Query().Get("index"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "index must be an integer", http.StatusBadRequest)
			return
		}
		index = n
	}

	sum := s.Summary()
	page, err := chart.RenderBytes(chart.Input{
		Symbol:          sum.Symbol,
		Timeframe:       sum.Timeframe,
		Candles:         s.Candles(),
		Balance:         s.Balance(),
		Markers:         s.Markers(),
		Indicators:      s.Dataset().Indicators,
		StartingBalance: sum.StartingBalance,
		Index:           index,
		Window:          h.window,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		h.render(w, status, "index.html", IndexData{Title: "Session not found", Sessions: h.sessions.List()})
		return nil, false
	}
	return s, true
}
