package api

import (
	"net/http"

	"github.com/newthinker/btviz/internal/align"
	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/core"
)

// SessionsHandler handles session API requests.
type SessionsHandler struct {
	app      *app.App
	maxBytes int64
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(a *app.App) *SessionsHandler {
	return &SessionsHandler{app: a, maxBytes: a.Config().Upload.MaxBytes}
}

// Create uploads a backtest and opens a session on it.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := openUpload(w, r, h.maxBytes)
	if err != nil {
		uploadFailed(w, err)
		return
	}
	defer body.Close()

	s, err := h.app.Load(body)
	if err != nil {
		uploadFailed(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+s.ID)
	response.JSON(w, http.StatusCreated, s.Summary())
}

// Replace swaps the dataset of an existing session.
func (h *SessionsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	body, err := openUpload(w, r, h.maxBytes)
	if err != nil {
		uploadFailed(w, err)
		return
	}
	defer body.Close()

	s, err := h.app.Replace(r.PathValue("id"), body)
	if err != nil {
		uploadFailed(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.Summary())
}

// List returns every live session.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.app.Sessions().List()
	response.JSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"total":    len(list),
	})
}

// Get returns the summary of a session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.Summary())
}

// Delete closes a session.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Delete(r.PathValue("id")); err != nil {
		response.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Candles returns the chart candles of a session.
func (h *SessionsHandler) Candles(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	candles := s.Candles()
	response.JSON(w, http.StatusOK, map[string]any{
		"timeframe": s.Timeframe(),
		"candles":   candles,
		"total":     len(candles),
	})
}

// Balance returns the balance curve of a session.
func (h *SessionsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"starting_balance": s.Dataset().StartingBalance,
		"balance":          s.Balance(),
	})
}

// Markers returns the trade markers of a session. With ?upto=N only the
// markers reached at candle N are returned.
func (h *SessionsHandler) Markers(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	markers := s.Markers()
	if upto := r.URL.Query().Get("upto"); upto != "" {
		idx, err := parseIndex(upto)
		if err != nil {
			response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidArgument, err))
			return
		}
		markers = s.ViewAt(s.Driver().Position().WithIndex(idx)).Markers
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"markers":        markers,
		"by_candle":      align.MarkersByCandle(markers),
		"aligned_trades": s.AlignedTrades(),
	})
}

// View returns the replay state at the current playback position.
func (h *SessionsHandler) View(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.View())
}
