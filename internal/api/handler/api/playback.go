package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/playback"
)

// Playback actions
const (
	ActionPlay         = "play"
	ActionPause        = "pause"
	ActionToggle       = "toggle"
	ActionSeek         = "seek"
	ActionSeekFraction = "seek_fraction"
	ActionStep         = "step"
	ActionStart        = "start"
	ActionEnd          = "end"
	ActionSpeed        = "speed"
)

// PlaybackRequest is the body of a playback command.
type PlaybackRequest struct {
	Action   string   `json:"action"`
	Index    *int     `json:"index,omitempty"`
	Fraction *float64 `json:"fraction,omitempty"`
	Delta    *int     `json:"delta,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

// Apply runs a playback command against a driver.
func Apply(d *playback.Driver, req PlaybackRequest) (playback.Position, error) {
	switch req.Action {
	case ActionPlay:
		return d.Play()
	case ActionPause:
		return d.Pause(), nil
	case ActionToggle:
		return d.Toggle()
	case ActionSeek:
		if req.Index == nil {
			return playback.Position{}, missing("index")
		}
		return d.Seek(*req.Index), nil
	case ActionSeekFraction:
		if req.Fraction == nil {
			return playback.Position{}, missing("fraction")
		}
		return d.SeekFraction(*req.Fraction), nil
	case ActionStep:
		delta := 1
		if req.Delta != nil {
			delta = *req.Delta
		}
		return d.Step(delta), nil
	case ActionStart:
		return d.SkipToStart(), nil
	case ActionEnd:
		return d.SkipToEnd(), nil
	case ActionSpeed:
		if req.Speed == nil {
			return playback.Position{}, missing("speed")
		}
		return d.SetSpeed(*req.Speed)
	default:
		return playback.Position{}, core.WrapError(core.ErrInvalidArgument,
			fmt.Errorf("unknown playback action %q", req.Action))
	}
}

func missing(field string) error {
	return core.WrapError(core.ErrInvalidArgument, fmt.Errorf("%s is required", field))
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("index must be an integer, got %q", s)
	}
	return n, nil
}

// PlaybackHandler handles playback control requests.
type PlaybackHandler struct {
	app *app.App
}

// NewPlaybackHandler creates a new playback handler.
func NewPlaybackHandler(a *app.App) *PlaybackHandler {
	return &PlaybackHandler{app: a}
}

// Control applies a playback command and returns the resulting view.
func (h *PlaybackHandler) Control(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	var req PlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidArgument, err))
		return
	}

	pos, err := Apply(s.Driver(), req)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if m := h.app.Metrics(); m != nil {
		m.RecordPlaybackAction(req.Action)
	}
	response.JSON(w, http.StatusOK, s.ViewAt(pos))
}

// Position returns the raw playback position.
func (h *PlaybackHandler) Position(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions().Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.Driver().Position())
}

