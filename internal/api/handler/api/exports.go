package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/newthinker/btviz/internal/api/job"
	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/report"
)

const exportTimeout = 2 * time.Minute

// ExportRequest is the body for starting a report export.
type ExportRequest struct {
	Index *int   `json:"index,omitempty"` // defaults to the current position
	Name  string `json:"name,omitempty"`
}

// ExportsHandler handles report export requests.
type ExportsHandler struct {
	app  *app.App
	jobs *job.Store
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(a *app.App, jobs *job.Store) *ExportsHandler {
	return &ExportsHandler{app: a, jobs: jobs}
}

// Create starts an export job for a session.
func (h *ExportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.app.Sessions().Get(id); err != nil {
		response.Fail(w, err)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidArgument, err))
		return
	}

	rr := report.Request{Index: -1, Name: req.Name}
	if req.Index != nil {
		if *req.Index < 0 {
			response.Error(w, http.StatusBadRequest, missing("non-negative index"))
			return
		}
		rr.Index = *req.Index
	}

	j := h.jobs.Create("export", id)
	go h.runExport(j.ID, id, rr)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// runExport executes the export and updates job status.
func (h *ExportsHandler) runExport(jobID, sessionID string, req report.Request) {
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	res, err := h.app.Export(ctx, sessionID, req)

	if err != nil {
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			var coreErr *core.Error
			if errors.As(err, &coreErr) {
				j.Error = coreErr
			} else {
				j.Error = core.WrapError(core.ErrExportFailed, err)
			}
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = res
	})
}

// Status returns the status of an export job.
func (h *ExportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("job"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, jobView(j))
}

// List returns the export jobs of a session.
func (h *ExportsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List(r.PathValue("id"))
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobView(j))
	}
	response.JSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func jobView(j job.Job) map[string]any {
	resp := map[string]any{
		"job_id":     j.ID,
		"session_id": j.SessionID,
		"status":     j.Status,
		"created_at": j.CreatedAt,
	}
	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}
	return resp
}
