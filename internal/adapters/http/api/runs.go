// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// RunsHandler triggers on-demand batch runs.
type RunsHandler struct {
	deps Dependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

type runRequest struct {
	MaxEvents int `json:"max_events,omitempty"`
}

// HandlePostRun handles POST /runs requests. The body is optional; an
// empty body runs with the configured batch size. Calling with nothing
// unprocessed returns a zero-count summary.
func (h *RunsHandler) HandlePostRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_run"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "validation", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.MaxEvents < 0 {
		writeError(w, http.StatusBadRequest, "validation", NewKind(op, ErrBadRequest))
		return
	}

	summary, err := h.deps.RunBatch(r.Context(), req.MaxEvents)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
