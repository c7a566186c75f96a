// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
)

// StrengthHandler handles aggregated strength and mutation breakdown reads.
type StrengthHandler struct {
	deps Dependencies
}

// NewStrengthHandler creates a new strength handler.
func NewStrengthHandler(deps Dependencies) *StrengthHandler {
	return &StrengthHandler{deps: deps}
}

// HandleGetStrength handles GET /strength?entity_id=X&category=Y requests.
func (h *StrengthHandler) HandleGetStrength(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_strength"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entityID := r.URL.Query().Get("entity_id")
	category := r.URL.Query().Get("category")
	if entityID == "" || category == "" {
		writeError(w, http.StatusBadRequest, "validation", NewKind(op, ErrBadRequest))
		return
	}

	view, err := h.deps.Strength(r.Context(), entityID, category)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetMutations handles GET /mutations?entity_id=X requests with
// optional category and window_days filters.
func (h *StrengthHandler) HandleGetMutations(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_mutations"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		writeError(w, http.StatusBadRequest, "validation", NewKind(op, ErrBadRequest))
		return
	}
	category := r.URL.Query().Get("category")

	windowDays := 0
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "validation", NewKind(op, ErrBadRequest))
			return
		}
		windowDays = n
	}

	rows, err := h.deps.Breakdown(r.Context(), entityID, category, windowDays)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
