// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/affinity/internal/domain/types"
)

// EntitiesHandler handles entity embedding writes.
type EntitiesHandler struct {
	deps Dependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps Dependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// HandlePutProfile handles PUT /entities/{entity_id}/profile requests.
func (h *EntitiesHandler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_entity_profile"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/entities/")
	entityID, ok := strings.CutSuffix(path, "/profile")
	if !ok || entityID == "" || strings.Contains(entityID, "/") {
		writeError(w, http.StatusBadRequest, "validation", NewKind(op, ErrBadRequest))
		return
	}
	var req types.EntityProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.PutEntityProfile(r.Context(), entityID, req); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "entity_id": entityID})
}
