// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/affinity/internal/adapters/repository"
	service "github.com/okian/affinity/internal/app"
	"github.com/okian/affinity/internal/batch"
	"github.com/okian/affinity/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// AppendEvent validates and appends one interaction event, returning
	// its id.
	AppendEvent(ctx context.Context, req types.AppendEventRequest) (string, error)

	// Read operations expose projection state.
	Profile(ctx context.Context, userID string, includeVectors bool) (*types.ProfileView, error)
	Strength(ctx context.Context, entityID, category string) (*types.StrengthView, error)
	Breakdown(ctx context.Context, entityID, category string, windowDays int) ([]types.BreakdownRow, error)
	Leaderboard(ctx context.Context, category, window string, limit int) ([]types.LeaderboardEntry, error)

	// Write operations for entity embeddings and on-demand runs.
	PutEntityProfile(ctx context.Context, entityID string, req types.EntityProfileRequest) error
	RunBatch(ctx context.Context, maxEvents int) (*types.RunSummary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	profilesHandler    *ProfilesHandler
	entitiesHandler    *EntitiesHandler
	strengthHandler    *StrengthHandler
	leaderboardHandler *LeaderboardHandler
	runsHandler        *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		profilesHandler:    NewProfilesHandler(deps),
		entitiesHandler:    NewEntitiesHandler(deps),
		strengthHandler:    NewStrengthHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		runsHandler:        NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/profiles/", MetricsMiddleware(s.profilesHandler.HandleGetProfile, "profiles"))
	mux.HandleFunc("/entities/", MetricsMiddleware(s.entitiesHandler.HandlePutProfile, "entities"))
	mux.HandleFunc("/strength", MetricsMiddleware(s.strengthHandler.HandleGetStrength, "strength"))
	mux.HandleFunc("/mutations", MetricsMiddleware(s.strengthHandler.HandleGetMutations, "mutations"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/runs", MetricsMiddleware(s.runsHandler.HandlePostRun, "runs"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates upstream error kinds into the HTTP error
// taxonomy: validation 400, missing reference 404, concurrent run 409,
// everything else persistence 500.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "missing_reference", Wrap(op, err))
	case errors.Is(err, batch.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "persistence", Wrap(op, err))
	}
}
