// Package types contains common read shapes shared across the application.
package types

import (
	"encoding/json"
	"time"
)

// AppendEventRequest carries one incoming interaction event before
// validation. Payload stays raw until the event type is known.
type AppendEventRequest struct {
	EventID    string          `json:"event_id,omitempty"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	Source     string          `json:"source,omitempty"`
}

// EntityProfileRequest carries an externally generated entity embedding,
// one vector per domain name.
type EntityProfileRequest struct {
	Kind    string               `json:"kind"`
	Vectors map[string][]float64 `json:"vectors"`
}

// RunSummary reports the outcome of one batch run.
type RunSummary struct {
	Claimed          int            `json:"claimed"`
	MutationsCreated int            `json:"mutations_created"`
	EntitiesUpdated  int            `json:"entities_updated"`
	Skipped          []SkippedEvent `json:"skipped,omitempty"`
	DurationMs       int64          `json:"duration_ms"`
}

// SkippedEvent names one event a projector could not fully apply and why.
type SkippedEvent struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// LeaderboardEntry is one row of a ranked (category, window) view.
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	EntityID   string  `json:"entity_id"`
	Category   string  `json:"category"`
	Window     string  `json:"window"`
	TotalDelta float64 `json:"total_delta"`
}

// StrengthView is the read shape for one (entity, category) total.
type StrengthView struct {
	EntityID       string  `json:"entity_id"`
	Category       string  `json:"category"`
	TotalDelta     float64 `json:"total_delta"`
	MutationCount  int64   `json:"count"`
	LastMutationAt string  `json:"last_mutation_at,omitempty"`
}

// BreakdownRow aggregates mutations for one category inside a window.
type BreakdownRow struct {
	Category   string  `json:"category"`
	Count      int64   `json:"count"`
	TotalDelta float64 `json:"total_delta"`
}

// ProfileView is the read shape for a user's embedding profile. Raw
// vectors are only included when explicitly requested.
type ProfileView struct {
	UserID          string             `json:"user_id"`
	Generation      int64              `json:"generation"`
	Dimensions      int                `json:"dimensions"`
	Confidence      float64            `json:"confidence"`
	HalfLifeDays    float64            `json:"half_life_days"`
	LastInteraction string             `json:"last_interaction,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	DomainNorms     map[string]float64 `json:"domain_norms"`

	Vectors map[string][]float64 `json:"vectors,omitempty"`
}
