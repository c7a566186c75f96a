// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) to build a Config with defaults, Load(...) to layer
//   file and environment overrides on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"fmt"
	"runtime"

	"github.com/okian/affinity/internal/domain/model"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath points at the SQLite database file. ":memory:" is accepted
	// for ephemeral runs.
	DBPath string `koanf:"db_path"`

	// BatchSize bounds how many events one batch run may claim.
	BatchSize int `koanf:"batch_size"`

	// RunIntervalSeconds schedules automatic batch runs. Zero disables
	// the scheduler; runs then only happen on demand.
	RunIntervalSeconds int `koanf:"run_interval_seconds"`

	// MaxAttempts parks an event as permanently failed once reached.
	MaxAttempts int `koanf:"max_attempts"`

	// WorkerCount sets the per-user projection parallelism.
	WorkerCount int `koanf:"worker_count"`

	// LeaseTTLSeconds bounds how long a stalled run blocks the next one.
	LeaseTTLSeconds int `koanf:"lease_ttl_seconds"`

	// VectorDimensions sets the per-domain embedding dimensionality.
	VectorDimensions int `koanf:"vector_dimensions"`

	// ProfileHalfLifeDays drives inter-event profile decay.
	ProfileHalfLifeDays float64 `koanf:"profile_half_life_days"`

	// MutationHalfLifeDays drives processing-time staleness decay for
	// mutation rows. Deliberately much shorter than the profile one.
	MutationHalfLifeDays float64 `koanf:"mutation_half_life_days"`

	// LearningRate seeds new profiles; in (0, 1].
	LearningRate float64 `koanf:"learning_rate"`

	// BackfillRecencyFactor scales down alpha for backfilled events.
	BackfillRecencyFactor float64 `koanf:"backfill_recency_factor"`

	// DomainBlend maps domain names to composite importances. The four
	// values must sum to 1.
	DomainBlend map[string]float64 `koanf:"domain_blend"`

	// CategoryWeights overlays per-event-type category weights, keyed by
	// event type then category.
	CategoryWeights map[string]map[string]float64 `koanf:"category_weights"`

	// UserCategoryWeights overlays per-user category weights, keyed by
	// user ID, then event type, then category. Users without an entry
	// use CategoryWeights.
	UserCategoryWeights map[string]map[string]map[string]float64 `koanf:"user_category_weights"`

	// DefaultCategoryWeight is used for pairs with no explicit weight.
	DefaultCategoryWeight float64 `koanf:"default_category_weight"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// LeaderboardWindows names the materialized windows, e.g. 7d, 30d, all.
	LeaderboardWindows []string `koanf:"leaderboard_windows"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and is
// currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DBPath:                "affinity.db",
		BatchSize:             500,
		RunIntervalSeconds:    30,
		MaxAttempts:           5,
		WorkerCount:           runtime.NumCPU(),
		LeaseTTLSeconds:       300,
		VectorDimensions:      384,
		ProfileHalfLifeDays:   90,
		MutationHalfLifeDays:  7,
		LearningRate:          0.1,
		BackfillRecencyFactor: 0.25,
		DomainBlend: map[string]float64{
			string(model.DomainCultural):   0.40,
			string(model.DomainBehavioral): 0.30,
			string(model.DomainEconomic):   0.15,
			string(model.DomainSpatial):    0.15,
		},
		CategoryWeights:       map[string]map[string]float64{},
		UserCategoryWeights:   map[string]map[string]map[string]float64{},
		DefaultCategoryWeight: 1.0,
		MaxLeaderboardLimit:   100,
		LeaderboardWindows:    []string{"7d", "30d", "all"},
	}
}

// Blend resolves DomainBlend into the fixed domain order. Unknown domain
// names are a configuration error; missing domains default to zero, which
// the projector then rejects on the sum check.
func (c *Config) Blend() ([4]float64, error) {
	var out [4]float64
	known := make(map[string]int, len(model.Domains))
	for i, d := range model.Domains {
		known[string(d)] = i
	}
	for name, imp := range c.DomainBlend {
		i, ok := known[name]
		if !ok {
			return out, fmt.Errorf("%w: unknown blend domain %q", ErrInvalidConfig, name)
		}
		out[i] = imp
	}
	return out, nil
}
