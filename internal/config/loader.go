package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if AFFINITY_CONFIG is set
//  3. env (prefix AFFINITY_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("AFFINITY_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: AFFINITY_ADDR, AFFINITY_BATCH_SIZE, ...
	// Map env keys like AFFINITY_BATCH_SIZE -> batch_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("AFFINITY_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "affinity_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the pipeline cannot run with. Deeper
// semantic checks (blend sum, weight table) happen where the values are
// consumed.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.VectorDimensions <= 0:
		return fmt.Errorf("%w: vector_dimensions must be positive, got %d", ErrInvalidConfig, c.VectorDimensions)
	case c.ProfileHalfLifeDays <= 0:
		return fmt.Errorf("%w: profile_half_life_days must be positive, got %v", ErrInvalidConfig, c.ProfileHalfLifeDays)
	case c.MutationHalfLifeDays <= 0:
		return fmt.Errorf("%w: mutation_half_life_days must be positive, got %v", ErrInvalidConfig, c.MutationHalfLifeDays)
	case c.RunIntervalSeconds < 0:
		return fmt.Errorf("%w: run_interval_seconds must not be negative, got %d", ErrInvalidConfig, c.RunIntervalSeconds)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive, got %d", ErrInvalidConfig, c.MaxLeaderboardLimit)
	case len(c.LeaderboardWindows) == 0:
		return fmt.Errorf("%w: at least one leaderboard window is required", ErrInvalidConfig)
	}
	return nil
}
