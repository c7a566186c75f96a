// Package aggregate recomputes per-entity strength totals and rebuilds
// the materialized leaderboard views from the mutation ledger.
package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/pkg/logger"
	"github.com/okian/affinity/pkg/metrics"
)

const defaultWorkerCount = 4

// Window is one leaderboard time window. Days 0 means all-time.
type Window struct {
	Name string
	Days int
}

// ParseWindows parses window names like "7d", "30d" and "all". Anything
// else is a configuration error.
func ParseWindows(names []string) ([]Window, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one leaderboard window is required", ErrInvalidWindow)
	}
	out := make([]Window, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "all" {
			out = append(out, Window{Name: "all"})
			continue
		}
		if !strings.HasSuffix(name, "d") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, name)
		}
		days, err := strconv.Atoi(strings.TrimSuffix(name, "d"))
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, name)
		}
		out = append(out, Window{Name: name, Days: days})
	}
	return out, nil
}

// Cutoff returns the window's inclusive lower bound, or the zero time for
// all-time.
func (w Window) Cutoff(now time.Time) time.Time {
	if w.Days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -w.Days)
}

// Store is the slice of the repository the engine needs.
type Store interface {
	RecomputeStrength(ctx context.Context, entityID string) error
	RebuildLeaderboard(ctx context.Context, category model.Category, window string, cutoff, now time.Time) error
}

// Engine drives aggregation. Both operations are idempotent folds over
// the mutation ledger; strength rows and leaderboard views are disposable
// caches that can be rebuilt from scratch at any time.
type Engine struct {
	store   Store
	windows []Window
	workers int
	log     logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWorkerCount bounds the per-entity recompute parallelism.
func WithWorkerCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New constructs an Engine over the given store and windows.
func New(store Store, windows []Window, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		windows: windows,
		workers: defaultWorkerCount,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("aggregate")
	}
	return e
}

// RecomputeStrengths re-derives totals for the given entities. Entities
// are independent, so the work fans out across a bounded worker set; the
// per-entity upsert keeps a single entity safe under retries.
func (e *Engine) RecomputeStrengths(ctx context.Context, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordAggregationDuration(float64(time.Since(start).Milliseconds()))
	}()

	ids := make(chan string, len(entityIDs))
	for _, id := range entityIDs {
		ids <- id
	}
	close(ids)

	workers := e.workers
	if workers > len(entityIDs) {
		workers = len(entityIDs)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if ctx.Err() != nil {
					return
				}
				if err := e.store.RecomputeStrength(ctx, id); err != nil {
					e.log.Error(ctx, "strength recompute failed",
						logger.String("entityID", id),
						logger.Error(err),
					)
					metrics.RecordErrorByComponent("aggregate", "recompute_failed")
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				metrics.RecordStrengthRecompute()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// RefreshLeaderboards rebuilds every (category, window) view wholesale.
// Given an identical mutation ledger the result is byte-identical, with
// ties broken by entity id inside the store.
func (e *Engine) RefreshLeaderboards(ctx context.Context, categories []model.Category, now time.Time) error {
	for _, cat := range categories {
		for _, w := range e.windows {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := e.store.RebuildLeaderboard(ctx, cat, w.Name, w.Cutoff(now), now); err != nil {
				metrics.RecordErrorByComponent("aggregate", "refresh_failed")
				return fmt.Errorf("refresh leaderboard %s/%s: %w", cat, w.Name, err)
			}
			metrics.RecordLeaderboardRefresh()
		}
	}
	return nil
}

// Windows exposes the configured windows for read handlers.
func (e *Engine) Windows() []Window {
	return e.windows
}
