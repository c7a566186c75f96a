// Package batch orchestrates one processing cycle over the event ledger:
// claim, project, mark, aggregate.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/affinity/internal/adapters/repository"
	"github.com/okian/affinity/internal/domain/embedding"
	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/mutation"
	"github.com/okian/affinity/internal/domain/types"
	"github.com/okian/affinity/internal/domain/weights"
	"github.com/okian/affinity/pkg/logger"
	"github.com/okian/affinity/pkg/metrics"
)

// Default coordinator configuration constants.
const (
	defaultBatchSize   = 500
	defaultMaxAttempts = 5
	defaultWorkerCount = 4
	defaultLeaseTTL    = 5 * time.Minute
)

// Store is the slice of the repository the coordinator needs.
type Store interface {
	AcquireLease(ctx context.Context, holder string, ttl time.Duration, now time.Time) error
	ReleaseLease(ctx context.Context, holder string) error

	ClaimUnprocessed(ctx context.Context, limit int) ([]model.InteractionEvent, error)
	MarkProcessed(ctx context.Context, ids []string, at time.Time) error
	RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (bool, error)
	CountUnprocessed(ctx context.Context) (int, error)
	CountPermanentlyFailed(ctx context.Context) (int, error)
	CountUserProfiles(ctx context.Context) (int, error)

	InsertMutations(ctx context.Context, rows []model.DomainMutation) (int, error)

	GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	PutUserProfile(ctx context.Context, p *model.UserProfile) error
	GetEntityProfile(ctx context.Context, entityID string) (*model.EntityProfile, error)
}

// Aggregator folds the mutation ledger back into read views.
type Aggregator interface {
	RecomputeStrengths(ctx context.Context, entityIDs []string) error
	RefreshLeaderboards(ctx context.Context, categories []model.Category, now time.Time) error
}

// Coordinator drives batch runs. A single-row lease keeps runs mutually
// exclusive across processes sharing one database.
type Coordinator struct {
	store    Store
	embedder *embedding.Projector
	mutator  *mutation.Projector
	table    *weights.Table
	agg      Aggregator

	batchSize   int
	maxAttempts int
	workers     int
	leaseTTL    time.Duration
	clock       func() time.Time
	log         logger.Logger
}

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithBatchSize bounds how many events one run may claim.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxAttempts sets the failure count at which an event is parked.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithWorkerCount bounds the per-user embedding parallelism.
func WithWorkerCount(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLeaseTTL sets how long a run holds the lease before a stalled run
// can be taken over.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.leaseTTL = ttl
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a Coordinator over the given collaborators.
func New(store Store, embedder *embedding.Projector, mutator *mutation.Projector, table *weights.Table, agg Aggregator, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		embedder:    embedder,
		mutator:     mutator,
		table:       table,
		agg:         agg,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		workers:     defaultWorkerCount,
		leaseTTL:    defaultLeaseTTL,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("batch")
	}
	return c
}

// eventOutcome tracks per-event projector results inside one run. An
// event stays unprocessed only when both projectors errored; skips and
// partial failures still advance the watermark so retries cannot
// double-apply the profile update.
type eventOutcome struct {
	mutationErr  error
	embeddingErr error
	skipReason   string
}

func (o *eventOutcome) failedBoth() bool {
	return o.mutationErr != nil && o.embeddingErr != nil
}

func (o *eventOutcome) failureReason() string {
	return fmt.Sprintf("mutation: %v; embedding: %v", o.mutationErr, o.embeddingErr)
}

// Run executes one full cycle. A held lease means another run is in
// flight and surfaces as ErrRunInProgress; an empty claim yields a
// zero-count summary, not an error. maxEvents <= 0 uses the configured
// batch size.
func (c *Coordinator) Run(ctx context.Context, maxEvents int) (*types.RunSummary, error) {
	start := c.clock()
	holder := uuid.NewString()

	if err := c.store.AcquireLease(ctx, holder, c.leaseTTL, start); err != nil {
		if errors.Is(err, repository.ErrLeaseHeld) {
			return nil, ErrRunInProgress
		}
		return nil, fmt.Errorf("acquire run lease: %w", err)
	}
	defer func() {
		if err := c.store.ReleaseLease(context.WithoutCancel(ctx), holder); err != nil {
			c.log.Warn(ctx, "release run lease failed", logger.Error(err))
		}
	}()

	limit := maxEvents
	if limit <= 0 || limit > c.batchSize {
		limit = c.batchSize
	}

	events, err := c.store.ClaimUnprocessed(ctx, limit)
	if err != nil {
		metrics.RecordBatchRunFailed()
		return nil, fmt.Errorf("claim unprocessed events: %w", err)
	}

	summary := &types.RunSummary{Claimed: len(events)}
	if len(events) == 0 {
		summary.DurationMs = c.clock().Sub(start).Milliseconds()
		metrics.RecordBatchRun()
		return summary, nil
	}

	metrics.RecordBatchRun()
	metrics.RecordEventsClaimed(len(events))
	c.log.Info(ctx, "batch run claimed events",
		logger.String("holder", holder),
		logger.Int("claimed", len(events)),
	)

	outcomes := make(map[string]*eventOutcome, len(events))
	for i := range events {
		outcomes[events[i].ID] = &eventOutcome{}
	}

	touched := c.runMutationPhase(ctx, events, outcomes, summary, start)
	summary.EntitiesUpdated = len(touched)
	c.runEmbeddingPhase(ctx, events, outcomes)

	c.settleOutcomes(ctx, events, outcomes, summary)
	c.aggregate(ctx, touched, start)
	c.refreshGauges(ctx)

	summary.DurationMs = c.clock().Sub(start).Milliseconds()
	metrics.RecordBatchRunDuration(float64(summary.DurationMs))
	c.log.Info(ctx, "batch run finished",
		logger.String("holder", holder),
		logger.Int("claimed", summary.Claimed),
		logger.Int("mutations", summary.MutationsCreated),
		logger.Int("entities", summary.EntitiesUpdated),
		logger.Int("skipped", len(summary.Skipped)),
		logger.Int64("durationMs", summary.DurationMs),
	)
	return summary, nil
}

// runMutationPhase derives and inserts mutation rows for every claimed
// event and returns the set of touched entities. The (event, category)
// uniqueness constraint makes redelivery a counted no-op.
func (c *Coordinator) runMutationPhase(ctx context.Context, events []model.InteractionEvent, outcomes map[string]*eventOutcome, summary *types.RunSummary, now time.Time) map[string]struct{} {
	touched := make(map[string]struct{})
	for i := range events {
		ev := &events[i]
		rows := c.mutator.Derive(ev, now)
		if len(rows) == 0 {
			continue
		}
		inserted, err := c.store.InsertMutations(ctx, rows)
		if err != nil {
			outcomes[ev.ID].mutationErr = err
			metrics.RecordErrorByComponent("batch", "mutation_insert")
			c.log.Error(ctx, "mutation insert failed",
				logger.String("eventID", ev.ID),
				logger.Error(err),
			)
			continue
		}
		summary.MutationsCreated += inserted
		metrics.RecordMutationsInserted(inserted)
		if dup := len(rows) - inserted; dup > 0 {
			metrics.RecordMutationsDuplicate(dup)
		}
		for _, row := range rows {
			touched[row.EntityID] = struct{}{}
		}
	}
	return touched
}

// runEmbeddingPhase applies profile updates. Users are independent, so
// they fan out across workers; inside one user the events replay in
// occurrence order because the EMA fold is order-sensitive.
func (c *Coordinator) runEmbeddingPhase(ctx context.Context, events []model.InteractionEvent, outcomes map[string]*eventOutcome) {
	byUser := make(map[string][]*model.InteractionEvent)
	for i := range events {
		ev := &events[i]
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	users := make(chan string, len(userIDs))
	for _, id := range userIDs {
		users <- id
	}
	close(users)

	workers := c.workers
	if workers > len(userIDs) {
		workers = len(userIDs)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range users {
				if ctx.Err() != nil {
					return
				}
				c.projectUser(ctx, userID, byUser[userID], outcomes, &mu)
			}
		}()
	}
	wg.Wait()
}

// projectUser folds one user's claimed events into their profile and
// persists the final generation once.
func (c *Coordinator) projectUser(ctx context.Context, userID string, events []*model.InteractionEvent, outcomes map[string]*eventOutcome, mu *sync.Mutex) {
	now := c.clock()

	profile, err := c.store.GetUserProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		profile = c.embedder.NewProfile(userID, now)
		err = nil
	}
	if err != nil {
		mu.Lock()
		for _, ev := range events {
			outcomes[ev.ID].embeddingErr = err
		}
		mu.Unlock()
		metrics.RecordErrorByComponent("batch", "profile_load")
		c.log.Error(ctx, "user profile load failed",
			logger.String("userID", userID),
			logger.Error(err),
		)
		return
	}

	dirty := false
	for _, ev := range events {
		res, perr := c.applyEvent(ctx, ev, profile, now)
		if perr != nil {
			mu.Lock()
			outcomes[ev.ID].embeddingErr = perr
			mu.Unlock()
			metrics.RecordErrorByComponent("batch", "projection")
			c.log.Error(ctx, "embedding projection failed",
				logger.String("eventID", ev.ID),
				logger.String("userID", userID),
				logger.Error(perr),
			)
			continue
		}
		if res.Skipped {
			mu.Lock()
			outcomes[ev.ID].skipReason = res.Reason
			mu.Unlock()
			metrics.RecordProfileSkip()
			continue
		}
		profile = res.Profile
		dirty = true
		metrics.RecordProfileUpdate()
	}

	if !dirty {
		return
	}
	if err := c.store.PutUserProfile(ctx, profile); err != nil {
		mu.Lock()
		for _, ev := range events {
			if outcomes[ev.ID].embeddingErr == nil && outcomes[ev.ID].skipReason == "" {
				outcomes[ev.ID].embeddingErr = err
			}
		}
		mu.Unlock()
		metrics.RecordErrorByComponent("batch", "profile_store")
		c.log.Error(ctx, "user profile store failed",
			logger.String("userID", userID),
			logger.Error(err),
		)
	}
}

// applyEvent resolves the entity reference and projects one event.
func (c *Coordinator) applyEvent(ctx context.Context, ev *model.InteractionEvent, profile *model.UserProfile, now time.Time) (embedding.Result, error) {
	entityID, _ := ev.EntityRef()
	entity, err := c.store.GetEntityProfile(ctx, entityID)
	if errors.Is(err, repository.ErrNotFound) {
		entity = nil
		err = nil
	}
	if err != nil {
		return embedding.Result{}, fmt.Errorf("load entity %s: %w", entityID, err)
	}
	return c.embedder.Project(ev, profile, entity, c.table.For(ev.Type), now)
}

// settleOutcomes advances the watermark for every event that at least
// one projector handled and records failures for the rest.
func (c *Coordinator) settleOutcomes(ctx context.Context, events []model.InteractionEvent, outcomes map[string]*eventOutcome, summary *types.RunSummary) {
	now := c.clock()
	processed := make([]string, 0, len(events))

	for i := range events {
		ev := &events[i]
		o := outcomes[ev.ID]
		if o.failedBoth() {
			permanent, err := c.store.RecordFailure(ctx, ev.ID, o.failureReason(), c.maxAttempts)
			if err != nil {
				c.log.Error(ctx, "record failure failed",
					logger.String("eventID", ev.ID),
					logger.Error(err),
				)
			}
			if permanent {
				c.log.Warn(ctx, "event permanently failed",
					logger.String("eventID", ev.ID),
					logger.String("reason", o.failureReason()),
				)
			}
			metrics.RecordEventFailed()
			summary.Skipped = append(summary.Skipped, types.SkippedEvent{
				EventID: ev.ID,
				Reason:  o.failureReason(),
			})
			continue
		}
		if o.skipReason != "" {
			metrics.RecordEventSkipped()
			summary.Skipped = append(summary.Skipped, types.SkippedEvent{
				EventID: ev.ID,
				Reason:  o.skipReason,
			})
		}
		processed = append(processed, ev.ID)
	}

	if len(processed) == 0 {
		return
	}
	if err := c.store.MarkProcessed(ctx, processed, now); err != nil {
		metrics.RecordErrorByComponent("batch", "mark_processed")
		c.log.Error(ctx, "mark processed failed", logger.Error(err))
		return
	}
	metrics.RecordEventsProcessed(len(processed))
}

// aggregate recomputes strength for touched entities and refreshes every
// leaderboard view. Aggregation errors are logged but never fail the run;
// the next run rebuilds from the same ledger.
func (c *Coordinator) aggregate(ctx context.Context, touched map[string]struct{}, now time.Time) {
	if len(touched) == 0 {
		return
	}
	entityIDs := make([]string, 0, len(touched))
	for id := range touched {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	if err := c.agg.RecomputeStrengths(ctx, entityIDs); err != nil {
		c.log.Error(ctx, "strength aggregation failed", logger.Error(err))
	}
	if err := c.agg.RefreshLeaderboards(ctx, model.Categories, now); err != nil {
		c.log.Error(ctx, "leaderboard refresh failed", logger.Error(err))
	}
}

// refreshGauges updates backlog gauges after a run. Failures here are
// harmless; the gauges catch up on the next run.
func (c *Coordinator) refreshGauges(ctx context.Context) {
	if n, err := c.store.CountUnprocessed(ctx); err == nil {
		metrics.UpdateUnprocessedEvents(n)
	}
	if n, err := c.store.CountPermanentlyFailed(ctx); err == nil {
		metrics.UpdatePermanentFailures(n)
	}
	if n, err := c.store.CountUserProfiles(ctx); err == nil {
		metrics.UpdateTrackedProfiles(n)
	}
}
