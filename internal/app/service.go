// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/affinity/internal/adapters/repository"
	"github.com/okian/affinity/internal/aggregate"
	"github.com/okian/affinity/internal/batch"
	"github.com/okian/affinity/internal/domain/embedding"
	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/mutation"
	"github.com/okian/affinity/internal/domain/types"
	"github.com/okian/affinity/internal/domain/weights"
	"github.com/okian/affinity/pkg/logger"
	"github.com/okian/affinity/pkg/metrics"
)

// Service implements the API dependencies for the affinity pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       *repository.Store
	table       *weights.Table
	embedder    *embedding.Projector
	mutator     *mutation.Projector
	aggregator  *aggregate.Engine
	coordinator *batch.Coordinator

	// Configuration
	batchSize             int
	runInterval           time.Duration
	maxAttempts           int
	workerCount           int
	leaseTTL              time.Duration
	dimensions            int
	profileHalfLife       float64
	mutationHalfLife      float64
	learningRate          float64
	backfillRecency       float64
	blend                 [4]float64
	categoryWeights       map[string]map[string]float64
	userCategoryWeights   map[string]map[string]map[string]float64
	defaultCategoryWeight float64
	maxLeaderboardLimit   int
	windowNames           []string

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Required before Start.
func WithStore(store *repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithBatchSize bounds how many events one run may claim.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRunInterval schedules automatic batch runs. Zero disables the
// scheduler.
func WithRunInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.runInterval = d
		}
	}
}

// WithMaxAttempts sets the failure count at which an event is parked.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithWorkerCount sets the per-user projection parallelism.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithLeaseTTL bounds how long a stalled run blocks the next one.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.leaseTTL = d
		}
	}
}

// WithDimensions sets the per-domain embedding dimensionality.
func WithDimensions(dims int) Option {
	return func(s *Service) {
		if dims > 0 {
			s.dimensions = dims
		}
	}
}

// WithHalfLives sets the profile and mutation decay half-lives in days.
func WithHalfLives(profileDays, mutationDays float64) Option {
	return func(s *Service) {
		if profileDays > 0 {
			s.profileHalfLife = profileDays
		}
		if mutationDays > 0 {
			s.mutationHalfLife = mutationDays
		}
	}
}

// WithLearningRate seeds new profiles.
func WithLearningRate(rate float64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.learningRate = rate
		}
	}
}

// WithBackfillRecency scales down alpha for backfilled events.
func WithBackfillRecency(f float64) Option {
	return func(s *Service) {
		if f > 0 {
			s.backfillRecency = f
		}
	}
}

// WithBlend sets the composite blend importances.
func WithBlend(blend [4]float64) Option {
	return func(s *Service) {
		s.blend = blend
	}
}

// WithCategoryWeights overlays configured category weights onto the
// built-in table.
func WithCategoryWeights(overlay map[string]map[string]float64, defaultWeight float64) Option {
	return func(s *Service) {
		s.categoryWeights = overlay
		if defaultWeight > 0 {
			s.defaultCategoryWeight = defaultWeight
		}
	}
}

// WithUserCategoryWeights overlays per-user category weights on top of
// the shared table.
func WithUserCategoryWeights(overlay map[string]map[string]map[string]float64) Option {
	return func(s *Service) {
		s.userCategoryWeights = overlay
	}
}

// WithMaxLeaderboardLimit caps leaderboard reads.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithLeaderboardWindows names the materialized windows.
func WithLeaderboardWindows(names []string) Option {
	return func(s *Service) {
		if len(names) > 0 {
			s.windowNames = names
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		batchSize:             500,
		runInterval:           30 * time.Second,
		maxAttempts:           5,
		workerCount:           runtime.NumCPU(),
		leaseTTL:              5 * time.Minute,
		dimensions:            384,
		profileHalfLife:       90,
		mutationHalfLife:      7,
		learningRate:          0.1,
		backfillRecency:       0.25,
		blend:                 [4]float64{0.40, 0.30, 0.15, 0.15},
		defaultCategoryWeight: 1.0,
		maxLeaderboardLimit:   100,
		windowNames:           []string{"7d", "30d", "all"},
		stopCh:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start wires the projection pipeline and, when configured, launches the
// batch scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("%w: store is required", ErrNotConfigured)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting affinity pipeline...")

	table, err := weights.New(
		weights.WithCategoryWeights(s.categoryWeights),
		weights.WithUserCategoryWeights(s.userCategoryWeights),
		weights.WithDefaultCategoryWeight(s.defaultCategoryWeight),
	)
	if err != nil {
		return fmt.Errorf("build weight table: %w", err)
	}
	embedder, err := embedding.New(
		embedding.WithDimensions(s.dimensions),
		embedding.WithBlend(s.blend),
		embedding.WithHalfLifeDays(s.profileHalfLife),
		embedding.WithLearningRate(s.learningRate),
		embedding.WithBackfillRecency(s.backfillRecency),
	)
	if err != nil {
		return fmt.Errorf("build embedding projector: %w", err)
	}
	mutator, err := mutation.New(table, s.mutationHalfLife)
	if err != nil {
		return fmt.Errorf("build mutation projector: %w", err)
	}
	windows, err := aggregate.ParseWindows(s.windowNames)
	if err != nil {
		return fmt.Errorf("parse leaderboard windows: %w", err)
	}

	s.table = table
	s.embedder = embedder
	s.mutator = mutator
	s.aggregator = aggregate.New(s.store, windows,
		aggregate.WithWorkerCount(s.workerCount),
		aggregate.WithLogger(s.logger.Named("aggregate")),
	)
	s.coordinator = batch.New(s.store, embedder, mutator, table, s.aggregator,
		batch.WithBatchSize(s.batchSize),
		batch.WithMaxAttempts(s.maxAttempts),
		batch.WithWorkerCount(s.workerCount),
		batch.WithLeaseTTL(s.leaseTTL),
		batch.WithLogger(s.logger.Named("batch")),
	)

	if s.runInterval > 0 {
		s.wg.Add(1)
		go s.schedule(s.runInterval)
	}

	s.started = true
	metrics.UpdateWorkerCount(s.workerCount)
	s.logger.Info(ctx, "affinity pipeline started",
		logger.Int("workers", s.workerCount),
		logger.Int("batchSize", s.batchSize),
		logger.Duration("runInterval", s.runInterval),
	)
	return nil
}

// Stop gracefully shuts down the service. The store is closed by its
// owner, not here.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping affinity pipeline...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	s.started = false
	s.logger.Info(context.Background(), "affinity pipeline stopped")
}

// schedule drives periodic batch runs until Stop.
func (s *Service) schedule(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx := context.Background()
			summary, err := s.RunBatch(ctx, 0)
			if errors.Is(err, batch.ErrRunInProgress) {
				continue
			}
			if err != nil {
				s.logger.Error(ctx, "scheduled batch run failed", logger.Error(err))
				continue
			}
			if summary.Claimed > 0 {
				s.logger.Debug(ctx, "scheduled batch run done",
					logger.Int("claimed", summary.Claimed),
					logger.Int("mutations", summary.MutationsCreated),
				)
			}
		}
	}
}

// AppendEvent validates and appends one interaction event. The ledger is
// append-only; processing happens later in a batch run.
func (s *Service) AppendEvent(ctx context.Context, req types.AppendEventRequest) (string, error) {
	et := model.EventType(req.Type)
	if !et.Valid() {
		metrics.RecordEventRejected()
		return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, req.Type)
	}
	if req.UserID == "" {
		metrics.RecordEventRejected()
		return "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if req.OccurredAt.IsZero() {
		metrics.RecordEventRejected()
		return "", fmt.Errorf("%w: occurred_at is required", ErrValidation)
	}

	source := model.SourceLive
	switch req.Source {
	case "", string(model.SourceLive):
	case string(model.SourceBackfill):
		source = model.SourceBackfill
	default:
		metrics.RecordEventRejected()
		return "", fmt.Errorf("%w: unknown source %q", ErrValidation, req.Source)
	}

	var raw map[string]any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &raw); err != nil {
			metrics.RecordEventRejected()
			return "", fmt.Errorf("%w: malformed payload: %v", ErrValidation, err)
		}
	}
	payload, err := model.ParsePayload(et, raw)
	if err != nil {
		metrics.RecordEventRejected()
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	id := req.EventID
	if id == "" {
		id = uuid.NewString()
	}

	ev := &model.InteractionEvent{
		ID:         id,
		UserID:     req.UserID,
		Type:       et,
		Payload:    payload,
		OccurredAt: req.OccurredAt.UTC(),
		Source:     source,
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	metrics.RecordEventAppended()
	return id, nil
}

// Profile returns a user's embedding profile view. Raw vectors are only
// attached on request; norms are always included.
func (s *Service) Profile(ctx context.Context, userID string, includeVectors bool) (*types.ProfileView, error) {
	p, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &types.ProfileView{
		UserID:       p.UserID,
		Generation:   p.Generation,
		Dimensions:   p.Dimensions,
		Confidence:   p.Confidence,
		HalfLifeDays: p.HalfLifeDays,
		DomainNorms:  make(map[string]float64, len(model.Domains)),
	}
	if !p.LastInteraction.IsZero() {
		view.LastInteraction = p.LastInteraction.UTC().Format(time.RFC3339Nano)
	}
	if !p.UpdatedAt.IsZero() {
		view.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	for d, name := range model.Domains {
		view.DomainNorms[string(name)] = vectorNorm(p.Vectors[d])
	}
	if includeVectors {
		view.Vectors = make(map[string][]float64, len(model.Domains)+1)
		for d, name := range model.Domains {
			view.Vectors[string(name)] = p.Vectors[d]
		}
		view.Vectors["composite"] = p.Composite
	}
	return view, nil
}

// PutEntityProfile stores an externally generated entity embedding. All
// four domain vectors must be present with the configured dimensionality.
func (s *Service) PutEntityProfile(ctx context.Context, entityID string, req types.EntityProfileRequest) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	p := &model.EntityProfile{
		EntityID:   entityID,
		Kind:       req.Kind,
		Dimensions: s.dimensions,
		UpdatedAt:  time.Now().UTC(),
	}
	for d, name := range model.Domains {
		vec, ok := req.Vectors[string(name)]
		if !ok {
			return fmt.Errorf("%w: missing vector for domain %q", ErrValidation, name)
		}
		if len(vec) != s.dimensions {
			return fmt.Errorf("%w: domain %q has %d dimensions, want %d", ErrValidation, name, len(vec), s.dimensions)
		}
		p.Vectors[d] = vec
	}
	return s.store.PutEntityProfile(ctx, p)
}

// Strength returns the aggregated total for one (entity, category).
func (s *Service) Strength(ctx context.Context, entityID string, category string) (*types.StrengthView, error) {
	cat := model.Category(category)
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}
	st, err := s.store.GetStrength(ctx, entityID, cat)
	if err != nil {
		return nil, err
	}
	view := &types.StrengthView{
		EntityID:      st.EntityID,
		Category:      string(st.Category),
		TotalDelta:    st.TotalDelta,
		MutationCount: st.MutationCount,
	}
	if !st.LastMutationAt.IsZero() {
		view.LastMutationAt = st.LastMutationAt.UTC().Format(time.RFC3339Nano)
	}
	return view, nil
}

// Breakdown returns per-category mutation aggregates for one entity,
// optionally restricted to a trailing window in days.
func (s *Service) Breakdown(ctx context.Context, entityID, category string, windowDays int) ([]types.BreakdownRow, error) {
	var cat model.Category
	if category != "" {
		cat = model.Category(category)
		if !cat.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
		}
	}
	if windowDays < 0 {
		return nil, fmt.Errorf("%w: window must not be negative", ErrValidation)
	}
	return s.store.MutationBreakdown(ctx, entityID, cat, windowDays, time.Now().UTC())
}

// Leaderboard returns the top entries of one materialized view.
func (s *Service) Leaderboard(ctx context.Context, category, window string, limit int) ([]types.LeaderboardEntry, error) {
	cat := model.Category(category)
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}
	if !s.knownWindow(window) {
		return nil, fmt.Errorf("%w: unknown window %q", ErrValidation, window)
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > s.maxLeaderboardLimit {
		limit = s.maxLeaderboardLimit
	}
	return s.store.Leaderboard(ctx, cat, window, limit)
}

// RunBatch executes one processing cycle on demand.
func (s *Service) RunBatch(ctx context.Context, maxEvents int) (*types.RunSummary, error) {
	s.mu.RLock()
	coordinator := s.coordinator
	s.mu.RUnlock()
	if coordinator == nil {
		return nil, fmt.Errorf("%w: service not started", ErrNotConfigured)
	}
	return coordinator.Run(ctx, maxEvents)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"batchSize":   s.batchSize,
		"dimensions":  s.dimensions,
	}
	if s.store == nil {
		return stats
	}
	if n, err := s.store.CountUnprocessed(ctx); err == nil {
		stats["unprocessedEvents"] = n
		metrics.UpdateUnprocessedEvents(n)
	}
	if n, err := s.store.CountPermanentlyFailed(ctx); err == nil {
		stats["permanentlyFailed"] = n
		metrics.UpdatePermanentFailures(n)
	}
	if n, err := s.store.CountUserProfiles(ctx); err == nil {
		stats["trackedProfiles"] = n
		metrics.UpdateTrackedProfiles(n)
	}
	if v, err := s.store.SchemaVersion(); err == nil {
		stats["schemaVersion"] = v
	}
	return stats
}

func (s *Service) knownWindow(window string) bool {
	for _, w := range s.windowNames {
		if w == window {
			return true
		}
	}
	return false
}

func vectorNorm(vec []float64) float64 {
	var sq float64
	for _, v := range vec {
		sq += v * v
	}
	return math.Sqrt(sq)
}
