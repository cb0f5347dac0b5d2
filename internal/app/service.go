// Package service provides the valuation core that backs the HTTP API, the
// rescore workers and the alert scheduler.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sphere/internal/adapters/events"
	"github.com/okian/sphere/internal/adapters/mq/queue"
	"github.com/okian/sphere/internal/adapters/mq/worker"
	"github.com/okian/sphere/internal/adapters/repository"
	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/dedupe"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/scoring"
	"github.com/okian/sphere/internal/domain/tier"
	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
)

// Queue names, used as metric labels.
const (
	ScoreQueue   = "scores"
	RescoreQueue = "rescore"
)

// Kinds is every artifact kind the service needs before it is ready.
var Kinds = []artifact.Kind{artifact.KindMarketValue, artifact.KindPLEP}

// ScorePublisher mirrors computed scores to an external stream.
type ScorePublisher interface {
	PublishScore(ctx context.Context, u model.ScoreUpdate) error
}

// Service owns the valuation pipeline and the alert loop.
type Service struct {
	mu sync.RWMutex

	// Core components
	catalog  *features.Catalog
	registry *registry.Registry
	scorer   *scoring.Engine
	tiers    *tier.Classifier
	alerts   *alerting.Engine
	cycle    *alerting.Cycle
	store    repository.Store
	notify   alerting.NotificationSink
	sink     *events.DedupeSink
	scorePub ScorePublisher
	scores   *queue.InMemoryQueue[model.ScoreUpdate]
	rescores *queue.InMemoryQueue[model.ProfileChange]
	pool     *worker.Pool

	// Configuration
	source           registry.Source
	reloadInterval   time.Duration
	topK             int
	samples          int
	alertInterval    time.Duration
	alertParallelism int
	scoreQueueSize   int
	rescoreQueueSize int
	workerCount      int
	jobTimeout       time.Duration
	dedupeSize       int
	dedupeTTL        time.Duration
	now              func() time.Time

	// Stored alert cycles
	cycleMu sync.Mutex
	carry   []model.ScoreUpdate
	carried atomic.Int64

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		catalog:          features.Default(),
		tiers:            tier.Default(),
		reloadInterval:   30 * time.Second,
		topK:             scoring.DefaultTopK,
		samples:          scoring.DefaultSamples,
		alertInterval:    5 * time.Minute,
		alertParallelism: runtime.GOMAXPROCS(0),
		scoreQueueSize:   10_000,
		rescoreQueueSize: 1_000,
		workerCount:      runtime.NumCPU(),
		jobTimeout:       10 * time.Second,
		dedupeSize:       50_000,
		dedupeTTL:        24 * time.Hour,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.notify == nil {
		s.notify = events.NewLogSink(s.logger.Named("alerts"))
	}

	s.registry = registry.New(
		registry.WithSource(s.source),
		registry.WithCatalog(s.catalog),
		registry.WithLogger(s.logger.Named("registry")),
	)
	s.scorer = scoring.NewEngine(s.registry,
		scoring.WithTopK(s.topK),
		scoring.WithSamples(s.samples),
		scoring.WithLogger(s.logger.Named("scoring")),
	)
	s.alerts = alerting.NewEngine(
		alerting.WithParallelism(s.alertParallelism),
		alerting.WithClock(s.now),
		alerting.WithLogger(s.logger.Named("alerting")),
	)
	s.sink = events.NewDedupeSink(s.notify, dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
		dedupe.WithTTL(s.dedupeTTL),
	))
	s.cycle = alerting.NewCycle(s.alerts, s.store, s.sink, s.logger.Named("alert-cycle"))
	s.scores = queue.NewInMemoryQueue[model.ScoreUpdate](ScoreQueue, queue.WithCapacity(s.scoreQueueSize))
	s.rescores = queue.NewInMemoryQueue[model.ProfileChange](RescoreQueue, queue.WithCapacity(s.rescoreQueueSize))
	s.pool = worker.NewPool(s.rescores, s,
		worker.WithWorkers(s.workerCount),
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithLogger(s.logger.Named("worker-pool")),
	)
	return s
}

// Start loads every artifact kind, then launches the rescore workers, the
// artifact watcher and the alert scheduler. A missing artifact fails Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting valuation service...")

	if err := s.registry.Bootstrap(ctx, Kinds...); err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.registry.Watch(runCtx, s.reloadInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.schedule(runCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "valuation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("scoreQueueSize", s.scoreQueueSize),
		logger.Int("rescoreQueueSize", s.rescoreQueueSize),
		logger.Duration("alertInterval", s.alertInterval),
		logger.Duration("reloadInterval", s.reloadInterval),
	)
	return nil
}

// Stop gracefully shuts down the background loops and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping valuation service...")

	_ = s.rescores.Close()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.wg.Wait()
	_ = s.scores.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "valuation service stopped")
}

// Ready reports whether every artifact kind has an active handle.
func (s *Service) Ready() bool {
	return s.registry.Ready(Kinds...)
}

// Registry exposes the artifact registry, mostly for hot reloads in tests
// and tooling.
func (s *Service) Registry() *registry.Registry { return s.registry }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	st := types.Stats{
		Started:      started,
		ScoreQueue:   s.scores.Len() + int(s.carried.Load()),
		RescoreQueue: s.rescores.Len(),
		Workers:      s.pool.Size(),
		Processed:    s.pool.Processed(),
		Failed:       s.pool.Failed(),
	}
	for _, k := range s.registry.Kinds() {
		if h, err := s.registry.Resolve(k); err == nil {
			st.Artifacts = append(st.Artifacts, string(k)+"@"+h.Version())
		}
	}
	return st
}
