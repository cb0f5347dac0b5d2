// Package worker runs the rescore pool that recomputes market value when a
// profile changes.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

const (
	defaultJobTimeout   = 10 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Rescorer recomputes and publishes the scores of one profile.
type Rescorer interface {
	Rescore(ctx context.Context, platformID string) error
}

// Queue is where workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.ProfileChange
}

// Pool is a fixed set of workers draining one queue.
type Pool struct {
	queue      Queue
	rescorer   Rescorer
	size       int
	jobTimeout time.Duration
	logger     logger.Logger

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewPool creates a pool. It does nothing until Start.
func NewPool(q Queue, r Rescorer, opts ...Option) *Pool {
	p := &Pool{
		queue:      q,
		rescorer:   r,
		size:       runtime.NumCPU(),
		jobTimeout: defaultJobTimeout,
		logger:     logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Processed returns how many jobs finished, successfully or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many jobs returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Start launches the workers. They stop when ctx is done, the queue closes,
// or Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	jobs := p.queue.Dequeue(ctx)
	for i := range p.size {
		p.wg.Add(1)
		go p.run(ctx, "worker-"+strconv.Itoa(i), jobs)
	}
}

func (p *Pool) run(ctx context.Context, name string, jobs <-chan model.ProfileChange) {
	defer p.wg.Done()
	log := p.logger.Named(name)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := p.process(ctx, job); err != nil {
				log.Error(ctx, "rescore failed",
					logger.String("platform_id", job.PlatformID),
					logger.String("reason", job.Reason),
					logger.Error(err))
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, job model.ProfileChange) error {
	start := time.Now()
	metrics.UpdateWorkerActive(int(p.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActive(int(p.active.Add(-1)))
		p.processed.Add(1)
	}()

	jctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := p.rescorer.Rescore(jctx, job.PlatformID); err != nil {
		p.failed.Add(1)
		metrics.RecordWorkerJob("failed", msSince(start))
		return fmt.Errorf("rescore %s: %w", job.PlatformID, err)
	}
	metrics.RecordWorkerJob("ok", msSince(start))
	return nil
}

// Shutdown stops the workers and waits for in-flight jobs, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-sctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", sctx.Err())
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
