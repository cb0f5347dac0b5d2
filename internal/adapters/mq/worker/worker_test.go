package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/sphere/internal/adapters/mq/queue"
	worker "github.com/okian/sphere/internal/adapters/mq/worker"
	"github.com/okian/sphere/internal/domain/model"
	logging "github.com/okian/sphere/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockRescorer struct {
	mu     sync.Mutex
	calls  map[string]int
	errors map[string]error
	delay  time.Duration
}

func newMockRescorer() *mockRescorer {
	return &mockRescorer{calls: map[string]int{}, errors: map[string]error{}}
}

func (m *mockRescorer) Rescore(ctx context.Context, platformID string) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[platformID]++
	return m.errors[platformID]
}

func (m *mockRescorer) count(platformID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[platformID]
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool draining the rescore queue", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue[model.ProfileChange]("rescore", queue.WithCapacity(100))
		r := newMockRescorer()
		pool := worker.NewPool(q, r, worker.WithWorkers(3))
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When profile changes are enqueued", func() {
			for _, id := range []string{"ig-1", "ig-2", "ig-1"} {
				convey.So(q.Enqueue(ctx, model.ProfileChange{PlatformID: id, Reason: "snapshot", At: time.Now()}), convey.ShouldBeTrue)
			}

			convey.Convey("Then every job is rescored", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(r.count("ig-1"), convey.ShouldEqual, 2)
				convey.So(r.count("ig-2"), convey.ShouldEqual, 1)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a rescore fails", func() {
			r.mu.Lock()
			r.errors["ig-bad"] = errors.New("profile store unavailable")
			r.mu.Unlock()
			q.Enqueue(ctx, model.ProfileChange{PlatformID: "ig-bad"})
			q.Enqueue(ctx, model.ProfileChange{PlatformID: "ig-ok"})

			convey.Convey("Then the pool keeps going", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == 2 }), convey.ShouldBeTrue)
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
				convey.So(r.count("ig-ok"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then workers stop and later jobs are not processed", func() {
				convey.So(err, convey.ShouldBeNil)
				q.Enqueue(context.Background(), model.ProfileChange{PlatformID: "late"})
				time.Sleep(20 * time.Millisecond)
				convey.So(r.count("late"), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestPoolJobTimeout(t *testing.T) {
	convey.Convey("Given a slow rescorer and a short job timeout", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue[model.ProfileChange]("rescore", queue.WithCapacity(10))
		r := newMockRescorer()
		r.delay = time.Second
		pool := worker.NewPool(q, r, worker.WithWorkers(1), worker.WithJobTimeout(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		q.Enqueue(ctx, model.ProfileChange{PlatformID: "slow"})

		convey.Convey("Then the job fails instead of blocking the worker", func() {
			convey.So(waitFor(func() bool { return pool.Failed() == 1 }), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}
