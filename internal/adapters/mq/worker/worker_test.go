package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/botspot/internal/adapters/mq/queue"
	"github.com/okian/botspot/internal/adapters/mq/worker"
	"github.com/okian/botspot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// countingProcessor records every processed batch.
type countingProcessor struct {
	mu      sync.Mutex
	batches []model.SaltedBatch
	fail    bool
}

func (p *countingProcessor) Process(_ context.Context, b model.SaltedBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	if p.fail {
		return errors.New("processor exploded")
	}
	return nil
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	Convey("Given a worker over an in-memory batch queue", t, func() {
		q := queue.NewInMemory[model.SaltedBatch](queue.WithCapacity(16))
		proc := &countingProcessor{}
		w := worker.NewWorker(q, proc, worker.WithName("test-worker"))
		go w.Run(ctx)

		Convey("When batches are enqueued", func() {
			So(q.Enqueue(ctx, model.SaltedBatch{Salt: "salt-00"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.SaltedBatch{Salt: "salt-01"}), ShouldBeTrue)

			Convey("Then the worker processes each of them", func() {
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) && proc.count() < 2 {
					time.Sleep(5 * time.Millisecond)
				}
				So(proc.count(), ShouldEqual, 2)
			})
		})

		Convey("When the processor fails", func() {
			proc.fail = true
			So(q.Enqueue(ctx, model.SaltedBatch{Salt: "salt-00"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.SaltedBatch{Salt: "salt-01"}), ShouldBeTrue)

			Convey("Then the worker keeps consuming past the error", func() {
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) && proc.count() < 2 {
					time.Sleep(5 * time.Millisecond)
				}
				So(proc.count(), ShouldEqual, 2)
			})
		})

		Convey("When the worker shuts down", func() {
			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			Convey("Then Shutdown returns before the timeout", func() {
				So(w.Shutdown(sctx), ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool of four workers sharing a queue", t, func() {
		q := queue.NewInMemory[model.SaltedBatch](queue.WithCapacity(128))
		proc := &countingProcessor{}
		p := worker.NewPool(4, q, proc)
		p.Start(ctx)

		Convey("When many batches arrive", func() {
			for i := 0; i < 32; i++ {
				So(q.Enqueue(ctx, model.SaltedBatch{Salt: "salt-00"}), ShouldBeTrue)
			}

			Convey("Then the pool drains all of them", func() {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) && proc.count() < 32 {
					time.Sleep(5 * time.Millisecond)
				}
				So(proc.count(), ShouldEqual, 32)
				p.Stop()
			})
		})

		Convey("When the pool stops with no work", func() {
			Convey("Then Stop returns promptly", func() {
				start := time.Now()
				p.Stop()
				So(time.Since(start), ShouldBeLessThan, time.Second)
			})
		})
	})
}
