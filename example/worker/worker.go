// Package worker runs a group of workers that increment a shared counter
// under a poorlock lock. The example programs use it to show that the
// counter ends up exact even though the increment itself is not atomic.
package worker

import (
	"context"
	"time"

	"github.com/nozo-moto/flushprint"
	"github.com/nozo-moto/poorlock"
	"golang.org/x/sync/errgroup"
)

type Count struct {
	count int
}

func (c *Count) Value() int {
	return c.count
}

type Worker struct {
	locker         *poorlock.Locker
	key            poorlock.Key
	getLockTimeout time.Duration
	id             int
	count          *Count
	quiet          bool
}

func NewWorker(locker *poorlock.Locker, key poorlock.Key, count *Count) *Worker {
	return &Worker{
		locker:         locker,
		key:            key,
		getLockTimeout: time.Second * 2,
		count:          count,
	}
}

// Run increments the counter rounds times, once per tick.
func (w *Worker) Run(ctx context.Context, id, rounds int) error {
	w.id = id
	t := time.NewTicker(time.Duration(10) * time.Millisecond)
	defer t.Stop()

	for i := 0; i < rounds; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := w.do(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) do(ctx context.Context) error {
	return w.locker.Do(ctx, w.key, w.getLockTimeout, func(context.Context) error {
		w.increment()
		return nil
	})
}

func (w *Worker) increment() {
	n := w.count.count
	time.Sleep(time.Millisecond * 3)
	w.count.count = n + 1
	if !w.quiet {
		flushprint.Print("count ", w.count.count, " id ", w.id)
	}
}

// RunAll starts workers goroutines that each perform rounds increments and
// returns the final count.
func RunAll(ctx context.Context, locker *poorlock.Locker, key poorlock.Key, workers, rounds int) (int, error) {
	var count Count
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		eg.Go(func() error {
			return NewWorker(locker, key, &count).Run(ctx, i, rounds)
		})
	}
	if err := eg.Wait(); err != nil {
		return count.Value(), err
	}
	return count.Value(), nil
}
