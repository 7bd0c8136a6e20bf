// Package workerpool runs a function over a slice with bounded concurrency.
package workerpool

import (
	"context"
	"errors"
	"sync"
)

// Process runs process over items with at most workerCount calls in flight.
// The first failure cancels the remaining work and is returned.
func Process[T any](ctx context.Context, workerCount int, items []T, process func(context.Context, T) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	run(ctx, workerCount, items, func(ctx context.Context, item T) {
		if err := process(ctx, item); err != nil {
			cancel(err)
		}
	})

	if err := context.Cause(ctx); err != nil {
		return err
	}
	return nil
}

// Each runs process over every item with at most workerCount calls in flight.
// Failures do not stop the other items; they are joined into the result.
// Items not started before ctx is done are skipped.
func Each[T any](ctx context.Context, workerCount int, items []T, process func(context.Context, T) error) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	run(ctx, workerCount, items, func(ctx context.Context, item T) {
		if err := process(ctx, item); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func run[T any](ctx context.Context, workerCount int, items []T, fn func(context.Context, T)) {
	workerCount = max(1, min(workerCount, len(items)))
	tasks := make(chan T)

	var wg sync.WaitGroup
	for range workerCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				fn(ctx, item)
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case tasks <- item:
		}
	}
	close(tasks)
	wg.Wait()
}
