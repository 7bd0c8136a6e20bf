// Package batcher buffers items and flushes them in rate limited batches.
package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ErrStopped is returned when adding to a stopped Batcher.
var ErrStopped = errors.New("batcher stopped")

// Config sizes a Batcher.
type Config struct {
	// Size flushes as soon as this many items are buffered.
	Size int
	// Interval flushes whatever is buffered at least this often.
	Interval time.Duration
	// RPS caps flushes per second.
	RPS int
	// Capacity bounds the queue in front of the buffer. Defaults to 2*Size.
	Capacity int
}

// FlushFunc writes one batch. The slice is reused after it returns.
type FlushFunc[T any] func(context.Context, []T) error

// Batcher buffers items and flushes them by size or interval.
type Batcher[T any] struct {
	logger  *zap.Logger
	flush   FlushFunc[T]
	onFlush func(size int, err error, started time.Time)
	itemsCh chan T
	cfg     Config
	rl      ratelimit.Limiter

	mu      sync.RWMutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Batcher. Start must be called before items are flushed.
func New[T any](logger *zap.Logger, flush FlushFunc[T], cfg Config) *Batcher[T] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = cfg.Size * 2
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	return &Batcher[T]{
		logger:  logger,
		flush:   flush,
		itemsCh: make(chan T, cfg.Capacity),
		cfg:     cfg,
		rl:      ratelimit.New(cfg.RPS),
		stop:    make(chan struct{}),
	}
}

// OnFlush registers fn to observe every flush attempt. Call before Start.
func (b *Batcher[T]) OnFlush(fn func(size int, err error, started time.Time)) {
	b.onFlush = fn
}

// Start begins the background flushing loop.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop flushes everything still queued and stops the loop. It is safe to
// call more than once.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.stop)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Add queues an item, waiting for queue space until ctx is done.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrStopped
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.itemsCh <- item:
		return nil
	}
}

// TryAdd queues an item without waiting. It reports false when the queue is
// full or the batcher is stopped.
func (b *Batcher[T]) TryAdd(item T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return false
	}

	select {
	case b.itemsCh <- item:
		return true
	default:
		return false
	}
}

func (b *Batcher[T]) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	buf := make([]T, 0, b.cfg.Size)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}

		b.rl.Take()
		started := time.Now()
		err := b.flush(ctx, buf)
		if b.onFlush != nil {
			b.onFlush(len(buf), err, started)
		}
		if err != nil {
			b.logger.Error("batch not flushed", zap.Int("size", len(buf)), zap.Error(err))
		} else {
			b.logger.Debug("batch flushed", zap.Int("size", len(buf)))
		}
		buf = buf[:0]
	}

	// drain flushes whatever is still queued; the final writes outlive ctx
	drain := func() {
		final := context.WithoutCancel(ctx)
		for {
			select {
			case item := <-b.itemsCh:
				buf = append(buf, item)
				if len(buf) >= b.cfg.Size {
					flush(final)
				}
			default:
				flush(final)
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case <-b.stop:
			drain()
			return

		case item := <-b.itemsCh:
			buf = append(buf, item)
			if len(buf) >= b.cfg.Size {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
