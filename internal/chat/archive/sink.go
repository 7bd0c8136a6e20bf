// Package archive copies confirmed chat messages into long-term storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/pkg/batcher"
	"github.com/goodnatureofminers/ledgerchat/pkg/workerpool"
	"go.uber.org/zap"
)

// Sink buffers confirmed messages and writes them to the repository in
// batches. Add never blocks: when the queue is full messages are dropped and
// counted, and a later Backfill picks them up again.
type Sink struct {
	logger   *zap.Logger
	repo     Repository
	metrics  Metrics
	contract string
	batcher  *batcher.Batcher[model.Message]

	chunk   uint64
	workers int
}

// NewSink builds a Sink for one contract. Start must be called before Add.
func NewSink(repo Repository, contract string, metrics Metrics, logger *zap.Logger) (*Sink, error) {
	return newSink(repo, contract, metrics, logger, batcher.Config{
		Size:     flushSize,
		Interval: flushInterval,
		RPS:      flushRPS,
		Capacity: queueCapacity,
	})
}

func newSink(repo Repository, contract string, metrics Metrics, logger *zap.Logger, cfg batcher.Config) (*Sink, error) {
	if metrics == nil {
		return nil, errors.New("archive metrics is required")
	}
	if repo == nil || contract == "" {
		return nil, errors.New("archive repository and contract are required")
	}

	s := &Sink{
		logger:   logger,
		repo:     repo,
		metrics:  metrics,
		contract: contract,
		chunk:    backfillChunk,
		workers:  backfillWorkers,
	}
	s.batcher = batcher.New(logger.Named("batcher"), s.flush, cfg)
	s.batcher.OnFlush(func(size int, err error, started time.Time) {
		s.metrics.ObserveFlush(err, size, started)
	})
	return s, nil
}

// Start begins flushing in the background.
func (s *Sink) Start(ctx context.Context) {
	s.batcher.Start(ctx)
}

// Stop flushes what is queued and stops.
func (s *Sink) Stop() {
	s.batcher.Stop()
}

// Add queues confirmed messages. It has the shape of a store confirmation hook.
func (s *Sink) Add(msgs []model.Message) {
	dropped := 0
	for _, msg := range msgs {
		if msg.State != model.StateConfirmed {
			continue
		}
		if !s.batcher.TryAdd(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		s.metrics.ObserveDropped(dropped)
		s.logger.Warn("archive queue full, messages dropped", zap.Int("dropped", dropped))
	}
}

func (s *Sink) flush(ctx context.Context, msgs []model.Message) error {
	return s.repo.InsertMessages(ctx, s.contract, msgs)
}

// Backfill archives every message from the end of the archive's gap-free
// prefix up to the ledger total, in chunks written concurrently. Ids above a
// gap that are already archived are written again; inserts are idempotent.
// It returns how many messages were written.
func (s *Sink) Backfill(ctx context.Context, ledger LedgerReader) (int, error) {
	next, err := s.repo.NextContiguousMessageID(ctx, s.contract)
	if err != nil {
		return 0, fmt.Errorf("archive high-water mark: %w", err)
	}
	total, err := ledger.TotalCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger total: %w", err)
	}
	if next >= total {
		s.logger.Debug("archive up to date", zap.Uint64("next", next), zap.Uint64("total", total))
		return 0, nil
	}

	starts := make([]uint64, 0, (total-next)/s.chunk+1)
	for start := next; start < total; start += s.chunk {
		starts = append(starts, start)
	}
	s.logger.Info("backfilling archive",
		zap.Uint64("from", next),
		zap.Uint64("to", total),
		zap.Int("chunks", len(starts)))

	written := make(chan int, len(starts))
	err = workerpool.Process(ctx, s.workers, starts, func(ctx context.Context, start uint64) error {
		count := min(s.chunk, total-start)
		msgs, err := ledger.FetchRange(ctx, start, count)
		if err != nil {
			s.metrics.ObserveBackfill(err, 0)
			return fmt.Errorf("fetch %d+%d: %w", start, count, err)
		}
		err = s.repo.InsertMessages(ctx, s.contract, msgs)
		s.metrics.ObserveBackfill(err, len(msgs))
		if err != nil {
			return fmt.Errorf("insert %d+%d: %w", start, count, err)
		}
		written <- len(msgs)
		return nil
	})
	close(written)

	n := 0
	for w := range written {
		n += w
	}
	return n, err
}
