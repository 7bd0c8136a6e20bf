package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
)

// sweeper settles local records against the ledger tail and evicts the ones
// that stayed unmatched for too long.
type sweeper struct {
	client     LedgerClient
	store      *store.Store
	now        func() time.Time
	window     uint64
	staleAfter time.Duration
}

func (s *sweeper) sweep(ctx context.Context) (store.SweepResult, error) {
	if s.store.LocalLen() == 0 {
		return store.SweepResult{}, nil
	}

	total, err := s.client.TotalCount(ctx)
	if err != nil {
		return store.SweepResult{}, fmt.Errorf("total count: %w", err)
	}
	s.store.ObserveTotal(total)

	start := total - min(total, s.window)
	tail, err := s.client.FetchRange(ctx, start, total-start)
	if err != nil {
		return store.SweepResult{}, fmt.Errorf("fetch tail %d+%d: %w", start, total-start, err)
	}
	return s.store.ReconcileLocal(tail, s.now(), s.staleAfter), nil
}
