package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"go.uber.org/zap"
)

// poller pulls every id the ledger holds beyond its cursor. The cursor only
// moves past ids that were actually fetched, so a message delivered by the
// event stream ahead of a gap never hides the gap from the next poll.
type poller struct {
	client    LedgerClient
	store     *store.Store
	logger    *zap.Logger
	batchSize uint64

	mu     sync.Mutex
	cursor uint64
}

// reset moves the cursor to the current store total, as after a full load.
func (p *poller) reset() {
	p.mu.Lock()
	p.cursor = p.store.Total()
	p.mu.Unlock()
}

func (p *poller) position() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// poll fetches [cursor, total) in batches and merges it. It returns how many
// confirmed records were fetched.
func (p *poller) poll(ctx context.Context) (int, error) {
	total, err := p.client.TotalCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	p.store.ObserveTotal(total)

	p.mu.Lock()
	defer p.mu.Unlock()

	if total < p.cursor {
		p.logger.Warn("ledger reports fewer messages than already fetched",
			zap.Uint64("total", total), zap.Uint64("cursor", p.cursor))
		return 0, nil
	}

	fetched := 0
	for p.cursor < total {
		count := min(total-p.cursor, p.batchSize)
		msgs, err := p.client.FetchRange(ctx, p.cursor, count)
		if err != nil {
			return fetched, fmt.Errorf("fetch %d+%d: %w", p.cursor, count, err)
		}
		if len(msgs) == 0 {
			return fetched, nil
		}

		res := p.store.MergeConfirmed(msgs)
		if res.Conflicts > 0 {
			p.logger.Warn("poll fetched conflicting records", zap.Int("conflicts", res.Conflicts))
		}
		fetched += len(msgs)
		next := nextCursor(p.cursor, msgs)
		if next == p.cursor {
			return fetched, fmt.Errorf("fetch %d+%d: got ids starting at %d", p.cursor, count, msgs[0].ID)
		}
		p.cursor = next
	}
	return fetched, nil
}

// nextCursor advances past the contiguous run of ids starting at cursor.
func nextCursor(cursor uint64, msgs []model.Message) uint64 {
	for _, m := range msgs {
		if m.ID != cursor {
			break
		}
		cursor++
	}
	return cursor
}
