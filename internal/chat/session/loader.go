package session

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"go.uber.org/zap"
)

// Load replaces the confirmed set with the newest page. On failure the error
// is kept as the session's last error and pending records are dropped.
func (s *Session) Load(ctx context.Context) error {
	if !s.beginLoad() {
		return nil
	}
	defer s.endLoad()

	err := s.load(ctx)
	s.setError(err)
	if err != nil {
		cleared := s.store.ClearPending()
		s.logger.Warn("load failed", zap.Error(err), zap.Int("cleared_pending", cleared))
	}
	return err
}

func (s *Session) load(ctx context.Context) error {
	switch status := s.guard.Check(ctx); status {
	case model.NetworkConnected:
	case model.NetworkWrongNetwork:
		return model.NewError(model.KindWrongNetwork, fmt.Errorf("expected chain %d", s.guard.Expected().ChainID))
	default:
		return model.NewError(model.KindNetworkError, fmt.Errorf("network %s", status))
	}

	total, err := s.client.TotalCount(ctx)
	if err != nil {
		return err
	}
	start := total - min(total, s.pageSize)

	var page []model.Message
	if total > start {
		page, err = s.client.FetchRange(ctx, start, total-start)
		if err != nil {
			return err
		}
	}

	res := s.store.ReplaceAll(page, total)
	s.syncer.Reset()
	s.setHasMore(start > 0)
	s.logger.Debug("loaded newest page",
		zap.Uint64("total", total),
		zap.Int("fetched", len(page)),
		zap.Int("settled", res.Settled))
	return nil
}

// LoadMore prepends the page of older messages right below the oldest loaded one.
func (s *Session) LoadMore(ctx context.Context) error {
	if !s.active() {
		return ErrClosed
	}
	oldest, ok := s.store.OldestConfirmedID()
	if !ok || !s.HasMore() {
		return nil
	}
	if !s.beginLoad() {
		return nil
	}
	defer s.endLoad()

	start := oldest - min(oldest, s.pageSize)
	older, err := s.client.FetchRange(ctx, start, oldest-start)
	if err != nil {
		s.setError(err)
		return err
	}
	res := s.store.AppendOlder(older)
	s.setHasMore(start > 0)
	s.logger.Debug("loaded older page", zap.Uint64("from", start), zap.Int("inserted", res.Inserted))
	return nil
}

// HasMore reports whether older messages exist below the oldest loaded one.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// beginLoad claims the loading flag. Loads do not overlap.
func (s *Session) beginLoad() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

func (s *Session) endLoad() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Session) setHasMore(v bool) {
	s.mu.Lock()
	s.hasMore = v
	s.mu.Unlock()
}
