package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"go.uber.org/zap"
)

// subscription keeps one MessagePosted subscription alive. Each broken or
// failed subscription is retried after the settle delay until ctx is done.
type subscription struct {
	client  LedgerClient
	store   *store.Store
	metrics Metrics
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
	retry   time.Duration
}

func (s *subscription) run(ctx context.Context) {
	for ctx.Err() == nil {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("message subscription ended, resubscribing", zap.Error(err), zap.Duration("delay", s.retry))
		if s.sleep(ctx, s.retry) != nil {
			return
		}
	}
}

func (s *subscription) listen(ctx context.Context) error {
	sub, err := s.client.OnMessagePosted(ctx, s.apply)
	s.metrics.ObserveSubscribe(err)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	s.logger.Debug("subscribed to posted messages")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-sub.Err():
		return err
	}
}

func (s *subscription) apply(msg model.Message) {
	res := s.store.MergeConfirmed([]model.Message{msg})
	s.metrics.ObserveEvent(!res.NoOp())
	if res.NoOp() {
		s.logger.Debug("posted message already known", zap.Uint64("id", msg.ID))
	}
}
