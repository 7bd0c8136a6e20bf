// Package sender drives a single chat send from preflight to settlement.
package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"github.com/goodnatureofminers/ledgerchat/pkg/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result describes how a send ended.
type Result struct {
	AttemptID string
	State     State
	// Message is the confirmed record when settled, the local record otherwise.
	Message model.Message
	TxHash  string
	History []State
}

// Sender coordinates sends against the ledger and the message store.
type Sender struct {
	logger   *zap.Logger
	client   LedgerClient
	guard    NetworkGuard
	store    *store.Store
	activity ActivityLogger
	metrics  Metrics
	watchers *scheduler.Scheduler

	now              func() time.Time
	newID            func() string
	confirmTimeout   time.Duration
	lateWindow       time.Duration
	lookupTimeout    time.Duration
	minConfirmations uint64
	lookupWindow     uint64

	ctx      context.Context
	cancel   context.CancelFunc
	inflight atomic.Int32
}

// NewSender builds a Sender. Close must be called to stop background
// confirmation watchers.
func NewSender(
	client LedgerClient,
	guard NetworkGuard,
	messages *store.Store,
	activity ActivityLogger,
	metrics Metrics,
	logger *zap.Logger,
) (*Sender, error) {
	if metrics == nil {
		return nil, errors.New("sender metrics is required")
	}
	if client == nil || guard == nil || messages == nil || activity == nil {
		return nil, errors.New("sender dependencies are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		logger:           logger,
		client:           client,
		guard:            guard,
		store:            messages,
		activity:         activity,
		metrics:          metrics,
		watchers:         scheduler.New(logger.Named("watchers")),
		now:              time.Now,
		newID:            uuid.NewString,
		confirmTimeout:   confirmationTimeout,
		lateWindow:       lateWindow,
		lookupTimeout:    lookupTimeout,
		minConfirmations: minConfirmations,
		lookupWindow:     lookupWindow,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Busy reports whether a send is between preflight and settlement.
func (s *Sender) Busy() bool {
	return s.inflight.Load() > 0
}

// Watching returns the number of sends still awaiting confirmation in the background.
func (s *Sender) Watching() int {
	return s.watchers.Len()
}

// Close stops every confirmation watcher.
func (s *Sender) Close() {
	s.cancel()
	s.watchers.Stop()
}

// acquire marks a send in flight and returns an idempotent release.
func (s *Sender) acquire() func() {
	s.inflight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.inflight.Add(-1) })
	}
}

// Send runs one attempt. Preflight and submission failures leave no local
// record. A confirmation timeout keeps the record as unconfirmed and returns
// a ConfirmationTimeout error; a watcher keeps waiting for the late outcome.
func (s *Sender) Send(ctx context.Context, content string) (res Result, err error) {
	started := s.now()
	release := s.acquire()
	defer release()
	defer func() {
		s.metrics.ObserveSend(err, started)
	}()

	attempt := newAttempt(s.newID(), content, started)
	res.AttemptID = attempt.ID
	defer func() {
		res.State = attempt.State()
		res.History = attempt.History()
	}()
	logger := s.logger.With(zap.String("attempt", attempt.ID))

	s.mustAdvance(attempt, StatePreflight)
	address, err := s.preflight(ctx, content)
	if err != nil {
		s.mustAdvance(attempt, StateFailed)
		return res, err
	}
	attempt.setSender(address)

	s.mustAdvance(attempt, StateOptimistic)
	match := store.ByAttempt(attempt.ID)
	res.Message = s.store.MarkPending(model.Message{
		Sender:    address,
		Content:   content,
		Timestamp: started.Unix(),
		ID:        uint64(s.store.Len()) + s.store.Total(),
		AttemptID: attempt.ID,
	})

	s.mustAdvance(attempt, StateSubmitting)
	tx, err := s.client.Submit(ctx, content)
	if err != nil {
		s.store.DropPending(match)
		s.mustAdvance(attempt, StateFailed)
		logger.Info("submission failed", zap.Error(err))
		return res, err
	}
	attempt.setTx(tx)
	res.TxHash = tx.Hash
	s.activity.Log(address, model.ActivitySendMessage, map[string]any{"length": utf8.RuneCountInString(content)})

	s.mustAdvance(attempt, StateAwaitingConfirmation)
	s.watch(attempt)

	timer := time.NewTimer(s.confirmTimeout)
	defer timer.Stop()

	var c confirmation
	select {
	case c = <-attempt.outcome:
	case <-timer.C:
	case <-ctx.Done():
	}
	if c.receipt == nil && c.err == nil {
		if attempt.expire() {
			s.store.MarkUnconfirmed(match)
			logger.Warn("confirmation wait timed out, keeping message as unconfirmed", zap.String("tx", tx.Hash))
			return res, model.NewError(model.KindConfirmationTimeout, fmt.Errorf("transaction %s", tx.Hash))
		}
		c = <-attempt.outcome
	}

	if c.err != nil {
		if errors.Is(c.err, model.ErrLedgerRevert) {
			s.store.DropPending(match)
			s.mustAdvance(attempt, StateFailed)
			return res, c.err
		}
		// the outcome is unknown: keep the record, the sweep settles it if it landed
		s.store.MarkUnconfirmed(match)
		s.mustAdvance(attempt, StateTimedOut)
		return res, model.NewError(model.KindConfirmationTimeout, c.err)
	}

	s.mustAdvance(attempt, StateSettled)
	release()

	final, ok := s.confirmedRecord(ctx, attempt, c.receipt)
	if !ok {
		s.store.MarkUnconfirmed(match)
		return res, nil
	}
	s.store.SettlePending(match, final)
	res.Message = final
	return res, nil
}

// watch waits for the confirmation in the background. The result goes to the
// waiting send, or is reconciled here when the send already timed out.
func (s *Sender) watch(attempt *Attempt) {
	tx := attempt.Tx()
	s.watchers.Go(s.ctx, "confirm/"+attempt.ID, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.lateWindow)
		defer cancel()

		started := s.now()
		receipt, err := s.client.AwaitConfirmation(ctx, tx, s.minConfirmations)
		s.metrics.ObserveConfirmation(err, started)
		if err == nil && receipt == nil {
			err = errors.New("empty receipt")
		}

		if attempt.deliver(confirmation{receipt: receipt, err: err}) {
			return
		}
		s.settleLate(ctx, attempt, receipt, err)
	})
}

// settleLate reconciles a timed out attempt once its outcome is known. A
// landed message replaces the unconfirmed record; a reverted one removes it.
func (s *Sender) settleLate(ctx context.Context, attempt *Attempt, receipt *model.Receipt, err error) {
	logger := s.logger.With(zap.String("attempt", attempt.ID), zap.String("tx", attempt.Tx().Hash))
	match := store.ByAttempt(attempt.ID)

	switch {
	case errors.Is(err, model.ErrLedgerRevert):
		if s.store.DropPending(match) == store.Removed {
			logger.Info("timed out send reverted, removed message")
		}
		s.metrics.ObserveLateSettlement("dropped")
	case err != nil:
		logger.Info("timed out send still unresolved", zap.Error(err))
		s.metrics.ObserveLateSettlement("expired")
	default:
		final, ok := s.confirmedRecord(ctx, attempt, receipt)
		if !ok {
			s.metrics.ObserveLateSettlement("unresolved")
			return
		}
		outcome := s.store.SettlePending(match, final)
		logger.Info("timed out send confirmed", zap.Uint64("id", final.ID), zap.Stringer("outcome", outcome))
		if outcome == store.NoOp {
			s.metrics.ObserveLateSettlement("already_settled")
			return
		}
		s.metrics.ObserveLateSettlement("settled")
	}
}

// confirmedRecord returns the ledger copy of a mined attempt: from the receipt
// log when present, otherwise from a best-effort lookup of the ledger tail.
func (s *Sender) confirmedRecord(ctx context.Context, attempt *Attempt, receipt *model.Receipt) (model.Message, bool) {
	sender := attempt.Sender()
	if receipt != nil && receipt.Message != nil {
		msg := *receipt.Message
		if msg.SameAuthorship(model.Message{Sender: sender, Content: attempt.Content}) {
			msg.AttemptID = attempt.ID
			s.store.ObserveTotal(msg.ID + 1)
			return msg, true
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	msg, err := s.lookup(ctx, sender, attempt.Content)
	if err != nil {
		s.logger.Warn("confirmed message lookup failed", zap.String("attempt", attempt.ID), zap.Error(err))
		return model.Message{}, false
	}
	msg.AttemptID = attempt.ID
	return msg, true
}

func (s *Sender) lookup(ctx context.Context, sender, content string) (model.Message, error) {
	total, err := s.client.TotalCount(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("total count: %w", err)
	}
	s.store.ObserveTotal(total)

	start := total - min(total, s.lookupWindow)
	tail, err := s.client.FetchRange(ctx, start, total-start)
	if err != nil {
		return model.Message{}, fmt.Errorf("fetch tail %d+%d: %w", start, total-start, err)
	}
	want := model.Message{Sender: sender, Content: content}
	for i := len(tail) - 1; i >= 0; i-- {
		if tail[i].SameAuthorship(want) {
			return tail[i], nil
		}
	}
	return model.Message{}, fmt.Errorf("no message from %s in ids %d..%d", model.ShortAddress(sender), start, total)
}

func (s *Sender) mustAdvance(attempt *Attempt, next State) {
	if err := attempt.advance(next); err != nil {
		s.logger.Error("send state machine violated", zap.Error(err))
	}
}
