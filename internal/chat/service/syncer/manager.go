// Package syncer keeps the message store in step with the ledger through an
// event subscription, a polling backstop and a periodic pending sweep.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"github.com/goodnatureofminers/ledgerchat/internal/clock"
	"github.com/goodnatureofminers/ledgerchat/pkg/scheduler"
	"go.uber.org/zap"
)

// Manager owns the background sync activities of one session.
type Manager struct {
	logger  *zap.Logger
	guard   NetworkGuard
	store   *store.Store
	metrics Metrics
	tasks   *scheduler.Scheduler

	poller       *poller
	sweeper      *sweeper
	subscription *subscription

	pollInterval  time.Duration
	sweepInterval time.Duration
	settleDelay   time.Duration

	mu      sync.Mutex
	ctx     context.Context
	running bool
	paused  bool
}

// NewManager builds a Manager. Nothing runs until Start.
func NewManager(
	client LedgerClient,
	guard NetworkGuard,
	messages *store.Store,
	metrics Metrics,
	logger *zap.Logger,
) (*Manager, error) {
	if metrics == nil {
		return nil, errors.New("syncer metrics is required")
	}
	if client == nil || guard == nil || messages == nil {
		return nil, errors.New("syncer dependencies are required")
	}

	return &Manager{
		logger:  logger,
		guard:   guard,
		store:   messages,
		metrics: metrics,
		tasks:   scheduler.New(logger.Named("tasks")),
		poller: &poller{
			client:    client,
			store:     messages,
			logger:    logger.Named("poller"),
			batchSize: pollBatchSize,
		},
		sweeper: &sweeper{
			client:     client,
			store:      messages,
			now:        time.Now,
			window:     tailWindow,
			staleAfter: staleAfter,
		},
		subscription: &subscription{
			client:  client,
			store:   messages,
			metrics: metrics,
			logger:  logger.Named("subscription"),
			sleep:   clock.SleepWithContext,
			retry:   settleDelay,
		},
		pollInterval:  pollInterval,
		sweepInterval: sweepInterval,
		settleDelay:   settleDelay,
	}, nil
}

// Start begins all activities. The poll cursor starts at the current store
// total, so Start belongs after the initial load.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.ctx = ctx
	m.running = true
	m.paused = false

	m.poller.reset()
	m.tasks.Go(ctx, taskEvents, m.subscription.run)
	m.startPeriodicLocked()
	m.logger.Info("sync started", zap.Uint64("cursor", m.poller.position()))
}

// Stop ends every activity and waits for them to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	m.paused = false
	m.mu.Unlock()

	m.tasks.Stop()
	m.logger.Info("sync stopped")
}

// Pause stops every activity and drops pending records, as when the network
// is lost. Unconfirmed records are kept.
func (m *Manager) Pause() {
	m.mu.Lock()
	if !m.running || m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = true
	m.mu.Unlock()

	m.tasks.Stop()
	cleared := m.store.ClearPending()
	m.logger.Info("sync paused", zap.Int("cleared_pending", cleared))
}

// Resume restarts the activities after a Pause. The subscription waits for the
// settle delay first; the store is not reloaded.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.paused {
		return
	}
	m.paused = false

	m.tasks.After(m.ctx, taskEvents, m.settleDelay, m.subscription.run)
	m.startPeriodicLocked()
	m.logger.Info("sync resumed")
}

// Refresh tears down the subscription and subscribes again.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.paused {
		return
	}
	m.tasks.Go(m.ctx, taskEvents, m.subscription.run)
}

// Reset moves the poll cursor to the store total, after the store was reloaded.
func (m *Manager) Reset() {
	m.poller.reset()
}

// HandleTransition pauses on losing the network and resumes on regaining it.
// It has the shape of a network guard listener.
func (m *Manager) HandleTransition(_, next model.NetworkStatus) {
	switch next {
	case model.NetworkConnected:
		m.Resume()
	case model.NetworkWrongNetwork, model.NetworkDisconnected:
		m.Pause()
	}
}

// Running reports whether the manager was started and is not paused.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && !m.paused
}

// PollNow runs one poll immediately.
func (m *Manager) PollNow(ctx context.Context) error {
	started := time.Now()
	fetched, err := m.poller.poll(ctx)
	m.metrics.ObservePoll(err, fetched, started)
	if err != nil {
		return err
	}
	if fetched > 0 {
		m.logger.Debug("poll merged new messages", zap.Int("fetched", fetched))
	}
	return nil
}

// SweepNow runs one pending sweep immediately.
func (m *Manager) SweepNow(ctx context.Context) (store.SweepResult, error) {
	res, err := m.sweeper.sweep(ctx)
	m.metrics.ObserveSweep(err, res.Settled, res.Evicted)
	if err != nil {
		return res, err
	}
	if res.Settled > 0 || res.Evicted > 0 {
		m.logger.Info("pending sweep", zap.Int("settled", res.Settled), zap.Int("evicted", res.Evicted))
	}
	return res, nil
}

func (m *Manager) startPeriodicLocked() {
	m.tasks.Every(m.ctx, taskPoll, m.pollInterval, func(ctx context.Context) {
		if !m.guard.Connected() {
			return
		}
		if err := m.PollNow(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("poll failed", zap.Error(err))
		}
	})
	m.tasks.Every(m.ctx, taskSweep, m.sweepInterval, func(ctx context.Context) {
		if _, err := m.SweepNow(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("pending sweep failed", zap.Error(err))
		}
	})
}
