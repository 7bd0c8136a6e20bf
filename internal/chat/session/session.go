// Package session ties the ledger, the network guard, the sync loops and the
// sender into one chat session with a single owner.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/sender"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"github.com/goodnatureofminers/ledgerchat/pkg/scheduler"
	"go.uber.org/zap"
)

// Lifecycle is the session's own state.
type Lifecycle int

const (
	LifecycleCreated Lifecycle = iota
	LifecycleActive
	LifecycleClosed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleCreated:
		return "created"
	case LifecycleActive:
		return "active"
	default:
		return "closed"
	}
}

// ErrClosed is returned by operations on a session that is not active.
var ErrClosed = errors.New("session is not active")

// View is a consistent copy of what a session shows.
type View struct {
	Messages  []model.Message
	Total     uint64
	HasMore   bool
	Loading   bool
	Sending   bool
	Network   model.NetworkStatus
	Cooldown  uint64
	LastError string
}

// Deps groups what a Session drives.
type Deps struct {
	Client   LedgerClient
	Guard    NetworkGuard
	Sender   Sender
	Syncer   Syncer
	Store    *store.Store
	Activity ActivityLogger
}

// Session owns one chat mirror from Start to Close.
type Session struct {
	logger   *zap.Logger
	client   LedgerClient
	guard    NetworkGuard
	sender   Sender
	syncer   Syncer
	store    *store.Store
	activity ActivityLogger
	tasks    *scheduler.Scheduler

	// account is the signer address, empty for a read-only mirror.
	account         string
	pageSize        uint64
	monitorInterval time.Duration

	mu          sync.Mutex
	lifecycle   Lifecycle
	loading     bool
	hasMore     bool
	cooldown    uint64
	lastErr     error
	unsubscribe func()
}

// New builds a Session in the created state.
func New(deps Deps, account string, logger *zap.Logger) (*Session, error) {
	if deps.Client == nil || deps.Guard == nil || deps.Sender == nil || deps.Syncer == nil || deps.Store == nil {
		return nil, errors.New("session dependencies are required")
	}
	if deps.Activity == nil {
		return nil, errors.New("session activity logger is required")
	}
	return &Session{
		logger:          logger,
		client:          deps.Client,
		guard:           deps.Guard,
		sender:          deps.Sender,
		syncer:          deps.Syncer,
		store:           deps.Store,
		activity:        deps.Activity,
		tasks:           scheduler.New(logger.Named("tasks")),
		account:         account,
		pageSize:        pageSize,
		monitorInterval: monitorInterval,
		lifecycle:       LifecycleCreated,
	}, nil
}

// Start loads the newest page and starts live sync. A failed initial load is
// kept as the last error; the sync loops still start so the session can recover.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.lifecycle != LifecycleCreated {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lifecycle = LifecycleActive
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		s.logger.Warn("initial load failed", zap.Error(err))
	}

	s.syncer.Start(ctx)
	if !s.guard.Connected() {
		s.syncer.Pause()
	}
	unsubscribe := s.guard.Subscribe(s.syncer.HandleTransition)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.tasks.Go(ctx, taskMonitor, func(ctx context.Context) {
		if err := s.guard.Monitor(ctx, s.monitorInterval); err != nil && ctx.Err() == nil {
			s.logger.Warn("network monitor stopped", zap.Error(err))
		}
	})

	s.logActivity(model.ActivityConnect, nil)
	s.logger.Info("session started", zap.Uint64("total", s.store.Total()))
	return nil
}

// Close stops every background activity and drops pending records.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.lifecycle == LifecycleClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.lifecycle == LifecycleActive
	s.lifecycle = LifecycleClosed
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.tasks.Stop()
	s.syncer.Stop()
	s.sender.Close()
	s.store.ClearPending()

	if wasActive {
		s.logActivity(model.ActivityDisconnect, nil)
	}
	s.logger.Info("session closed")
}

// Lifecycle returns the session state.
func (s *Session) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Send posts content through the sender. A cooldown rejection is remembered
// so the view can show the remaining seconds.
func (s *Session) Send(ctx context.Context, content string) (sender.Result, error) {
	if !s.active() {
		return sender.Result{}, ErrClosed
	}
	s.setError(nil)

	res, err := s.sender.Send(ctx, content)
	if err != nil {
		var typed *model.Error
		if errors.As(err, &typed) && typed.Kind == model.KindCooldownActive {
			s.setCooldown(typed.Seconds)
		}
		s.setError(err)
		return res, err
	}
	return res, nil
}

// CheckCooldown refreshes the remaining cooldown of address. Any failure
// resets it to zero.
func (s *Session) CheckCooldown(ctx context.Context, address string) uint64 {
	remaining, err := s.client.CooldownRemaining(ctx, address)
	if err != nil {
		s.logger.Debug("cooldown check failed", zap.String("address", address), zap.Error(err))
		remaining = 0
	}
	s.setCooldown(remaining)
	return remaining
}

// SwitchNetwork moves the client to the expected chain and reloads.
func (s *Session) SwitchNetwork(ctx context.Context) error {
	if !s.active() {
		return ErrClosed
	}
	if err := s.guard.Switch(ctx); err != nil {
		s.setError(err)
		return err
	}
	s.store.ClearPending()
	s.logActivity(model.ActivitySwitchNetwork, map[string]any{"chainId": s.guard.Expected().ChainID})
	return s.Load(ctx)
}

// ClearPending drops every pending record and returns how many were removed.
func (s *Session) ClearPending() int {
	return s.store.ClearPending()
}

// CheckPending runs a pending sweep now.
func (s *Session) CheckPending(ctx context.Context) (store.SweepResult, error) {
	if !s.active() {
		return store.SweepResult{}, ErrClosed
	}
	return s.syncer.SweepNow(ctx)
}

// RefreshSubscription renews the event subscription.
func (s *Session) RefreshSubscription() error {
	if !s.active() {
		return ErrClosed
	}
	s.syncer.Refresh()
	return nil
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	v := View{
		Messages: s.store.Snapshot(),
		Total:    s.store.Total(),
		Sending:  s.sender.Busy(),
		Network:  s.guard.Status(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.HasMore = s.hasMore
	v.Loading = s.loading
	v.Cooldown = s.cooldown
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	return v
}

func (s *Session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle == LifecycleActive
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) setCooldown(seconds uint64) {
	s.mu.Lock()
	s.cooldown = seconds
	s.mu.Unlock()
}

func (s *Session) logActivity(activity model.ActivityType, metadata map[string]any) {
	if s.account == "" {
		return
	}
	s.activity.Log(s.account, activity, metadata)
}
