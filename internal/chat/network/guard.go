// Package network tracks whether the ledger client points at the expected chain.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/clock"
	"go.uber.org/zap"
)

// Listener observes status transitions. It runs outside the guard lock but
// must not trigger another transition on the same guard.
type Listener func(prev, next model.NetworkStatus)

// Guard classifies the selected chain and gates ledger access on it.
type Guard struct {
	logger   *zap.Logger
	client   LedgerClient
	metrics  Metrics
	expected model.ChainParams
	sleep    func(context.Context, time.Duration) error

	switchMu sync.Mutex
	notifyMu sync.Mutex

	mu        sync.Mutex
	status    model.NetworkStatus
	switching bool
	// switches counts started switches; a Check result from before the
	// latest one is stale.
	switches  uint64
	listeners map[int]Listener
	nextID    int
}

// NewGuard builds a Guard in the checking state.
func NewGuard(client LedgerClient, expected model.ChainParams, metrics Metrics, logger *zap.Logger) (*Guard, error) {
	if client == nil {
		return nil, errors.New("ledger client is required")
	}
	if metrics == nil {
		return nil, errors.New("network guard metrics is required")
	}
	return &Guard{
		logger:    logger,
		client:    client,
		metrics:   metrics,
		expected:  expected,
		sleep:     clock.SleepWithContext,
		status:    model.NetworkChecking,
		listeners: make(map[int]Listener),
	}, nil
}

// Status returns the current classification.
func (g *Guard) Status() model.NetworkStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Connected reports whether ledger reads and writes are allowed.
func (g *Guard) Connected() bool {
	return g.Status() == model.NetworkConnected
}

// Expected returns the chain the guard requires.
func (g *Guard) Expected() model.ChainParams {
	return g.expected
}

// Check queries the current chain and reclassifies. It never enters the
// checking state and is skipped while a switch is in progress. A result that
// races with a switch is discarded.
func (g *Guard) Check(ctx context.Context) model.NetworkStatus {
	g.mu.Lock()
	if g.switching {
		status := g.status
		g.mu.Unlock()
		return status
	}
	started := g.switches
	g.mu.Unlock()

	chainID, err := g.client.CurrentChainID(ctx)
	var next model.NetworkStatus
	switch {
	case err != nil && ctx.Err() != nil:
		return g.Status()
	case err != nil:
		g.logger.Debug("chain id query failed", zap.Error(err))
		next = model.NetworkDisconnected
	case chainID == g.expected.ChainID:
		next = model.NetworkConnected
	default:
		g.logger.Debug("unexpected chain", zap.Uint64("chain_id", chainID), zap.Uint64("expected", g.expected.ChainID))
		next = model.NetworkWrongNetwork
	}

	applied := g.transitionIf(next, false, func() bool {
		return !g.switching && g.switches == started
	})
	if !applied {
		g.logger.Debug("discarded chain check overtaken by a switch", zap.String("status", string(next)))
		return g.Status()
	}
	return next
}

// Switch moves the client to the expected chain, registering it first when
// the client does not know it yet.
func (g *Guard) Switch(ctx context.Context) error {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	g.transition(model.NetworkChecking, true)

	err := g.client.SwitchChain(ctx, g.expected.ChainID)
	if errors.Is(err, model.ErrChainNotRegistered) {
		g.logger.Info("chain not registered, adding it", zap.Uint64("chain_id", g.expected.ChainID))
		if regErr := g.client.RegisterChain(g.expected); regErr != nil {
			err = regErr
		} else {
			err = g.client.SwitchChain(ctx, g.expected.ChainID)
		}
	}

	if err != nil {
		g.transition(model.NetworkWrongNetwork, false)
		return fmt.Errorf("switch to chain %d: %w", g.expected.ChainID, err)
	}
	g.transition(model.NetworkConnected, false)
	return nil
}

// Subscribe registers fn for status transitions and returns its cancel func.
func (g *Guard) Subscribe(fn Listener) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// Monitor re-checks the chain every interval until ctx is done.
func (g *Guard) Monitor(ctx context.Context, interval time.Duration) error {
	for {
		g.Check(ctx)
		if err := g.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (g *Guard) transition(next model.NetworkStatus, switching bool) {
	g.transitionIf(next, switching, nil)
}

// transitionIf applies next unless valid, evaluated under the guard lock,
// reports false.
func (g *Guard) transitionIf(next model.NetworkStatus, switching bool, valid func() bool) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if valid != nil && !valid() {
		g.mu.Unlock()
		return false
	}
	prev := g.status
	g.status = next
	if switching && !g.switching {
		g.switches++
	}
	g.switching = switching
	if prev == next {
		g.mu.Unlock()
		return true
	}
	listeners := make([]Listener, 0, len(g.listeners))
	for id := 0; id < g.nextID; id++ {
		if fn, ok := g.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	g.mu.Unlock()

	g.logger.Info("network status changed", zap.String("from", string(prev)), zap.String("to", string(next)))
	g.metrics.ObserveTransition(prev, next)
	for _, fn := range listeners {
		fn(prev, next)
	}
	return true
}
