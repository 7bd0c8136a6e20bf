package sender

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

// State is the lifecycle position of one send attempt.
type State int

const (
	StateIdle State = iota
	StatePreflight
	StateOptimistic
	StateSubmitting
	StateAwaitingConfirmation
	StateSettled
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreflight:
		return "preflight"
	case StateOptimistic:
		return "optimistic"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed || s == StateTimedOut
}

var transitions = map[State][]State{
	StateIdle:                 {StatePreflight},
	StatePreflight:            {StateOptimistic, StateFailed},
	StateOptimistic:           {StateSubmitting, StateFailed},
	StateSubmitting:           {StateAwaitingConfirmation, StateFailed},
	StateAwaitingConfirmation: {StateSettled, StateFailed, StateTimedOut},
}

// Allowed reports whether from may move to to.
func Allowed(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

type confirmation struct {
	receipt *model.Receipt
	err     error
}

// Attempt is one send, from preflight to its terminal state.
type Attempt struct {
	ID      string
	Content string
	Started time.Time

	mu      sync.Mutex
	state   State
	history []State
	sender  string
	tx      model.PendingTx
	outcome chan confirmation
}

func newAttempt(id, content string, started time.Time) *Attempt {
	return &Attempt{
		ID:      id,
		Content: content,
		Started: started,
		state:   StateIdle,
		history: []State{StateIdle},
		outcome: make(chan confirmation, 1),
	}
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns every state the attempt went through, in order.
func (a *Attempt) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.history)
}

// Sender returns the signer address resolved during preflight.
func (a *Attempt) Sender() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sender
}

// Tx returns the submission handle, empty before submitting.
func (a *Attempt) Tx() model.PendingTx {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx
}

func (a *Attempt) setSender(address string) {
	a.mu.Lock()
	a.sender = address
	a.mu.Unlock()
}

func (a *Attempt) setTx(tx model.PendingTx) {
	a.mu.Lock()
	a.tx = tx
	a.mu.Unlock()
}

func (a *Attempt) advance(next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advanceLocked(next)
}

func (a *Attempt) advanceLocked(next State) error {
	if !Allowed(a.state, next) {
		return fmt.Errorf("attempt %s: illegal transition %s -> %s", a.ID, a.state, next)
	}
	a.state = next
	a.history = append(a.history, next)
	return nil
}

// deliver hands a confirmation to the waiting send. It reports false when
// the send already gave up waiting.
func (a *Attempt) deliver(c confirmation) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateAwaitingConfirmation {
		return false
	}
	a.outcome <- c
	return true
}

// expire moves the attempt to timed out unless a confirmation was already delivered.
func (a *Attempt) expire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.outcome) > 0 || a.state != StateAwaitingConfirmation {
		return false
	}
	return a.advanceLocked(StateTimedOut) == nil
}
