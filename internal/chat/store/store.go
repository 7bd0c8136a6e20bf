// Package store keeps the canonical, deduplicated and ordered set of chat messages.
//
// Confirmed records are kept sorted by ledger id and are never modified once
// inserted. Local records (pending or unconfirmed) trail the confirmed ones in
// insertion order. Every exported method is atomic with respect to the others.
package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"go.uber.org/zap"
)

const (
	// DedupWindowSeconds bounds the timestamp distance for sender+content dedup
	// of records that cannot be matched by id.
	DedupWindowSeconds int64 = 5
	// MatchSkewSeconds is how far a confirmed timestamp may trail the local
	// timestamp of the record it settles (client and ledger clocks differ).
	MatchSkewSeconds int64 = 60
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for conflict reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithOnConfirmed registers a hook receiving records that newly became
// confirmed. It is called outside the store lock, in mutation order.
func WithOnConfirmed(fn func([]model.Message)) Option {
	return func(s *Store) {
		s.onConfirmed = fn
	}
}

// Store is the in-memory message collection.
type Store struct {
	logger      *zap.Logger
	onConfirmed func([]model.Message)

	mu        sync.Mutex
	confirmed []model.Message
	local     []model.Message
	total     uint64
	// settled holds confirmed ids that already resolved a local record.
	settled map[uint64]struct{}
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		logger:  zap.NewNop(),
		settled: make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the visible sequence: confirmed records by ascending id,
// followed by local records in insertion order.
func (s *Store) Snapshot() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.confirmed)+len(s.local))
	out = append(out, s.confirmed...)
	out = append(out, s.local...)
	return out
}

// Len returns the number of visible records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.confirmed) + len(s.local)
}

// ConfirmedLen returns the number of confirmed records.
func (s *Store) ConfirmedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.confirmed)
}

// LocalLen returns the number of pending and unconfirmed records.
func (s *Store) LocalLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.local)
}

// OldestConfirmedID returns the lowest confirmed id held.
func (s *Store) OldestConfirmedID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.confirmed) == 0 {
		return 0, false
	}
	return s.confirmed[0].ID, true
}

// Total returns the highest ledger message count observed so far.
func (s *Store) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ObserveTotal raises the known ledger count to n. The count never moves
// downward, so a late or re-entrant observation cannot corrupt it.
func (s *Store) ObserveTotal(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeTotalLocked(n)
	return s.total
}

func (s *Store) observeTotalLocked(n uint64) {
	if n > s.total {
		s.total = n
	}
}

func (s *Store) findConfirmed(id uint64) (int, bool) {
	return slices.BinarySearchFunc(s.confirmed, id, func(m model.Message, id uint64) int {
		return cmp.Compare(m.ID, id)
	})
}

// insertConfirmedLocked keeps s.confirmed sorted. It reports false when the id is taken.
func (s *Store) insertConfirmedLocked(msg model.Message) bool {
	i, found := s.findConfirmed(msg.ID)
	if found {
		return false
	}
	msg.State = model.StateConfirmed
	msg.Sender = model.NormalizeAddress(msg.Sender)
	s.confirmed = slices.Insert(s.confirmed, i, msg)
	s.observeTotalLocked(msg.ID + 1)
	return true
}

func (s *Store) removeLocalLocked(i int) model.Message {
	removed := s.local[i]
	s.local = slices.Delete(s.local, i, i+1)
	return removed
}

func (s *Store) notify(added []model.Message) {
	if s.onConfirmed == nil || len(added) == 0 {
		return
	}
	s.onConfirmed(added)
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
