package store

import (
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

// Outcome describes what a single local-record transition did.
type Outcome int

const (
	// NoOp means no local record matched.
	NoOp Outcome = iota
	// Confirmed means the local record was replaced by its confirmed copy.
	Confirmed
	// Collapsed means the confirmed copy was already present, so the local record was removed.
	Collapsed
	// Updated means the local record changed state in place.
	Updated
	// Removed means the local record was dropped.
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Collapsed:
		return "collapsed"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "noop"
	}
}

// SweepResult counts what a pending sweep did.
type SweepResult struct {
	Settled int
	Evicted int
}

// MarkPending appends an optimistic record after all existing records.
func (s *Store) MarkPending(record model.Message) model.Message {
	record.State = model.StatePending
	record.Sender = model.NormalizeAddress(record.Sender)

	s.mu.Lock()
	s.local = append(s.local, record)
	s.mu.Unlock()
	return record
}

// SettlePending resolves the first local record selected by match.
//
// A confirmed final record replaces the local one, or removes it when that id
// is already held. A non-confirmed final record only updates state, timestamp
// and id in place.
func (s *Store) SettlePending(match Match, final model.Message) Outcome {
	s.mu.Lock()
	outcome, added := s.settleLocked(match, final)
	s.mu.Unlock()

	if outcome == Confirmed {
		s.notify([]model.Message{added})
	}
	return outcome
}

func (s *Store) settleLocked(match Match, final model.Message) (Outcome, model.Message) {
	i := s.indexLocalLocked(match)
	if i < 0 {
		return NoOp, model.Message{}
	}

	if final.State != model.StateConfirmed {
		l := &s.local[i]
		l.State = final.State
		if final.Timestamp != 0 {
			l.Timestamp = final.Timestamp
		}
		if final.ID != 0 {
			l.ID = final.ID
		}
		return Updated, model.Message{}
	}

	l := s.removeLocalLocked(i)
	s.settled[final.ID] = struct{}{}
	if _, found := s.findConfirmed(final.ID); found {
		return Collapsed, model.Message{}
	}
	if final.AttemptID == "" {
		final.AttemptID = l.AttemptID
	}
	s.insertConfirmedLocked(final)
	j, _ := s.findConfirmed(final.ID)
	return Confirmed, s.confirmed[j]
}

// MarkUnconfirmed moves a pending record to the shown-as-sent state used when
// the confirmation wait times out.
func (s *Store) MarkUnconfirmed(match Match) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocalLocked(match)
	if i < 0 || s.local[i].State != model.StatePending {
		return NoOp
	}
	s.local[i].State = model.StateUnconfirmed
	return Updated
}

// DropPending removes the first local record selected by match.
func (s *Store) DropPending(match Match) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocalLocked(match)
	if i < 0 {
		return NoOp
	}
	s.removeLocalLocked(i)
	return Removed
}

// ClearPending removes every record still awaiting confirmation. Unconfirmed
// records are kept: they are already shown as sent.
func (s *Store) ClearPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.local[:0]
	removed := 0
	for _, l := range s.local {
		if l.State == model.StatePending {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	s.local = kept
	return removed
}

// ReconcileLocal settles local records against a freshly fetched tail of
// confirmed messages, matching on sender and content, and evicts pending
// records older than staleness that found no match.
func (s *Store) ReconcileLocal(tail []model.Message, now time.Time, staleness time.Duration) SweepResult {
	s.mu.Lock()

	var res SweepResult
	var added []model.Message
	claimed := make(map[uint64]struct{}, len(tail))
	for _, c := range tail {
		// a confirmed copy that already settled another send cannot settle this one
		if _, done := s.settled[c.ID]; done {
			claimed[c.ID] = struct{}{}
		}
	}

	kept := make([]model.Message, 0, len(s.local))
	for _, l := range s.local {
		c, ok := claimTail(tail, l, claimed)
		if !ok {
			kept = append(kept, l)
			continue
		}
		res.Settled++
		s.settled[c.ID] = struct{}{}
		if _, found := s.findConfirmed(c.ID); found {
			continue
		}
		c.AttemptID = l.AttemptID
		s.insertConfirmedLocked(c)
		j, _ := s.findConfirmed(c.ID)
		added = append(added, s.confirmed[j])
	}

	cutoff := now.Add(-staleness).Unix()
	s.local = kept[:0]
	for _, l := range kept {
		if l.State == model.StatePending && l.Timestamp < cutoff {
			res.Evicted++
			continue
		}
		s.local = append(s.local, l)
	}
	s.mu.Unlock()

	s.notify(added)
	return res
}

func claimTail(tail []model.Message, l model.Message, claimed map[uint64]struct{}) (model.Message, bool) {
	for _, c := range tail {
		if _, taken := claimed[c.ID]; taken {
			continue
		}
		if settles(c, l) {
			claimed[c.ID] = struct{}{}
			return c, true
		}
	}
	return model.Message{}, false
}

func (s *Store) indexLocalLocked(match Match) int {
	for i, l := range s.local {
		if match(l) {
			return i
		}
	}
	return -1
}
