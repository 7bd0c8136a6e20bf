package store

import (
	"slices"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"go.uber.org/zap"
)

// MergeResult counts what a merge did with its input. Nothing in the input
// is ever rejected with an error: duplicates and conflicts are counted and skipped.
type MergeResult struct {
	Inserted   int
	Settled    int
	Duplicates int
	Conflicts  int
	Dropped    int
}

// NoOp reports whether the merge left the store unchanged.
func (r MergeResult) NoOp() bool {
	return r.Inserted == 0 && r.Settled == 0 && r.Dropped == 0
}

func (r *MergeResult) add(o MergeResult) {
	r.Inserted += o.Inserted
	r.Settled += o.Settled
	r.Duplicates += o.Duplicates
	r.Conflicts += o.Conflicts
	r.Dropped += o.Dropped
}

// ReplaceAll installs a freshly loaded confirmed set, as on initial load.
// Local records superseded by the new set are settled into it. When the ledger
// reports fewer messages than previously known, records still awaiting
// confirmation can no longer be matched by id and are dropped; unconfirmed
// records are kept since they are already shown as sent. The known count
// never moves downward.
func (s *Store) ReplaceAll(confirmed []model.Message, total uint64) MergeResult {
	s.mu.Lock()

	previous := make(map[uint64]struct{}, len(s.confirmed))
	for _, m := range s.confirmed {
		previous[m.ID] = struct{}{}
	}

	var res MergeResult
	regressed := total < s.total
	s.confirmed = s.confirmed[:0]
	s.observeTotalLocked(total)
	if regressed {
		clear(s.settled)
	}

	var added []model.Message
	for _, c := range confirmed {
		if !s.insertConfirmedLocked(c) {
			res.Duplicates++
			continue
		}
		res.Inserted++
		if _, seen := previous[c.ID]; !seen {
			i, _ := s.findConfirmed(c.ID)
			added = append(added, s.confirmed[i])
		}
	}

	kept := s.local[:0]
	for _, l := range s.local {
		switch {
		case s.supersededLocked(l):
			res.Settled++
		case regressed && l.State == model.StatePending:
			res.Dropped++
		default:
			kept = append(kept, l)
		}
	}
	s.local = slices.Clip(kept)
	s.mu.Unlock()

	if regressed && res.Dropped > 0 {
		s.logger.Info("ledger count regressed, dropped local records",
			zap.Uint64("total", total), zap.Int("dropped", res.Dropped))
	}
	s.notify(added)
	return res
}

// AppendOlder merges a page of older history. Local records that turn out to
// be confirmed inside the page are settled instead of duplicated.
func (s *Store) AppendOlder(older []model.Message) MergeResult {
	return s.MergeConfirmed(older)
}

// MergeConfirmed merges confirmed records from the push or pull path. It is
// idempotent: re-merging a known id is a counted no-op.
//
// Dedup order: an existing confirmed id wins; otherwise a local record with the
// same sender and content within the dedup window is settled; otherwise a
// confirmed record with the same sender and content within the window is
// treated as a conflicting observation and skipped.
func (s *Store) MergeConfirmed(msgs []model.Message) MergeResult {
	s.mu.Lock()
	var res MergeResult
	var added []model.Message
	for _, c := range msgs {
		r, msg := s.mergeOneLocked(c)
		res.add(r)
		if r.Inserted > 0 || r.Settled > 0 {
			added = append(added, msg)
		}
	}
	s.mu.Unlock()

	if res.Conflicts > 0 {
		s.logger.Debug("skipped conflicting confirmed records", zap.Int("conflicts", res.Conflicts))
	}
	s.notify(added)
	return res
}

func (s *Store) mergeOneLocked(c model.Message) (MergeResult, model.Message) {
	if _, found := s.findConfirmed(c.ID); found {
		return MergeResult{Duplicates: 1}, model.Message{}
	}

	for i, l := range s.local {
		if withinDedupWindow(c, l) {
			s.removeLocalLocked(i)
			c.AttemptID = l.AttemptID
			s.insertConfirmedLocked(c)
			s.settled[c.ID] = struct{}{}
			j, _ := s.findConfirmed(c.ID)
			return MergeResult{Settled: 1}, s.confirmed[j]
		}
	}

	for _, existing := range s.confirmed {
		if withinDedupWindow(c, existing) {
			return MergeResult{Conflicts: 1}, model.Message{}
		}
	}

	s.insertConfirmedLocked(c)
	j, _ := s.findConfirmed(c.ID)
	return MergeResult{Inserted: 1}, s.confirmed[j]
}

// supersededLocked settles l against the first confirmed record that has not
// already resolved another local record.
func (s *Store) supersededLocked(l model.Message) bool {
	for _, c := range s.confirmed {
		if _, done := s.settled[c.ID]; done {
			continue
		}
		if settles(c, l) {
			s.settled[c.ID] = struct{}{}
			return true
		}
	}
	return false
}
