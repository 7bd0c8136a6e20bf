package store

import (
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

// Match selects a local record.
type Match func(model.Message) bool

// ByAttempt matches the record created by a specific send attempt.
func ByAttempt(attemptID string) Match {
	return func(m model.Message) bool {
		return attemptID != "" && m.AttemptID == attemptID
	}
}

// BySenderContent matches records with the given sender and content.
func BySenderContent(sender, content string) Match {
	sender = model.NormalizeAddress(sender)
	return func(m model.Message) bool {
		return model.NormalizeAddress(m.Sender) == sender && m.Content == content
	}
}

// withinDedupWindow reports whether two records describe the same ledger event
// seen through different paths.
func withinDedupWindow(a, b model.Message) bool {
	return a.SameAuthorship(b) && absDiff(a.Timestamp, b.Timestamp) < DedupWindowSeconds
}

// settles reports whether confirmed can be the ledger copy of local. A
// confirmed record is never older than the send it settles, up to clock skew.
func settles(confirmed, local model.Message) bool {
	return confirmed.SameAuthorship(local) && confirmed.Timestamp+MatchSkewSeconds >= local.Timestamp
}
