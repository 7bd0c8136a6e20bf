// Package model defines domain models for the ledger chat mirror.
package model

import (
	"fmt"
	"strings"
)

const (
	// MaxContentLength mirrors the ledger's content limit, in characters.
	MaxContentLength = 500
	// LedgerCooldownSeconds is the ledger's minimum interval between two posts of one sender.
	LedgerCooldownSeconds = 10
)

// MessageState describes where a record is in its confirmation lifecycle.
type MessageState int

const (
	// StateConfirmed marks a record the ledger has durably recorded.
	StateConfirmed MessageState = iota
	// StatePending marks an optimistic record awaiting confirmation.
	StatePending
	// StateUnconfirmed marks a record whose confirmation wait timed out.
	// It is shown as sent but the ledger has not been observed to hold it.
	StateUnconfirmed
)

func (s MessageState) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StatePending:
		return "pending"
	case StateUnconfirmed:
		return "unconfirmed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Message is a single chat entry, either confirmed by the ledger or held locally.
type Message struct {
	Sender    string
	Content   string
	Timestamp int64
	ID        uint64
	State     MessageState
	AttemptID string
}

// Pending reports whether the record is still awaiting confirmation.
func (m Message) Pending() bool {
	return m.State == StatePending
}

// Local reports whether the record was inserted locally and is not confirmed yet.
func (m Message) Local() bool {
	return m.State == StatePending || m.State == StateUnconfirmed
}

// SameAuthorship reports whether both records carry the same sender and content.
func (m Message) SameAuthorship(other Message) bool {
	return NormalizeAddress(m.Sender) == NormalizeAddress(other.Sender) && m.Content == other.Content
}

// NormalizeAddress lowercases an account identifier for comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
