package model

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failures surfaced by the chat engine.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindWalletUnavailable
	KindWrongNetwork
	KindInvalidSigner
	KindInsufficientFunds
	KindCooldownActive
	KindContractNotFound
	KindUserRejected
	KindNetworkError
	KindConfirmationTimeout
	KindLedgerRevert
	KindChainNotRegistered
)

// ErrorClass groups kinds by how the caller is expected to react.
type ErrorClass string

var (
	// ClassPreflight errors are user-actionable and leave no local trace.
	ClassPreflight ErrorClass = "preflight"
	// ClassSubmission errors happened before any ledger state changed.
	ClassSubmission ErrorClass = "submission"
	// ClassTimeout errors are ambiguous: the submission may still land.
	ClassTimeout ErrorClass = "timeout"
	// ClassReconciliation errors come from best-effort lookups and are only logged.
	ClassReconciliation ErrorClass = "reconciliation"
)

func (k ErrorKind) String() string {
	switch k {
	case KindWalletUnavailable:
		return "wallet_unavailable"
	case KindWrongNetwork:
		return "wrong_network"
	case KindInvalidSigner:
		return "invalid_signer"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindCooldownActive:
		return "cooldown_active"
	case KindContractNotFound:
		return "contract_not_found"
	case KindUserRejected:
		return "user_rejected"
	case KindNetworkError:
		return "network_error"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	case KindLedgerRevert:
		return "ledger_revert"
	case KindChainNotRegistered:
		return "chain_not_registered"
	default:
		return "unknown"
	}
}

// Class returns the error class the kind belongs to.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindWalletUnavailable, KindWrongNetwork, KindInvalidSigner,
		KindInsufficientFunds, KindCooldownActive, KindContractNotFound, KindChainNotRegistered:
		return ClassPreflight
	case KindConfirmationTimeout:
		return ClassTimeout
	default:
		return ClassSubmission
	}
}

// Error is the typed failure returned by ledger and send operations.
type Error struct {
	Kind ErrorKind
	// Seconds is set for KindCooldownActive.
	Seconds uint64
	// Reason carries the ledger revert reason code for KindLedgerRevert.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindCooldownActive:
		msg = fmt.Sprintf("cooldown active: wait %d seconds before sending another message", e.Seconds)
	case KindLedgerRevert:
		if e.Reason != "" {
			msg = fmt.Sprintf("ledger reverted: %s", e.Reason)
		} else {
			msg = "ledger reverted"
		}
	default:
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnknown             = &Error{Kind: KindUnknown}
	ErrWalletUnavailable   = &Error{Kind: KindWalletUnavailable}
	ErrWrongNetwork        = &Error{Kind: KindWrongNetwork}
	ErrInvalidSigner       = &Error{Kind: KindInvalidSigner}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrCooldownActive      = &Error{Kind: KindCooldownActive}
	ErrContractNotFound    = &Error{Kind: KindContractNotFound}
	ErrUserRejected        = &Error{Kind: KindUserRejected}
	ErrNetworkError        = &Error{Kind: KindNetworkError}
	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout}
	ErrLedgerRevert        = &Error{Kind: KindLedgerRevert}
	ErrChainNotRegistered  = &Error{Kind: KindChainNotRegistered}
)

// NewError wraps err into a typed error of the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// CooldownActive builds the cooldown error carrying the remaining seconds.
func CooldownActive(seconds uint64) *Error {
	return &Error{Kind: KindCooldownActive, Seconds: seconds}
}

// LedgerRevert builds a revert error with the decoded reason code.
func LedgerRevert(reason string, err error) *Error {
	return &Error{Kind: KindLedgerRevert, Reason: reason, Err: err}
}

// KindOf extracts the kind of a typed error, KindUnknown otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
