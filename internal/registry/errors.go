package registry

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/solsignal/internal/ledger"
)

var (
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrAgentNotRegistered = errors.New("agent not registered")
	ErrSignalNotFound     = errors.New("signal not found")
)

// ValidationError rejects publish input before any ledger interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FailureClass groups publish failures by how a batch should react.
type FailureClass int

const (
	FailureOther FailureClass = iota
	// FailureStale means the state read before submission was out of date.
	FailureStale
	// FailureBalance means the signer cannot pay for the transaction.
	FailureBalance
)

func (c FailureClass) String() string {
	switch c {
	case FailureStale:
		return "stale"
	case FailureBalance:
		return "balance"
	default:
		return "other"
	}
}

// PublishError is a transaction-level publish failure. TxID is set when the
// ledger assigned one.
type PublishError struct {
	Class FailureClass
	TxID  string
	Err   error
}

func (e *PublishError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("publish failed (%s, tx %s): %v", e.Class, e.TxID, e.Err)
	}
	return fmt.Sprintf("publish failed (%s): %v", e.Class, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Halts reports whether the remaining publishes of a batch should be skipped.
func (e *PublishError) Halts() bool {
	return e.Class == FailureStale || e.Class == FailureBalance
}

func classify(err error) FailureClass {
	switch {
	case errors.Is(err, ledger.ErrStateConflict):
		return FailureStale
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return FailureBalance
	default:
		return FailureOther
	}
}
