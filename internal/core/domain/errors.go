package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// Configuration errors, fatal and never retried.
	ErrHashFunctionMismatch ErrorKind = iota
	ErrInvalidTimelockOrdering
	ErrMissingParameters

	// Transient chain errors, retryable with backoff.
	ErrChainSubmissionFailed
	ErrBroadcastRejected

	// Settlement conflicts, surfaced so the caller re-queries session state.
	ErrAlreadySettled
	ErrSecretMismatch
	ErrTimelockExpired
	ErrTimelockNotYetExpired
	ErrInsufficientFunds
	ErrNotFound
	ErrQuoteExpired

	// ErrTimeout leaves state unchanged, the caller decides the next action.
	ErrTimeout

	// ErrPartialSettlementRisk is the safety-critical alarm: the secret is
	// public but one leg is still open. Never folded into a generic failure.
	ErrPartialSettlementRisk
)

func (k ErrorKind) String() string {
	switch k {
	case ErrHashFunctionMismatch:
		return "hash_function_mismatch"
	case ErrInvalidTimelockOrdering:
		return "invalid_timelock_ordering"
	case ErrMissingParameters:
		return "missing_parameters"
	case ErrChainSubmissionFailed:
		return "chain_submission_failed"
	case ErrBroadcastRejected:
		return "broadcast_rejected"
	case ErrAlreadySettled:
		return "already_settled"
	case ErrSecretMismatch:
		return "secret_mismatch"
	case ErrTimelockExpired:
		return "timelock_expired"
	case ErrTimelockNotYetExpired:
		return "timelock_not_yet_expired"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrNotFound:
		return "not_found"
	case ErrQuoteExpired:
		return "quote_expired"
	case ErrTimeout:
		return "timeout"
	case ErrPartialSettlementRisk:
		return "partial_settlement_risk"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Retryable reports whether the orchestrator may retry the failed operation
// with backoff. Settlement conflicts and configuration errors never are.
func (k ErrorKind) Retryable() bool {
	return k == ErrChainSubmissionFailed || k == ErrBroadcastRejected
}

// SwapError carries enough context (session, leg, chain, operation) to resume
// a session from GetSessionStatus rather than from the failed call.
type SwapError struct {
	Kind      ErrorKind
	Op        string
	SessionId string
	LegId     string
	Chain     LegChain
	Err       error
}

func (e *SwapError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.SessionId != "" {
		msg += fmt.Sprintf(" (session %s", e.SessionId)
		if e.LegId != "" {
			msg += fmt.Sprintf(", leg %s on %s", e.LegId, e.Chain)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

// Is matches against another SwapError with the same kind, so callers can use
// errors.Is(err, &SwapError{Kind: ErrAlreadySettled}).
func (e *SwapError) Is(target error) bool {
	var other *SwapError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func NewSwapError(kind ErrorKind, op string, err error) *SwapError {
	return &SwapError{Kind: kind, Op: op, Err: err}
}

func (e *SwapError) WithSession(sessionId string) *SwapError {
	e.SessionId = sessionId
	return e
}

func (e *SwapError) WithLeg(legId string, chain LegChain) *SwapError {
	e.LegId = legId
	e.Chain = chain
	return e
}

// KindOf extracts the error kind, or false for errors outside the taxonomy.
func KindOf(err error) (ErrorKind, bool) {
	var swapErr *SwapError
	if errors.As(err, &swapErr) {
		return swapErr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a SwapError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
