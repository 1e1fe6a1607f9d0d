package domain

import (
	"context"
	"time"
)

type SwapStatus int

const (
	// Pending states
	SwapInitiated SwapStatus = iota
	SwapInitiatorLegOpen
	SwapResponderFunded
	SwapSecretRevealed

	// Terminal states
	SwapCompleted
	SwapRefunded
	SwapFailed

	// SwapSettlementAtRisk is recoverable but alarming: the secret is public
	// and the initiator leg must be redeemed before its timelock.
	SwapSettlementAtRisk
)

func (s SwapStatus) String() string {
	switch s {
	case SwapInitiated:
		return "initiated"
	case SwapInitiatorLegOpen:
		return "initiator_leg_open"
	case SwapResponderFunded:
		return "responder_funded"
	case SwapSecretRevealed:
		return "secret_revealed"
	case SwapCompleted:
		return "completed"
	case SwapRefunded:
		return "refunded"
	case SwapFailed:
		return "failed"
	case SwapSettlementAtRisk:
		return "settlement_at_risk"
	default:
		return "unknown"
	}
}

// SwapSession is the aggregate driving one atomic swap: the EVM leg funded
// first by the initiator and the bitcoin leg funded second by the responder,
// linked by the same secret hash.
type SwapSession struct {
	Id         string
	SecretHash string

	InitiatorLeg HTLCLeg // EVM, funded first, longer timelock
	ResponderLeg HTLCLeg // bitcoin, funded second, shorter timelock

	Status       SwapStatus
	ErrorMessage string

	CreatedAt int64
	UpdatedAt int64
}

// IsComplete returns true if the session is in a terminal state.
func (s *SwapSession) IsComplete() bool {
	return s.Status == SwapCompleted ||
		s.Status == SwapRefunded ||
		s.Status == SwapFailed
}

// IsPending returns true while the session still needs driving.
func (s *SwapSession) IsPending() bool {
	return !s.IsComplete()
}

func (s *SwapSession) touch() {
	s.UpdatedAt = time.Now().Unix()
}

// InitiatorLegOpened records the initiator escrow commit.
func (s *SwapSession) InitiatorLegOpened(txid string) {
	s.InitiatorLeg.Funded(txid)
	s.Status = SwapInitiatorLegOpen
	s.touch()
}

// ResponderFunded records detection of the counterparty's funding.
func (s *SwapSession) ResponderFunded(txid string) {
	s.ResponderLeg.Funded(txid)
	s.Status = SwapResponderFunded
	s.touch()
}

// SecretRevealed records the responder-leg redeem that published the secret.
func (s *SwapSession) SecretRevealed(txid string) {
	s.ResponderLeg.Redeemed(txid)
	s.Status = SwapSecretRevealed
	s.touch()
}

// Completed records the initiator-leg redeem closing the swap.
func (s *SwapSession) Completed(txid string) {
	s.InitiatorLeg.Redeemed(txid)
	s.Status = SwapCompleted
	s.touch()
}

// InitiatorRefunded records the initiator leg returning to its funder.
func (s *SwapSession) InitiatorRefunded(txid string) {
	s.InitiatorLeg.Refunded(txid)
	s.Status = SwapRefunded
	s.touch()
}

// ResponderRefunded records the responder leg returning to its funder.
func (s *SwapSession) ResponderRefunded(txid string) {
	s.ResponderLeg.Refunded(txid)
	s.touch()
}

// Failed marks the session failed with an error message.
func (s *SwapSession) Failed(errorMsg string) {
	s.Status = SwapFailed
	s.ErrorMessage = errorMsg
	s.touch()
}

// SettlementAtRisk flags the session for urgent operator attention.
func (s *SwapSession) SettlementAtRisk(errorMsg string) {
	s.Status = SwapSettlementAtRisk
	s.ErrorMessage = errorMsg
	s.touch()
}

// SwapSessionRepository stores the sessions owned by the orchestrator.
type SwapSessionRepository interface {
	// Add creates a new session record
	Add(ctx context.Context, session SwapSession) error

	// Get retrieves a session by ID
	Get(ctx context.Context, id string) (*SwapSession, error)

	// GetAll retrieves all sessions
	GetAll(ctx context.Context) ([]SwapSession, error)

	// GetPending retrieves sessions not yet in a terminal state
	GetPending(ctx context.Context) ([]SwapSession, error)

	// Update updates an existing session
	Update(ctx context.Context, session SwapSession) error

	// Close closes the repository
	Close()
}
