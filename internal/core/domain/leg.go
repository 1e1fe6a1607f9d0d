package domain

import "time"

type LegChain string

const (
	ChainEVM     LegChain = "evm"
	ChainBitcoin LegChain = "bitcoin"
)

type LegStatus int

const (
	LegCreated LegStatus = iota
	LegFunded
	LegRedeemed
	LegRefunded
)

func (s LegStatus) String() string {
	switch s {
	case LegCreated:
		return "created"
	case LegFunded:
		return "funded"
	case LegRedeemed:
		return "redeemed"
	case LegRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// HTLCLeg is one escrow on one chain. Amount is a decimal string in the
// chain's base unit (wei or satoshi) so both chains share one record shape.
type HTLCLeg struct {
	Id          string
	Chain       LegChain
	SecretHash  string
	Timelock    int64 // unix seconds after which the funder may refund
	Amount      string
	Funder      string // owns refund rights
	Beneficiary string // owns redeem rights once the secret is revealed
	Status      LegStatus

	// Address is set for bitcoin legs (the derived P2WSH escrow address).
	Address string

	FundingTxId string
	RedeemTxId  string
	RefundTxId  string
}

// IsSettled returns true once the leg has been redeemed or refunded.
func (l *HTLCLeg) IsSettled() bool {
	return l.Status == LegRedeemed || l.Status == LegRefunded
}

// IsExpired reports whether the refund path is open. Expiry is observed, not
// stored: a funded leg stays Funded until explicitly refunded.
func (l *HTLCLeg) IsExpired(now time.Time) bool {
	return now.Unix() >= l.Timelock
}

// Funded records the transaction that locked value into the leg.
func (l *HTLCLeg) Funded(txid string) {
	l.FundingTxId = txid
	l.Status = LegFunded
}

// Redeemed records the transaction that claimed the leg with the secret.
func (l *HTLCLeg) Redeemed(txid string) {
	l.RedeemTxId = txid
	l.Status = LegRedeemed
}

// Refunded records the transaction that returned the leg to its funder.
func (l *HTLCLeg) Refunded(txid string) {
	l.RefundTxId = txid
	l.Status = LegRefunded
}
