package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/internal/core/domain"
)

func newTestSession() domain.SwapSession {
	now := time.Now().Unix()
	return domain.SwapSession{
		Id:         "test-session",
		SecretHash: "aa",
		InitiatorLeg: domain.HTLCLeg{
			Id:       "evm-leg",
			Chain:    domain.ChainEVM,
			Timelock: now + 48*3600,
			Status:   domain.LegCreated,
		},
		ResponderLeg: domain.HTLCLeg{
			Id:       "btc-leg",
			Chain:    domain.ChainBitcoin,
			Timelock: now + 24*3600,
			Status:   domain.LegCreated,
		},
		Status:    domain.SwapInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionHappyPath(t *testing.T) {
	session := newTestSession()
	require.True(t, session.IsPending())

	session.InitiatorLegOpened("tx1")
	require.Equal(t, domain.SwapInitiatorLegOpen, session.Status)
	require.Equal(t, domain.LegFunded, session.InitiatorLeg.Status)
	require.Equal(t, "tx1", session.InitiatorLeg.FundingTxId)

	session.ResponderFunded("tx2")
	require.Equal(t, domain.SwapResponderFunded, session.Status)
	require.Equal(t, domain.LegFunded, session.ResponderLeg.Status)

	session.SecretRevealed("tx3")
	require.Equal(t, domain.SwapSecretRevealed, session.Status)
	require.Equal(t, domain.LegRedeemed, session.ResponderLeg.Status)
	require.True(t, session.ResponderLeg.IsSettled())

	session.Completed("tx4")
	require.Equal(t, domain.SwapCompleted, session.Status)
	require.Equal(t, domain.LegRedeemed, session.InitiatorLeg.Status)
	require.True(t, session.IsComplete())
	require.False(t, session.IsPending())
}

func TestSessionRefundPath(t *testing.T) {
	session := newTestSession()
	session.InitiatorLegOpened("tx1")

	session.InitiatorRefunded("tx5")
	require.Equal(t, domain.SwapRefunded, session.Status)
	require.Equal(t, domain.LegRefunded, session.InitiatorLeg.Status)
	require.Equal(t, "tx5", session.InitiatorLeg.RefundTxId)
	require.True(t, session.IsComplete())
}

func TestSessionFailureStates(t *testing.T) {
	session := newTestSession()

	session.Failed("node unreachable")
	require.Equal(t, domain.SwapFailed, session.Status)
	require.Equal(t, "node unreachable", session.ErrorMessage)
	require.True(t, session.IsComplete())

	atRisk := newTestSession()
	atRisk.SettlementAtRisk("secret public, evm leg open")
	require.Equal(t, domain.SwapSettlementAtRisk, atRisk.Status)
	// at-risk is recoverable, not terminal
	require.True(t, atRisk.IsPending())
}

func TestLegExpiry(t *testing.T) {
	leg := domain.HTLCLeg{Timelock: time.Now().Unix() + 3600, Status: domain.LegFunded}
	require.False(t, leg.IsExpired(time.Now()))

	// expiry is observed, never stored: the leg stays funded
	require.True(t, leg.IsExpired(time.Now().Add(2*time.Hour)))
	require.Equal(t, domain.LegFunded, leg.Status)
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "initiated", domain.SwapInitiated.String())
	require.Equal(t, "completed", domain.SwapCompleted.String())
	require.Equal(t, "settlement_at_risk", domain.SwapSettlementAtRisk.String())
	require.Equal(t, "funded", domain.LegFunded.String())
	require.Equal(t, "refunded", domain.LegRefunded.String())
}
