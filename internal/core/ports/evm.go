package ports

import (
	"context"
	"math/big"

	"github.com/unite-defi/swapd/internal/core/domain"
)

// OpenLegResult reports a submitted escrow commit. LegId is derived
// deterministically from the escrow parameters so either party can verify it
// without trusting the orchestrator's bookkeeping.
type OpenLegResult struct {
	LegId string
	TxRef string
}

// EvmHtlcService translates orchestrator intents into HTLC contract calls.
// Every call returns once submission succeeds; confirmation is observed
// separately through QueryLeg polling.
type EvmHtlcService interface {
	// HashAlgo names the hash function the contract verifies preimages with.
	HashAlgo() string

	// Open submits the locking transaction for a new escrow.
	Open(
		ctx context.Context,
		secretHash string, funder, beneficiary string, timelock int64, amount *big.Int,
	) (*OpenLegResult, error)

	// QueryLeg reads on-chain escrow state.
	QueryLeg(ctx context.Context, legId string) (*domain.HTLCLeg, error)

	// Redeem claims the escrow with the secret before (or, contract
	// permitting, after) the timelock.
	Redeem(ctx context.Context, legId string, secret []byte) (string, error)

	// Refund returns the escrow to its funder after the timelock.
	Refund(ctx context.Context, legId string) (string, error)
}

// EvmReceipt is the confirmation state of a submitted transaction.
type EvmReceipt struct {
	TxRef   string
	Success bool
	Block   uint64
}

// EvmBackend is the raw submit/query capability consumed by the EVM adapter.
// Signing is delegated: the backend signs with keys it controls, the adapter
// never sees them.
type EvmBackend interface {
	// Call performs a read-only contract call.
	Call(ctx context.Context, to string, data []byte) ([]byte, error)

	// SignAndSend signs and broadcasts a contract call carrying value.
	SignAndSend(ctx context.Context, to string, data []byte, value *big.Int) (string, error)

	// WaitForReceipt blocks until the transaction confirms or ctx expires.
	WaitForReceipt(ctx context.Context, txRef string) (*EvmReceipt, error)

	// Balance returns the spendable balance of the funding account.
	Balance(ctx context.Context) (*big.Int, error)

	// Sender returns the address transactions are signed with.
	Sender() string
}
