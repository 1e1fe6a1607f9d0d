package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is one unspent output paying a watched address.
type Utxo struct {
	Txid          string
	Vout          uint32
	Amount        uint64
	Confirmations int64
}

// FundingStatus summarizes the funding state of an HTLC address.
type FundingStatus struct {
	Funded        bool
	Amount        uint64
	Confirmations int64
	Utxos         []Utxo
}

// BtcExplorer is the UTXO/indexer capability consumed by the bitcoin adapter.
type BtcExplorer interface {
	GetUtxos(ctx context.Context, address string) ([]Utxo, error)
	GetConfirmations(ctx context.Context, txid string) (int64, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
	GetFeeRate(ctx context.Context) (float64, error)
	GetBlockHeight(ctx context.Context) (int64, error)
}

// BtcSigner signs HTLC spends. The key never leaves the signer.
type BtcSigner interface {
	// SignHtlcSpend returns the signature (DER plus sighash flag) for input
	// idx of tx, spending an output locked under the witness script.
	SignHtlcSpend(tx *wire.MsgTx, idx int, script []byte, amount int64) ([]byte, error)

	// PubKey returns the public key signatures verify against.
	PubKey() *btcec.PublicKey
}

// BtcHtlcService derives script escrows, tracks their funding and constructs
// the settlement transactions for the bitcoin leg.
type BtcHtlcService interface {
	// HashAlgo names the hash function the script verifies preimages with.
	HashAlgo() string

	// DeriveAddress computes the deterministic P2WSH escrow address.
	DeriveAddress(secretHash string, receiverPub, senderPub *btcec.PublicKey, timelock int64) (string, error)

	// IsFunded inspects chain state for outputs paying the address.
	IsFunded(ctx context.Context, address string) (*FundingStatus, error)

	// BuildRedeemTx constructs and signs the secret-reveal spend.
	BuildRedeemTx(ctx context.Context, utxos []Utxo, secretHash string, secret []byte, receiverPub, senderPub *btcec.PublicKey, timelock int64, destination string) (string, error)

	// BuildRefundTx constructs and signs the timelock spend. Fails with a
	// timelock error before the script locktime.
	BuildRefundTx(ctx context.Context, utxos []Utxo, secretHash string, receiverPub, senderPub *btcec.PublicKey, timelock int64, destination string) (string, error)

	// Broadcast submits a signed transaction to the network.
	Broadcast(ctx context.Context, txHex string) (string, error)
}
