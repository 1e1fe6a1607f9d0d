package htlc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
)

// DustLimit is the smallest output value a spend may leave after fees.
const DustLimit = 546

// ErrTimelockNotYetExpired rejects refund construction before the script's
// locktime. The script enforces this on-chain anyway, this is a client-side
// fast-fail so no unusable transaction is ever broadcast.
var ErrTimelockNotYetExpired = fmt.Errorf("timelock has not expired yet")

// Utxo references one confirmed output paying the HTLC address.
type Utxo struct {
	TxID   string
	Vout   uint32
	Amount int64
}

// SignFunc produces a signature (DER plus sighash flag) for input idx of tx,
// committing to the witness script and input amount. Signing is delegated so
// this package never handles private keys.
type SignFunc func(tx *wire.MsgTx, idx int, script []byte, amount int64) ([]byte, error)

// SpendParams describes a transaction sweeping HTLC outputs to a destination.
type SpendParams struct {
	Utxos           []Utxo
	ScriptData      *ScriptData
	DestinationAddr string
	FeeRate         float64 // sat/vbyte
	Network         *chaincfg.Params
}

func (p SpendParams) validate() error {
	if len(p.Utxos) == 0 {
		return fmt.Errorf("no utxos to spend")
	}
	if p.ScriptData == nil || len(p.ScriptData.Script) == 0 {
		return fmt.Errorf("htlc script data is required")
	}
	if p.DestinationAddr == "" {
		return fmt.Errorf("destination address is required")
	}
	if p.Network == nil {
		return fmt.Errorf("network params are required")
	}
	return nil
}

// BuildRedeemTx constructs and signs the transaction spending the secret
// branch of the HTLC to the destination address.
func BuildRedeemTx(params SpendParams, secret Secret, sign SignFunc) (*wire.MsgTx, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if !VerifySecret(secret, params.ScriptData.SecretHash) {
		return nil, fmt.Errorf("secret does not match script hash commitment")
	}

	tx, err := buildSweepSkeleton(params, 0, wire.MaxTxInSequenceNum)
	if err != nil {
		return nil, err
	}

	for i := range tx.TxIn {
		sig, err := sign(tx, i, params.ScriptData.Script, params.Utxos[i].Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = ClaimWitness(sig, secret, params.ScriptData.Script)
	}

	return tx, nil
}

// BuildRefundTx constructs and signs the transaction spending the timelock
// branch back to the funder. It refuses to build before the script locktime.
func BuildRefundTx(params SpendParams, now time.Time, sign SignFunc) (*wire.MsgTx, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if now.Unix() < params.ScriptData.Locktime {
		return nil, ErrTimelockNotYetExpired
	}

	// OP_CLTV requires nLockTime at or past the script locktime and a
	// non-final sequence on every input.
	tx, err := buildSweepSkeleton(params, uint32(params.ScriptData.Locktime), wire.MaxTxInSequenceNum-1)
	if err != nil {
		return nil, err
	}

	for i := range tx.TxIn {
		sig, err := sign(tx, i, params.ScriptData.Script, params.Utxos[i].Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = RefundWitness(sig, params.ScriptData.Script)
	}

	return tx, nil
}

func buildSweepSkeleton(params SpendParams, lockTime, sequence uint32) (*wire.MsgTx, error) {
	destAddr, err := btcutil.DecodeAddress(params.DestinationAddr, params.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = lockTime

	var totalIn int64
	for _, utxo := range params.Utxos {
		prevHash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %s: %w", utxo.TxID, err)
		}
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: *prevHash, Index: utxo.Vout},
			Sequence:         sequence,
		})
		totalIn += utxo.Amount
	}

	pkScript, err := payToWitnessAddrScript(destAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create output script: %w", err)
	}
	tx.AddTxOut(&wire.TxOut{Value: totalIn, PkScript: pkScript})

	feeRate := params.FeeRate
	if feeRate <= 0 {
		feeRate = 1
	}
	vbytes := computeVSize(tx)
	// Witnesses are not attached yet, pad per input for the revealed script.
	witnessPad := int64(len(tx.TxIn)) * int64(len(params.ScriptData.Script)/4+40)
	feeAmount := int64(math.Ceil(float64(int64(vbytes)+witnessPad)*feeRate)) + 100

	if totalIn-feeAmount <= DustLimit {
		return nil, fmt.Errorf("not enough funds to cover network fees")
	}
	tx.TxOut[0].Value = totalIn - feeAmount

	return tx, nil
}

func computeVSize(tx *wire.MsgTx) lntypes.VByte {
	baseSize := tx.SerializeSizeStripped()
	totalSize := tx.SerializeSize()
	weight := totalSize + baseSize*3
	return lntypes.WeightUnit(uint64(weight)).ToVB()
}

func payToWitnessAddrScript(addr btcutil.Address) ([]byte, error) {
	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash,
		*btcutil.AddressWitnessScriptHash,
		*btcutil.AddressTaproot:
		return txscript.PayToAddrScript(addr)
	default:
		return nil, fmt.Errorf("unsupported address type: %T", addr)
	}
}

// SerializeTx returns the fully-signed transaction as broadcastable hex.
func SerializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTx parses a hex-encoded transaction.
func DeserializeTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %w", err)
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}
