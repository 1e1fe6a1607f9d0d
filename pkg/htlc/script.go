package htlc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ScriptData carries everything needed to watch and spend one bitcoin HTLC.
type ScriptData struct {
	// Script is the full witness script, revealed when spending.
	Script []byte

	// Address is the P2WSH address locking funds under Script.
	Address string

	SecretHash  SecretHash
	ReceiverPub []byte // compressed, claims with the secret
	SenderPub   []byte // compressed, refunds after Locktime
	Locktime    int64  // absolute unix timestamp enforced by OP_CLTV
}

// BuildScript assembles the HTLC witness script:
//
//	OP_IF
//	    OP_SHA256 <secretHash> OP_EQUALVERIFY
//	    <receiverPub> OP_CHECKSIG
//	OP_ELSE
//	    <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <senderPub> OP_CHECKSIG
//	OP_ENDIF
//
// The claim branch requires the preimage plus the receiver's signature, the
// refund branch the sender's signature once the absolute locktime has passed.
func BuildScript(secretHash SecretHash, receiverPub, senderPub []byte, locktime int64) ([]byte, error) {
	if len(receiverPub) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("receiver pubkey must be %d bytes (compressed), got %d", btcec.PubKeyBytesLenCompressed, len(receiverPub))
	}
	if len(senderPub) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("sender pubkey must be %d bytes (compressed), got %d", btcec.PubKeyBytesLenCompressed, len(senderPub))
	}
	if locktime <= txscript.LockTimeThreshold {
		return nil, fmt.Errorf("locktime %d is not a unix timestamp", locktime)
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(receiverPub)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(locktime)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(senderPub)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// DeriveScriptData builds the script and its P2WSH address. Identical inputs
// always yield the identical address, letting either party derive and verify
// the escrow independently.
func DeriveScriptData(
	secretHash SecretHash,
	receiverPub, senderPub *btcec.PublicKey,
	locktime int64,
	network *chaincfg.Params,
) (*ScriptData, error) {
	if receiverPub == nil || senderPub == nil {
		return nil, fmt.Errorf("receiver and sender pubkeys are required")
	}
	if network == nil {
		return nil, fmt.Errorf("network params are required")
	}

	receiverBytes := receiverPub.SerializeCompressed()
	senderBytes := senderPub.SerializeCompressed()

	script, err := BuildScript(secretHash, receiverBytes, senderBytes, locktime)
	if err != nil {
		return nil, fmt.Errorf("failed to build htlc script: %w", err)
	}

	scriptHash := sha256.Sum256(script)
	address, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], network)
	if err != nil {
		return nil, fmt.Errorf("failed to derive p2wsh address: %w", err)
	}

	return &ScriptData{
		Script:      script,
		Address:     address.EncodeAddress(),
		SecretHash:  secretHash,
		ReceiverPub: receiverBytes,
		SenderPub:   senderBytes,
		Locktime:    locktime,
	}, nil
}

// ClaimWitness builds the witness stack spending the secret-reveal branch.
func ClaimWitness(signature []byte, secret Secret, script []byte) wire.TxWitness {
	return wire.TxWitness{
		signature,
		secret[:],
		{0x01}, // selects the OP_IF branch
		script,
	}
}

// RefundWitness builds the witness stack spending the timelock branch.
func RefundWitness(signature, script []byte) wire.TxWitness {
	return wire.TxWitness{
		signature,
		{}, // empty selects the OP_ELSE branch
		script,
	}
}

// ParseScript extracts the components of an HTLC witness script produced by
// BuildScript, so a counterparty can audit an escrow it did not build.
func ParseScript(script []byte) (*ScriptData, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	expectOp := func(op byte, name string) error {
		if !tokenizer.Next() || tokenizer.Opcode() != op {
			return fmt.Errorf("expected %s", name)
		}
		return nil
	}

	if err := expectOp(txscript.OP_IF, "OP_IF"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_SHA256, "OP_SHA256"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != sha256.Size {
		return nil, fmt.Errorf("expected %d-byte secret hash", sha256.Size)
	}
	var secretHash SecretHash
	copy(secretHash[:], tokenizer.Data())

	if err := expectOp(txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("expected compressed receiver pubkey")
	}
	receiverPub := append([]byte(nil), tokenizer.Data()...)

	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ELSE, "OP_ELSE"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() {
		return nil, fmt.Errorf("expected locktime")
	}
	data := tokenizer.Data()
	if len(data) == 0 || len(data) > 5 {
		return nil, fmt.Errorf("invalid locktime push")
	}
	var locktime int64
	for i := 0; i < len(data); i++ {
		locktime |= int64(data[i]) << (8 * i)
	}

	if err := expectOp(txscript.OP_CHECKLOCKTIMEVERIFY, "OP_CHECKLOCKTIMEVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DROP, "OP_DROP"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("expected compressed sender pubkey")
	}
	senderPub := append([]byte(nil), tokenizer.Data()...)

	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ENDIF, "OP_ENDIF"); err != nil {
		return nil, err
	}

	return &ScriptData{
		Script:      append([]byte(nil), script...),
		SecretHash:  secretHash,
		ReceiverPub: receiverPub,
		SenderPub:   senderPub,
		Locktime:    locktime,
	}, nil
}

// ScriptHex returns the witness script as a hex string.
func (s *ScriptData) ScriptHex() string {
	return hex.EncodeToString(s.Script)
}
