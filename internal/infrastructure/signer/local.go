package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/unite-defi/swapd/internal/core/ports"
)

// localSigner implements ports.BtcSigner with a key derived from a BIP39
// mnemonic. The derived key never leaves this package.
type localSigner struct {
	key *btcec.PrivateKey
}

// NewFromMnemonic derives the signing key at m/84'/0'/0'/0/0.
func NewFromMnemonic(mnemonic string) (ports.BtcSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 84, // purpose
		bip32.FirstHardenedChild,      // coin type
		bip32.FirstHardenedChild,      // account
		0,                             // change
		0,                             // index
	}
	key := master
	for _, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	priv, _ := btcec.PrivKeyFromBytes(key.Key)
	return &localSigner{key: priv}, nil
}

// NewFromKey wraps an existing private key, used in tests.
func NewFromKey(key *btcec.PrivateKey) ports.BtcSigner {
	return &localSigner{key: key}
}

func (s *localSigner) SignHtlcSpend(tx *wire.MsgTx, idx int, script []byte, amount int64) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}

	prevOut := wire.NewTxOut(amount, nil)
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	sig, err := txscript.RawTxInWitnessSignature(
		tx, sigHashes, idx, amount, script, txscript.SigHashAll, s.key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign witness input %d: %w", idx, err)
	}
	return sig, nil
}

func (s *localSigner) PubKey() *btcec.PublicKey {
	return s.key.PubKey()
}
