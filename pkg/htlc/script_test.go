package htlc_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/pkg/htlc"
)

const testLocktime = int64(1790000000)

func generatePrivateKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return privKey
}

func generateSecretAndHash(t *testing.T) (htlc.Secret, htlc.SecretHash) {
	t.Helper()
	secret, err := htlc.GenerateSecret()
	require.NoError(t, err)
	return secret, htlc.HashSecret(secret)
}

func TestDeriveScriptDataDeterminism(t *testing.T) {
	receiver := generatePrivateKey(t).PubKey()
	sender := generatePrivateKey(t).PubKey()
	_, hash := generateSecretAndHash(t)

	first, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)

	second, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)

	require.Equal(t, first.Address, second.Address)
	require.Equal(t, first.Script, second.Script)
}

func TestDeriveScriptDataDistinctInputs(t *testing.T) {
	receiver := generatePrivateKey(t).PubKey()
	sender := generatePrivateKey(t).PubKey()
	_, hash := generateSecretAndHash(t)

	base, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)

	laterLock, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime+3600, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotEqual(t, base.Address, laterLock.Address)

	_, otherHash := generateSecretAndHash(t)
	otherSecret, err := htlc.DeriveScriptData(otherHash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotEqual(t, base.Address, otherSecret.Address)

	swapped, err := htlc.DeriveScriptData(hash, sender, receiver, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotEqual(t, base.Address, swapped.Address)
}

func TestBuildScriptValidation(t *testing.T) {
	receiver := generatePrivateKey(t).PubKey().SerializeCompressed()
	sender := generatePrivateKey(t).PubKey().SerializeCompressed()
	_, hash := generateSecretAndHash(t)

	_, err := htlc.BuildScript(hash, receiver[:10], sender, testLocktime)
	require.Error(t, err)
	require.Contains(t, err.Error(), "compressed")

	_, err = htlc.BuildScript(hash, receiver, sender[:10], testLocktime)
	require.Error(t, err)

	// block-height style locktimes are not supported, only unix timestamps
	_, err = htlc.BuildScript(hash, receiver, sender, 800000)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unix timestamp")
}

func TestParseScriptRoundTrip(t *testing.T) {
	receiver := generatePrivateKey(t).PubKey()
	sender := generatePrivateKey(t).PubKey()
	_, hash := generateSecretAndHash(t)

	data, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)

	parsed, err := htlc.ParseScript(data.Script)
	require.NoError(t, err)
	require.Equal(t, hash, parsed.SecretHash)
	require.Equal(t, receiver.SerializeCompressed(), parsed.ReceiverPub)
	require.Equal(t, sender.SerializeCompressed(), parsed.SenderPub)
	require.Equal(t, testLocktime, parsed.Locktime)
}

func TestParseScriptRejectsGarbage(t *testing.T) {
	_, err := htlc.ParseScript([]byte{0x51, 0x52, 0x53})
	require.Error(t, err)

	_, err = htlc.ParseScript(nil)
	require.Error(t, err)
}

func TestWitnessShapes(t *testing.T) {
	secret, _ := generateSecretAndHash(t)
	script := []byte{0x63, 0x68}
	sig := []byte{0x30, 0x44, 0x01}

	claim := htlc.ClaimWitness(sig, secret, script)
	require.Len(t, claim, 4)
	require.Equal(t, sig, claim[0])
	require.Equal(t, secret[:], claim[1])
	require.Equal(t, []byte{0x01}, claim[2])
	require.Equal(t, script, claim[3])

	refund := htlc.RefundWitness(sig, script)
	require.Len(t, refund, 3)
	require.Equal(t, sig, refund[0])
	require.Empty(t, refund[1])
	require.Equal(t, script, refund[2])
}
