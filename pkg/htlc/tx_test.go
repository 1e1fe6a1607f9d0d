package htlc_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/pkg/htlc"
)

var dummySig = bytes.Repeat([]byte{0x30}, 72)

func dummySign(tx *wire.MsgTx, idx int, script []byte, amount int64) ([]byte, error) {
	return dummySig, nil
}

func testDestination(t *testing.T) string {
	t.Helper()
	pub := generatePrivateKey(t).PubKey()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pub.SerializeCompressed()), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func testSpendParams(t *testing.T, hash htlc.SecretHash, amount int64) htlc.SpendParams {
	t.Helper()
	receiver := generatePrivateKey(t).PubKey()
	sender := generatePrivateKey(t).PubKey()

	data, err := htlc.DeriveScriptData(hash, receiver, sender, testLocktime, &chaincfg.MainNetParams)
	require.NoError(t, err)

	return htlc.SpendParams{
		Utxos: []htlc.Utxo{{
			TxID:   strings.Repeat("ab", 32),
			Vout:   0,
			Amount: amount,
		}},
		ScriptData:      data,
		DestinationAddr: testDestination(t),
		FeeRate:         2,
		Network:         &chaincfg.MainNetParams,
	}
}

func TestBuildRedeemTx(t *testing.T) {
	secret, hash := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 100_000)

	tx, err := htlc.BuildRedeemTx(params, secret, dummySign)
	require.NoError(t, err)

	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)
	require.EqualValues(t, 0, tx.LockTime)
	require.Equal(t, uint32(wire.MaxTxInSequenceNum), tx.TxIn[0].Sequence)

	witness := tx.TxIn[0].Witness
	require.Len(t, witness, 4)
	require.Equal(t, secret[:], witness[1])
	require.Equal(t, params.ScriptData.Script, witness[3])

	// output pays less than input, the difference is the fee
	require.Less(t, tx.TxOut[0].Value, int64(100_000))
	require.Greater(t, tx.TxOut[0].Value, int64(htlc.DustLimit))
}

func TestBuildRedeemTxRejectsWrongSecret(t *testing.T) {
	_, hash := generateSecretAndHash(t)
	wrongSecret, _ := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 100_000)

	_, err := htlc.BuildRedeemTx(params, wrongSecret, dummySign)
	require.Error(t, err)
	require.Contains(t, err.Error(), "secret does not match")
}

func TestBuildRefundTxBeforeLocktime(t *testing.T) {
	_, hash := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 100_000)

	before := time.Unix(testLocktime-1, 0)
	_, err := htlc.BuildRefundTx(params, before, dummySign)
	require.ErrorIs(t, err, htlc.ErrTimelockNotYetExpired)
}

func TestBuildRefundTxAfterLocktime(t *testing.T) {
	_, hash := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 100_000)

	after := time.Unix(testLocktime+1, 0)
	tx, err := htlc.BuildRefundTx(params, after, dummySign)
	require.NoError(t, err)

	require.EqualValues(t, testLocktime, tx.LockTime)
	require.Equal(t, uint32(wire.MaxTxInSequenceNum-1), tx.TxIn[0].Sequence)

	witness := tx.TxIn[0].Witness
	require.Len(t, witness, 3)
	require.Empty(t, witness[1])
	require.Equal(t, params.ScriptData.Script, witness[2])
}

func TestBuildSpendRejectsDust(t *testing.T) {
	secret, hash := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 600)

	_, err := htlc.BuildRedeemTx(params, secret, dummySign)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not enough funds")
}

func TestSerializeRoundTrip(t *testing.T) {
	secret, hash := generateSecretAndHash(t)
	params := testSpendParams(t, hash, 100_000)

	tx, err := htlc.BuildRedeemTx(params, secret, dummySign)
	require.NoError(t, err)

	txHex, err := htlc.SerializeTx(tx)
	require.NoError(t, err)

	decoded, err := htlc.DeserializeTx(txHex)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), decoded.TxHash())

	_, err = htlc.DeserializeTx("zz")
	require.Error(t, err)
}
