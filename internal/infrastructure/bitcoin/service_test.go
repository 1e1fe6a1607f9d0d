package bitcoin_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	"github.com/unite-defi/swapd/internal/infrastructure/bitcoin"
	"github.com/unite-defi/swapd/internal/infrastructure/signer"
	"github.com/unite-defi/swapd/pkg/htlc"
)

const (
	futureLocktime = int64(1790000000)
	pastLocktime   = int64(1600000000)
)

type fakeExplorer struct {
	utxos        []ports.Utxo
	feeRate      float64
	feeErr       error
	broadcastErr error
}

func (f *fakeExplorer) GetUtxos(ctx context.Context, address string) ([]ports.Utxo, error) {
	return f.utxos, nil
}

func (f *fakeExplorer) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	return 1, nil
}

func (f *fakeExplorer) Broadcast(ctx context.Context, txHex string) (string, error) {
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	return "txid", nil
}

func (f *fakeExplorer) GetFeeRate(ctx context.Context) (float64, error) {
	if f.feeErr != nil {
		return 0, f.feeErr
	}
	return f.feeRate, nil
}

func (f *fakeExplorer) GetBlockHeight(ctx context.Context) (int64, error) {
	return 850000, nil
}

type testKeys struct {
	receiverPriv *btcec.PrivateKey
	receiverPub  *btcec.PublicKey
	senderPriv   *btcec.PrivateKey
	senderPub    *btcec.PublicKey
	secret       htlc.Secret
	secretHash   string
	destination  string
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()

	receiver, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sender, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	secret, err := htlc.GenerateSecret()
	require.NoError(t, err)

	dest, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(receiver.PubKey().SerializeCompressed()), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	return testKeys{
		receiverPriv: receiver,
		receiverPub:  receiver.PubKey(),
		senderPriv:   sender,
		senderPub:    sender.PubKey(),
		secret:       secret,
		secretHash:   htlc.HashSecret(secret).String(),
		destination:  dest.EncodeAddress(),
	}
}

func newTestService(
	t *testing.T, explorer *fakeExplorer, key *btcec.PrivateKey,
) ports.BtcHtlcService {
	t.Helper()
	svc, err := bitcoin.NewService(explorer, signer.NewFromKey(key), &chaincfg.MainNetParams, 1)
	require.NoError(t, err)
	return svc
}

func TestDeriveAddress(t *testing.T) {
	keys := newTestKeys(t)
	svc := newTestService(t, &fakeExplorer{}, keys.receiverPriv)

	addr1, err := svc.DeriveAddress(keys.secretHash, keys.receiverPub, keys.senderPub, futureLocktime)
	require.NoError(t, err)
	require.Contains(t, addr1, "bc1")

	// deterministic for the same parameters
	addr2, err := svc.DeriveAddress(keys.secretHash, keys.receiverPub, keys.senderPub, futureLocktime)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)

	// any parameter change yields a different escrow
	addr3, err := svc.DeriveAddress(keys.secretHash, keys.receiverPub, keys.senderPub, futureLocktime+1)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr3)

	_, err = svc.DeriveAddress("not-hex", keys.receiverPub, keys.senderPub, futureLocktime)
	require.Error(t, err)
}

func TestIsFunded(t *testing.T) {
	keys := newTestKeys(t)
	explorer := &fakeExplorer{
		utxos: []ports.Utxo{
			{Txid: "aa", Vout: 0, Amount: 100000, Confirmations: 3},
			{Txid: "bb", Vout: 1, Amount: 50000, Confirmations: 0},
		},
	}

	svc, err := bitcoin.NewService(explorer, signer.NewFromKey(keys.receiverPriv), &chaincfg.MainNetParams, 1)
	require.NoError(t, err)

	status, err := svc.IsFunded(context.Background(), "bc1qescrow")
	require.NoError(t, err)
	require.True(t, status.Funded)
	require.EqualValues(t, 100000, status.Amount)
	require.Len(t, status.Utxos, 1)
	require.EqualValues(t, 3, status.Confirmations)
}

func TestIsFundedBelowMinConfs(t *testing.T) {
	keys := newTestKeys(t)
	explorer := &fakeExplorer{
		utxos: []ports.Utxo{{Txid: "aa", Vout: 0, Amount: 100000, Confirmations: 1}},
	}

	svc, err := bitcoin.NewService(explorer, signer.NewFromKey(keys.receiverPriv), &chaincfg.MainNetParams, 3)
	require.NoError(t, err)

	status, err := svc.IsFunded(context.Background(), "bc1qescrow")
	require.NoError(t, err)
	require.False(t, status.Funded)
	require.Empty(t, status.Utxos)
}

func TestBuildRedeemTx(t *testing.T) {
	keys := newTestKeys(t)
	explorer := &fakeExplorer{feeRate: 5}
	svc := newTestService(t, explorer, keys.receiverPriv)

	utxos := []ports.Utxo{{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11", Vout: 0, Amount: 100000, Confirmations: 3}}

	txHex, err := svc.BuildRedeemTx(
		context.Background(), utxos, keys.secretHash, keys.secret[:],
		keys.receiverPub, keys.senderPub, futureLocktime, keys.destination,
	)
	require.NoError(t, err)

	tx, err := htlc.DeserializeTx(txHex)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxIn[0].Witness, 4)
	require.Equal(t, keys.secret[:], []byte(tx.TxIn[0].Witness[1]))
}

func TestBuildRedeemTxBadSecret(t *testing.T) {
	keys := newTestKeys(t)
	svc := newTestService(t, &fakeExplorer{feeRate: 5}, keys.receiverPriv)

	utxos := []ports.Utxo{{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11", Vout: 0, Amount: 100000}}

	_, err := svc.BuildRedeemTx(
		context.Background(), utxos, keys.secretHash, []byte{0x01},
		keys.receiverPub, keys.senderPub, futureLocktime, keys.destination,
	)
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.ErrSecretMismatch))

	wrong, err := htlc.GenerateSecret()
	require.NoError(t, err)
	_, err = svc.BuildRedeemTx(
		context.Background(), utxos, keys.secretHash, wrong[:],
		keys.receiverPub, keys.senderPub, futureLocktime, keys.destination,
	)
	require.Error(t, err)
}

func TestBuildRefundTxBeforeLocktime(t *testing.T) {
	keys := newTestKeys(t)
	svc := newTestService(t, &fakeExplorer{feeRate: 5}, keys.senderPriv)

	utxos := []ports.Utxo{{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11", Vout: 0, Amount: 100000}}

	_, err := svc.BuildRefundTx(
		context.Background(), utxos, keys.secretHash,
		keys.receiverPub, keys.senderPub, futureLocktime, keys.destination,
	)
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.ErrTimelockNotYetExpired))
}

func TestBuildRefundTxAfterLocktime(t *testing.T) {
	keys := newTestKeys(t)
	svc := newTestService(t, &fakeExplorer{feeRate: 5}, keys.senderPriv)

	utxos := []ports.Utxo{{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11", Vout: 0, Amount: 100000}}

	txHex, err := svc.BuildRefundTx(
		context.Background(), utxos, keys.secretHash,
		keys.receiverPub, keys.senderPub, pastLocktime, keys.destination,
	)
	require.NoError(t, err)

	tx, err := htlc.DeserializeTx(txHex)
	require.NoError(t, err)
	require.EqualValues(t, pastLocktime, tx.LockTime)
	require.Len(t, tx.TxIn[0].Witness, 3)
}

func TestBuildSpendFallsBackOnFeeRate(t *testing.T) {
	keys := newTestKeys(t)
	explorer := &fakeExplorer{feeErr: fmt.Errorf("esplora down")}
	svc := newTestService(t, explorer, keys.receiverPriv)

	utxos := []ports.Utxo{{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11", Vout: 0, Amount: 100000}}

	_, err := svc.BuildRedeemTx(
		context.Background(), utxos, keys.secretHash, keys.secret[:],
		keys.receiverPub, keys.senderPub, futureLocktime, keys.destination,
	)
	require.NoError(t, err)
}

func TestBroadcastRejected(t *testing.T) {
	keys := newTestKeys(t)
	explorer := &fakeExplorer{broadcastErr: fmt.Errorf("min relay fee not met")}
	svc := newTestService(t, explorer, keys.receiverPriv)

	_, err := svc.Broadcast(context.Background(), "0200...")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.ErrBroadcastRejected))
}

func TestHashAlgo(t *testing.T) {
	keys := newTestKeys(t)
	svc := newTestService(t, &fakeExplorer{}, keys.receiverPriv)
	require.Equal(t, htlc.HashAlgoSHA256, svc.HashAlgo())
}
