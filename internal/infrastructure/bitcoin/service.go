package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	"github.com/unite-defi/swapd/pkg/htlc"
)

// service implements ports.BtcHtlcService on top of the script toolkit, an
// esplora explorer and a delegated signer. It keeps no per-swap state and is
// safe for concurrent use across many sessions.
type service struct {
	explorer ports.BtcExplorer
	signer   ports.BtcSigner
	network  *chaincfg.Params
	minConfs int64
}

func NewService(
	explorer ports.BtcExplorer, signer ports.BtcSigner,
	network *chaincfg.Params, minConfs int64,
) (ports.BtcHtlcService, error) {
	if explorer == nil {
		return nil, fmt.Errorf("missing explorer")
	}
	if signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	if network == nil {
		return nil, fmt.Errorf("missing network params")
	}
	if minConfs <= 0 {
		minConfs = 1
	}
	return &service{explorer, signer, network, minConfs}, nil
}

func (s *service) HashAlgo() string {
	return htlc.HashAlgoSHA256
}

func (s *service) DeriveAddress(
	secretHash string, receiverPub, senderPub *btcec.PublicKey, timelock int64,
) (string, error) {
	hash, err := htlc.ParseSecretHash(secretHash)
	if err != nil {
		return "", err
	}

	data, err := htlc.DeriveScriptData(hash, receiverPub, senderPub, timelock, s.network)
	if err != nil {
		return "", fmt.Errorf("failed to derive htlc address: %w", err)
	}
	return data.Address, nil
}

func (s *service) IsFunded(ctx context.Context, address string) (*ports.FundingStatus, error) {
	utxos, err := s.explorer.GetUtxos(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch utxos for %s: %w", address, err)
	}

	status := &ports.FundingStatus{}
	for _, u := range utxos {
		if u.Confirmations < s.minConfs {
			continue
		}
		status.Amount += u.Amount
		status.Utxos = append(status.Utxos, u)
		if status.Confirmations == 0 || u.Confirmations < status.Confirmations {
			status.Confirmations = u.Confirmations
		}
	}
	status.Funded = len(status.Utxos) > 0

	return status, nil
}

func (s *service) BuildRedeemTx(
	ctx context.Context, utxos []ports.Utxo, secretHash string, secret []byte,
	receiverPub, senderPub *btcec.PublicKey, timelock int64, destination string,
) (string, error) {
	scriptData, spendUtxos, feeRate, err := s.prepareSpend(ctx, utxos, secretHash, receiverPub, senderPub, timelock)
	if err != nil {
		return "", err
	}

	if len(secret) != htlc.SecretSize {
		return "", domain.NewSwapError(
			domain.ErrSecretMismatch, "build redeem tx",
			fmt.Errorf("secret must be %d bytes, got %d", htlc.SecretSize, len(secret)),
		)
	}
	var preimage htlc.Secret
	copy(preimage[:], secret)

	tx, err := htlc.BuildRedeemTx(htlc.SpendParams{
		Utxos:           spendUtxos,
		ScriptData:      scriptData,
		DestinationAddr: destination,
		FeeRate:         feeRate,
		Network:         s.network,
	}, preimage, s.signer.SignHtlcSpend)
	if err != nil {
		return "", fmt.Errorf("failed to build redeem tx: %w", err)
	}

	return htlc.SerializeTx(tx)
}

func (s *service) BuildRefundTx(
	ctx context.Context, utxos []ports.Utxo, secretHash string,
	receiverPub, senderPub *btcec.PublicKey, timelock int64, destination string,
) (string, error) {
	scriptData, spendUtxos, feeRate, err := s.prepareSpend(ctx, utxos, secretHash, receiverPub, senderPub, timelock)
	if err != nil {
		return "", err
	}

	tx, err := htlc.BuildRefundTx(htlc.SpendParams{
		Utxos:           spendUtxos,
		ScriptData:      scriptData,
		DestinationAddr: destination,
		FeeRate:         feeRate,
		Network:         s.network,
	}, time.Now(), s.signer.SignHtlcSpend)
	if err != nil {
		if errors.Is(err, htlc.ErrTimelockNotYetExpired) {
			return "", domain.NewSwapError(domain.ErrTimelockNotYetExpired, "build refund tx", err)
		}
		return "", fmt.Errorf("failed to build refund tx: %w", err)
	}

	return htlc.SerializeTx(tx)
}

func (s *service) Broadcast(ctx context.Context, txHex string) (string, error) {
	txid, err := s.explorer.Broadcast(ctx, txHex)
	if err != nil {
		return "", domain.NewSwapError(domain.ErrBroadcastRejected, "broadcast", err)
	}

	log.WithField("txid", txid).Debug("broadcasted bitcoin transaction")
	return txid, nil
}

func (s *service) prepareSpend(
	ctx context.Context, utxos []ports.Utxo, secretHash string,
	receiverPub, senderPub *btcec.PublicKey, timelock int64,
) (*htlc.ScriptData, []htlc.Utxo, float64, error) {
	if len(utxos) == 0 {
		return nil, nil, 0, fmt.Errorf("no utxos to spend")
	}

	hash, err := htlc.ParseSecretHash(secretHash)
	if err != nil {
		return nil, nil, 0, err
	}

	scriptData, err := htlc.DeriveScriptData(hash, receiverPub, senderPub, timelock, s.network)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to rebuild htlc script: %w", err)
	}

	spendUtxos := make([]htlc.Utxo, len(utxos))
	for i, u := range utxos {
		spendUtxos[i] = htlc.Utxo{TxID: u.Txid, Vout: u.Vout, Amount: int64(u.Amount)}
	}

	feeRate, err := s.explorer.GetFeeRate(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch fee rate, falling back to 1 sat/vb")
		feeRate = 1
	}

	return scriptData, spendUtxos, feeRate, nil
}
