package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/unite-defi/swapd/internal/core/ports"
)

const receiptPollInterval = 3 * time.Second

// rpcBackend implements ports.EvmBackend over a JSON-RPC node. It signs with
// a single key loaded at startup; the adapter layer never touches it.
type rpcBackend struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

func NewRpcBackend(ctx context.Context, rpcURL, privateKeyHex string) (ports.EvmBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial evm rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid evm private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	return &rpcBackend{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (b *rpcBackend) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(to)
	return b.client.CallContract(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &addr,
		Data: data,
	}, nil)
}

func (b *rpcBackend) SignAndSend(ctx context.Context, to string, data []byte, value *big.Int) (string, error) {
	addr := common.HexToAddress(to)
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}

	tipCap, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas tip: %w", err)
	}

	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch chain head: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  b.from,
		To:    &addr,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &addr,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}

func (b *rpcBackend) WaitForReceipt(ctx context.Context, txRef string) (*ports.EvmReceipt, error) {
	hash := common.HexToHash(txRef)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &ports.EvmReceipt{
				TxRef:   txRef,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
				Block:   receipt.BlockNumber.Uint64(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *rpcBackend) Balance(ctx context.Context) (*big.Int, error) {
	return b.client.BalanceAt(ctx, b.from, nil)
}

func (b *rpcBackend) Sender() string {
	return b.from.Hex()
}
