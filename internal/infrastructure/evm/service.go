package evm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	"github.com/unite-defi/swapd/pkg/htlc"
)

// htlcABI is the escrow contract interface. The contract verifies preimages
// with the sha256 precompile and permits late redeem until refunded.
const htlcABI = `[
	{"type":"function","name":"newContract","stateMutability":"payable","inputs":[{"name":"receiver","type":"address"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"}],"outputs":[{"name":"contractId","type":"bytes32"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"preimage","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getContract","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"sender","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"},{"name":"withdrawn","type":"bool"},{"name":"refunded","type":"bool"},{"name":"preimage","type":"bytes32"}]}
]`

// service implements ports.EvmHtlcService against the escrow contract. It is
// stateless and safe for concurrent use across sessions.
type service struct {
	backend  ports.EvmBackend
	contract string
	abi      abi.ABI
}

func NewService(backend ports.EvmBackend, contractAddress string) (ports.EvmHtlcService, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing evm backend")
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid htlc contract address: %s", contractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(htlcABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse htlc abi: %w", err)
	}

	return &service{
		backend:  backend,
		contract: common.HexToAddress(contractAddress).Hex(),
		abi:      parsed,
	}, nil
}

func (s *service) HashAlgo() string {
	return htlc.HashAlgoSHA256
}

// LegId derives the escrow identifier the same way the contract does:
// keccak256(abi.encodePacked(funder, beneficiary, amount, hashlock, timelock)).
// Either party can recompute it without trusting the orchestrator.
func LegId(secretHash string, funder, beneficiary string, timelock int64, amount *big.Int) (string, error) {
	hash, err := htlc.ParseSecretHash(secretHash)
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(funder) || !common.IsHexAddress(beneficiary) {
		return "", fmt.Errorf("invalid funder or beneficiary address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}

	packed := make([]byte, 0, 20+20+32+32+32)
	packed = append(packed, common.HexToAddress(funder).Bytes()...)
	packed = append(packed, common.HexToAddress(beneficiary).Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	packed = append(packed, hash[:]...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(timelock).Bytes(), 32)...)

	return crypto.Keccak256Hash(packed).Hex(), nil
}

func (s *service) Open(
	ctx context.Context,
	secretHash string, funder, beneficiary string, timelock int64, amount *big.Int,
) (*ports.OpenLegResult, error) {
	const op = "evm open"

	legId, err := LegId(secretHash, funder, beneficiary, timelock, amount)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrMissingParameters, op, err)
	}

	balance, err := s.backend.Balance(ctx)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrChainSubmissionFailed, op, err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, domain.NewSwapError(
			domain.ErrInsufficientFunds, op,
			fmt.Errorf("balance %s below amount %s", balance, amount),
		)
	}

	hash, _ := htlc.ParseSecretHash(secretHash)
	data, err := s.abi.Pack(
		"newContract",
		common.HexToAddress(beneficiary), [32]byte(hash), big.NewInt(timelock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack newContract call: %w", err)
	}

	txRef, err := s.backend.SignAndSend(ctx, s.contract, data, amount)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrChainSubmissionFailed, op, err).WithLeg(legId, domain.ChainEVM)
	}

	log.WithFields(log.Fields{
		"legId": legId,
		"txRef": txRef,
	}).Debug("submitted evm escrow open")

	return &ports.OpenLegResult{LegId: legId, TxRef: txRef}, nil
}

func (s *service) QueryLeg(ctx context.Context, legId string) (*domain.HTLCLeg, error) {
	const op = "evm query leg"

	state, err := s.readContract(ctx, legId)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.NewSwapError(
			domain.ErrNotFound, op, fmt.Errorf("leg %s does not exist", legId),
		).WithLeg(legId, domain.ChainEVM)
	}

	leg := &domain.HTLCLeg{
		Id:          legId,
		Chain:       domain.ChainEVM,
		SecretHash:  fmt.Sprintf("%x", state.Hashlock),
		Timelock:    state.Timelock.Int64(),
		Amount:      state.Amount.String(),
		Funder:      state.Sender.Hex(),
		Beneficiary: state.Receiver.Hex(),
		Status:      domain.LegFunded,
	}
	switch {
	case state.Withdrawn:
		leg.Status = domain.LegRedeemed
	case state.Refunded:
		leg.Status = domain.LegRefunded
	}
	return leg, nil
}

func (s *service) Redeem(ctx context.Context, legId string, secret []byte) (string, error) {
	const op = "evm redeem"

	state, err := s.readContract(ctx, legId)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", domain.NewSwapError(
			domain.ErrNotFound, op, fmt.Errorf("leg %s does not exist", legId),
		).WithLeg(legId, domain.ChainEVM)
	}
	if state.Withdrawn || state.Refunded {
		return "", domain.NewSwapError(
			domain.ErrAlreadySettled, op, fmt.Errorf("leg already settled"),
		).WithLeg(legId, domain.ChainEVM)
	}

	if len(secret) != htlc.SecretSize {
		return "", domain.NewSwapError(
			domain.ErrSecretMismatch, op,
			fmt.Errorf("secret must be %d bytes, got %d", htlc.SecretSize, len(secret)),
		).WithLeg(legId, domain.ChainEVM)
	}
	sum := sha256.Sum256(secret)
	if !bytes.Equal(sum[:], state.Hashlock[:]) {
		return "", domain.NewSwapError(
			domain.ErrSecretMismatch, op, fmt.Errorf("preimage does not match hashlock"),
		).WithLeg(legId, domain.ChainEVM)
	}

	var preimage [32]byte
	copy(preimage[:], secret)
	legIdBytes := common.HexToHash(legId)
	data, err := s.abi.Pack("withdraw", [32]byte(legIdBytes), preimage)
	if err != nil {
		return "", fmt.Errorf("failed to pack withdraw call: %w", err)
	}

	txRef, err := s.backend.SignAndSend(ctx, s.contract, data, nil)
	if err != nil {
		return "", domain.NewSwapError(domain.ErrChainSubmissionFailed, op, err).WithLeg(legId, domain.ChainEVM)
	}

	log.WithFields(log.Fields{"legId": legId, "txRef": txRef}).Debug("submitted evm redeem")
	return txRef, nil
}

func (s *service) Refund(ctx context.Context, legId string) (string, error) {
	const op = "evm refund"

	state, err := s.readContract(ctx, legId)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", domain.NewSwapError(
			domain.ErrNotFound, op, fmt.Errorf("leg %s does not exist", legId),
		).WithLeg(legId, domain.ChainEVM)
	}
	if state.Withdrawn || state.Refunded {
		return "", domain.NewSwapError(
			domain.ErrAlreadySettled, op, fmt.Errorf("leg already settled"),
		).WithLeg(legId, domain.ChainEVM)
	}
	if now := time.Now().Unix(); now < state.Timelock.Int64() {
		return "", domain.NewSwapError(
			domain.ErrTimelockNotYetExpired, op,
			fmt.Errorf("timelock expires at %d, now %d", state.Timelock.Int64(), now),
		).WithLeg(legId, domain.ChainEVM)
	}

	legIdBytes := common.HexToHash(legId)
	data, err := s.abi.Pack("refund", [32]byte(legIdBytes))
	if err != nil {
		return "", fmt.Errorf("failed to pack refund call: %w", err)
	}

	txRef, err := s.backend.SignAndSend(ctx, s.contract, data, nil)
	if err != nil {
		return "", domain.NewSwapError(domain.ErrChainSubmissionFailed, op, err).WithLeg(legId, domain.ChainEVM)
	}

	log.WithFields(log.Fields{"legId": legId, "txRef": txRef}).Debug("submitted evm refund")
	return txRef, nil
}

type contractState struct {
	Sender    common.Address
	Receiver  common.Address
	Amount    *big.Int
	Hashlock  [32]byte
	Timelock  *big.Int
	Withdrawn bool
	Refunded  bool
	Preimage  [32]byte
}

// readContract returns nil state (without error) when the escrow was never
// created.
func (s *service) readContract(ctx context.Context, legId string) (*contractState, error) {
	legIdBytes := common.HexToHash(legId)
	data, err := s.abi.Pack("getContract", [32]byte(legIdBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getContract call: %w", err)
	}

	raw, err := s.backend.Call(ctx, s.contract, data)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrChainSubmissionFailed, "evm call", err).WithLeg(legId, domain.ChainEVM)
	}

	values, err := s.abi.Unpack("getContract", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getContract result: %w", err)
	}
	if len(values) != 8 {
		return nil, fmt.Errorf("unexpected getContract result arity: %d", len(values))
	}

	state := &contractState{
		Sender:    values[0].(common.Address),
		Receiver:  values[1].(common.Address),
		Amount:    values[2].(*big.Int),
		Hashlock:  values[3].([32]byte),
		Timelock:  values[4].(*big.Int),
		Withdrawn: values[5].(bool),
		Refunded:  values[6].(bool),
		Preimage:  values[7].([32]byte),
	}

	if state.Sender == (common.Address{}) {
		return nil, nil
	}
	return state, nil
}
