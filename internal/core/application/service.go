package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	"github.com/unite-defi/swapd/pkg/htlc"
)

// redeemMaxRetries bounds backoff retries of the initiator-leg redeem before
// the session is flagged as settlement-at-risk.
const redeemMaxRetries = 5

// Config carries the swap policy knobs resolved at startup.
type Config struct {
	// EvmAddress is the address the EVM backend signs with; it funds every
	// initiator leg and is part of the deterministic leg id.
	EvmAddress string

	// ResponderWindow is how long the counterparty has to fund its leg.
	ResponderWindow time.Duration

	// SafetyMargin is the extra time the initiator leg stays open beyond the
	// responder timelock.
	SafetyMargin time.Duration

	PollInterval time.Duration
}

// InitiateParams is everything a caller must provide to open a new swap.
type InitiateParams struct {
	FromAsset string
	ToAsset   string

	// Amount locked on the EVM leg, decimal string in wei.
	Amount string

	// EvmBeneficiary is the counterparty address allowed to redeem the EVM leg.
	EvmBeneficiary string

	// BtcReceiverPub is our compressed public key (hex), allowed to redeem the
	// bitcoin leg with the secret.
	BtcReceiverPub string

	// BtcSenderPub is the counterparty's compressed public key (hex), allowed
	// to refund the bitcoin leg after its timelock.
	BtcSenderPub string
}

func (p InitiateParams) validate() error {
	if p.FromAsset == "" || p.ToAsset == "" || p.Amount == "" {
		return fmt.Errorf("missing asset pair or amount")
	}
	if p.EvmBeneficiary == "" {
		return fmt.Errorf("missing evm beneficiary")
	}
	if p.BtcReceiverPub == "" || p.BtcSenderPub == "" {
		return fmt.Errorf("missing bitcoin public keys")
	}
	return nil
}

// Service drives swap sessions through their lifecycle. Independent sessions
// run fully in parallel; within one session every settlement operation is
// serialized behind a per-session lock.
type Service struct {
	cfg Config

	repoManager  ports.RepoManager
	evmSvc       ports.EvmHtlcService
	btcSvc       ports.BtcHtlcService
	quoteSvc     ports.QuoteService
	schedulerSvc ports.SchedulerService
	monitor      *FundingMonitor
	events       *eventBroker

	// secrets live only in memory and are forgotten once a session settles.
	secretsMtx sync.RWMutex
	secrets    map[string]htlc.Secret

	locksMtx sync.Mutex
	locks    map[string]*sync.Mutex
}

func NewService(
	cfg Config,
	repoManager ports.RepoManager,
	evmSvc ports.EvmHtlcService,
	btcSvc ports.BtcHtlcService,
	quoteSvc ports.QuoteService,
	schedulerSvc ports.SchedulerService,
) (*Service, error) {
	if repoManager == nil || evmSvc == nil || btcSvc == nil || quoteSvc == nil || schedulerSvc == nil {
		return nil, fmt.Errorf("missing service dependencies")
	}
	if cfg.EvmAddress == "" {
		return nil, fmt.Errorf("missing evm funding address")
	}

	// the same preimage must satisfy both legs, so both adapters have to
	// verify with the same hash function
	if evmSvc.HashAlgo() != btcSvc.HashAlgo() {
		return nil, domain.NewSwapError(
			domain.ErrHashFunctionMismatch, "new service",
			fmt.Errorf("evm verifies %s, bitcoin verifies %s", evmSvc.HashAlgo(), btcSvc.HashAlgo()),
		)
	}

	if cfg.ResponderWindow <= 0 {
		cfg.ResponderWindow = 24 * time.Hour
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 24 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	svc := &Service{
		cfg:          cfg,
		repoManager:  repoManager,
		evmSvc:       evmSvc,
		btcSvc:       btcSvc,
		quoteSvc:     quoteSvc,
		schedulerSvc: schedulerSvc,
		monitor:      NewFundingMonitor(btcSvc, cfg.PollInterval),
		events:       newEventBroker(),
		secrets:      make(map[string]htlc.Secret),
		locks:        make(map[string]*sync.Mutex),
	}
	return svc, nil
}

// Start resumes pending sessions and arms their refund timers.
func (s *Service) Start(ctx context.Context) error {
	s.schedulerSvc.Start()
	return s.resumeSessions(ctx)
}

func (s *Service) Stop() {
	s.schedulerSvc.Stop()
	s.events.close()
	s.repoManager.Close()
	log.Debug("swap service stopped")
}

// SubscribeProgress returns a channel of session state changes. The caller
// must drain it and release it with UnsubscribeProgress.
func (s *Service) SubscribeProgress() chan ProgressEvent {
	return s.events.subscribe()
}

func (s *Service) UnsubscribeProgress(ch chan ProgressEvent) {
	s.events.unsubscribe(ch)
}

// Initiate opens a new swap: it prices the legs, generates the secret and
// timelocks, commits the EVM escrow and derives the bitcoin HTLC address. The
// bitcoin funding transaction is the counterparty's action; scope ends at
// address derivation.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*domain.SwapSession, error) {
	const op = "initiate"

	if err := params.validate(); err != nil {
		return nil, domain.NewSwapError(domain.ErrMissingParameters, op, err)
	}

	receiverPub, err := parsePubKey(params.BtcReceiverPub)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrMissingParameters, op, fmt.Errorf("invalid receiver pubkey: %w", err))
	}
	senderPub, err := parsePubKey(params.BtcSenderPub)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrMissingParameters, op, fmt.Errorf("invalid sender pubkey: %w", err))
	}

	amount, ok := new(big.Int).SetString(params.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, domain.NewSwapError(
			domain.ErrMissingParameters, op, fmt.Errorf("invalid amount %q", params.Amount),
		)
	}

	quote, err := s.quoteSvc.GetQuote(ctx, params.FromAsset, params.ToAsset, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}

	secret, err := htlc.GenerateSecret()
	if err != nil {
		return nil, err
	}
	secretHash := htlc.HashSecret(secret)

	timelocks, err := htlc.ComputeTimelocks(time.Now(), s.cfg.ResponderWindow, s.cfg.SafetyMargin)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrInvalidTimelockOrdering, op, err)
	}

	btcAddress, err := s.btcSvc.DeriveAddress(
		secretHash.String(), receiverPub, senderPub, timelocks.Responder.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive bitcoin htlc address: %w", err)
	}

	// re-check right before committing funds, quotes go stale fast
	if time.Now().After(quote.ExpiresAt) {
		return nil, domain.NewSwapError(
			domain.ErrQuoteExpired, op,
			fmt.Errorf("quote expired at %s", quote.ExpiresAt.Format(time.RFC3339)),
		)
	}

	openRes, err := s.evmSvc.Open(
		ctx, secretHash.String(), s.cfg.EvmAddress, params.EvmBeneficiary,
		timelocks.Initiator.Unix(), amount,
	)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	session := domain.SwapSession{
		Id:         uuid.NewString(),
		SecretHash: secretHash.String(),
		InitiatorLeg: domain.HTLCLeg{
			Id:          openRes.LegId,
			Chain:       domain.ChainEVM,
			SecretHash:  secretHash.String(),
			Timelock:    timelocks.Initiator.Unix(),
			Amount:      amount.String(),
			Funder:      s.cfg.EvmAddress,
			Beneficiary: params.EvmBeneficiary,
			Status:      domain.LegCreated,
		},
		ResponderLeg: domain.HTLCLeg{
			Id:          btcAddress,
			Chain:       domain.ChainBitcoin,
			SecretHash:  secretHash.String(),
			Timelock:    timelocks.Responder.Unix(),
			Amount:      quote.EstimatedOutput,
			Funder:      params.BtcSenderPub,
			Beneficiary: params.BtcReceiverPub,
			Status:      domain.LegCreated,
			Address:     btcAddress,
		},
		Status:    domain.SwapInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.InitiatorLegOpened(openRes.TxRef)

	if err := s.repoManager.Sessions().Add(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.secretsMtx.Lock()
	s.secrets[session.Id] = secret
	s.secretsMtx.Unlock()

	s.armRefundTimer(session)

	log.WithFields(log.Fields{
		"sessionId":  session.Id,
		"secretHash": session.SecretHash,
		"evmLegId":   openRes.LegId,
		"btcAddress": btcAddress,
	}).Info("swap initiated")
	s.publish(session, fmt.Sprintf("evm leg opened in tx %s", openRes.TxRef))

	return &session, nil
}

// AwaitResponderFunding blocks until the counterparty funds the bitcoin leg
// or the responder timelock passes. A timeout leaves the session unchanged;
// the caller decides whether to keep waiting or refund.
func (s *Service) AwaitResponderFunding(ctx context.Context, sessionId string) (*domain.SwapSession, error) {
	session, err := s.GetSessionStatus(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SwapInitiatorLegOpen {
		if session.Status == domain.SwapResponderFunded {
			return session, nil
		}
		return nil, domain.NewSwapError(
			domain.ErrAlreadySettled, "await responder funding",
			fmt.Errorf("session is %s", session.Status),
		).WithSession(sessionId)
	}

	leg := session.ResponderLeg
	deadline := time.Unix(leg.Timelock, 0)
	funding, err := s.monitor.WaitForFunding(ctx, leg.Address, deadline)
	if err != nil {
		if swapErr, ok := err.(*domain.SwapError); ok {
			return nil, swapErr.WithSession(sessionId)
		}
		return nil, err
	}

	mtx := s.sessionLock(sessionId)
	mtx.Lock()
	defer mtx.Unlock()

	session, err = s.GetSessionStatus(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SwapInitiatorLegOpen {
		session.ResponderFunded(funding.Utxos[0].Txid)
		if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
		log.WithFields(log.Fields{
			"sessionId":     sessionId,
			"amount":        funding.Amount,
			"confirmations": funding.Confirmations,
		}).Info("responder leg funded")
		s.publish(*session, fmt.Sprintf("%d sats confirmed on responder leg", funding.Amount))
	}

	return session, nil
}

// RevealAndRedeem settles a fully funded swap: it redeems the bitcoin leg
// with the secret, publishing it on-chain, then redeems the EVM leg with the
// same secret. The responder leg always goes first; redeeming the initiator
// leg prematurely would expose the secret before the responder leg is secured.
func (s *Service) RevealAndRedeem(
	ctx context.Context, sessionId, btcDestination string,
) (*domain.SwapSession, error) {
	const op = "reveal and redeem"

	mtx := s.sessionLock(sessionId)
	mtx.Lock()
	defer mtx.Unlock()

	session, err := s.GetSessionStatus(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case domain.SwapResponderFunded:
	case domain.SwapSecretRevealed, domain.SwapSettlementAtRisk:
		// resume: responder leg already redeemed, only the evm leg remains
	case domain.SwapCompleted, domain.SwapRefunded:
		return nil, domain.NewSwapError(
			domain.ErrAlreadySettled, op, fmt.Errorf("session is %s", session.Status),
		).WithSession(sessionId)
	default:
		return nil, domain.NewSwapError(
			domain.ErrMissingParameters, op,
			fmt.Errorf("session is %s, responder leg not funded", session.Status),
		).WithSession(sessionId)
	}

	secret, ok := s.heldSecret(sessionId)
	if !ok {
		return nil, domain.NewSwapError(
			domain.ErrMissingParameters, op, fmt.Errorf("secret not held for session"),
		).WithSession(sessionId)
	}

	hash, err := htlc.ParseSecretHash(session.SecretHash)
	if err != nil {
		return nil, err
	}
	if !htlc.VerifySecret(secret, hash) {
		return nil, domain.NewSwapError(
			domain.ErrSecretMismatch, op, fmt.Errorf("held secret does not match session hash"),
		).WithSession(sessionId)
	}

	if session.Status == domain.SwapResponderFunded {
		if err := s.redeemResponderLeg(ctx, session, secret, btcDestination); err != nil {
			return nil, err
		}
	}

	if err := s.redeemInitiatorLeg(ctx, session, secret); err != nil {
		return session, err
	}

	s.forgetSecret(sessionId)
	s.schedulerSvc.Cancel(refundJobName(sessionId))
	return session, nil
}

// Refund settles whichever legs are still open and past their own timelock.
// A funded leg whose timelock has not elapsed is never refunded; when the
// secret is still held and the responder leg is redeemable, redeem is
// preferred over refund since it preserves value for both parties.
func (s *Service) Refund(ctx context.Context, sessionId, btcDestination string) (*domain.SwapSession, error) {
	const op = "refund"

	mtx := s.sessionLock(sessionId)
	mtx.Lock()
	defer mtx.Unlock()

	session, err := s.GetSessionStatus(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.IsComplete() {
		return nil, domain.NewSwapError(
			domain.ErrAlreadySettled, op, fmt.Errorf("session is %s", session.Status),
		).WithSession(sessionId)
	}

	// redeem-before-refund: with the secret in hand, settling both legs
	// forward beats walking the swap back
	if secret, ok := s.heldSecret(sessionId); ok {
		redeemable := session.Status == domain.SwapSecretRevealed ||
			session.Status == domain.SwapSettlementAtRisk
		if session.Status == domain.SwapResponderFunded && btcDestination != "" {
			if err := s.redeemResponderLeg(ctx, session, secret, btcDestination); err != nil {
				log.WithError(err).WithField("sessionId", sessionId).
					Warn("redeem attempt failed, falling back to refund")
			} else {
				redeemable = true
			}
		}
		if redeemable {
			if err := s.redeemInitiatorLeg(ctx, session, secret); err != nil {
				return session, err
			}
			s.forgetSecret(sessionId)
			s.schedulerSvc.Cancel(refundJobName(sessionId))
			return session, nil
		}
	}

	now := time.Now()
	refunded := false
	secretPublic := s.secretRevealed(session)

	if leg := &session.InitiatorLeg; leg.Status == domain.LegFunded {
		if !leg.IsExpired(now) {
			return nil, domain.NewSwapError(
				domain.ErrTimelockNotYetExpired, op,
				fmt.Errorf("initiator timelock expires at %d", leg.Timelock),
			).WithSession(sessionId).WithLeg(leg.Id, leg.Chain)
		}

		txRef, err := s.evmSvc.Refund(ctx, leg.Id)
		if err != nil {
			if domain.IsKind(err, domain.ErrAlreadySettled) {
				if recErr := s.reconcileInitiatorLeg(ctx, session); recErr != nil {
					return session, recErr
				}
				return session, err
			}
			return session, err
		}
		session.InitiatorRefunded(txRef)
		refunded = true
		log.WithFields(log.Fields{"sessionId": sessionId, "txRef": txRef}).Info("initiator leg refunded")
	}

	// an initiator refund while the responder leg sits funded with a public
	// secret is the one outcome that must never pass silently
	if refunded && session.ResponderLeg.Status == domain.LegFunded && secretPublic {
		session.SettlementAtRisk("initiator leg refunded while responder leg remains redeemable")
		if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
			return session, fmt.Errorf("failed to persist session: %w", err)
		}
		s.publish(*session, "responder leg still open with public secret")
		return session, domain.NewSwapError(
			domain.ErrPartialSettlementRisk, op,
			fmt.Errorf("responder leg %s still funded with revealed secret", session.ResponderLeg.Id),
		).WithSession(sessionId).WithLeg(session.ResponderLeg.Id, domain.ChainBitcoin)
	}

	if leg := &session.ResponderLeg; leg.Status == domain.LegFunded && leg.IsExpired(now) && btcDestination != "" {
		if txid, err := s.refundResponderLeg(ctx, session, btcDestination); err != nil {
			log.WithError(err).WithField("sessionId", sessionId).Warn("responder leg refund failed")
		} else {
			session.ResponderRefunded(txid)
			refunded = true
		}
	}

	if !refunded {
		return nil, domain.NewSwapError(
			domain.ErrTimelockNotYetExpired, op, fmt.Errorf("no leg is refundable yet"),
		).WithSession(sessionId)
	}

	if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
		return session, fmt.Errorf("failed to persist session: %w", err)
	}

	s.forgetSecret(sessionId)
	s.schedulerSvc.Cancel(refundJobName(sessionId))
	s.publish(*session, "open legs refunded")
	return session, nil
}

// GetSessionStatus returns the current session record.
func (s *Service) GetSessionStatus(ctx context.Context, sessionId string) (*domain.SwapSession, error) {
	session, err := s.repoManager.Sessions().Get(ctx, sessionId)
	if err != nil {
		return nil, domain.NewSwapError(domain.ErrNotFound, "get session", err).WithSession(sessionId)
	}
	return session, nil
}

// ListSessions returns all session records.
func (s *Service) ListSessions(ctx context.Context) ([]domain.SwapSession, error) {
	return s.repoManager.Sessions().GetAll(ctx)
}

func (s *Service) redeemResponderLeg(
	ctx context.Context, session *domain.SwapSession, secret htlc.Secret, btcDestination string,
) error {
	const op = "redeem responder leg"
	leg := &session.ResponderLeg

	if btcDestination == "" {
		return domain.NewSwapError(
			domain.ErrMissingParameters, op, fmt.Errorf("missing bitcoin destination address"),
		).WithSession(session.Id)
	}

	funding, err := s.btcSvc.IsFunded(ctx, leg.Address)
	if err != nil {
		return fmt.Errorf("failed to check responder funding: %w", err)
	}
	if !funding.Funded {
		return domain.NewSwapError(
			domain.ErrNotFound, op, fmt.Errorf("no spendable outputs on %s", leg.Address),
		).WithSession(session.Id).WithLeg(leg.Id, leg.Chain)
	}

	receiverPub, err := parsePubKey(leg.Beneficiary)
	if err != nil {
		return err
	}
	senderPub, err := parsePubKey(leg.Funder)
	if err != nil {
		return err
	}

	txHex, err := s.btcSvc.BuildRedeemTx(
		ctx, funding.Utxos, leg.SecretHash, secret[:],
		receiverPub, senderPub, leg.Timelock, btcDestination,
	)
	if err != nil {
		return wrapLegError(err, session.Id, leg)
	}

	txid, err := s.btcSvc.Broadcast(ctx, txHex)
	if err != nil {
		return wrapLegError(err, session.Id, leg)
	}

	session.SecretRevealed(txid)
	if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	log.WithFields(log.Fields{"sessionId": session.Id, "txid": txid}).Info("responder leg redeemed, secret is public")
	s.publish(*session, fmt.Sprintf("responder leg redeemed in tx %s", txid))
	return nil
}

// redeemInitiatorLeg claims the EVM escrow, retrying transient chain errors
// with backoff. If it fails for good the secret is already public and the
// session becomes settlement-at-risk: a distinct alarm, never a generic
// failure.
func (s *Service) redeemInitiatorLeg(
	ctx context.Context, session *domain.SwapSession, secret htlc.Secret,
) error {
	const op = "redeem initiator leg"
	leg := &session.InitiatorLeg

	var txRef string
	attempt := func() error {
		ref, err := s.evmSvc.Redeem(ctx, leg.Id, secret[:])
		if err != nil {
			if kind, ok := domain.KindOf(err); ok && !kind.Retryable() {
				return backoff.Permanent(err)
			}
			log.WithError(err).WithField("sessionId", session.Id).Warn("initiator redeem attempt failed")
			return err
		}
		txRef = ref
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), redeemMaxRetries), ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		if domain.IsKind(err, domain.ErrAlreadySettled) {
			// someone beat us to it, re-read the chain to learn the outcome
			return s.reconcileInitiatorLeg(ctx, session)
		}

		remaining := time.Until(time.Unix(leg.Timelock, 0))
		session.SettlementAtRisk(fmt.Sprintf(
			"secret is public but initiator leg is unredeemed, %s until its timelock", remaining.Round(time.Second),
		))
		if updErr := s.repoManager.Sessions().Update(ctx, *session); updErr != nil {
			log.WithError(updErr).Error("failed to persist settlement-at-risk state")
		}
		s.publish(*session, session.ErrorMessage)

		log.WithFields(log.Fields{
			"sessionId": session.Id,
			"legId":     leg.Id,
			"remaining": remaining.Round(time.Second).String(),
		}).Error("partial settlement risk: initiator leg must be redeemed before its timelock")

		return &domain.SwapError{
			Kind:      domain.ErrPartialSettlementRisk,
			Op:        op,
			SessionId: session.Id,
			LegId:     leg.Id,
			Chain:     leg.Chain,
			Err: fmt.Errorf(
				"redeem failed with secret public, %s until timelock: %w",
				remaining.Round(time.Second), err,
			),
		}
	}

	session.Completed(txRef)
	if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	log.WithFields(log.Fields{"sessionId": session.Id, "txRef": txRef}).Info("swap completed")
	s.publish(*session, fmt.Sprintf("initiator leg redeemed in tx %s", txRef))
	return nil
}

// reconcileInitiatorLeg re-reads on-chain state after an AlreadySettled
// rejection and folds the observed outcome into the session.
func (s *Service) reconcileInitiatorLeg(ctx context.Context, session *domain.SwapSession) error {
	leg, err := s.evmSvc.QueryLeg(ctx, session.InitiatorLeg.Id)
	if err != nil {
		return err
	}

	switch leg.Status {
	case domain.LegRedeemed:
		session.Completed(session.InitiatorLeg.RedeemTxId)
		s.publish(*session, "initiator leg was already redeemed")
	case domain.LegRefunded:
		session.InitiatorRefunded(session.InitiatorLeg.RefundTxId)
		s.publish(*session, "initiator leg was already refunded")
	default:
		return nil
	}

	if err := s.repoManager.Sessions().Update(ctx, *session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Service) refundResponderLeg(
	ctx context.Context, session *domain.SwapSession, btcDestination string,
) (string, error) {
	leg := &session.ResponderLeg

	funding, err := s.btcSvc.IsFunded(ctx, leg.Address)
	if err != nil {
		return "", fmt.Errorf("failed to check responder funding: %w", err)
	}
	if !funding.Funded {
		return "", fmt.Errorf("no spendable outputs on %s", leg.Address)
	}

	receiverPub, err := parsePubKey(leg.Beneficiary)
	if err != nil {
		return "", err
	}
	senderPub, err := parsePubKey(leg.Funder)
	if err != nil {
		return "", err
	}

	txHex, err := s.btcSvc.BuildRefundTx(
		ctx, funding.Utxos, leg.SecretHash, receiverPub, senderPub, leg.Timelock, btcDestination,
	)
	if err != nil {
		return "", wrapLegError(err, session.Id, leg)
	}

	return s.btcSvc.Broadcast(ctx, txHex)
}

// resumeSessions re-arms refund timers for sessions that survived a restart.
// Secrets are memory-only, so a restarted instance can still refund but not
// redeem; at-risk sessions are logged loudly for the operator.
func (s *Service) resumeSessions(ctx context.Context) error {
	pending, err := s.repoManager.Sessions().GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending sessions: %w", err)
	}

	for _, session := range pending {
		s.armRefundTimer(session)
		if session.Status == domain.SwapSettlementAtRisk {
			log.WithFields(log.Fields{
				"sessionId": session.Id,
				"legId":     session.InitiatorLeg.Id,
			}).Error("resumed settlement-at-risk session, initiator leg needs urgent redemption")
			continue
		}
		log.WithFields(log.Fields{
			"sessionId": session.Id,
			"status":    session.Status.String(),
		}).Info("resumed pending session")
	}
	return nil
}

// armRefundTimer schedules an automatic refund attempt just after the
// initiator timelock. The attempt is a no-op if the session settled first.
func (s *Service) armRefundTimer(session domain.SwapSession) {
	at := time.Unix(session.InitiatorLeg.Timelock, 0).Add(time.Minute)
	sessionId := session.Id

	err := s.schedulerSvc.ScheduleAt(refundJobName(sessionId), at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := s.Refund(ctx, sessionId, ""); err != nil {
			if domain.IsKind(err, domain.ErrAlreadySettled) {
				return
			}
			log.WithError(err).WithField("sessionId", sessionId).Warn("scheduled refund failed")
		}
	})
	if err != nil {
		log.WithError(err).WithField("sessionId", sessionId).Error("failed to arm refund timer")
	}
}

func (s *Service) publish(session domain.SwapSession, detail string) {
	s.events.publish(ProgressEvent{
		SessionId: session.Id,
		Status:    session.Status,
		Detail:    detail,
		At:        time.Now(),
	})
}

func (s *Service) heldSecret(sessionId string) (htlc.Secret, bool) {
	s.secretsMtx.RLock()
	defer s.secretsMtx.RUnlock()
	secret, ok := s.secrets[sessionId]
	return secret, ok
}

func (s *Service) forgetSecret(sessionId string) {
	s.secretsMtx.Lock()
	defer s.secretsMtx.Unlock()
	delete(s.secrets, sessionId)
}

func (s *Service) sessionLock(sessionId string) *sync.Mutex {
	s.locksMtx.Lock()
	defer s.locksMtx.Unlock()

	mtx, ok := s.locks[sessionId]
	if !ok {
		mtx = &sync.Mutex{}
		s.locks[sessionId] = mtx
	}
	return mtx
}

// secretRevealed reports whether the preimage is observable on-chain.
func (s *Service) secretRevealed(session *domain.SwapSession) bool {
	return session.ResponderLeg.Status == domain.LegRedeemed ||
		session.InitiatorLeg.Status == domain.LegRedeemed ||
		session.Status == domain.SwapSecretRevealed ||
		session.Status == domain.SwapSettlementAtRisk
}

func refundJobName(sessionId string) string {
	return "refund:" + sessionId
}

func parsePubKey(pubHex string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	return btcec.ParsePubKey(buf)
}

func wrapLegError(err error, sessionId string, leg *domain.HTLCLeg) error {
	if swapErr, ok := err.(*domain.SwapError); ok {
		return swapErr.WithSession(sessionId).WithLeg(leg.Id, leg.Chain)
	}
	return err
}
