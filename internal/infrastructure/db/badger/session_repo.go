package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/unite-defi/swapd/internal/core/domain"
)

const sessionDir = "session"

type sessionRepository struct {
	store *badgerhold.Store
}

func NewSessionRepository(baseDir string, logger badger.Logger) (domain.SwapSessionRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, sessionDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %s", err)
	}
	return &sessionRepository{store}, nil
}

func (r *sessionRepository) Add(ctx context.Context, session domain.SwapSession) error {
	return r.store.Insert(session.Id, toSessionData(session))
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.SwapSession, error) {
	var data sessionData
	err := r.store.Get(id, &data)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("session with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session := data.toSession()
	return &session, nil
}

func (r *sessionRepository) GetAll(ctx context.Context) ([]domain.SwapSession, error) {
	var dataList []sessionData
	if err := r.store.Find(&dataList, nil); err != nil {
		return nil, fmt.Errorf("failed to get all sessions: %w", err)
	}

	sessions := make([]domain.SwapSession, 0, len(dataList))
	for _, data := range dataList {
		sessions = append(sessions, data.toSession())
	}
	return sessions, nil
}

func (r *sessionRepository) GetPending(ctx context.Context) ([]domain.SwapSession, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var pending []domain.SwapSession
	for _, session := range all {
		if session.IsPending() {
			pending = append(pending, session)
		}
	}
	return pending, nil
}

func (r *sessionRepository) Update(ctx context.Context, session domain.SwapSession) error {
	return r.store.Update(session.Id, toSessionData(session))
}

func (r *sessionRepository) Close() {
	// nolint:all
	r.store.Close()
}

type legData struct {
	Id          string
	Chain       domain.LegChain
	SecretHash  string
	Timelock    int64
	Amount      string
	Funder      string
	Beneficiary string
	Status      domain.LegStatus
	Address     string
	FundingTxId string
	RedeemTxId  string
	RefundTxId  string
}

type sessionData struct {
	Id           string
	SecretHash   string
	InitiatorLeg legData
	ResponderLeg legData
	Status       domain.SwapStatus
	ErrorMessage string
	CreatedAt    int64
	UpdatedAt    int64
}

func toLegData(leg domain.HTLCLeg) legData {
	return legData(leg)
}

func (l legData) toLeg() domain.HTLCLeg {
	return domain.HTLCLeg(l)
}

func toSessionData(session domain.SwapSession) sessionData {
	return sessionData{
		Id:           session.Id,
		SecretHash:   session.SecretHash,
		InitiatorLeg: toLegData(session.InitiatorLeg),
		ResponderLeg: toLegData(session.ResponderLeg),
		Status:       session.Status,
		ErrorMessage: session.ErrorMessage,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

func (s sessionData) toSession() domain.SwapSession {
	return domain.SwapSession{
		Id:           s.Id,
		SecretHash:   s.SecretHash,
		InitiatorLeg: s.InitiatorLeg.toLeg(),
		ResponderLeg: s.ResponderLeg.toLeg(),
		Status:       s.Status,
		ErrorMessage: s.ErrorMessage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
