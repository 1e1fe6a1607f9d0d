package db

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	badgerdb "github.com/unite-defi/swapd/internal/infrastructure/db/badger"
)

type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	sessionRepo domain.SwapSessionRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		sessionRepo domain.SwapSessionRepository
		err         error
	)

	switch config.DbType {
	case "badger":
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		sessionRepo, err = badgerdb.NewSessionRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session db: %s", err)
		}
	default:
		return nil, fmt.Errorf("unsupported db type %s, allowed: badger", config.DbType)
	}

	return &service{sessionRepo}, nil
}

func (s *service) Sessions() domain.SwapSessionRepository {
	return s.sessionRepo
}

func (s *service) Close() {
	s.sessionRepo.Close()
}
