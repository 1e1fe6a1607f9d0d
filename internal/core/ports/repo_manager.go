package ports

import "github.com/unite-defi/swapd/internal/core/domain"

type RepoManager interface {
	Sessions() domain.SwapSessionRepository
	Close()
}
