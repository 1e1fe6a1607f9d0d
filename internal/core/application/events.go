package application

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/domain"
)

// ProgressEvent notifies subscribers of a session state change. Events are
// informational; the session record in the repository is the source of truth.
type ProgressEvent struct {
	SessionId string
	Status    domain.SwapStatus
	Detail    string
	At        time.Time
}

type eventBroker struct {
	mu   sync.RWMutex
	subs map[chan ProgressEvent]struct{}
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[chan ProgressEvent]struct{})}
}

func (b *eventBroker) subscribe() chan ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressEvent, 32)
	b.subs[ch] = struct{}{}
	return ch
}

func (b *eventBroker) unsubscribe(ch chan ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// publish never blocks: a subscriber that stops draining its channel misses
// events instead of stalling the orchestrator.
func (b *eventBroker) publish(event ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.WithField("sessionId", event.SessionId).Warn("dropping progress event for slow subscriber")
		}
	}
}

func (b *eventBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
