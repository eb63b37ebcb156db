package engine

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// Bus fans engine events out to subscribers. Any consumer (UI, test harness,
// headless verifier) subscribes the same way. Publish never blocks: a
// subscriber that cannot keep up has events dropped on its channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan market.Event
	buffer int
	log    *zap.Logger
}

func NewBus(buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		subs:   make(map[uuid.UUID]chan market.Event),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new consumer and returns its id and event channel.
func (b *Bus) Subscribe() (uuid.UUID, <-chan market.Event) {
	id := uuid.New()
	ch := make(chan market.Event, b.buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Publish delivers evt to every subscriber without blocking.
func (b *Bus) Publish(evt market.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Warn("subscriber channel full, dropping event",
				zap.String("subscriber", id.String()))
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
