// Package statusbus broadcasts tunnel status-changed snapshots to any
// number of subscribers (the local control API, CLI output).
package statusbus

import (
	"log/slog"
	"sync"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

const subscriberBuffer = 8

// Bus fan-outs status snapshots. Publish never blocks; a subscriber that
// falls more than subscriberBuffer events behind misses intermediate
// snapshots, which is fine because every event is a full snapshot.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan domain.StatusSnapshot
	next int
	log  *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan domain.StatusSnapshot),
		log:  logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it.
func (b *Bus) Subscribe() (<-chan domain.StatusSnapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan domain.StatusSnapshot, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers snapshot to every subscriber without blocking.
func (b *Bus) Publish(snapshot domain.StatusSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			b.log.Debug("status subscriber lagging; dropping snapshot", "subscriber", id)
		}
	}
}
