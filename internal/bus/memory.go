package bus

import (
	"context"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

type group struct {
	mu      sync.Mutex
	members map[string]Subscriber
}

// MemoryBus — шина в пределах процесса.
// Каждая группа рассылает под своим мьютексом, разные группы не блокируют друг друга.
type MemoryBus struct {
	mu     sync.RWMutex
	groups map[string]*group // group -> подписчики
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{groups: make(map[string]*group)}
}

func (b *MemoryBus) Join(name string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[name]
	if !ok {
		g = &group{members: make(map[string]Subscriber)}
		b.groups[name] = g
		metrics.BusGroups.Inc()
	}
	g.mu.Lock()
	g.members[sub.ID()] = sub
	g.mu.Unlock()
}

func (b *MemoryBus) Leave(name, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[name]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.members, subscriberID)
	empty := len(g.members) == 0
	g.mu.Unlock()

	if empty {
		delete(b.groups, name)
		metrics.BusGroups.Dec()
	}
}

func (b *MemoryBus) Publish(ctx context.Context, name string, ev protocol.Event) error {
	return b.PublishExcluding(ctx, name, ev, "")
}

func (b *MemoryBus) PublishExcluding(_ context.Context, name string, ev protocol.Event, excludeID string) error {
	metrics.EventsPublished.WithLabelValues(string(ev.Type())).Inc()
	b.fanOut(name, ev, excludeID)
	return nil
}

func (b *MemoryBus) fanOut(name string, ev protocol.Event, excludeID string) {
	b.mu.RLock()
	g, ok := b.groups[name]
	b.mu.RUnlock()
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, sub := range g.members {
		if excludeID != "" && id == excludeID {
			continue
		}
		if sub.Deliver(ev) {
			metrics.EventsDelivered.WithLabelValues(string(ev.Type())).Inc()
		} else {
			metrics.EventsDropped.WithLabelValues(string(ev.Type())).Inc()
		}
	}
}

// Members возвращает число подписчиков группы.
func (b *MemoryBus) Members(name string) int {
	b.mu.RLock()
	g, ok := b.groups[name]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (b *MemoryBus) Groups() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	metrics.BusGroups.Sub(float64(len(b.groups)))
	b.groups = make(map[string]*group)
	return nil
}
