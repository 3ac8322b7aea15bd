package realtime

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for tests and single-node runs.
// Delivery is synchronous per subscriber with a small buffer; slow
// subscribers drop events rather than block publishers.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan []byte
	next int
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]chan []byte)}
}

// Publish implements Publisher.
func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe implements Subscriber.
func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan []byte, 16)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.subs[channel][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[channel], id)
			close(ch)
		})
	}
	return ch, cancel, nil
}
