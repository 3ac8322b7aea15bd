package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker carries events over Redis pub/sub, so every API node sees
// events published by any worker.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe implements Subscriber. The stream closes when cancel runs or the
// connection drops.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	ps := b.rdb.Subscribe(ctx, channel)
	// Force the subscription to be established before returning.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}
