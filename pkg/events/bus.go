package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bus distributes room payloads across processes. Every emit goes through
// the bus; delivery back into this process's Hub happens either directly
// (LocalBus) or via the subscription (RedisBus), so all brokers observe
// the same path.
type Bus interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Close() error
}

// LocalBus is the in-process bus used when no pub/sub URL is configured.
type LocalBus struct {
	hub *Hub
}

// NewLocalBus creates a bus that delivers straight into the local hub.
func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

// Publish delivers the payload to local subscribers.
func (b *LocalBus) Publish(_ context.Context, room string, payload []byte) error {
	b.hub.Deliver(room, payload)
	return nil
}

// Close is a no-op for the local bus.
func (b *LocalBus) Close() error { return nil }

// roomPattern matches every tenant room on the shared bus.
const roomPattern = "team:*"

// RedisBus distributes room payloads over Redis pub/sub so every broker
// instance fans out to its own WebSocket clients.
type RedisBus struct {
	client *redis.Client
	hub    *Hub
	pubsub *redis.PubSub
	logger *slog.Logger
	done   chan struct{}
}

// NewRedisBus connects to Redis and starts the subscription loop.
func NewRedisBus(ctx context.Context, redisURL string, hub *Hub) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	b := &RedisBus{
		client: client,
		hub:    hub,
		pubsub: client.PSubscribe(ctx, roomPattern),
		logger: slog.Default().With("component", "redis-bus"),
		done:   make(chan struct{}),
	}
	go b.receiveLoop()
	return b, nil
}

// receiveLoop dispatches bus messages into the local hub until the
// subscription closes. go-redis reconnects the subscription internally.
func (b *RedisBus) receiveLoop() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		b.hub.Deliver(msg.Channel, []byte(msg.Payload))
	}
	b.logger.Info("Redis bus subscription closed")
}

// Publish sends the payload to every broker subscribed to tenant rooms.
func (b *RedisBus) Publish(ctx context.Context, room string, payload []byte) error {
	if err := b.client.Publish(ctx, room, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", room, err)
	}
	return nil
}

// Close tears down the subscription and the client.
func (b *RedisBus) Close() error {
	_ = b.pubsub.Close()
	<-b.done
	return b.client.Close()
}
