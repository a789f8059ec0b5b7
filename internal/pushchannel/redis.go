package pushchannel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/messaging"
)

const pingTimeout = 2 * time.Second

// Redis is a Channel over Redis pub/sub, using the same ops.event.* names as
// the NATS subjects. Messages published while a subscriber is disconnected
// are lost; the coordinators' polling covers the gap.
type Redis struct {
	client *redis.Client
	log    *logrus.Entry

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

func NewRedis(client *redis.Client, log *logrus.Entry) *Redis {
	return &Redis{client: client, log: log, subs: map[*redis.PubSub]struct{}{}}
}

func (r *Redis) Connect(ctx context.Context) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) On(event string, handler Handler) (Unsubscribe, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ctx := context.Background()
	sub := r.client.Subscribe(ctx, messaging.Subject(event))
	// Wait for the subscription confirmation so no publish after On returns
	// is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", event, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = sub.Close()
		return nil, ErrClosed
	}
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	msgs := sub.Channel()
	go func() {
		for msg := range msgs {
			handler([]byte(msg.Payload))
		}
	}()

	return once(func() {
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		if err := sub.Close(); err != nil {
			r.log.WithError(err).WithField("event", event).Warn("push channel unsubscribe failed")
		}
	}), nil
}

func (r *Redis) Publish(ctx context.Context, event string, payload []byte) error {
	return r.client.Publish(ctx, messaging.Subject(event), payload).Err()
}

func (r *Redis) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*redis.PubSub, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	_ = r.client.Close()
}
