// Package pushchannel is the client side of the operational push channel:
// named events, subscribe/unsubscribe and publish. Delivery is at-least-once
// and may be duplicated or reordered.
package pushchannel

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("push channel closed")

// Handler receives the raw JSON payload of one event.
type Handler func(payload []byte)

// Unsubscribe removes a handler. It is safe to call more than once.
type Unsubscribe func()

type Channel interface {
	Connect(ctx context.Context) error
	On(event string, handler Handler) (Unsubscribe, error)
	Publish(ctx context.Context, event string, payload []byte) error
}

// SubscribeAll registers one handler for several events and returns a single
// Unsubscribe for all of them. On failure the already registered handlers are
// removed before returning.
func SubscribeAll(ctx context.Context, ch Channel, events []string, handler func(event string, payload []byte)) (Unsubscribe, error) {
	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}
	offs := make([]Unsubscribe, 0, len(events))
	unsubscribeAll := once(func() {
		for _, off := range offs {
			off()
		}
	})
	for _, event := range events {
		name := event
		off, err := ch.On(name, func(payload []byte) { handler(name, payload) })
		if err != nil {
			unsubscribeAll()
			return nil, err
		}
		offs = append(offs, off)
	}
	return unsubscribeAll, nil
}

func once(fn func()) Unsubscribe {
	var o sync.Once
	return func() { o.Do(fn) }
}
