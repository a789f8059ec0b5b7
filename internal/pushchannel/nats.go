package pushchannel

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/messaging"
	"github.com/retailops/notifier/internal/platform/natsutil"
)

// DialFunc creates the underlying JetStream client.
type DialFunc func(ctx context.Context) (*natsutil.Client, error)

// NATS is a Channel over JetStream subjects ops.event.*. The connection is
// created lazily on first use and shared by every subscriber.
type NATS struct {
	dial DialFunc
	log  *logrus.Entry

	mu     sync.Mutex
	client *natsutil.Client
	closed bool
}

func NewNATS(dial DialFunc, log *logrus.Entry) *NATS {
	return &NATS{dial: dial, log: log}
}

// NewNATSFromClient wraps an already connected client.
func NewNATSFromClient(client *natsutil.Client, log *logrus.Entry) *NATS {
	return &NATS{client: client, log: log}
}

func (n *NATS) Connect(ctx context.Context) error {
	_, err := n.ensureClient(ctx)
	return err
}

func (n *NATS) ensureClient(ctx context.Context) (*natsutil.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	if n.client != nil {
		return n.client, nil
	}
	if n.dial == nil {
		return nil, errors.New("push channel has no dialer")
	}
	client, err := n.dial(ctx)
	if err != nil {
		return nil, err
	}
	n.client = client
	return client, nil
}

func (n *NATS) On(event string, handler Handler) (Unsubscribe, error) {
	client, err := n.ensureClient(context.Background())
	if err != nil {
		return nil, err
	}
	sub, err := client.JS.Subscribe(messaging.Subject(event), func(msg *nats.Msg) {
		handler(msg.Data)
	}, nats.DeliverNew())
	if err != nil {
		return nil, err
	}
	return once(func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			n.log.WithError(err).WithField("event", event).Warn("push channel unsubscribe failed")
		}
	}), nil
}

func (n *NATS) Publish(ctx context.Context, event string, payload []byte) error {
	client, err := n.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.JS.Publish(messaging.Subject(event), payload, nats.Context(ctx))
	return err
}

func (n *NATS) Ready() error {
	n.mu.Lock()
	client := n.client
	n.mu.Unlock()
	return client.Ready()
}

func (n *NATS) Close() {
	n.mu.Lock()
	client := n.client
	n.client = nil
	n.closed = true
	n.mu.Unlock()
	client.Close()
}
