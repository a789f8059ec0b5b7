package pushchannel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	var got []string
	off, err := hub.On("order:status_changed", func(payload []byte) { got = append(got, string(payload)) })
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), "order:status_changed", []byte(`{"order_id":"o1"}`)))
	require.NoError(t, hub.Publish(context.Background(), "retur:status_changed", []byte(`{}`)))
	assert.Equal(t, []string{`{"order_id":"o1"}`}, got)

	off()
	off()
	require.NoError(t, hub.Publish(context.Background(), "order:status_changed", []byte(`{}`)))
	assert.Len(t, got, 1)
	assert.Equal(t, 0, hub.Subscribers("order:status_changed"))
}

func TestSubscribeAll_SingleUnsubscribe(t *testing.T) {
	hub := NewHub()
	var names []string
	off, err := SubscribeAll(context.Background(), hub, []string{"a", "b"}, func(event string, _ []byte) {
		names = append(names, event)
	})
	require.NoError(t, err)

	_ = hub.Publish(context.Background(), "a", nil)
	_ = hub.Publish(context.Background(), "b", nil)
	assert.Equal(t, []string{"a", "b"}, names)

	off()
	assert.Equal(t, 0, hub.Subscribers("a"))
	assert.Equal(t, 0, hub.Subscribers("b"))
}

type failingChannel struct {
	*Hub
	failOn string
}

func (f failingChannel) On(event string, h Handler) (Unsubscribe, error) {
	if event == f.failOn {
		return nil, errors.New("subscribe refused")
	}
	return f.Hub.On(event, h)
}

func TestSubscribeAll_UnwindsOnFailure(t *testing.T) {
	hub := NewHub()
	ch := failingChannel{Hub: hub, failOn: "b"}
	_, err := SubscribeAll(context.Background(), ch, []string{"a", "b"}, func(string, []byte) {})
	require.Error(t, err)
	assert.Equal(t, 0, hub.Subscribers("a"))
}

func TestHub_ClosedRejects(t *testing.T) {
	hub := NewHub()
	hub.Close()
	assert.ErrorIs(t, hub.Connect(context.Background()), ErrClosed)
	_, err := hub.On("a", func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}
