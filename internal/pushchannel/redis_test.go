package pushchannel

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/notifier/internal/platform/logging"
)

func redisChannel(t *testing.T) *Redis {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	ch := NewRedis(redis.NewClient(opts), logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.Connect(ctx); err != nil {
		ch.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	t.Cleanup(ch.Close)
	return ch
}

func TestRedis_PublishReachesSubscriber(t *testing.T) {
	ch := redisChannel(t)
	got := make(chan string, 1)
	off, err := ch.On("admin:refresh_badges", func(payload []byte) { got <- string(payload) })
	require.NoError(t, err)
	defer off()

	require.NoError(t, ch.Publish(context.Background(), "admin:refresh_badges", []byte(`{}`)))
	select {
	case p := <-got:
		assert.Equal(t, `{}`, p)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedis_ClosedRejectsSubscribe(t *testing.T) {
	ch := redisChannel(t)
	ch.Close()
	_, err := ch.On("order:status_changed", func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}
