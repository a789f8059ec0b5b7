package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	var firedAt atomic.Int64
	d := New(60*time.Millisecond, func() {
		calls.Add(1)
		firedAt.Store(time.Now().UnixNano())
	})

	var last time.Time
	for i := 0; i < 5; i++ {
		d.Trigger()
		last = time.Now()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, time.Duration(firedAt.Load()-last.UnixNano()), 60*time.Millisecond)
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	assert.True(t, d.Pending())
	d.Stop()
	assert.False(t, d.Pending())
	d.Trigger()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_CancelKeepsUsable(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}
