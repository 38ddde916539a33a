package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBus(t *testing.T, cfg *Config) *Bus {
	t.Helper()
	b := NewBus(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b
}

func receiveMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscriber channel closed unexpectedly")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus message")
		return Message{}
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := newTestBus(t, nil)

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	require.True(t, b.Publish(TopicCoughEventNew, map[string]string{"id": "ev-1"}))

	for _, ch := range []<-chan Message{ch1, ch2} {
		msg := receiveMessage(t, ch)
		assert.Equal(t, TopicCoughEventNew, msg.Topic)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t, nil)

	ch, unsub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	unsub()
	assert.Equal(t, 0, b.SubscriberCount())

	// The channel must be closed so SSE handlers can exit their range loop.
	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishDoesNotBlockWhenBufferFull(t *testing.T) {
	// Single-slot buffer and no subscribers draining it.
	b := NewBus(&Config{BufferSize: 1, Workers: 1})

	// Stop the worker so the buffer can actually fill.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(TopicNotificationNew, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full bus")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus(t, &Config{BufferSize: 256, Workers: 1})

	// The slow subscriber never reads; its buffer will fill and overflow.
	_, unsubSlow := b.Subscribe()
	defer unsubSlow()

	fast, unsubFast := b.Subscribe()
	defer unsubFast()

	for i := 0; i < 100; i++ {
		b.Publish(TopicDeviceStatus, i)
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < 64 {
		select {
		case <-fast:
			received++
		case <-deadline:
			t.Fatalf("fast subscriber starved, got %d messages", received)
		}
	}

	assert.Eventually(t, func() bool {
		return b.Stats().DroppedSlow > 0
	}, 2*time.Second, 10*time.Millisecond, "expected slow-consumer drops to be counted")
}

func TestStatsCountPublishes(t *testing.T) {
	b := newTestBus(t, nil)

	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(TopicCoughDetectionComplete, nil)
	receiveMessage(t, ch)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Delivered)
}
