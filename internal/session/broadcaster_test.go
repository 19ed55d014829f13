package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

func TestBroadcasterDeliversSnapshots(t *testing.T) {
	b := NewBroadcaster(5*time.Millisecond, func() models.LivePayload {
		return models.LivePayload{SessionActive: true}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	ch, unsub := b.Subscribe()
	defer unsub()

	select {
	case payload := <-ch:
		assert.True(t, payload.SessionActive)
	case <-time.After(time.Second):
		t.Fatal("no payload within deadline")
	}
}

func TestBroadcasterCancelRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster(time.Hour, func() models.LivePayload {
		return models.LivePayload{}
	}, zap.NewNop())

	ch, unsub := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	unsub()
	assert.Equal(t, 0, b.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	// Cancel is idempotent.
	unsub()
}

func TestBroadcasterSlowSubscriberNeverBlocksTick(t *testing.T) {
	b := NewBroadcaster(time.Hour, func() models.LivePayload {
		return models.LivePayload{}
	}, zap.NewNop())

	_, unsub := b.Subscribe()
	defer unsub()

	// Far more ticks than the subscriber buffer holds; extra payloads
	// are dropped rather than blocking.
	for i := 0; i < subscriberBuffer*4; i++ {
		b.tick()
	}
}

func TestBroadcasterClosesSubscribersOnShutdown(t *testing.T) {
	b := NewBroadcaster(time.Hour, func() models.LivePayload {
		return models.LivePayload{}
	}, zap.NewNop())

	ch, _ := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// Subscribing after shutdown yields an already-closed channel.
	late, _ := b.Subscribe()
	_, open := <-late
	assert.False(t, open)
}
