package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

// subscriberBuffer sizes each subscriber channel. The push channel is
// lossy by design: a slow subscriber gets the latest payload it can
// keep up with, never a growing backlog.
const subscriberBuffer = 8

// Broadcaster pushes the session's current snapshot to all subscribers
// at a fixed cadence. Sends are non-blocking, so a stalled subscriber
// cannot hold up the tick or other subscribers.
type Broadcaster struct {
	interval time.Duration
	source   func() models.LivePayload
	logger   *zap.Logger

	mu     sync.Mutex
	subs   map[int64]chan models.LivePayload
	nextID int64
	closed bool
}

func NewBroadcaster(interval time.Duration, source func() models.LivePayload, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		interval: interval,
		source:   source,
		logger:   logger,
		subs:     make(map[int64]chan models.LivePayload),
	}
}

// Subscribe registers a live-channel client. The returned cancel func
// is idempotent and must be called when the client goes away; the
// channel is closed on cancel or when the session ends.
func (b *Broadcaster) Subscribe() (<-chan models.LivePayload, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.LivePayload, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Run ticks until the context is canceled, then closes every
// subscriber channel so clients observe the end of the session.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Broadcaster) tick() {
	payload := b.source()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- payload:
		default:
			// Subscriber is behind; drop. Latest-value-wins.
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.logger.Debug("broadcaster stopped")
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
