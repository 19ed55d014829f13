package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSourceClosed is returned by Next once Close has been called.
var ErrSourceClosed = errors.New("capture: source closed")

// Frame is one encoded (JPEG) video frame with its arrival timestamp.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Chunk is one fixed-duration block of mono float32 audio samples.
type Chunk struct {
	Samples     []float32
	Timestamp   time.Time
	Interrupted bool
}

// FrameSource produces frames from a camera device. Next blocks until
// a frame is available; it returns promptly after Close is called from
// another goroutine. Latest exposes the most recent frame for the pull
// stream without consuming it from the capture loop.
type FrameSource interface {
	Open() error
	Next(ctx context.Context) (Frame, error)
	Latest() ([]byte, bool)
	Close() error
}

// AudioSource produces fixed-duration chunks from a microphone.
type AudioSource interface {
	Open() error
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// latestSlot is a single-entry overwrite buffer: new frames replace
// unconsumed ones, readers always see the most recent value.
type latestSlot struct {
	mu   sync.RWMutex
	data []byte
	ok   bool
}

func (s *latestSlot) store(b []byte) {
	s.mu.Lock()
	s.data = b
	s.ok = true
	s.mu.Unlock()
}

func (s *latestSlot) load() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data, s.ok
}
