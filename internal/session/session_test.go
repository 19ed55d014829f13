package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/capture"
	"AI_INTERVIEW/go-backend/internal/models"
)

// fakeFrames feeds frames from a buffered channel so tests control
// exactly what the video loop sees.
type fakeFrames struct {
	frames  chan capture.Frame
	openErr error

	mu     sync.Mutex
	closed bool
	latest []byte
}

func newFakeFrames(buffer int) *fakeFrames {
	return &fakeFrames{frames: make(chan capture.Frame, buffer)}
}

func (f *fakeFrames) push(data []byte) {
	f.frames <- capture.Frame{Data: data, Timestamp: time.Now()}
}

func (f *fakeFrames) Open() error { return f.openErr }

func (f *fakeFrames) Next(ctx context.Context) (capture.Frame, error) {
	select {
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	case fr, ok := <-f.frames:
		if !ok {
			return capture.Frame{}, capture.ErrSourceClosed
		}
		f.mu.Lock()
		f.latest = fr.Data
		f.mu.Unlock()
		return fr, nil
	}
}

func (f *fakeFrames) Latest() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.latest != nil
}

func (f *fakeFrames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

type fakeAudio struct {
	chunks  chan capture.Chunk
	openErr error

	mu     sync.Mutex
	closed bool
}

func newFakeAudio(buffer int) *fakeAudio {
	return &fakeAudio{chunks: make(chan capture.Chunk, buffer)}
}

func (a *fakeAudio) push(samples []float32, interrupted bool) {
	a.chunks <- capture.Chunk{Samples: samples, Timestamp: time.Now(), Interrupted: interrupted}
}

func (a *fakeAudio) Open() error { return a.openErr }

func (a *fakeAudio) Next(ctx context.Context) (capture.Chunk, error) {
	select {
	case <-ctx.Done():
		return capture.Chunk{}, ctx.Err()
	case c, ok := <-a.chunks:
		if !ok {
			return capture.Chunk{}, capture.ErrSourceClosed
		}
		return c, nil
	}
}

func (a *fakeAudio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.chunks)
	}
	return nil
}

// fakeDetector answers visual calls from a queue; the last entry
// repeats once the queue drains.
type fakeDetector struct {
	mu     sync.Mutex
	visual []models.VisualSignals
	audio  models.AudioSignals
}

func (d *fakeDetector) DeriveVisual(_ context.Context, _ []byte) (models.VisualSignals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.visual) == 0 {
		return models.VisualSignals{}, nil
	}
	v := d.visual[0]
	if len(d.visual) > 1 {
		d.visual = d.visual[1:]
	}
	return v, nil
}

func (d *fakeDetector) DeriveAudio(_ context.Context, samples []float32) (models.AudioSignals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	aud := d.audio
	if len(samples) == 0 {
		return models.AudioSignals{}, nil
	}
	return aud, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func testRegistry(t *testing.T, det *fakeDetector, frames *fakeFrames, audio *fakeAudio, sink EventSink) *Registry {
	t.Helper()
	return NewRegistry(
		Config{
			DataDir:           t.TempDir(),
			DeviceTag:         "test_rig",
			SampleRate:        16000,
			FrameInterval:     10 * time.Millisecond,
			BroadcastInterval: 10 * time.Millisecond,
			StopJoinTimeout:   time.Second,
		},
		Deps{
			Detector:       det,
			NewFrameSource: func(string) capture.FrameSource { return frames },
			NewAudioSource: func(string) capture.AudioSource { return audio },
			Events:         sink,
			Logger:         zap.NewNop(),
		},
	)
}

func waitFrames(t *testing.T, s *Session, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Integrity.FramesTotal >= n
	}, 3*time.Second, 5*time.Millisecond)
}

func TestSessionContinuousFace(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{{
		FacePresent:  true,
		FaceCount:    1,
		EyeDirection: models.EyeCenter,
		HeadMovement: models.HeadLow,
	}}}
	frames := newFakeFrames(128)
	audio := newFakeAudio(8)
	sink := &recordingSink{}
	reg := testRegistry(t, det, frames, audio, sink)

	s, err := reg.Create("cand-1", "app-1")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateActive, s.State())

	for i := 0; i < 100; i++ {
		frames.push([]byte("jpeg"))
	}
	waitFrames(t, s, 100)

	payload := s.Snapshot()
	assert.True(t, payload.SessionActive)
	assert.True(t, payload.FacePresent)
	assert.Equal(t, models.EyeCenter, payload.EyeDirection)
	assert.EqualValues(t, 100, payload.Integrity.FramesTotal)
	assert.EqualValues(t, 100, payload.Integrity.FramesWithFace)
	assert.True(t, payload.Integrity.FaceContinuous)
	assert.False(t, payload.Integrity.MultipleFacesEver)
	assert.False(t, payload.Integrity.AudioInterruptionEver)

	sum, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, s.State())
	assert.EqualValues(t, 100, sum.TotalFrames)
	assert.True(t, sum.Integrity.FaceContinuous)
	assert.False(t, sum.Partial)
	assert.Equal(t, "test_rig", sum.Device)
	assert.Equal(t, "app-1", sum.ApplicationID)

	// Summary artifact written alongside the journal.
	_, err = os.Stat(sum.Artifacts.Summary)
	assert.NoError(t, err)

	assert.Equal(t, []EventType{EventStarted, EventStopped}, sink.types())
}

func TestSessionMultipleFacesLatch(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{
		{FacePresent: true, FaceCount: 2, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow},
		{FacePresent: true, FaceCount: 1, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow},
	}}
	frames := newFakeFrames(32)
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 10; i++ {
		frames.push([]byte("jpeg"))
	}
	waitFrames(t, s, 10)

	// The second face left after the first frame; the latch holds.
	assert.True(t, s.Snapshot().Integrity.MultipleFacesEver)

	sum, err := s.Stop()
	require.NoError(t, err)
	assert.True(t, sum.Integrity.MultipleFacesEver)
}

func TestSessionDegradedWithoutCamera(t *testing.T) {
	det := &fakeDetector{audio: models.AudioSignals{VoiceActivity: true, Amplitude: 0.2}}
	frames := newFakeFrames(1)
	frames.openErr = capture.ErrSourceClosed
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateActive, s.State())

	audio.push(make([]float32, 1600), false)
	require.Eventually(t, func() bool {
		return s.Snapshot().VoiceActivity
	}, 3*time.Second, 5*time.Millisecond)

	// Visual fields stay at their unknown defaults.
	payload := s.Snapshot()
	assert.False(t, payload.FacePresent)
	assert.Equal(t, models.EyeUnknown, payload.EyeDirection)
	assert.Equal(t, models.HeadUnknown, payload.HeadMovement)

	// Voice with nobody on camera latches the interruption flag.
	assert.True(t, payload.Integrity.AudioInterruptionEver)

	_, err = s.Stop()
	require.NoError(t, err)
}

func TestSessionStartFailsWithoutAnyDevice(t *testing.T) {
	frames := newFakeFrames(1)
	frames.openErr = capture.ErrSourceClosed
	audio := newFakeAudio(1)
	audio.openErr = capture.ErrSourceClosed
	reg := testRegistry(t, &fakeDetector{}, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)

	err = s.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionStopIdempotent(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{{FacePresent: true, FaceCount: 1, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow}}}
	frames := newFakeFrames(16)
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 5; i++ {
		frames.push([]byte("jpeg"))
	}
	waitFrames(t, s, 5)

	first, err := s.Stop()
	require.NoError(t, err)
	second, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Registry slot freed on close.
	_, err = reg.Get("cand-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Starting again on the same session is rejected.
	assert.ErrorIs(t, s.Start(context.Background()), ErrNotStartable)
}

func TestSessionJournalReplayRebuildsIntegrity(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{
		{FacePresent: true, FaceCount: 2, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow},
		{FacePresent: false},
	}}
	frames := newFakeFrames(16)
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 8; i++ {
		frames.push([]byte("jpeg"))
	}
	waitFrames(t, s, 8)

	sum, err := s.Stop()
	require.NoError(t, err)

	rebuilt := NewIntegrity(nil)
	require.NoError(t, Replay(sum.Artifacts.SignalLog, rebuilt.Observe))
	assert.Equal(t, sum.Integrity, rebuilt.Finalize())
}

func TestSessionSummaryPartialWhileLive(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{{FacePresent: true, FaceCount: 1, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow}}}
	frames := newFakeFrames(16)
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	frames.push([]byte("jpeg"))
	waitFrames(t, s, 1)

	live := s.Summary()
	assert.True(t, live.Partial)

	final, err := s.Stop()
	require.NoError(t, err)
	assert.False(t, final.Partial)
	assert.Equal(t, final, s.Summary())
}

// flakyFrames opens fine but every read fails, simulating a device
// that died without closing its stream cleanly.
type flakyFrames struct {
	calls atomic.Int64
}

func (f *flakyFrames) Open() error { return nil }

func (f *flakyFrames) Next(ctx context.Context) (capture.Frame, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}
	return capture.Frame{}, errors.New("device read failed")
}

func (f *flakyFrames) Latest() ([]byte, bool) { return nil, false }
func (f *flakyFrames) Close() error           { return nil }

func TestSessionReadersDuringStart(t *testing.T) {
	det := &fakeDetector{visual: []models.VisualSignals{{FacePresent: true, FaceCount: 1, EyeDirection: models.EyeCenter, HeadMovement: models.HeadLow}}}
	frames := newFakeFrames(16)
	audio := newFakeAudio(8)
	reg := testRegistry(t, det, frames, audio, nil)

	// The registry hands the session out before Start runs; concurrent
	// reads must be safe against the start sequence.
	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s.Snapshot()
				s.LatestFrame()
				s.Summary()
				s.StartedAt()
			}
		}()
	}

	require.NoError(t, s.Start(context.Background()))
	frames.push([]byte("jpeg"))
	waitFrames(t, s, 1)

	close(stop)
	wg.Wait()

	_, err = s.Stop()
	require.NoError(t, err)
}

func TestSessionStopBeforeStartIsTerminal(t *testing.T) {
	det := &fakeDetector{}
	frames := newFakeFrames(4)
	audio := newFakeAudio(4)
	reg := testRegistry(t, det, frames, audio, nil)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)

	// Client stops between create and start; the session dies cleanly.
	sum, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, sum.TotalFrames)

	// A late Start cannot resurrect it or spawn capture loops.
	assert.ErrorIs(t, s.Start(context.Background()), ErrNotStartable)
	_, ok := s.LatestFrame()
	assert.False(t, ok)

	_, err = reg.Get("cand-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionPersistentReadFailureIsPaced(t *testing.T) {
	frames := &flakyFrames{}
	audio := newFakeAudio(4)
	reg := NewRegistry(
		Config{
			DataDir:           t.TempDir(),
			SampleRate:        16000,
			BroadcastInterval: 10 * time.Millisecond,
			StopJoinTimeout:   time.Second,
		},
		Deps{
			Detector:       &fakeDetector{},
			NewFrameSource: func(string) capture.FrameSource { return frames },
			NewAudioSource: func(string) capture.AudioSource { return audio },
			Logger:         zap.NewNop(),
		},
	)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(350 * time.Millisecond)
	_, err = s.Stop()
	require.NoError(t, err)

	// Retries are spaced out; a dead device yields a handful of read
	// attempts in this window, not tens of thousands.
	assert.LessOrEqual(t, frames.calls.Load(), int64(10))
	assert.GreaterOrEqual(t, frames.calls.Load(), int64(1))
}

func TestSessionEvictPublishesEvictedEvent(t *testing.T) {
	det := &fakeDetector{}
	frames := newFakeFrames(4)
	audio := newFakeAudio(4)
	sink := &recordingSink{}
	reg := testRegistry(t, det, frames, audio, sink)

	s, err := reg.Create("cand-1", "")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	_, err = s.Evict()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []EventType{EventStarted, EventEvicted}, sink.types())
}
