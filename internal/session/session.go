// Package session implements the capture session orchestrator: the
// lifecycle state machine, the per-modality capture loops, the locked
// signal snapshot, integrity aggregation, the signal journal, and the
// registry/broadcaster/reaper around them.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/capture"
	"AI_INTERVIEW/go-backend/internal/detector"
	"AI_INTERVIEW/go-backend/internal/models"
	"AI_INTERVIEW/go-backend/internal/services"
)

// Stop reasons recorded in logs, events, and the summary.
const (
	stopReasonClient  = "client_stop"
	stopReasonOrphan  = "heartbeat_timeout"
	stopReasonJournal = "journal_failure"
)

// readRetryDelay spaces retries after a transient capture read failure
// so a misbehaving device cannot spin the loop at full speed.
const readRetryDelay = 100 * time.Millisecond

// Store persists the terminal session row. A nil Store disables
// persistence; it never blocks or fails a stop.
type Store interface {
	SaveSession(ctx context.Context, row models.SessionRow) error
}

// Config carries the per-registry session settings.
type Config struct {
	DataDir            string
	DeviceTag          string
	SampleRate         int
	FrameInterval      time.Duration
	BroadcastInterval  time.Duration
	StopJoinTimeout    time.Duration
	InterruptionPolicy InterruptionPolicy
}

// Deps are the injected collaborators shared by all sessions.
type Deps struct {
	Detector       detector.Detector
	NewFrameSource func(videoPath string) capture.FrameSource
	NewAudioSource func(audioPath string) capture.AudioSource
	Store          Store
	Events         EventSink
	Metrics        *services.Metrics
	Logger         *zap.Logger
}

// Session is the aggregate root for one candidate's capture. It owns
// the sources, the capture loops, the locked snapshot, the integrity
// counters, and the journal.
type Session struct {
	id            string
	candidateID   string
	applicationID string
	dir           string
	artifacts     models.SessionArtifacts

	cfg    Config
	deps   Deps
	logger *zap.Logger

	frames      capture.FrameSource
	audio       capture.AudioSource
	deriver     *detector.Deriver
	integrity   *Integrity
	journal     *Journal
	broadcaster *Broadcaster

	stateMu sync.Mutex
	state   State

	// lifeMu serializes Start against terminate, so a stop arriving
	// mid-start waits for the capture state to be fully built instead
	// of tearing down half of it.
	lifeMu sync.Mutex

	// mu protects snap, startedAt, and the source handles. Visual snap
	// fields are written only by the video loop, voice fields only by
	// the audio loop; everyone else reads.
	mu   sync.Mutex
	snap models.SignalSnapshot

	createdAt time.Time
	startedAt time.Time
	lastBeat  atomic.Int64

	fpsMu      sync.Mutex
	fpsSamples []float64
	frameCount atomic.Int64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	summaryMu sync.Mutex
	summary   *models.SessionSummary

	onClose func()
}

func newSession(cfg Config, deps Deps, candidateID, applicationID string) *Session {
	id := uuid.NewString()
	dir := filepath.Join(cfg.DataDir, "interviews", id)

	s := &Session{
		id:            id,
		candidateID:   candidateID,
		applicationID: applicationID,
		dir:           dir,
		artifacts: models.SessionArtifacts{
			Video:     filepath.Join(dir, "video.mp4"),
			Audio:     filepath.Join(dir, "audio.wav"),
			SignalLog: filepath.Join(dir, "signals.jsonl"),
			Summary:   filepath.Join(dir, "session_meta.json"),
		},
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With(zap.String("session_id", id), zap.String("candidate_id", candidateID)),
		deriver:   detector.NewDeriver(deps.Detector, cfg.SampleRate),
		integrity: NewIntegrity(cfg.InterruptionPolicy),
		state:     StateIdle,
		createdAt: time.Now(),
		snap: models.SignalSnapshot{
			EyeDirection: models.EyeUnknown,
			HeadMovement: models.HeadUnknown,
		},
	}
	s.broadcaster = NewBroadcaster(cfg.BroadcastInterval, s.Snapshot, s.logger)
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) CandidateID() string       { return s.candidateID }
func (s *Session) Dir() string               { return s.dir }
func (s *Session) Broadcaster() *Broadcaster { return s.broadcaster }

// StartedAt returns when the capture loops came up, zero before Start.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Start opens the devices and brings the capture loops up. A single
// failed device degrades the session; only both failing aborts it.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.transition(StateIdle, StateStarting) {
		return ErrNotStartable
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("create session directory: %w", err)
	}

	journal, err := NewJournal(s.artifacts.SignalLog, s.logger)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.journal = journal

	frames := s.deps.NewFrameSource(s.artifacts.Video)
	if err := frames.Open(); err != nil {
		s.logger.Warn("camera unavailable, continuing without video", zap.Error(err))
		frames = nil
	}

	audio := s.deps.NewAudioSource(s.artifacts.Audio)
	if err := audio.Open(); err != nil {
		s.logger.Warn("microphone unavailable, continuing without audio", zap.Error(err))
		audio = nil
	}

	if frames == nil && audio == nil {
		s.setState(StateFailed)
		_ = s.journal.Close()
		return ErrDeviceUnavailable
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.mu.Lock()
	s.startedAt = time.Now()
	s.frames = frames
	s.audio = audio
	s.mu.Unlock()
	s.Heartbeat()

	if frames != nil {
		s.wg.Add(1)
		go s.videoLoop(loopCtx)
	}
	if audio != nil {
		s.wg.Add(1)
		go s.audioLoop(loopCtx)
	}
	go s.broadcaster.Run(loopCtx)

	s.setState(StateActive)
	s.publishEvent(ctx, EventStarted, "")
	s.logger.Info("session active",
		zap.Bool("video", frames != nil),
		zap.Bool("audio", audio != nil))
	return nil
}

func (s *Session) videoLoop(ctx context.Context) {
	defer s.wg.Done()

	windowFrames := 0
	windowStart := time.Now()

	for {
		frame, err := s.frames.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, capture.ErrSourceClosed) {
				return
			}
			// Transient read failure: keep the previous snapshot value,
			// evaluators see last-known rather than a gap.
			s.logger.Warn("transient frame read failure", zap.Error(err))
			s.deps.Metrics.IncrementReadErrors()
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		vis, err := s.deriver.Visual(ctx, frame.Data)
		if err != nil {
			s.logger.Warn("visual derivation failed", zap.Error(err))
			s.deps.Metrics.IncrementReadErrors()
			continue
		}

		rec := models.SignalRecord{
			Timestamp:    s.relTime(frame.Timestamp),
			Modality:     models.ModalityVideo,
			FacePresent:  vis.FacePresent,
			FaceCount:    vis.FaceCount,
			EyeDirection: vis.EyeDirection,
			Blink:        vis.Blink,
			HeadMovement: vis.HeadMovement,
		}

		s.mu.Lock()
		s.snap.Timestamp = frame.Timestamp
		s.snap.FacePresent = vis.FacePresent
		s.snap.FaceCount = vis.FaceCount
		s.snap.EyeDirection = vis.EyeDirection
		s.snap.Blink = vis.Blink
		s.snap.HeadMovement = vis.HeadMovement
		s.mu.Unlock()

		s.integrity.Observe(rec)
		if err := s.journal.Append(rec); err != nil {
			s.escalate(err)
			return
		}

		s.frameCount.Add(1)
		s.deps.Metrics.IncrementFrames()

		windowFrames++
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			s.recordFPS(float64(windowFrames) / elapsed.Seconds())
			windowFrames = 0
			windowStart = time.Now()
		}
	}
}

func (s *Session) audioLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		chunk, err := s.audio.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, capture.ErrSourceClosed) {
				return
			}
			s.logger.Warn("transient audio read failure", zap.Error(err))
			s.deps.Metrics.IncrementReadErrors()
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		aud, err := s.deriver.Audio(ctx, chunk.Samples)
		if err != nil {
			s.logger.Warn("audio derivation failed", zap.Error(err))
			s.deps.Metrics.IncrementReadErrors()
			continue
		}

		s.mu.Lock()
		s.snap.VoiceActivity = aud.VoiceActivity
		s.snap.Amplitude = aud.Amplitude
		facePresent := s.snap.FacePresent
		s.mu.Unlock()

		rec := models.SignalRecord{
			Timestamp:     s.relTime(chunk.Timestamp),
			Modality:      models.ModalityAudio,
			FacePresent:   facePresent,
			VoiceActivity: aud.VoiceActivity,
			Amplitude:     aud.Amplitude,
			Interrupted:   chunk.Interrupted,
		}

		s.integrity.Observe(rec)
		if err := s.journal.Append(rec); err != nil {
			s.escalate(err)
			return
		}
		s.deps.Metrics.IncrementChunks()
	}
}

// escalate handles a load-bearing journal failure: the session goes
// terminal Failed. Teardown runs on its own goroutine because the
// calling capture loop is part of the wait group being joined.
func (s *Session) escalate(err error) {
	s.logger.Error("journal failure, failing session", zap.Error(err))
	s.deps.Metrics.IncrementJournalErrors()
	go s.terminate(StateFailed, stopReasonJournal)
}

// Heartbeat marks the client as alive. Idempotent.
func (s *Session) Heartbeat() {
	s.lastBeat.Store(time.Now().UnixNano())
}

// LastHeartbeat returns the most recent liveness signal.
func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastBeat.Load())
}

// Snapshot returns a copy of the current signal state plus integrity
// view. It never blocks on capture I/O.
func (s *Session) Snapshot() models.LivePayload {
	s.mu.Lock()
	snap := s.snap
	startedAt := s.startedAt
	s.mu.Unlock()

	if !startedAt.IsZero() {
		snap.ElapsedSec = round1(time.Since(startedAt).Seconds())
	}

	st := s.State()
	if st.terminal() {
		s.summaryMu.Lock()
		if s.summary != nil {
			snap.ElapsedSec = s.summary.DurationSec
		}
		s.summaryMu.Unlock()
	}

	return models.LivePayload{
		SignalSnapshot: snap,
		Integrity:      s.integrity.State(),
		SessionActive:  st == StateActive,
	}
}

// LatestFrame exposes the pull-stream side channel.
func (s *Session) LatestFrame() ([]byte, bool) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()
	if frames == nil {
		return nil, false
	}
	return frames.Latest()
}

// Stop tears the session down and returns the terminal summary.
// Idempotent: repeated calls return the same summary.
func (s *Session) Stop() (models.SessionSummary, error) {
	s.terminate(StateClosed, stopReasonClient)
	return s.finalSummary()
}

// Evict is the reaper's anomalous stop for orphaned sessions.
func (s *Session) Evict() (models.SessionSummary, error) {
	s.terminate(StateClosed, stopReasonOrphan)
	return s.finalSummary()
}

func (s *Session) finalSummary() (models.SessionSummary, error) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	if s.summary == nil {
		return models.SessionSummary{}, fmt.Errorf("session %s produced no summary", s.id)
	}
	return *s.summary, nil
}

func (s *Session) terminate(final State, reason string) {
	s.stopOnce.Do(func() {
		// Taken after Start's, so an in-flight start completes before
		// teardown begins and the loops cannot outlive the session.
		s.lifeMu.Lock()
		defer s.lifeMu.Unlock()

		s.setState(StateStopping)

		if s.cancel != nil {
			s.cancel()
		}
		if s.frames != nil {
			_ = s.frames.Close()
		}
		if s.audio != nil {
			_ = s.audio.Close()
		}

		// Bounded join: a wedged device read cannot hold stop hostage.
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.cfg.StopJoinTimeout):
			s.logger.Warn("capture loops did not exit within join timeout")
		}

		endedAt := time.Now()
		integ := s.integrity.Finalize()
		sum := s.buildSummary(endedAt, integ, final == StateFailed)

		if s.journal != nil {
			if err := s.journal.FinalizeSummary(sum, s.artifacts.Summary); err != nil {
				s.logger.Error("writing session summary", zap.Error(err))
			}
			_ = s.journal.Close()
		}

		s.persist(sum)

		s.summaryMu.Lock()
		s.summary = &sum
		s.summaryMu.Unlock()
		s.setState(final)

		evType := EventStopped
		switch {
		case final == StateFailed:
			evType = EventFailed
		case reason == stopReasonOrphan:
			evType = EventEvicted
		}
		s.publishEvent(context.Background(), evType, reason)

		if s.onClose != nil {
			s.onClose()
		}

		if reason == stopReasonClient {
			s.logger.Info("session stopped",
				zap.Float64("duration_sec", sum.DurationSec),
				zap.Int64("frames", sum.TotalFrames))
		} else {
			s.logger.Warn("session terminated anomalously",
				zap.String("reason", reason),
				zap.Float64("duration_sec", sum.DurationSec))
		}
	})
}

// Summary returns the terminal summary once closed, or a best-effort
// partial view of a live session.
func (s *Session) Summary() models.SessionSummary {
	s.summaryMu.Lock()
	if s.summary != nil {
		sum := *s.summary
		s.summaryMu.Unlock()
		return sum
	}
	s.summaryMu.Unlock()

	sum := s.buildSummary(time.Now(), s.integrity.State(), true)
	return sum
}

func (s *Session) buildSummary(endedAt time.Time, integ models.IntegrityState, partial bool) models.SessionSummary {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	var duration float64
	if !startedAt.IsZero() {
		duration = endedAt.Sub(startedAt).Seconds()
	}

	s.fpsMu.Lock()
	var fpsAvg float64
	if len(s.fpsSamples) > 0 {
		var sum float64
		for _, v := range s.fpsSamples {
			sum += v
		}
		fpsAvg = sum / float64(len(s.fpsSamples))
	}
	s.fpsMu.Unlock()

	return models.SessionSummary{
		SessionID:     s.id,
		CandidateID:   s.candidateID,
		ApplicationID: s.applicationID,
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		DurationSec:   round1(duration),
		FPSAvg:        round1(fpsAvg),
		TotalFrames:   s.frameCount.Load(),
		Device:        s.cfg.DeviceTag,
		Integrity:     integ,
		Voice:         s.deriver.VoiceStats(),
		Artifacts:     s.artifacts,
		Partial:       partial,
	}
}

func (s *Session) persist(sum models.SessionSummary) {
	if s.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := models.SessionRow{
		SessionID:                  sum.SessionID,
		CandidateID:                sum.CandidateID,
		ApplicationID:              sum.ApplicationID,
		StartedAt:                  sum.StartedAt,
		EndedAt:                    sum.EndedAt,
		VideoPath:                  sum.Artifacts.Video,
		AudioPath:                  sum.Artifacts.Audio,
		MultipleFacesDetected:      sum.Integrity.MultipleFacesEver,
		AudioInterruptionsDetected: sum.Integrity.AudioInterruptionEver,
	}
	if err := s.deps.Store.SaveSession(ctx, row); err != nil {
		s.logger.Error("saving session row", zap.Error(err))
	}
}

func (s *Session) publishEvent(ctx context.Context, t EventType, reason string) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Publish(ctx, Event{
		Type:        t,
		SessionID:   s.id,
		CandidateID: s.candidateID,
		Reason:      reason,
		Timestamp:   time.Now(),
	})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	if s.state.terminal() {
		s.stateMu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	s.stateMu.Unlock()
	s.logger.Debug("state transition",
		zap.String("from", prev.String()),
		zap.String("to", st.String()))
}

func (s *Session) transition(from, to State) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) recordFPS(fps float64) {
	s.fpsMu.Lock()
	s.fpsSamples = append(s.fpsSamples, fps)
	s.fpsMu.Unlock()
}

func (s *Session) relTime(t time.Time) float64 {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()
	if startedAt.IsZero() {
		return 0
	}
	return math.Round(t.Sub(startedAt).Seconds()*1000) / 1000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
