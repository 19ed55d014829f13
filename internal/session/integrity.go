package session

import (
	"sync"

	"AI_INTERVIEW/go-backend/internal/models"
)

// faceContinuousRatio is the presence ratio above which the face is
// considered continuously on camera.
const faceContinuousRatio = 0.9

// InterruptionPolicy decides whether a signal record latches the
// audio-interruption flag. The trigger condition is deliberately
// pluggable; the default is defined below.
type InterruptionPolicy func(models.SignalRecord) bool

// DefaultInterruptionPolicy latches on a device-reported capture
// discontinuity, or on voice activity while no face is on camera
// (a proxy for an off-screen speaker).
func DefaultInterruptionPolicy(rec models.SignalRecord) bool {
	if rec.Interrupted {
		return true
	}
	return rec.Modality == models.ModalityAudio && rec.VoiceActivity && !rec.FacePresent
}

// Integrity accumulates per-session integrity counters. The two *Ever
// flags are latches: they only ever go from false to true.
type Integrity struct {
	mu                sync.Mutex
	framesTotal       int64
	framesWithFace    int64
	multipleFaces     bool
	audioInterruption bool
	policy            InterruptionPolicy
}

func NewIntegrity(policy InterruptionPolicy) *Integrity {
	if policy == nil {
		policy = DefaultInterruptionPolicy
	}
	return &Integrity{policy: policy}
}

// Observe folds one signal record into the counters. Deterministic:
// replaying the journal in order reproduces the same final state.
func (i *Integrity) Observe(rec models.SignalRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if rec.Modality == models.ModalityVideo {
		i.framesTotal++
		if rec.FacePresent {
			i.framesWithFace++
		}
		if rec.FaceCount > 1 {
			i.multipleFaces = true
		}
	}

	if i.policy(rec) {
		i.audioInterruption = true
	}
}

// State returns the current cumulative view.
func (i *Integrity) State() models.IntegrityState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stateLocked()
}

// Finalize returns the immutable end-of-session view.
func (i *Integrity) Finalize() models.IntegrityState {
	return i.State()
}

func (i *Integrity) stateLocked() models.IntegrityState {
	continuous := true
	if i.framesTotal > 0 {
		continuous = float64(i.framesWithFace)/float64(i.framesTotal) > faceContinuousRatio
	}
	return models.IntegrityState{
		FramesTotal:           i.framesTotal,
		FramesWithFace:        i.framesWithFace,
		FaceContinuous:        continuous,
		MultipleFacesEver:     i.multipleFaces,
		AudioInterruptionEver: i.audioInterruption,
	}
}
