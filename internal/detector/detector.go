// Package detector wraps the external detection capability behind a
// two-operation interface: one call per video frame, one per audio
// chunk. Concrete detection algorithms live outside this process.
package detector

import (
	"context"

	"AI_INTERVIEW/go-backend/internal/models"
)

// Detector is the capability consumed by the capture loops. Absence of
// a detectable face or voice is a valid result, not an error; errors
// mean the capability itself was unreachable.
type Detector interface {
	DeriveVisual(ctx context.Context, frame []byte) (models.VisualSignals, error)
	DeriveAudio(ctx context.Context, samples []float32) (models.AudioSignals, error)
}

// Composite pairs a remote visual detector with a local audio
// detector into a single capability.
type Composite struct {
	Visual interface {
		DeriveVisual(ctx context.Context, frame []byte) (models.VisualSignals, error)
	}
	Audio interface {
		DeriveAudio(ctx context.Context, samples []float32) (models.AudioSignals, error)
	}
}

func (c Composite) DeriveVisual(ctx context.Context, frame []byte) (models.VisualSignals, error) {
	return c.Visual.DeriveVisual(ctx, frame)
}

func (c Composite) DeriveAudio(ctx context.Context, samples []float32) (models.AudioSignals, error) {
	return c.Audio.DeriveAudio(ctx, samples)
}
