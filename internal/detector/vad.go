package detector

import (
	"context"
	"math"

	"AI_INTERVIEW/go-backend/internal/models"
)

// DefaultEnergyThreshold is the RMS level above which a chunk counts
// as voice.
const DefaultEnergyThreshold = 0.02

// EnergyVAD is a stateless energy-threshold voice activity detector.
type EnergyVAD struct {
	Threshold float64
}

func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{Threshold: DefaultEnergyThreshold}
}

// DeriveAudio computes RMS energy for the chunk. Empty input is a
// valid silent chunk, never an error.
func (v *EnergyVAD) DeriveAudio(_ context.Context, samples []float32) (models.AudioSignals, error) {
	if len(samples) == 0 {
		return models.AudioSignals{}, nil
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	return models.AudioSignals{
		VoiceActivity: rms > v.Threshold,
		Amplitude:     rms,
	}, nil
}
