package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyVADSilence(t *testing.T) {
	vad := NewEnergyVAD()

	out, err := vad.DeriveAudio(context.Background(), make([]float32, 1600))
	require.NoError(t, err)
	assert.False(t, out.VoiceActivity)
	assert.Zero(t, out.Amplitude)
}

func TestEnergyVADVoice(t *testing.T) {
	vad := NewEnergyVAD()

	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.5
	}

	out, err := vad.DeriveAudio(context.Background(), samples)
	require.NoError(t, err)
	assert.True(t, out.VoiceActivity)
	assert.InDelta(t, 0.5, out.Amplitude, 1e-6)
}

func TestEnergyVADThresholdBoundary(t *testing.T) {
	vad := NewEnergyVAD()

	// RMS exactly at the threshold does not count as voice.
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = DefaultEnergyThreshold
	}
	out, err := vad.DeriveAudio(context.Background(), samples)
	require.NoError(t, err)
	assert.False(t, out.VoiceActivity)

	for i := range samples {
		samples[i] = DefaultEnergyThreshold * 2
	}
	out, err = vad.DeriveAudio(context.Background(), samples)
	require.NoError(t, err)
	assert.True(t, out.VoiceActivity)
}

func TestEnergyVADEmptyChunkIsSilent(t *testing.T) {
	vad := NewEnergyVAD()

	out, err := vad.DeriveAudio(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, out.VoiceActivity)
}
