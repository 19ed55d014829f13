package detector

import (
	"context"
	"math"
	"sync"

	"AI_INTERVIEW/go-backend/internal/models"
)

// headWindow is how many recent head-movement buckets vote on the
// reported value, so single-frame noise cannot flip the bucket.
const headWindow = 5

// Deriver wraps a Detector with the per-session rolling state the raw
// capability does not carry: head-movement smoothing and cumulative
// voice statistics. One Deriver per session; safe for use from both
// capture loops.
type Deriver struct {
	det        Detector
	sampleRate int

	mu           sync.Mutex
	headHistory  []models.HeadMovement
	totalSamples int64
	voiceSamples int64
	rmsSum       float64
	rmsCount     int64
}

func NewDeriver(det Detector, sampleRate int) *Deriver {
	return &Deriver{det: det, sampleRate: sampleRate}
}

// Visual derives signals for one frame. When no face is present the
// dependent fields read as unknown/false rather than stale detector
// output.
func (d *Deriver) Visual(ctx context.Context, frame []byte) (models.VisualSignals, error) {
	vis, err := d.det.DeriveVisual(ctx, frame)
	if err != nil {
		return models.VisualSignals{}, err
	}

	if !vis.FacePresent {
		vis.EyeDirection = models.EyeUnknown
		vis.Blink = false
		vis.HeadMovement = models.HeadUnknown
		return vis, nil
	}

	vis.HeadMovement = d.smoothHead(vis.HeadMovement)
	if vis.EyeDirection == "" {
		vis.EyeDirection = models.EyeUnknown
	}
	return vis, nil
}

// Audio derives signals for one chunk and folds it into the session
// voice statistics.
func (d *Deriver) Audio(ctx context.Context, samples []float32) (models.AudioSignals, error) {
	aud, err := d.det.DeriveAudio(ctx, samples)
	if err != nil {
		return models.AudioSignals{}, err
	}

	d.mu.Lock()
	d.totalSamples += int64(len(samples))
	if aud.VoiceActivity {
		d.voiceSamples += int64(len(samples))
	}
	d.rmsSum += aud.Amplitude
	d.rmsCount++
	d.mu.Unlock()

	return aud, nil
}

// VoiceStats returns the cumulative voice activity view, matching the
// audio log summary format.
func (d *Deriver) VoiceStats() models.VoiceStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var total, speaking float64
	if d.sampleRate > 0 {
		total = float64(d.totalSamples) / float64(d.sampleRate)
		speaking = float64(d.voiceSamples) / float64(d.sampleRate)
	}

	avgDB := -100.0
	if d.rmsCount > 0 {
		if avg := d.rmsSum / float64(d.rmsCount); avg > 0 {
			avgDB = 20 * math.Log10(avg)
		}
	}

	return models.VoiceStats{
		VoiceDetected:    speaking > 0,
		SpeakingTimeSec:  round2(speaking),
		TotalDurationSec: round2(total),
		AverageVolumeDB:  round2(avgDB),
	}
}

// smoothHead votes over the recent window; ties resolve toward the
// most recent observation.
func (d *Deriver) smoothHead(current models.HeadMovement) models.HeadMovement {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.headHistory = append(d.headHistory, current)
	if len(d.headHistory) > headWindow {
		d.headHistory = d.headHistory[len(d.headHistory)-headWindow:]
	}

	counts := make(map[models.HeadMovement]int, 4)
	for _, h := range d.headHistory {
		counts[h]++
	}

	best := current
	bestCount := counts[current]
	for _, h := range []models.HeadMovement{models.HeadLow, models.HeadMedium, models.HeadHigh} {
		if counts[h] > bestCount {
			best = h
			bestCount = counts[h]
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
