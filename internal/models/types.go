package models

import "time"

// EyeDirection is the coarse gaze bucket reported by the detector.
type EyeDirection string

const (
	EyeLeft    EyeDirection = "left"
	EyeCenter  EyeDirection = "center"
	EyeRight   EyeDirection = "right"
	EyeUnknown EyeDirection = "unknown"
)

// HeadMovement is the per-frame head movement intensity bucket.
type HeadMovement string

const (
	HeadLow     HeadMovement = "low"
	HeadMedium  HeadMovement = "medium"
	HeadHigh    HeadMovement = "high"
	HeadUnknown HeadMovement = "unknown"
)

// Modality tags a signal record with the capture loop that produced it.
type Modality string

const (
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// VisualSignals is the per-frame result of the visual detector.
type VisualSignals struct {
	FacePresent     bool         `json:"face_present"`
	FaceCount       int          `json:"face_count"`
	EyeDirection    EyeDirection `json:"eye_direction"`
	Blink           bool         `json:"blink"`
	HeadMovement    HeadMovement `json:"head_movement"`
	InferenceTimeMs float32      `json:"inference_time_ms,omitempty"`
}

// AudioSignals is the per-chunk result of the audio detector.
type AudioSignals struct {
	VoiceActivity bool    `json:"voice_activity"`
	Amplitude     float64 `json:"amplitude"`
}

// SignalRecord is one journaled entry. Video records carry the visual
// fields; audio records carry voice fields plus the face presence that
// was current when the chunk was derived.
type SignalRecord struct {
	Timestamp     float64      `json:"frame_timestamp"`
	Modality      Modality     `json:"modality"`
	FacePresent   bool         `json:"face_present"`
	FaceCount     int          `json:"face_count"`
	EyeDirection  EyeDirection `json:"eye_direction"`
	Blink         bool         `json:"blink"`
	HeadMovement  HeadMovement `json:"head_movement"`
	VoiceActivity bool         `json:"voice_activity"`
	Amplitude     float64      `json:"amplitude"`
	Interrupted   bool         `json:"interrupted,omitempty"`
}

// SignalSnapshot is the latest derived signal state for a session.
// Visual fields are written only by the video loop, voice fields only
// by the audio loop.
type SignalSnapshot struct {
	Timestamp     time.Time    `json:"timestamp"`
	FacePresent   bool         `json:"face_detected"`
	FaceCount     int          `json:"face_count"`
	EyeDirection  EyeDirection `json:"eye_direction"`
	Blink         bool         `json:"blink"`
	HeadMovement  HeadMovement `json:"head_movement"`
	VoiceActivity bool         `json:"voice_activity"`
	Amplitude     float64      `json:"amplitude"`
	ElapsedSec    float64      `json:"elapsed_sec"`
}

// IntegrityState is the cumulative integrity view. The two *_ever
// flags are monotonic latches: once true they stay true for the whole
// session.
type IntegrityState struct {
	FramesTotal           int64 `json:"frames_total"`
	FramesWithFace        int64 `json:"frames_with_face"`
	FaceContinuous        bool  `json:"face_continuous"`
	MultipleFacesEver     bool  `json:"multiple_faces"`
	AudioInterruptionEver bool  `json:"audio_interruptions"`
}

// LivePayload is what the push channel sends on every tick.
type LivePayload struct {
	SignalSnapshot
	Integrity     IntegrityState `json:"integrity"`
	SessionActive bool           `json:"session_active"`
}

// VoiceStats summarizes voice activity over the whole session.
type VoiceStats struct {
	VoiceDetected    bool    `json:"voice_detected"`
	SpeakingTimeSec  float64 `json:"total_speaking_time_sec"`
	TotalDurationSec float64 `json:"total_duration_sec"`
	AverageVolumeDB  float64 `json:"average_volume"`
}

// SessionArtifacts holds the on-disk artifact paths for a session.
type SessionArtifacts struct {
	Video     string `json:"video"`
	Audio     string `json:"audio"`
	SignalLog string `json:"signal_log"`
	Summary   string `json:"summary"`
}

// SessionSummary is the terminal (or, when Partial, best-effort live)
// summary of a capture session.
type SessionSummary struct {
	SessionID     string           `json:"session_id"`
	CandidateID   string           `json:"candidate_id"`
	ApplicationID string           `json:"application_id,omitempty"`
	StartedAt     time.Time        `json:"session_start"`
	EndedAt       time.Time        `json:"session_end"`
	DurationSec   float64          `json:"duration_sec"`
	FPSAvg        float64          `json:"fps_avg"`
	TotalFrames   int64            `json:"total_frames"`
	Device        string           `json:"device"`
	Integrity     IntegrityState   `json:"integrity"`
	Voice         VoiceStats       `json:"voice"`
	Artifacts     SessionArtifacts `json:"artifacts"`
	Partial       bool             `json:"partial,omitempty"`
}
