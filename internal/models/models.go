package models

import "time"

// SessionRow is the row persisted to interview_sessions when a
// session finishes.
type SessionRow struct {
	SessionID                  string     `json:"session_id"`
	CandidateID                string     `json:"candidate_id"`
	ApplicationID              string     `json:"application_id,omitempty"`
	StartedAt                  time.Time  `json:"started_at"`
	EndedAt                    time.Time  `json:"ended_at"`
	VideoPath                  string     `json:"video_path"`
	AudioPath                  string     `json:"audio_path"`
	MultipleFacesDetected      bool       `json:"multiple_faces_detected"`
	AudioInterruptionsDetected bool       `json:"audio_interruptions_detected"`
	CreatedAt                  *time.Time `json:"created_at,omitempty"`
}

type StartRequest struct {
	CandidateID   string `json:"candidate_id"`
	ApplicationID string `json:"application_id,omitempty"`
}

type StartResponse struct {
	Status      string `json:"status"`
	CandidateID string `json:"candidate_id"`
	SessionID   string `json:"session_id"`
	SessionDir  string `json:"session_dir"`
}

type StopRequest struct {
	CandidateID string `json:"candidate_id"`
}

type StopResponse struct {
	Status      string          `json:"status"`
	CandidateID string          `json:"candidate_id"`
	DurationSec float64         `json:"duration_sec"`
	Summary     *SessionSummary `json:"summary,omitempty"`
}

type HeartbeatRequest struct {
	CandidateID string `json:"candidate_id"`
}

type HeartbeatResponse struct {
	Status      string `json:"status"`
	CandidateID string `json:"candidate_id"`
	Timestamp   int64  `json:"timestamp"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status         string `json:"status"`
	DetectorOnline bool   `json:"detector_online"`
	ActiveSessions int    `json:"active_sessions"`
	Timestamp      string `json:"timestamp"`
	Version        string `json:"version,omitempty"`
}
