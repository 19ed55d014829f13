package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/config"
	"AI_INTERVIEW/go-backend/internal/models"
	"AI_INTERVIEW/go-backend/internal/services"
	"AI_INTERVIEW/go-backend/internal/session"
)

// HealthChecker reports whether the vision service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

type Handlers struct {
	registry *session.Registry
	metrics  *services.Metrics
	detector HealthChecker
	cfg      *config.Config
	logger   *zap.Logger
}

func New(registry *session.Registry, metrics *services.Metrics, det HealthChecker, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		metrics:  metrics,
		detector: det,
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/start", h.Start)
	mux.HandleFunc("/api/session/stop", h.Stop)
	mux.HandleFunc("/api/session/heartbeat", h.Heartbeat)
	mux.HandleFunc("/api/session/snapshot", h.Snapshot)
	mux.HandleFunc("/api/session/summary", h.Summary)
	mux.HandleFunc("/api/session/live", h.Live)
	mux.HandleFunc("/api/session/feed", h.Feed)
	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/metrics", h.Metrics)
}

func (h *Handlers) enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSOrigins)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().Unix(),
	})
}

// Start creates and starts a capture session for a candidate.
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req models.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request")
		return
	}
	if req.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "candidate_id is required")
		return
	}

	sess, err := h.registry.Create(req.CandidateID, req.ApplicationID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, "already_active", "Session already running for candidate")
			return
		}
		h.logger.Error("creating session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	if err := sess.Start(r.Context()); err != nil {
		h.registry.Remove(req.CandidateID)
		if errors.Is(err, session.ErrDeviceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "device_unavailable", "No capture device available")
			return
		}
		h.logger.Error("starting session", zap.String("candidate_id", req.CandidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to start capture")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.StartResponse{
		Status:      "started",
		CandidateID: req.CandidateID,
		SessionID:   sess.ID(),
		SessionDir:  sess.Dir(),
	})
}

// Stop ends the candidate's session and returns the summary. Stopping
// a candidate with no active session is a tolerated no-op.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req models.StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request")
		return
	}

	sess, err := h.registry.Get(req.CandidateID)
	if err != nil {
		json.NewEncoder(w).Encode(models.StopResponse{
			Status:      "no_active_session",
			CandidateID: req.CandidateID,
		})
		return
	}

	summary, err := sess.Stop()
	if err != nil {
		h.logger.Error("stopping session", zap.String("candidate_id", req.CandidateID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to stop capture")
		return
	}

	json.NewEncoder(w).Encode(models.StopResponse{
		Status:      "stopped",
		CandidateID: req.CandidateID,
		DurationSec: summary.DurationSec,
		Summary:     &summary,
	})
}

// Heartbeat marks the candidate's session as alive.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req models.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request")
		return
	}

	sess, err := h.registry.Get(req.CandidateID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "No active session for candidate")
		return
	}

	sess.Heartbeat()
	json.NewEncoder(w).Encode(models.HeartbeatResponse{
		Status:      "ok",
		CandidateID: req.CandidateID,
		Timestamp:   time.Now().Unix(),
	})
}

// Snapshot returns the current signal and integrity view.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	sess, err := h.registry.Get(r.URL.Query().Get("candidate_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "No active session for candidate")
		return
	}

	json.NewEncoder(w).Encode(sess.Snapshot())
}

// Summary returns the terminal summary, or a partial one while the
// session is live.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	sess, err := h.registry.Get(r.URL.Query().Get("candidate_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "No active session for candidate")
		return
	}

	json.NewEncoder(w).Encode(sess.Summary())
}

// Health reports service and detector status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	detectorOnline := false
	if h.detector != nil {
		detectorOnline = h.detector.Health(r.Context())
	}

	json.NewEncoder(w).Encode(models.HealthStatus{
		Status:         "healthy",
		DetectorOnline: detectorOnline,
		ActiveSessions: len(h.registry.ListActive()),
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}

// Metrics exposes the capture counters.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_frames":    h.metrics.GetTotalFrames(),
		"total_chunks":    h.metrics.GetTotalChunks(),
		"read_errors":     h.metrics.GetReadErrors(),
		"journal_errors":  h.metrics.GetJournalErrors(),
		"active_sessions": h.metrics.GetActiveSessions(),
		"last_frame_time": h.metrics.GetLastFrameTime(),
		"websocket":       h.metrics.GetWebSocketMetrics(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}
