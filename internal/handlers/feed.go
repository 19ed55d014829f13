package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const feedBoundary = "frame"

// Feed is the pull channel: a multipart MJPEG stream of the most
// recent encoded frame, repeated at the capture rate. A client that
// drops mid-stream only ends its own response; the capture loops are
// untouched.
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	candidateID := r.URL.Query().Get("candidate_id")
	if _, err := h.registry.Get(candidateID); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "No active session for candidate")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+feedBoundary)
	w.Header().Set("Cache-Control", "no-cache")

	h.logger.Info("feed client connected", zap.String("candidate_id", candidateID))
	defer h.logger.Info("feed client disconnected", zap.String("candidate_id", candidateID))

	ticker := time.NewTicker(h.cfg.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		sess, err := h.registry.Get(candidateID)
		if err != nil {
			// Session ended; close the stream.
			return
		}

		frame, ok := sess.LatestFrame()
		if !ok {
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", feedBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}
