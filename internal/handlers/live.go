package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeDeadline = 10 * time.Second

// Live is the push channel: a WebSocket that streams the current
// snapshot at the broadcast cadence. When the candidate has no active
// session the client receives idle frames, matching what the frontend
// shows between sessions.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	candidateID := r.URL.Query().Get("candidate_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.metrics.IncrementWebSocketConnections()
	h.logger.Info("live subscriber connected", zap.String("candidate_id", candidateID))

	defer func() {
		h.metrics.DecrementWebSocketConnections()
		conn.Close()
		h.logger.Info("live subscriber disconnected", zap.String("candidate_id", candidateID))
	}()

	// Reader detects the client going away; inbound payloads are not
	// part of the protocol and are discarded.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		sess, err := h.registry.Get(candidateID)
		if err != nil {
			// No active session: idle frames until one appears.
			select {
			case <-gone:
				return
			case <-ticker.C:
				if !h.writeLive(conn, idlePayload()) {
					return
				}
			}
			continue
		}

		ch, cancel := sess.Broadcaster().Subscribe()
		if !h.forward(conn, ch, cancel, gone) {
			return
		}
		// Channel closed: the session ended; fall back to idle frames.
	}
}

// forward drains one subscription. Returns false when the client is
// gone and the handler should exit.
func (h *Handlers) forward(conn *websocket.Conn, ch <-chan models.LivePayload, cancel func(), gone <-chan struct{}) bool {
	defer cancel()
	for {
		select {
		case <-gone:
			return false
		case payload, ok := <-ch:
			if !ok {
				return true
			}
			if !h.writeLive(conn, payload) {
				return false
			}
		}
	}
}

func (h *Handlers) writeLive(conn *websocket.Conn, payload models.LivePayload) bool {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(payload); err != nil {
		h.metrics.IncrementWebSocketErrors()
		return false
	}
	h.metrics.IncrementWebSocketMessages()
	return true
}

func idlePayload() models.LivePayload {
	return models.LivePayload{
		SignalSnapshot: models.SignalSnapshot{
			EyeDirection: models.EyeUnknown,
			HeadMovement: models.HeadUnknown,
		},
		Integrity:     models.IntegrityState{},
		SessionActive: false,
	}
}
