package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AI_INTERVIEW/go-backend/internal/models"
)

func dialLive(t *testing.T, srv *httptest.Server, candidateID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/live?candidate_id=" + candidateID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn) models.LivePayload {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var payload models.LivePayload
	require.NoError(t, conn.ReadJSON(&payload))
	return payload
}

func TestLiveIdleWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	env.h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialLive(t, srv, "ghost")
	payload := readPayload(t, conn)
	assert.False(t, payload.SessionActive)
	assert.Equal(t, models.EyeUnknown, payload.EyeDirection)
	assert.Equal(t, models.HeadUnknown, payload.HeadMovement)
}

func TestLiveStreamsActiveSession(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	env.h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := postJSON(t, env.h.Start, models.StartRequest{CandidateID: "cand-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 5; i++ {
		env.frames.push([]byte("jpeg"))
	}

	conn := dialLive(t, srv, "cand-1")

	// Drain until an active payload with derived signals arrives.
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no active payload before deadline")
		payload := readPayload(t, conn)
		if payload.SessionActive && payload.Integrity.FramesTotal >= 5 {
			assert.True(t, payload.FacePresent)
			assert.Equal(t, models.EyeCenter, payload.EyeDirection)
			break
		}
	}
}

func TestFeedStreamsLatestFrame(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(t, env.h.Start, models.StartRequest{CandidateID: "cand-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	env.frames.push([]byte("jpeg-payload"))
	require.Eventually(t, func() bool {
		_, ok := env.frames.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/?candidate_id=cand-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.h.Feed(rec, req)

	assert.Contains(t, rec.Header().Get("Content-Type"), "multipart/x-mixed-replace")
	body := rec.Body.String()
	assert.Contains(t, body, "--frame")
	assert.Contains(t, body, "Content-Type: image/jpeg")
	assert.Contains(t, body, "jpeg-payload")
}

func TestFeedUnknownCandidate(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/?candidate_id=ghost", nil)
	rec := httptest.NewRecorder()
	env.h.Feed(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Error responses carry the same CORS headers as every other
	// endpoint.
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
