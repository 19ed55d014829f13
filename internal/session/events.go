package session

import (
	"context"
	"time"
)

// EventType classifies a session lifecycle event.
type EventType string

const (
	EventStarted EventType = "session.started"
	EventStopped EventType = "session.stopped"
	EventEvicted EventType = "session.evicted"
	EventFailed  EventType = "session.failed"
)

// Event is published when a session changes lifecycle state, so the
// surrounding hiring-portal services can react without polling.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	CandidateID string    `json:"candidate_id"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventSink receives lifecycle events. Implementations must not block
// session teardown.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}
