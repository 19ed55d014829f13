package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/services"
)

// Registry is the process-wide map of active sessions, one per
// candidate. It is an injected object, not package state, so tests
// and the web layer own their instance. The registry lock guards only
// the map; capture I/O never runs under it.
type Registry struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = services.NewMetrics()
	}
	if cfg.InterruptionPolicy == nil {
		cfg.InterruptionPolicy = DefaultInterruptionPolicy
	}
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create reserves the candidate slot and returns the new session.
// Atomic: of concurrent creates for the same candidate exactly one
// wins, the rest get ErrAlreadyActive. The caller must Start the
// session and Remove it if starting fails.
func (r *Registry) Create(candidateID, applicationID string) (*Session, error) {
	s := newSession(r.cfg, r.deps, candidateID, applicationID)
	s.onClose = func() { r.Remove(candidateID) }

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[candidateID]; exists {
		return nil, ErrAlreadyActive
	}
	r.sessions[candidateID] = s
	r.deps.Metrics.SetActiveSessions(len(r.sessions))
	return s, nil
}

// Get returns the active session for a candidate.
func (r *Registry) Get(candidateID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[candidateID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops the candidate's registry entry. Safe to call for a
// candidate that is already gone.
func (r *Registry) Remove(candidateID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, candidateID)
	r.deps.Metrics.SetActiveSessions(len(r.sessions))
}

// ListActive returns the candidate ids with a live session.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every active session, used on process exit.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, id := range r.ListActive() {
		s, err := r.Get(id)
		if err != nil {
			continue
		}
		if _, err := s.Stop(); err != nil {
			r.deps.Logger.Warn("stopping session on shutdown",
				zap.String("candidate_id", id), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
