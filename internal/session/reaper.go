package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper sweeps the registry and force-stops sessions whose client
// stopped sending heartbeats. It is the only component allowed to end
// a session the client did not explicitly stop.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReaper(registry *Registry, interval, timeout time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run sweeps until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("heartbeat reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("timeout", r.timeout))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("heartbeat reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep evicts every session past the heartbeat timeout.
func (r *Reaper) Sweep() {
	now := time.Now()
	for _, candidateID := range r.registry.ListActive() {
		s, err := r.registry.Get(candidateID)
		if err != nil {
			continue
		}
		if s.State() != StateActive {
			continue
		}
		idle := now.Sub(s.LastHeartbeat())
		if idle <= r.timeout {
			continue
		}

		r.logger.Warn("evicting orphan session",
			zap.String("candidate_id", candidateID),
			zap.String("session_id", s.ID()),
			zap.Duration("idle", idle))
		if _, err := s.Evict(); err != nil {
			r.logger.Error("evicting session", zap.Error(err))
		}
	}
}
