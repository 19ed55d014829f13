package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

// Store writes session rows to interview_sessions.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// SaveSession inserts the terminal row for a finished session.
func (s *Store) SaveSession(ctx context.Context, row models.SessionRow) error {
	var appID sql.NullString
	if row.ApplicationID != "" {
		appID = sql.NullString{String: row.ApplicationID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (
			session_id,
			candidate_id,
			application_id,
			started_at,
			ended_at,
			video_path,
			audio_path,
			multiple_faces_detected,
			audio_interruptions_detected
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.SessionID,
		row.CandidateID,
		appID,
		row.StartedAt,
		row.EndedAt,
		row.VideoPath,
		row.AudioPath,
		row.MultipleFacesDetected,
		row.AudioInterruptionsDetected,
	)
	if err != nil {
		return fmt.Errorf("insert interview session: %w", err)
	}

	s.logger.Info("session row saved",
		zap.String("session_id", row.SessionID),
		zap.String("candidate_id", row.CandidateID))
	return nil
}
