package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateSession records a new generation run in the queued state.
func (s *Store) CreateSession(sess *Session) error {
	_, err := s.db.Exec(`
		INSERT INTO playbook_sessions (id, user_id, business_description, questionnaire, status)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.UserID, sess.BusinessDescription, sess.Questionnaire, SessionQueued)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	return nil
}

// UpdateSessionStatus moves a session through its lifecycle. Completed
// and failed sessions get a completion timestamp; failed sessions keep
// the error message.
func (s *Store) UpdateSessionStatus(sessionID, status, errMsg string) error {
	var query string
	args := []any{status}
	switch status {
	case SessionCompleted, SessionFailed:
		query = `
			UPDATE playbook_sessions
			SET status = ?, error = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
			WHERE id = ?
		`
		args = append(args, errMsg, sessionID)
	default:
		query = "UPDATE playbook_sessions SET status = ? WHERE id = ?"
		args = append(args, sessionID)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session %s status: %w", sessionID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSessionOutcome stores the final quality score and cycle count.
func (s *Store) RecordSessionOutcome(sessionID string, qualityScore float64, cycles int) error {
	_, err := s.db.Exec(`
		UPDATE playbook_sessions SET quality_score = ?, reflection_cycles = ? WHERE id = ?
	`, qualityScore, cycles, sessionID)
	if err != nil {
		return fmt.Errorf("failed to record session %s outcome: %w", sessionID, err)
	}
	return nil
}

// GetSession returns one session by ID.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, business_description, COALESCE(questionnaire, ''),
		       status, quality_score, reflection_cycles, COALESCE(error, ''),
		       created_at, completed_at
		FROM playbook_sessions WHERE id = ?
	`, sessionID)

	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.BusinessDescription, &sess.Questionnaire,
		&sess.Status, &sess.QualityScore, &sess.ReflectionCycles, &sess.Error,
		&sess.CreatedAt, &sess.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &sess, nil
}

// ListSessionsByUser returns a user's sessions, newest first.
func (s *Store) ListSessionsByUser(userID string) ([]*Session, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, business_description, COALESCE(questionnaire, ''),
		       status, quality_score, reflection_cycles, COALESCE(error, ''),
		       created_at, completed_at
		FROM playbook_sessions WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.BusinessDescription, &sess.Questionnaire,
			&sess.Status, &sess.QualityScore, &sess.ReflectionCycles, &sess.Error,
			&sess.CreatedAt, &sess.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session row iteration error: %w", err)
	}
	return sessions, nil
}

// UpsertStage records a stage's status within a session. Re-running a
// stage (reflection regenerates messaging and content) overwrites the
// earlier row.
func (s *Store) UpsertStage(sessionID, stage, status string) error {
	var completedAt any
	if status != "running" {
		completedAt = nowUTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO generation_stages (session_id, stage, status, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, stage) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at
	`, sessionID, stage, status, completedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert stage %s/%s: %w", sessionID, stage, err)
	}
	return nil
}

// GetStages returns all stage records for a session in start order.
func (s *Store) GetStages(sessionID string) ([]*StageRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_id, stage, status, started_at, completed_at
		FROM generation_stages WHERE session_id = ?
		ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stages []*StageRecord
	for rows.Next() {
		var rec StageRecord
		if err := rows.Scan(&rec.SessionID, &rec.Stage, &rec.Status, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stage row iteration error: %w", err)
	}
	return stages, nil
}
