package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// SavePlaybook stores a completed playbook and debits one generation
// credit in the same transaction. Saving the same session twice is
// idempotent: the existing playbook is returned and no second debit
// happens. Returns ErrInsufficientCredits when the user's balance is
// below one.
func (s *Store) SavePlaybook(pb *Playbook) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Already saved for this session: keep the first save, skip the debit
	var existingID string
	err = tx.QueryRow("SELECT id FROM playbooks WHERE session_id = ?", pb.SessionID).Scan(&existingID)
	if err == nil {
		pb.ID = existingID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing playbook: %w", err)
	}

	var balance int
	err = tx.QueryRow(`
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ?
	`, pb.UserID).Scan(&balance)
	if err != nil {
		return fmt.Errorf("failed to check credit balance: %w", err)
	}
	if balance < 1 {
		return ErrInsufficientCredits
	}

	_, err = tx.Exec(`
		INSERT INTO playbooks (id, session_id, user_id, title, content, quality_score)
		VALUES (?, ?, ?, ?, ?, ?)
	`, pb.ID, pb.SessionID, pb.UserID, pb.Title, pb.Content, pb.QualityScore)
	if err != nil {
		return fmt.Errorf("failed to insert playbook %s: %w", pb.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO credit_ledger (user_id, delta, reason, session_id)
		VALUES (?, -1, ?, ?)
	`, pb.UserID, ReasonGeneration, pb.SessionID)
	if err != nil {
		return fmt.Errorf("failed to debit generation credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playbook save: %w", err)
	}

	s.logger.Info("💾 Playbook saved: %s (session %s, 1 credit debited)", pb.ID, pb.SessionID)
	return nil
}

// GetPlaybook returns one playbook by ID.
func (s *Store) GetPlaybook(id string) (*Playbook, error) {
	return s.scanPlaybook(s.db.QueryRow(`
		SELECT id, session_id, user_id, title, content, quality_score, created_at
		FROM playbooks WHERE id = ?
	`, id))
}

// GetPlaybookBySession returns the playbook produced by a session.
func (s *Store) GetPlaybookBySession(sessionID string) (*Playbook, error) {
	return s.scanPlaybook(s.db.QueryRow(`
		SELECT id, session_id, user_id, title, content, quality_score, created_at
		FROM playbooks WHERE session_id = ?
	`, sessionID))
}

func (s *Store) scanPlaybook(row *sql.Row) (*Playbook, error) {
	var pb Playbook
	err := row.Scan(&pb.ID, &pb.SessionID, &pb.UserID, &pb.Title, &pb.Content, &pb.QualityScore, &pb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playbook: %w", err)
	}
	return &pb, nil
}

// ListPlaybooks returns a user's playbooks without the full content,
// newest first.
func (s *Store) ListPlaybooks(userID string) ([]*Playbook, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_id, title, quality_score, created_at
		FROM playbooks WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playbooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var playbooks []*Playbook
	for rows.Next() {
		var pb Playbook
		if err := rows.Scan(&pb.ID, &pb.SessionID, &pb.UserID, &pb.Title, &pb.QualityScore, &pb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playbook: %w", err)
		}
		playbooks = append(playbooks, &pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("playbook row iteration error: %w", err)
	}
	return playbooks, nil
}

// DeletePlaybook removes a playbook owned by the given user. The
// generation credit is not refunded.
func (s *Store) DeletePlaybook(id, userID string) error {
	result, err := s.db.Exec("DELETE FROM playbooks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete playbook %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
