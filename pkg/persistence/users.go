package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser inserts a new account and grants the signup credits in one
// transaction. Returns ErrEmailTaken when the email is already registered.
func (s *Store) CreateUser(user *User, signupCredits int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO users (id, email, password_hash, company_name)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.CompanyName)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user %s: %w", user.Email, err)
	}

	if signupCredits > 0 {
		_, err = tx.Exec(`
			INSERT INTO credit_ledger (user_id, delta, reason)
			VALUES (?, ?, ?)
		`, user.ID, signupCredits, ReasonSignupGrant)
		if err != nil {
			return fmt.Errorf("failed to grant signup credits: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}

	s.logger.Info("👤 User registered: %s (%d credits granted)", user.Email, signupCredits)
	return nil
}

// GetUserByEmail looks up an account by email.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT id, email, password_hash, COALESCE(company_name, ''), created_at
		FROM users WHERE email = ?
	`, email))
}

// GetUserByID looks up an account by ID.
func (s *Store) GetUserByID(id string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT id, email, password_hash, COALESCE(company_name, ''), created_at
		FROM users WHERE id = ?
	`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CompanyName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// InsertToken stores a hashed login token with its expiry.
func (s *Store) InsertToken(tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO auth_tokens (token_hash, user_id, expires_at)
		VALUES (?, ?, ?)
	`, tokenHash, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetUserByToken resolves a hashed token to its account. Expired tokens
// are deleted on sight and reported as ErrTokenExpired.
func (s *Store) GetUserByToken(tokenHash string) (*User, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRow(`
		SELECT user_id, expires_at FROM auth_tokens WHERE token_hash = ?
	`, tokenHash).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if time.Now().After(expiresAt) {
		_, _ = s.db.Exec("DELETE FROM auth_tokens WHERE token_hash = ?", tokenHash)
		return nil, ErrTokenExpired
	}

	return s.GetUserByID(userID)
}

// DeleteToken revokes a login token.
func (s *Store) DeleteToken(tokenHash string) error {
	_, err := s.db.Exec("DELETE FROM auth_tokens WHERE token_hash = ?", tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// CreditBalance returns the sum of the user's ledger deltas.
func (s *Store) CreditBalance(userID string) (int, error) {
	var balance int
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ?
	`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute credit balance: %w", err)
	}
	return balance, nil
}

// AddCredits appends a positive ledger entry (e.g. a purchase).
func (s *Store) AddCredits(userID string, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	_, err := s.db.Exec(`
		INSERT INTO credit_ledger (user_id, delta, reason)
		VALUES (?, ?, ?)
	`, userID, amount, reason)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	return nil
}

// LedgerEntries returns the user's ledger, newest first.
func (s *Store) LedgerEntries(userID string) ([]*CreditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, delta, reason, COALESCE(session_id, ''), created_at
		FROM credit_ledger WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*CreditEntry
	for rows.Next() {
		var e CreditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger row iteration error: %w", err)
	}
	return entries, nil
}
