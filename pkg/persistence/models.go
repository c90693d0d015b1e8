package persistence

import (
	"errors"
	"time"
)

// Session status values.
const (
	SessionQueued    = "queued"
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Ledger reasons.
const (
	ReasonSignupGrant = "signup_grant"
	ReasonPurchase    = "purchase"
	ReasonGeneration  = "generation"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound            = errors.New("not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrTokenExpired        = errors.New("token expired")
)

// User is a registered account.
type User struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CompanyName  string    `json:"company_name,omitempty"`
}

// Session is one playbook generation run.
type Session struct {
	CreatedAt           time.Time  `json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	QualityScore        *float64   `json:"quality_score,omitempty"`
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	BusinessDescription string     `json:"business_description"`
	Questionnaire       string     `json:"questionnaire,omitempty"`
	Status              string     `json:"status"`
	Error               string     `json:"error,omitempty"`
	ReflectionCycles    int        `json:"reflection_cycles"`
}

// StageRecord is one stage's progress within a session.
type StageRecord struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SessionID   string     `json:"session_id"`
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
}

// Playbook is a completed deliverable. Content holds the full playbook
// document as JSON.
type Playbook struct {
	CreatedAt    time.Time `json:"created_at"`
	QualityScore *float64  `json:"quality_score,omitempty"`
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
}

// CreditEntry is one row of the append-only credit ledger.
type CreditEntry struct {
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	SessionID string    `json:"session_id,omitempty"`
	ID        int64     `json:"id"`
	Delta     int       `json:"delta"`
}
