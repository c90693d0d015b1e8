// Package auth handles account registration, login, and opaque API
// token verification. Passwords are stored as bcrypt hashes; tokens are
// random 256-bit values stored hashed.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"messagecraft/pkg/logx"
	"messagecraft/pkg/persistence"
)

// TokenTTL is how long a login token stays valid.
const TokenTTL = 30 * 24 * time.Hour

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Errors returned by the auth service.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Service provides registration, login, and token verification backed by
// the persistence store.
type Service struct {
	store         *persistence.Store
	logger        *logx.Logger
	signupCredits int
}

// NewService creates an auth service. signupCredits are granted to every
// new account.
func NewService(store *persistence.Store, signupCredits int) *Service {
	return &Service{
		store:         store,
		logger:        logx.NewLogger("auth"),
		signupCredits: signupCredits,
	}
}

// Register creates a new account with a hashed password.
func (s *Service) Register(email, password, companyName string) (*persistence.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &persistence.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CompanyName:  strings.TrimSpace(companyName),
	}
	if err := s.store.CreateUser(user, s.signupCredits); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token. The plain token is
// returned to the caller once; only its hash is stored.
func (s *Service) Login(email, password string) (string, *persistence.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(email)
	if errors.Is(err, persistence.ErrNotFound) {
		// Burn a comparison anyway so lookups and mismatches take
		// similar time.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000u"), []byte(password))
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	if err := s.store.InsertToken(HashToken(token), user.ID, time.Now().Add(TokenTTL)); err != nil {
		return "", nil, err
	}

	s.logger.Info("🔑 Login: %s", user.Email)
	return token, user, nil
}

// Authenticate resolves a bearer token to its account.
func (s *Service) Authenticate(token string) (*persistence.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.GetUserByToken(HashToken(token))
	if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, persistence.ErrTokenExpired) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Logout revokes a token. Unknown tokens are not an error.
func (s *Service) Logout(token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteToken(HashToken(token))
}

// HashToken returns the hex SHA-256 of a plain token, the form stored in
// the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// validEmail applies a minimal shape check; real validation happens when
// mail is actually sent.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}
