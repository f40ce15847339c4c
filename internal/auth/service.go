package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are refused
// rather than silently truncated.
const maxPasswordBytes = 72

// Credential is a stored username/email/password-hash record.
type Credential struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity returns the public fields embedded in session tokens.
func (c *Credential) Identity() Identity {
	return Identity{ID: c.ID, Username: c.Username, Email: c.Email}
}

// CredentialStore is the persistence the auth flows depend on. Lookups return
// (nil, nil) when nothing matches. CreateUser returns an error matching
// ErrDuplicate when the storage layer rejects a duplicate username or email.
type CredentialStore interface {
	FindCredential(ctx context.Context, username, email string) (*Credential, error)
	GetUserByEmail(ctx context.Context, email string) (*Credential, error)
	CreateUser(ctx context.Context, username, email, passwordHash string) (*Credential, error)
}

// Service orchestrates registration and login.
type Service struct {
	store  CredentialStore
	hasher PasswordHasher
	tokens *TokenService

	dummyOnce sync.Once
	dummyHash string
}

func NewService(store CredentialStore, hasher PasswordHasher, tokens *TokenService) *Service {
	return &Service{store: store, hasher: hasher, tokens: tokens}
}

// Register creates a credential record and returns its id.
func (s *Service) Register(ctx context.Context, username, email, password string) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return 0, &ValidationError{Message: "All fields are required"}
	}
	if len(password) > maxPasswordBytes {
		return 0, &ValidationError{Message: fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes)}
	}

	// Fast path only; the unique constraints decide under concurrency.
	existing, err := s.store.FindCredential(ctx, username, email)
	if err != nil {
		return 0, fmt.Errorf("%w: find credential: %w", ErrInternal, err)
	}
	if existing != nil {
		return 0, ErrConflict
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	c, err := s.store.CreateUser(ctx, username, email, hash)
	if errors.Is(err, ErrDuplicate) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("%w: create user: %w", ErrInternal, err)
	}
	return c.ID, nil
}

// Login verifies email and password and issues a session token. An unknown
// email and a wrong password yield the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", Identity{}, &ValidationError{Message: "All fields are required"}
	}

	c, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", Identity{}, fmt.Errorf("%w: get user: %w", ErrInternal, err)
	}
	if c == nil {
		// Spend the same bcrypt time as a real comparison.
		s.hasher.Verify(password, s.dummy())
		return "", Identity{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, c.PasswordHash) {
		return "", Identity{}, ErrInvalidCredentials
	}

	id := c.Identity()
	token, err := s.tokens.Issue(id)
	if err != nil {
		return "", Identity{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return token, id, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("timing-equalizer")
	})
	return s.dummyHash
}
