package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	verifier *TokenVerifier
}

// NewService constructs a new Service. verifier may be nil when bearer tokens
// are not accepted.
func NewService(repo Repository, verifier *TokenVerifier) *Service {
	return &Service{repo: repo, verifier: verifier}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive || user.PasswordHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// PrincipalFromToken verifies a bearer token and maps its subject to a user.
func (s *Service) PrincipalFromToken(ctx context.Context, raw string) (shared.Principal, error) {
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		return shared.Principal{}, err
	}
	user, err := s.repo.FindBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.CodeInvalidToken.New()
		}
		return shared.Principal{}, err
	}
	if !user.IsActive {
		return shared.Principal{}, shared.CodeInvalidToken.New()
	}
	return shared.Principal{UserID: user.ID, Subject: user.Subject}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
