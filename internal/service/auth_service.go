package service

import (
	"context"
	"fmt"
	"time"

	"portal/internal/auth"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/repository"
	"portal/internal/util"

	"github.com/rs/zerolog"
)

// AuthService issues access tokens and resolves them back to actors.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	// Authenticate validates token and loads the current role of its
	// subject, so role or profile changes apply to existing tokens.
	Authenticate(ctx context.Context, token string) (policy.Actor, error)
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.UserWithProfile
}

type authService struct {
	users  repository.UserRepository
	secret string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewAuthService(users repository.UserRepository, secret string, ttl time.Duration, logger zerolog.Logger) AuthService {
	return &authService{
		users:  users,
		secret: secret,
		ttl:    ttl,
		logger: logger.With().Str("service", "AuthService").Logger(),
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil || !auth.VerifyPassword(u.PasswordHash, password) {
		s.logger.Warn().Str("username", username).Msg("Failed login attempt")
		return nil, ErrInvalidCredentials
	}

	token, err := util.IssueJWT(u.ID, u.Username, s.secret, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: time.Now().UTC().Add(s.ttl), User: u}, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (policy.Actor, error) {
	claims, err := util.ValidateJWT(token, s.secret)
	if err != nil {
		return policy.Actor{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	u, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return policy.Actor{}, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return policy.Actor{}, fmt.Errorf("%w: account no longer exists", ErrInvalidCredentials)
	}
	return u.Actor(), nil
}
