package service

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// AuthService issues reviewer tokens for the HTTP command surface.
// Credentials come from configuration; there is no user store.
type AuthService struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login verifies the reviewer credentials and issues a token.
func (s *AuthService) Login(name, password string) (string, time.Time, error) {
	if s.cfg.ReviewerPasswordHash == "" || name != s.cfg.ReviewerName {
		return "", time.Time{}, util.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(s.cfg.ReviewerPasswordHash, password); err != nil {
		return "", time.Time{}, util.NewUnauthorized("invalid credentials")
	}
	token, expiresAt, err := s.tokens.GenerateToken(name, auth.RoleReviewer)
	if err != nil {
		return "", time.Time{}, util.NewInternalError(err)
	}
	return token, expiresAt, nil
}
