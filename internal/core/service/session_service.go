package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
	"github.com/qrconnect/qrconnect-client/internal/core/ports"
)

// SessionService owns the authentication credential and the current
// identity. It is the only component allowed to write either.
type SessionService struct {
	api   ports.API
	creds ports.CredentialStore
	log   zerolog.Logger

	mu       sync.RWMutex
	identity *domain.Identity
}

func NewSessionService(api ports.API, creds ports.CredentialStore, log zerolog.Logger) *SessionService {
	return &SessionService{api: api, creds: creds, log: log}
}

// Restore reads the persisted credential and resolves it to an identity.
// No stored credential, or a credential the server rejects, is the normal
// "not logged in" path and returns (nil, nil) — never a user-visible error.
// Transport failures are returned so the caller can retry; the credential
// is kept in that case.
func (s *SessionService) Restore(ctx context.Context) (*domain.Identity, error) {
	token, err := s.creds.Load()
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	if tokenExpired(token) {
		s.log.Debug().Msg("stored credential expired, clearing")
		_ = s.creds.Clear()
		return nil, nil
	}

	s.api.SetToken(token)
	identity, err := s.api.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.log.Info().Msg("stored credential rejected, clearing")
			s.api.SetToken("")
			_ = s.creds.Clear()
			return nil, nil
		}
		return nil, fmt.Errorf("restore: %w", err)
	}

	s.setIdentity(identity)
	s.log.Info().Str("user_id", identity.ID).Msg("session restored")
	return identity, nil
}

// Login authenticates with the REST collaborator and persists the returned
// credential.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	token, identity, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.creds.Save(token); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	s.api.SetToken(token)
	s.setIdentity(identity)
	s.log.Info().Str("user_id", identity.ID).Msg("logged in")
	return identity, nil
}

// Register creates a new account. The caller still logs in afterwards; the
// server does not issue a credential on registration.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*domain.Identity, error) {
	if name == "" || email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	return s.api.Register(ctx, name, email, password)
}

// Logout clears the credential and identity. The facade cascades the rest
// of the per-user state (rooms, messages, connections).
func (s *SessionService) Logout() {
	s.api.SetToken("")
	_ = s.creds.Clear()
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
	s.log.Info().Msg("logged out")
}

// Identity returns a copy of the current identity, or nil when logged out.
func (s *SessionService) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	clone := *s.identity
	return &clone
}

func (s *SessionService) setIdentity(identity *domain.Identity) {
	clone := *identity
	s.mu.Lock()
	s.identity = &clone
	s.mu.Unlock()
}

// tokenExpired reports whether the credential is a JWT whose exp claim is
// already past. The signature is not verified — only the server can do
// that — this just skips a round trip that is guaranteed to 401. Opaque
// or claim-less tokens are passed through to the server.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
