package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

type SessionStore interface {
	Create(ctx context.Context, session SessionRecord) error
	Get(ctx context.Context, token string) (SessionRecord, error)
	Refresh(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	Delete(ctx context.Context, token string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int, error)
}

type CredentialStore interface {
	FindCredentials(ctx context.Context, username string) (pgrepo.CredentialsRecord, error)
}

type Service struct {
	sessions    SessionStore
	credentials CredentialStore
	ttl         time.Duration
	now         func() time.Time
}

type Dependencies struct {
	Sessions    SessionStore
	Credentials CredentialStore
	SessionTTL  time.Duration
}

func NewService(deps Dependencies) *Service {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Service{
		sessions:    deps.Sessions,
		credentials: deps.Credentials,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}
	if s.credentials == nil {
		return LoginResult{}, fmt.Errorf("credential store is nil")
	}

	creds, err := s.credentials.FindCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			spendCompare(password)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("find credentials: %w", err)
	}
	if err := verifyPassword(creds.PasswordHash, password); err != nil {
		return LoginResult{}, err
	}

	session, err := s.CreateSession(ctx, creds.UserID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Me: Me{
			ID:       creds.UserID,
			Username: creds.Username,
		},
	}, nil
}

func (s *Service) CreateSession(ctx context.Context, userID int64) (SessionRecord, error) {
	if userID <= 0 {
		return SessionRecord{}, ErrInvalidInput
	}

	token, err := NewSessionToken()
	if err != nil {
		return SessionRecord{}, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now().UTC()
	session := SessionRecord{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return SessionRecord{}, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// Validate returns the session owner. Missing and expired sessions are
// indistinguishable to the caller.
func (s *Service) Validate(ctx context.Context, token string) (SessionRecord, error) {
	if strings.TrimSpace(token) == "" {
		return SessionRecord{}, ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrUnauthorized) {
			return SessionRecord{}, ErrUnauthorized
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	if !session.ValidAt(s.now()) {
		return SessionRecord{}, ErrUnauthorized
	}

	return session, nil
}

// Refresh pushes the expiry of a live session to now + TTL.
func (s *Service) Refresh(ctx context.Context, token string) (SessionRecord, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrUnauthorized) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return s.extend(ctx, session)
}

// Authenticate validates the token and slides its expiry forward.
func (s *Service) Authenticate(ctx context.Context, token string) (SessionRecord, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return SessionRecord{}, err
	}

	refreshed, err := s.extend(ctx, session)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return SessionRecord{}, ErrUnauthorized
		}
		return SessionRecord{}, err
	}
	return refreshed, nil
}

func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	deleted, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return deleted, nil
}

func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrInvalidInput
	}
	removed, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return removed, fmt.Errorf("delete all sessions: %w", err)
	}
	return removed, nil
}

func (s *Service) extend(ctx context.Context, session SessionRecord) (SessionRecord, error) {
	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.sessions.Refresh(ctx, session.Token, session.UserID, expiresAt); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, fmt.Errorf("refresh session: %w", err)
	}
	session.ExpiresAt = expiresAt
	return session, nil
}
