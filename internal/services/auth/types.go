package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type SessionRecord struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the session is still usable at the given instant.
func (s SessionRecord) ValidAt(at time.Time) bool {
	return s.ExpiresAt.After(at)
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Me        Me
}

type Me struct {
	ID       int64
	Username string
}
