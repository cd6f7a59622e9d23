package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ticketAudience = "chat"

// ReplayGuard records consumed ticket ids so each ticket opens one socket.
type ReplayGuard interface {
	Consume(ctx context.Context, ticketID string, ttl time.Duration) (bool, error)
}

type TicketManager struct {
	secret []byte
	ttl    time.Duration
	guard  ReplayGuard
	now    func() time.Time
}

type ticketClaims struct {
	jwt.RegisteredClaims
}

func NewTicketManager(secret string, ttl time.Duration, guard ReplayGuard) *TicketManager {
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &TicketManager{
		secret: []byte(secret),
		ttl:    ttl,
		guard:  guard,
		now:    time.Now,
	}
}

func (m *TicketManager) Issue(userID int64) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("ticket secret is empty")
	}
	if userID <= 0 {
		return "", time.Time{}, ErrInvalidInput
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := ticketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  jwt.ClaimStrings{ticketAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign chat ticket: %w", err)
	}

	return signed, expiresAt, nil
}

// Redeem verifies the ticket and returns its user id. A ticket is accepted
// once when a replay guard is attached.
func (m *TicketManager) Redeem(ctx context.Context, raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, ErrUnauthorized
	}

	claims := &ticketClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(ticketAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || token == nil || !token.Valid {
		return 0, ErrUnauthorized
	}

	userID, parseErr := strconv.ParseInt(claims.Subject, 10, 64)
	if parseErr != nil || userID <= 0 {
		return 0, ErrUnauthorized
	}

	if m.guard != nil {
		ok, err := m.guard.Consume(ctx, claims.ID, m.ttl)
		if err != nil {
			return 0, fmt.Errorf("consume ticket: %w", err)
		}
		if !ok {
			return 0, ErrUnauthorized
		}
	}

	return userID, nil
}
