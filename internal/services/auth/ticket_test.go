package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/holehole5566/connecthub/internal/repo/redis"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
)

func TestTicketRedeemOnce(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mini.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	defer client.Close()

	tickets := authsvc.NewTicketManager("ticket-secret", time.Minute, redrepo.NewTicketRepo(client))
	ctx := context.Background()

	raw, expiresAt, err := tickets.Issue(77)
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("ticket expiry must be in the future: %s", expiresAt)
	}

	userID, err := tickets.Redeem(ctx, raw)
	if err != nil {
		t.Fatalf("redeem ticket: %v", err)
	}
	if userID != 77 {
		t.Fatalf("expected user 77, got %d", userID)
	}

	if _, err := tickets.Redeem(ctx, raw); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("replayed ticket should be unauthorized, got err=%v", err)
	}
}

func TestTicketRejectsForeignSignature(t *testing.T) {
	issuer := authsvc.NewTicketManager("secret-a", time.Minute, nil)
	verifier := authsvc.NewTicketManager("secret-b", time.Minute, nil)

	raw, _, err := issuer.Issue(3)
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if _, err := verifier.Redeem(context.Background(), raw); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got err=%v", err)
	}
	if _, err := verifier.Redeem(context.Background(), "garbage"); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for garbage, got err=%v", err)
	}
}
