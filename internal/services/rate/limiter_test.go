package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/holehole5566/connecthub/internal/repo/redis"
)

func TestLimiterBlocksOnShortWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), "login",
		Window{Name: "min", Size: time.Minute, Limit: 100},
		Window{Name: "10s", Size: 10 * time.Second, Limit: 2},
	)

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		retryAfter, allowed, err := limiter.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("allow #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected result on allow #%d: allowed=%v retry_after=%d", i+1, allowed, retryAfter)
		}
	}

	retryAfter, allowed, err := limiter.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("allow #3: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on third attempt in 10s window")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", retryAfter)
	}

	mr.FastForward(11 * time.Second)

	retryAfter, allowed, err = limiter.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("allow after 10s window: %v", err)
	}
	if !allowed || retryAfter != 0 {
		t.Fatalf("unexpected result after fast forward: allowed=%v retry_after=%d", allowed, retryAfter)
	}
}

func TestLimiterSubjectsAreIndependentAndCaseInsensitive(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), "login", Window{Name: "min", Size: time.Minute, Limit: 1})
	ctx := context.Background()

	if _, allowed, err := limiter.Allow(ctx, "Bob"); err != nil || !allowed {
		t.Fatalf("first attempt: allowed=%v err=%v", allowed, err)
	}
	if _, allowed, err := limiter.Allow(ctx, "bob"); err != nil || allowed {
		t.Fatalf("same subject in other case must share the window: allowed=%v err=%v", allowed, err)
	}
	if _, allowed, err := limiter.Allow(ctx, "carol"); err != nil || !allowed {
		t.Fatalf("other subject must not be limited: allowed=%v err=%v", allowed, err)
	}
}

func TestLimiterWithoutWindowsAlwaysAllows(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), "login", Window{Name: "off", Size: time.Minute, Limit: 0})
	for i := 0; i < 5; i++ {
		if _, allowed, err := limiter.Allow(context.Background(), "dave"); err != nil || !allowed {
			t.Fatalf("attempt #%d: allowed=%v err=%v", i+1, allowed, err)
		}
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
