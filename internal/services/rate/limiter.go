package rate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Window allows Limit hits per Size. A non-positive Limit disables it.
type Window struct {
	Name  string
	Size  time.Duration
	Limit int
}

// Limiter counts hits per subject in fixed Redis windows.
type Limiter struct {
	store   WindowStore
	prefix  string
	windows []Window
}

func NewLimiter(store WindowStore, prefix string, windows ...Window) *Limiter {
	active := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Limit > 0 && w.Size > 0 {
			active = append(active, w)
		}
	}

	return &Limiter{
		store:   store,
		prefix:  strings.TrimSuffix(prefix, ":"),
		windows: active,
	}
}

// Allow records one hit for subject and reports whether it fits every window.
// When it does not, the returned value is the wait in whole seconds.
func (l *Limiter) Allow(ctx context.Context, subject string) (int64, bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, false, fmt.Errorf("rate subject is required")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	retryAfterSec := int64(0)
	for _, w := range l.windows {
		count, ttl, err := l.store.IncrementWindow(ctx, l.key(w, subject), w.Size)
		if err != nil {
			return 0, false, err
		}
		if count > int64(w.Limit) {
			retryAfterSec = maxInt64(retryAfterSec, ceilSeconds(ttl))
		}
	}

	if retryAfterSec > 0 {
		return retryAfterSec, false, nil
	}

	return 0, true, nil
}

func (l *Limiter) key(w Window, subject string) string {
	return "rate:" + l.prefix + ":" + w.Name + ":" + strings.ToLower(subject)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
