package handlers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Get always answers 200 while the process serves; dependency state is
// reported per component.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			components[name] = "disabled"
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := check.Ping(ctx); err != nil {
			components[name] = "down"
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	httperrors.Write(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"components": components,
	})
}
