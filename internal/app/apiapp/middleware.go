package apiapp

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
	"github.com/holehole5566/connecthub/internal/transport/http/handlers"
)

func ApplyMiddlewares(r chiRouter, log *zap.Logger, allowedOrigins []string) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(corsMiddleware(allowedOrigins))
}

// SessionAuthenticator resolves a session token and slides its expiry.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (authsvc.SessionRecord, error)
}

// AuthMiddleware accepts the session cookie or a bearer token and re-issues
// the cookie with the extended expiry on every authenticated request.
func AuthMiddleware(sessions SessionAuthenticator, cookie handlers.SessionCookie, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions == nil {
				httperrors.WriteError(w, http.StatusInternalServerError, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
				return
			}

			token := authsvc.TokenFromRequest(r, cookie.Name)
			if token == "" {
				httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token")
				return
			}

			session, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, authsvc.ErrUnauthorized) {
					if log != nil {
						log.Debug("auth middleware validation failed", zap.Error(err))
					}
					httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
					return
				}
				if log != nil {
					log.Warn("auth middleware session lookup failed", zap.Error(err))
				}
				httperrors.WriteError(w, http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE", "session store is unavailable")
				return
			}

			cookie.Set(w, session.Token, session.ExpiresAt)
			ctx := authsvc.WithIdentity(r.Context(), authsvc.Identity{
				UserID:    session.UserID,
				Token:     session.Token,
				ExpiresAt: session.ExpiresAt,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
