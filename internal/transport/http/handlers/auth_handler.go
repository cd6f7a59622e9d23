package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/holehole5566/connecthub/internal/pkg/validate"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	"github.com/holehole5566/connecthub/internal/transport/http/dto"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

type ProfileReader interface {
	GetByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
}

// LoginLimiter throttles login attempts per username.
type LoginLimiter interface {
	Allow(ctx context.Context, subject string) (int64, bool, error)
}

type AuthHandler struct {
	service *authsvc.Service
	tickets *authsvc.TicketManager
	users   ProfileReader
	cookie  SessionCookie
	limiter LoginLimiter
}

func NewAuthHandler(service *authsvc.Service, tickets *authsvc.TicketManager, users ProfileReader, cookie SessionCookie) *AuthHandler {
	return &AuthHandler{
		service: service,
		tickets: tickets,
		users:   users,
		cookie:  cookie,
	}
}

func (h *AuthHandler) AttachLoginLimiter(limiter LoginLimiter) {
	h.limiter = limiter
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	if h.limiter != nil {
		retryAfter, allowed, err := h.limiter.Allow(r.Context(), req.Username)
		if err != nil {
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "rate limiter is unavailable")
			return
		}
		if !allowed {
			httperrors.WriteRateLimited(w, "TOO_MANY_ATTEMPTS", "too many login attempts", retryAfter)
			return
		}
	}

	res, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	h.cookie.Set(w, res.Token, res.ExpiresAt)
	httperrors.Write(w, http.StatusOK, dto.LoginResponse{
		SessionToken: res.Token,
		ExpiresAt:    res.ExpiresAt,
		User: dto.MeResponse{
			ID:       res.Me.ID,
			Username: res.Me.Username,
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	if _, err := h.service.Revoke(r.Context(), identity.Token); err != nil {
		handleAuthError(w, err)
		return
	}

	h.cookie.Clear(w)
	httperrors.Write(w, http.StatusOK, dto.LogoutResponse{OK: true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	revoked, err := h.service.RevokeAllForUser(r.Context(), identity.UserID)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	h.cookie.Clear(w)
	httperrors.Write(w, http.StatusOK, dto.LogoutResponse{OK: true, Revoked: revoked})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	resp := dto.MeResponse{ID: identity.UserID}
	if h.users != nil {
		user, err := h.users.GetByID(r.Context(), identity.UserID)
		switch {
		case err == nil:
			resp.Username = user.Username
			resp.FirstName = user.FirstName
		case errors.Is(err, pgrepo.ErrUserNotFound):
			writeNotFound(w, "NOT_FOUND", "user not found")
			return
		default:
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to load user")
			return
		}
	}

	httperrors.Write(w, http.StatusOK, resp)
}

// Ticket issues a short-lived token for opening the chat socket from
// clients that cannot attach cookies or headers to the upgrade request.
func (h *AuthHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.tickets == nil {
		writeInternal(w, "TICKETS_UNAVAILABLE", "chat tickets are unavailable")
		return
	}

	ticket, expiresAt, err := h.tickets.Issue(identity.UserID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to issue ticket")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TicketResponse{Ticket: ticket, ExpiresAt: expiresAt})
}

func handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authsvc.ErrInvalidInput):
		writeBadRequest(w, "INVALID_REQUEST", "request validation failed")
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		writeUnauthorized(w, "UNAUTHORIZED", "invalid username or password")
	case errors.Is(err, authsvc.ErrUnauthorized):
		writeUnauthorized(w, "UNAUTHORIZED", "authentication failed")
	default:
		writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "session storage is unavailable")
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusBadRequest, code, message)
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusUnauthorized, code, message)
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusNotFound, code, message)
}

func writeUnavailable(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusServiceUnavailable, code, message)
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusInternalServerError, code, message)
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func matchIDFromRequest(r *http.Request) (int64, bool) {
	if r == nil {
		return 0, false
	}
	raw := strings.TrimSpace(chi.URLParam(r, "match_id"))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return authsvc.DefaultCookieName
	}
	return c.Name
}

// SameSite=None is rejected by browsers on insecure cookies.
func (c SessionCookie) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
