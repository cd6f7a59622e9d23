package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (authsvc.SessionRecord, error)
}

type TicketRedeemer interface {
	Redeem(ctx context.Context, raw string) (int64, error)
}

type Config struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
	CookieName      string
}

type Handler struct {
	hub      *chatsvc.Hub
	sessions SessionAuthenticator
	tickets  TicketRedeemer
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(hub *chatsvc.Hub, sessions SessionAuthenticator, tickets TicketRedeemer, cfg Config, log *zap.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 8 << 10
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &Handler{
		hub:      hub,
		sessions: sessions,
		tickets:  tickets,
		cfg:      cfg,
		logger:   log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE", "chat is unavailable")
		return
	}

	userID, err := h.authenticate(r)
	if err != nil {
		if !errors.Is(err, authsvc.ErrUnauthorized) {
			h.logger.Warn("ws handshake auth failed", zap.Error(err))
		}
		httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	client := chatsvc.NewClient(userID, h.cfg.SendBuffer)
	if err := h.hub.Register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteTimeout),
		)
		_ = conn.Close()
		return
	}
	// The socket outlives the request deadline; only closing it ends the session.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	h.logger.Info("ws connected", zap.Int64("user_id", userID))
	go h.writePump(conn, client)
	h.readPump(ctx, conn, client)

	h.hub.Disconnect(client)
	h.logger.Info("ws disconnected", zap.Int64("user_id", userID))
}

func (h *Handler) authenticate(r *http.Request) (int64, error) {
	if ticket := strings.TrimSpace(r.URL.Query().Get("ticket")); ticket != "" {
		if h.tickets == nil {
			return 0, authsvc.ErrUnauthorized
		}
		return h.tickets.Redeem(r.Context(), ticket)
	}

	token := authsvc.TokenFromRequest(r, h.cfg.CookieName)
	if token == "" || h.sessions == nil {
		return 0, authsvc.ErrUnauthorized
	}
	session, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		return 0, err
	}
	return session.UserID, nil
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, client *chatsvc.Client) {
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", zap.Int64("user_id", client.UserID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		h.dispatch(ctx, client, payload)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *chatsvc.Client) {
	ticker := time.NewTicker(h.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.hub.Disconnect(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Disconnect(client)
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout),
			)
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
