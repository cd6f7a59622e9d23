package apiapp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/holehole5566/connecthub/internal/config"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
	discoverysvc "github.com/holehole5566/connecthub/internal/services/discovery"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
	"github.com/holehole5566/connecthub/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService      *authsvc.Service
	Tickets          *authsvc.TicketManager
	LoginLimiter     handlers.LoginLimiter
	Profiles         handlers.ProfileReader
	DiscoveryService *discoverysvc.Service
	MatchService     *matchessvc.Service
	ChatHub          *chatsvc.Hub
	WebSocket        http.Handler
	HealthChecks     map[string]handlers.Pinger
	Logger           *zap.Logger
	Config           config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	cookie := handlers.SessionCookie{
		Name:   deps.Config.Session.CookieName,
		Secure: deps.Config.Session.CookieSecure,
	}

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.Tickets, deps.Profiles, cookie)
	if deps.LoginLimiter != nil {
		authHandler.AttachLoginLimiter(deps.LoginLimiter)
	}
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	discoveryHandler := handlers.NewDiscoveryHandler(deps.DiscoveryService)
	matchesHandler := handlers.NewMatchesHandler(deps.MatchService)
	chatHandler := handlers.NewChatHandler(deps.ChatHub, deps.MatchService)

	var sessions SessionAuthenticator
	if deps.AuthService != nil {
		sessions = deps.AuthService
	}
	authMW := AuthMiddleware(sessions, cookie, deps.Logger)

	r.Get("/health", healthHandler.Get)
	if deps.WebSocket != nil {
		// Upgraded connections outlive any request timeout.
		r.Handle("/ws", deps.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(authMW)
				r.Post("/auth/logout", authHandler.Logout)
				r.Post("/auth/logout_all", authHandler.LogoutAll)
				r.Get("/auth/me", authHandler.Me)
				r.Get("/discover", discoveryHandler.Handle)
				r.Post("/matches/like", matchesHandler.Like)
				r.Get("/matches", matchesHandler.List)
				r.Post("/matches/{match_id}/seen", matchesHandler.Seen)
				r.Post("/chat/ticket", authHandler.Ticket)
				r.Get("/chat/{match_id}/messages", chatHandler.History)
				r.Post("/chat/{match_id}/messages", chatHandler.Send)
				r.Post("/chat/{match_id}/read", chatHandler.MarkRead)
			})
		})
	})
}
