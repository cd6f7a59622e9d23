package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/holehole5566/connecthub/internal/config"
	s3infra "github.com/holehole5566/connecthub/internal/infra/s3"
	"github.com/holehole5566/connecthub/internal/jobs/cleanup"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
	redrepo "github.com/holehole5566/connecthub/internal/repo/redis"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
	discoverysvc "github.com/holehole5566/connecthub/internal/services/discovery"
	likessvc "github.com/holehole5566/connecthub/internal/services/likes"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
	mediasvc "github.com/holehole5566/connecthub/internal/services/media"
	ratesvc "github.com/holehole5566/connecthub/internal/services/rate"
	"github.com/holehole5566/connecthub/internal/transport/http/handlers"
	"github.com/holehole5566/connecthub/internal/transport/ws"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	hub        *chatsvc.Hub
	cleanup    *cleanup.Job
	stopJobs   context.CancelFunc
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, cfg.HTTP.AllowedOrigins)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, pgrepo.PoolConfig{
		DSN:         cfg.Postgres.DSN,
		MaxConns:    cfg.Postgres.MaxConns,
		PingTimeout: 5 * time.Second,
	}); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}
	if pool != nil && cfg.Postgres.AutoMigrate {
		applied, err := pgrepo.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", zap.Strings("versions", applied))
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	sessionRepo := redrepo.NewSessionRepo(redisClient)
	ticketRepo := redrepo.NewTicketRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)

	txManager := pgrepo.NewTxManager(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	likeRepo := pgrepo.NewLikeRepo(pool)
	matchRepo := pgrepo.NewMatchRepo(pool)
	messageRepo := pgrepo.NewMessageRepo(pool)
	discoveryRepo := pgrepo.NewDiscoveryRepo(pool)

	authService := authsvc.NewService(authsvc.Dependencies{
		Sessions:    sessionRepo,
		Credentials: userRepo,
		SessionTTL:  cfg.Session.TTL,
	})
	tickets := authsvc.NewTicketManager(cfg.Chat.TicketSecret, cfg.Chat.TicketTTL, ticketRepo)
	loginLimiter := ratesvc.NewLimiter(rateRepo, "login",
		ratesvc.Window{Name: "min", Size: time.Minute, Limit: cfg.RateLimit.LoginPerMinute},
		ratesvc.Window{Name: "10s", Size: 10 * time.Second, Limit: cfg.RateLimit.LoginPer10Sec},
	)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	discoveryDeps := discoverysvc.Dependencies{
		Users:      userRepo,
		Candidates: discoveryRepo,
		Logger:     log,
	}
	if s3Client != nil {
		discoveryDeps.Photos = mediasvc.NewPhotoStorage(s3Client, cfg.S3.Bucket, cfg.S3.PhotoURLTTL)
	}
	discoveryService := discoverysvc.NewService(discoveryDeps, discoverysvc.Config{
		DefaultAgeMin:   cfg.Discovery.DefaultAgeMin,
		DefaultAgeMax:   cfg.Discovery.DefaultAgeMax,
		DefaultDistance: cfg.Discovery.DefaultDistance,
		DefaultLimit:    cfg.Discovery.DefaultLimit,
	})

	likesService := likessvc.NewService(likeRepo, likessvc.Config{
		LikesPerDay:      cfg.Likes.PerDay,
		SuperLikesPerDay: cfg.Likes.SuperPerDay,
		DefaultTimezone:  cfg.Likes.Timezone,
	})
	matchesService := matchessvc.NewService(matchessvc.Dependencies{
		Tx:         txManager,
		Users:      userRepo,
		LikeStore:  likeRepo,
		MatchStore: matchRepo,
		Quota:      likesService,
	})

	hub := chatsvc.NewHub(chatsvc.Dependencies{
		Tx:           txManager,
		Messages:     messageRepo,
		LastMessage:  matchesService,
		Participants: matchesService,
		Logger:       log,
	})
	wsHandler := ws.NewHandler(hub, authService, tickets, ws.Config{
		SendBuffer:      cfg.Chat.SendBuffer,
		WriteTimeout:    cfg.Chat.WriteTimeout,
		PongTimeout:     cfg.Chat.PongTimeout,
		MaxMessageBytes: cfg.Chat.MaxMessageBytes,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		CookieName:      cfg.Session.CookieName,
	}, log)

	healthChecks := map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		"postgres": nil,
	}
	if pool != nil {
		healthChecks["postgres"] = pool
	}

	RegisterRoutes(r, Dependencies{
		AuthService:      authService,
		Tickets:          tickets,
		LoginLimiter:     loginLimiter,
		Profiles:         userRepo,
		DiscoveryService: discoveryService,
		MatchService:     matchesService,
		ChatHub:          hub,
		WebSocket:        wsHandler,
		HealthChecks:     healthChecks,
		Logger:           log,
		Config:           cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		hub:        hub,
		cleanup:    cleanup.New(sessionRepo, cfg.Cleanup.Interval, log),
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	jobsCtx, cancel := context.WithCancel(context.Background())
	a.stopJobs = cancel
	go a.cleanup.Start(jobsCtx)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.stopJobs != nil {
		a.stopJobs()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	// Hijacked websocket connections are not closed by the server.
	if a.hub != nil {
		a.hub.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
