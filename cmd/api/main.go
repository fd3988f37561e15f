package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/inbox-api/internal/config"
	"github.com/jwalitptl/inbox-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/inbox-api/internal/handler/notification"
	promHandler "github.com/jwalitptl/inbox-api/internal/handler/prometheus"
	"github.com/jwalitptl/inbox-api/internal/middleware"
	"github.com/jwalitptl/inbox-api/internal/repository/sqlstore"
	"github.com/jwalitptl/inbox-api/internal/router"
	notificationService "github.com/jwalitptl/inbox-api/internal/service/notification"
	"github.com/jwalitptl/inbox-api/internal/service/session"
	settingsService "github.com/jwalitptl/inbox-api/internal/service/settings"
	statsService "github.com/jwalitptl/inbox-api/internal/service/stats"
	subscriptionService "github.com/jwalitptl/inbox-api/internal/service/subscription"
	"github.com/jwalitptl/inbox-api/pkg/auth"
	"github.com/jwalitptl/inbox-api/pkg/logger"
	"github.com/jwalitptl/inbox-api/pkg/messaging"
	"github.com/jwalitptl/inbox-api/pkg/messaging/redis"
	"github.com/jwalitptl/inbox-api/pkg/metrics"
)

func main() {
	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Initialize database
	db, err := sqlstore.NewDB(sqlstore.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := sqlstore.Migrate(db, cfg.Database.Driver); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Redis is optional unless sessions live there
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redis.NewClient(context.Background(), redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	}

	var broker messaging.Broker = messaging.NopBroker{}
	if redisClient != nil {
		broker = redis.NewRedisBroker(redisClient, &log.Logger)
	}
	defer broker.Close()

	// Metrics
	httpMetrics := promHandler.New(nil, cfg.Metrics.Prefix)
	appMetrics := metrics.NewMetrics(cfg.Metrics.Prefix, "notifications", httpMetrics.Registry())

	// Initialize repositories
	base := sqlstore.NewBaseRepository(db)
	notificationRepo := sqlstore.NewNotificationRepository(base)
	settingsRepo := sqlstore.NewSettingsRepository(base)
	subscriptionRepo := sqlstore.NewSubscriptionRepository(base)

	// Initialize services
	notificationSvc := notificationService.NewService(notificationRepo,
		notificationService.WithPublisher(broker, cfg.Redis.EventsChannel),
		notificationService.WithMetrics(appMetrics),
	)
	settingsSvc := settingsService.NewService(settingsRepo, time.Now)
	subscriptionSvc := subscriptionService.NewService(subscriptionRepo, time.Now)
	statsSvc := statsService.NewService(notificationRepo, time.Now)

	resolver, err := newResolver(cfg, base, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure session resolver")
	}
	authMiddleware := middleware.NewAuthMiddleware(resolver, appMetrics)

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		notificationHandler.NewHandler(notificationSvc, settingsSvc, subscriptionSvc, statsSvc),
		health.NewHandler(db),
		httpMetrics,
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RateLimit:      rate.Limit(cfg.RateLimit.RPS),
			RateBurst:      cfg.RateLimit.Burst,
			RateLimitOff:   !cfg.RateLimit.Enabled,
			Timeout:        cfg.Server.Timeout(),
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Str("session_backend", cfg.Session.Backend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func newResolver(cfg *config.Config, base sqlstore.BaseRepository, client *goredis.Client) (session.Resolver, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendSQL:
		return session.NewSQLResolver(sqlstore.NewSessionRepository(base), time.Now), nil
	case config.SessionBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis session backend needs redis.url")
		}
		return session.NewRedisResolver(client, cfg.Session.RedisPrefix), nil
	case config.SessionBackendJWT:
		return session.NewJWTResolver(auth.NewJWTService(cfg.Session.JWTSecret, cfg.Session.JWTIssuer)), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
	}
}
