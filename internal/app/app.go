package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/config"
	"github.com/Muneerali199/DocMagic-sub004/internal/db"
	"github.com/Muneerali199/DocMagic-sub004/internal/generation"
	grpcserver "github.com/Muneerali199/DocMagic-sub004/internal/grpc"
	"github.com/Muneerali199/DocMagic-sub004/internal/http/handlers"
	"github.com/Muneerali199/DocMagic-sub004/internal/http/routes"
	"github.com/Muneerali199/DocMagic-sub004/internal/http/server"
	"github.com/Muneerali199/DocMagic-sub004/internal/kafka"
	"github.com/Muneerali199/DocMagic-sub004/internal/metering"
	"github.com/Muneerali199/DocMagic-sub004/internal/metrics"
	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/internal/scheduler"
	"github.com/Muneerali199/DocMagic-sub004/internal/stripe"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	planCacheSize = 64
	planCacheTTL  = 5 * time.Minute
	subsCacheTTL  = 15 * time.Minute

	balanceMetricsInterval = time.Minute
	shutdownTimeout        = 30 * time.Second
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config *config.Config
	Logger *logger.Logger
	Router *gin.Engine

	db            *db.DBClient
	redis         *redis.Client
	producer      kafka.Producer
	meter         *metering.Meter
	httpServer    *server.Server
	grpcServer    *grpcserver.Server
	sweep         *scheduler.ResetSweep
	balances      metrics.BalanceMetrics
}

// New создает и инициализирует новый экземпляр приложения.
// Redis и Kafka необязательны: без них сервис работает без кеша и событий.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &App{Config: cfg, Logger: log}

	dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, err
	}
	a.db = dbClient
	if cfg.Database.AutoMigrate {
		n, err := dbClient.Migrate(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Infow("Database migrations applied", "count", n)
	}

	// Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	creditMetrics := metrics.NewCreditMetrics(registry)

	// Репозитории
	sqlDB := dbClient.DB()
	creditsRepo := repository.NewPostgresCreditsRepository(sqlDB, log)
	a.balances = metrics.NewBalanceMetrics(registry, creditsRepo, log)
	plans := repository.NewCachedPlanRepository(repository.NewPostgresPlanRepository(sqlDB, log), planCacheSize, planCacheTTL)
	subs := repository.NewPostgresSubscriptionRepository(sqlDB, log)
	if cfg.Redis.Addr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Redis unavailable, continuing without cache and with in-memory rate limits", "error", err)
		} else {
			a.redis = client
			subs = repository.NewCachedSubscriptionRepository(subs, repository.NewRedisCacheRepository(client, subsCacheTTL, log), log)
		}
	}

	// Kafka
	a.producer = kafka.NopProducer{}
	if len(cfg.Kafka.Brokers) > 0 {
		kcfg := kafka.NewConfig(cfg.Kafka.Brokers, cfg.Kafka.UsageTopic, cfg.Kafka.SubscriptionTopic, cfg.Kafka.GroupID)
		if err := kafka.EnsureKafkaTopics(ctx, kcfg.Brokers, kcfg.Topics(), log); err != nil {
			log.Warnw("Failed to ensure Kafka topics", "error", err)
		}
		producer, err := kafka.NewKafkaProducer(kcfg.Brokers, kcfg.Topics(), log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.producer = producer
	}

	// Домен
	a.meter = metering.NewMeter(creditsRepo, log,
		metering.WithPublisher(a.producer),
		metering.WithMetrics(creditMetrics),
	)
	reconciler := stripe.NewReconciler(cfg.Stripe.WebhookSecret, stripe.ReconcilerDeps{
		Subscriptions: subs,
		Plans:         plans,
		Payments:      repository.NewPostgresPaymentRepository(sqlDB, log),
		Events:        repository.NewPostgresWebhookEventRepository(sqlDB, log),
		Credits:       creditsRepo,
		Publisher:     a.producer,
		Metrics:       creditMetrics,
	}, log)
	generator := generation.NewFromConfig(generation.Config{
		Providers:      cfg.Generation.Providers,
		OpenAIKey:      cfg.Generation.OpenAIKey,
		OpenAIModel:    cfg.Generation.OpenAIModel,
		MistralKey:     cfg.Generation.MistralKey,
		MistralModel:   cfg.Generation.MistralModel,
		GeminiKey:      cfg.Generation.GeminiKey,
		GeminiModel:    cfg.Generation.GeminiModel,
		Timeout:        cfg.Generation.Timeout,
		MaxRetries:     cfg.Generation.MaxRetries,
		RequestsPerSec: cfg.Generation.RequestsPerSec,
		Burst:          cfg.Generation.Burst,
	}, log)
	if err := generator.Configured(); err != nil {
		log.Warnw("No generation provider configured, /generate endpoints will return 503")
	}
	var stripeClient stripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient = stripe.NewStripeClient(cfg.Stripe.APIKey, log)
	} else {
		log.Warnw("Stripe API key is not set, checkout and portal are disabled")
	}

	// HTTP
	validator := middleware.NewSupabaseValidator(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	rateLimit, err := middleware.NewRateLimiter(cfg.RateLimit.Rate, a.redis, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	a.Router = gin.New()
	routes.SetupRoutes(a.Router, routes.Handlers{
		Credits:     handlers.NewCreditsHandler(a.meter, creditsRepo, subs, log),
		Generation:  handlers.NewGenerationHandler(a.meter, generator, log),
		Billing:     handlers.NewBillingHandler(stripeClient, plans, subs, cfg.App.PublicURL, log),
		Webhook:     handlers.NewWebhookHandler(reconciler, log),
		Health:      handlers.Health(sqlDB),
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:      middleware.RequestLogger(log),
		CORS:        middleware.CORS(cfg.CORS.AllowedOrigins),
		RequireAuth: middleware.NewJWTMiddleware(log, validator).RequireAuth(),
		RateLimit:   rateLimit,
	}, log)
	a.httpServer = server.NewServer(a.Router, cfg.App.Port, log)

	// gRPC и планировщик
	a.grpcServer = grpcserver.NewServer(sqlDB, validator, log)
	a.sweep, err = scheduler.NewResetSweep(creditsRepo, cfg.Scheduler.ResetSweepSpec, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Run запускает серверы и планировщик и блокируется до отмены ctx
// или падения одного из серверов.
func (a *App) Run(ctx context.Context) error {
	a.balances.StartRecording(balanceMetricsInterval)
	a.sweep.Start()

	errCh := make(chan error, 2)
	go func() { errCh <- a.httpServer.Start() }()
	go func() { errCh <- a.grpcServer.Start(":" + a.Config.GRPC.Port) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Infow("Shutdown signal received")
	case runErr = <-errCh:
		a.Logger.Errorw("Server stopped unexpectedly", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown: %w", err))
	}
	a.grpcServer.GracefulStop()
	a.sweep.Stop(shutdownCtx)
	// дожидаемся публикации событий уже списанных запросов
	a.meter.Wait()
	a.balances.Stop()
	return runErr
}

// Close освобождает соединения.
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.Logger.Errorw("Failed to close Kafka producer", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Errorw("Failed to close Redis client", "error", err)
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
