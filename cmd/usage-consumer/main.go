package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/config"
	"github.com/Muneerali199/DocMagic-sub004/internal/http/server"
	"github.com/Muneerali199/DocMagic-sub004/internal/kafka"
	"github.com/Muneerali199/DocMagic-sub004/internal/metrics"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository/postgres"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// usage-consumer читает события списаний из Kafka и ведет дневные сводки
// credit_usage_daily. На App.Port отдается только /metrics.
func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}
	log := logger.New(logger.ParseLevel(cfg.App.LogLevel)).Named("usage_consumer")
	defer log.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalw("kafka.brokers is required for the usage consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, postgres.DefaultPoolOptions(), log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	creditMetrics := metrics.NewCreditMetrics(registry)
	mux := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	metricsServer := server.NewServer(mux, cfg.App.Port, log)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Errorw("Metrics server failed", "error", err)
		}
	}()

	kcfg := kafka.NewConfig(cfg.Kafka.Brokers, cfg.Kafka.UsageTopic, cfg.Kafka.SubscriptionTopic, cfg.Kafka.GroupID)
	handler := kafka.NewUsageHandler(
		postgres.NewUsageRollupRepository(pool, log),
		kcfg.Consumer,
		creditMetrics.ObserveUsageEventsApplied,
		log,
	)

	if err := kafka.RunConsumerGroup(ctx, kcfg, handler, log); err != nil {
		log.Errorw("Usage consumer stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	log.Infow("Usage consumer stopped")
}
