package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Muneerali199/DocMagic-sub004/internal/app"
	"github.com/Muneerali199/DocMagic-sub004/internal/config"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

func main() {
	// Загрузка конфигурации (.env пропускается, если файла нет)
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := logger.New(logger.ParseLevel(cfg.App.LogLevel))
	defer log.Sync()

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Errorw("Application stopped with error", "error", err)
		os.Exit(1)
	}
	log.Infow("Server stopped gracefully")
}
