// Package main запускает HTTP-сервер сервиса виртуальных питомцев.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/tamagotchi-server/internal/config"
	"github.com/mmeshcher/tamagotchi-server/internal/handler"
	"github.com/mmeshcher/tamagotchi-server/internal/hub"
	"github.com/mmeshcher/tamagotchi-server/internal/logger"
	"github.com/mmeshcher/tamagotchi-server/internal/middleware"
	"github.com/mmeshcher/tamagotchi-server/internal/repository"
	"github.com/mmeshcher/tamagotchi-server/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := newRepository(ctx, cfg, log)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, nil, log)
	defer svc.Close()

	ownerMiddleware := middleware.NewOwnerMiddleware(cfg.CookieSecret)
	if cfg.CookieSecret == "" {
		sugar.Warn("COOKIE_SECRET is not set, owner cookies will not survive a restart")
	}

	wsHub := hub.New(svc, func(r *http.Request) (string, bool) {
		return middleware.GetOwnerIDFromContext(r.Context())
	}, log.Named("hub"))
	svc.SetNotifier(wsHub)

	h := handler.NewHandler(svc, log, ownerMiddleware, wsHub)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое ухудшение состояния питомцев
	g.Go(func() error {
		svc.StartTicker(ctx, cfg.TickInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting pet server", "addr", cfg.RunAddress, "tick", cfg.TickInterval.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		log.Info("DATABASE_URI is empty, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
}
