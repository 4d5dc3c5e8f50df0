// Package main запускает HTTP-сервер движка кошельков.
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

	"github.com/earnhub/ledger-engine/internal/config"
	"github.com/earnhub/ledger-engine/internal/entitlement"
	"github.com/earnhub/ledger-engine/internal/handler"
	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
	"github.com/earnhub/ledger-engine/internal/scheduler"
	"github.com/earnhub/ledger-engine/internal/service"
)

// storage объединяет репозиторий и таблицу пакетов пользователей.
type storage interface {
	service.Repository
	service.PackageProvider
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo storage
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is not set, using in-memory storage")
		repo = repository.NewMemoryRepository()
	}

	var packages service.PackageProvider = repo
	if cfg.EntitlementAddress != "" {
		packages = entitlement.NewClient(cfg.EntitlementAddress)
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Warnw("falling back to UTC calendar days", "error", err.Error())
		loc = time.UTC
	}

	svc := service.NewService(repo, packages, service.Options{
		Settings: service.StaticSettings(model.WithdrawalSettings{
			Enabled:   cfg.WithdrawalsEnabled,
			MinAmount: cfg.WithdrawalMinAmount,
			MaxAmount: cfg.WithdrawalMaxAmount,
		}),
		ReferralRates: cfg.ReferralFractions(),
		Location:      loc,
		Logger:        logger,
	})
	defer svc.Close()

	sched, err := scheduler.NewScheduler(logger, svc, cfg.ReconcileInterval)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting ledger server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	sched.Start()

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if err := sched.Shutdown(); err != nil {
			return fmt.Errorf("scheduler shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
