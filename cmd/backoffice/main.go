// Package main запускает HTTP-сервер бэк-офиса партнёрской программы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/affiliate-backoffice/internal/config"
	"github.com/mmeshcher/affiliate-backoffice/internal/handler"
	"github.com/mmeshcher/affiliate-backoffice/internal/identity"
	"github.com/mmeshcher/affiliate-backoffice/internal/metrics"
	"github.com/mmeshcher/affiliate-backoffice/internal/middleware"
	"github.com/mmeshcher/affiliate-backoffice/internal/notify"
	"github.com/mmeshcher/affiliate-backoffice/internal/repository"
	"github.com/mmeshcher/affiliate-backoffice/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var provider identity.Provider
	if cfg.IdentityProviderAddress != "" {
		provider = identity.NewClient(cfg.IdentityProviderAddress, cfg.IdentityProviderKey)
		sugar.Infow("using external identity provider", "addr", cfg.IdentityProviderAddress)
	} else {
		provider = identity.NewLocal(repo)
	}

	if cfg.SessionSecret == "" {
		sugar.Warn("SESSION_SECRET is empty, sessions will not survive a restart")
	}
	sessions, err := identity.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		sugar.Fatalw("session initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []service.Option{
		service.WithOwners(cfg.OwnerEmails),
		service.WithMetrics(metrics.NewLedger(reg)),
		service.WithReconcileInterval(cfg.ReconcileInterval),
	}

	var mailer *notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, cfg.MailQueueSize, logger)
		opts = append(opts, service.WithNotifier(mailer))
	}

	svc := service.NewService(repo, provider, sessions, logger, opts...)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(sessions, cfg.CookieSecure)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter(handler.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Registry:    reg,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка кэша балансов с привязками
	g.Go(func() error {
		svc.StartReconciliation(ctx)
		return nil
	})

	if mailer != nil {
		g.Go(func() error {
			return mailer.Run(ctx)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting backoffice server", "addr", cfg.RunAddress)
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
