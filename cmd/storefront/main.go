// Package main запускает HTTP API витрины.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/handler"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/validation"
	"github.com/mmeshcher/storefront/internal/yookassa"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	allowList, err := validation.NewIPAllowList(cfg.WebhookAllowedCIDRs)
	if err != nil {
		sugar.Fatalw("webhook allow-list error", "error", err.Error())
	}

	var trustedProxies *validation.IPAllowList
	if cfg.AllowProxy {
		trustedProxies, err = validation.NewIPAllowList(cfg.AllowedProxyCIDRs)
		if err != nil {
			sugar.Fatalw("trusted proxies error", "error", err.Error())
		}
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := notify.NewPublisher(rdb, cfg.Redis.Channel, cfg.NotifyTimeout)
	gateway := yookassa.NewClient(cfg.YooKassaAPIURL, cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.GatewayTimeout)

	svc := service.NewService(repo, gateway, publisher, allowList, logger)
	defer svc.Close()

	if cfg.JWTSecretKey == "" {
		sugar.Warn("JWT_SECRET_KEY is empty, admin routes will reject every request")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecretKey)
	h := handler.NewHandler(svc, logger, authMiddleware, trustedProxies)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress)
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
