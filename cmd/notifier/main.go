// Package main запускает доставку уведомлений из шины в Telegram.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/telegram"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.ParseNotifier()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	sender, err := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.SendTimeout)
	if err != nil {
		sugar.Fatalw("telegram client", "error", err)
	}
	listener := notify.NewListener(sender, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sugar.Infow("starting notifier", "redis", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	if err := listener.Run(ctx, rdb, cfg.Redis.Channel); err != nil {
		sugar.Fatalw("notifier terminated with error", "error", err)
	}
}
