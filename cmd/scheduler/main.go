package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshcut/freshcut-go/internal/config"
	"github.com/freshcut/freshcut-go/internal/postgres"
	"github.com/freshcut/freshcut-go/internal/push"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
	"github.com/freshcut/freshcut-go/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.NewScheduler()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: cfg.Postgres.DSN()})
	if err != nil {
		logger.Error("failed to initialize postgres", "error", err)
		os.Exit(1)
	}
	defer pgxPool.Close()

	store := postgresrepo.NewStore(pgxPool)

	sender := push.NewWebPush(push.VAPIDConfig{
		Subject:    cfg.VAPID.Subject,
		PublicKey:  cfg.VAPID.PublicKey,
		PrivateKey: cfg.VAPID.PrivateKey,
	})

	sched := scheduler.New(
		store.Queue(),
		store.Appointments(),
		store.Subscriptions(),
		sender,
		logger,
		scheduler.Config{
			Interval:       time.Minute,
			ReminderWindow: 30 * time.Minute,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("scheduler started", "interval", "1m")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler finished with error", "error", err)
		os.Exit(1)
	}

	logger.Info("scheduler stopped")
}
