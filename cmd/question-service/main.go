// Command question-service runs the write side: questions, answers, tags
// and the outbox relay.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"overflow/internal/app"
	"overflow/internal/platform/config"
	"overflow/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("question service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadQuestion()
	if err != nil {
		return err
	}
	log := logger.New("question-service", cfg.LogLevel)
	app.InstallPropagator()

	b, err := app.OpenBroker(ctx, cfg.Common, "question-service", log)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := app.NewQuestion(ctx, cfg, b, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Run(ctx)
}
