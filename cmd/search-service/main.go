// Command search-service runs the read side: the projection consumer and
// the search endpoint.
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
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadSearch()
	if err != nil {
		return err
	}
	log := logger.New("search-service", cfg.LogLevel)
	app.InstallPropagator()

	b, err := app.OpenBroker(ctx, cfg.Common, "search-service", log)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := app.NewSearch(ctx, cfg, b, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Run(ctx)
}
