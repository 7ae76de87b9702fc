// Command overflow runs both services in one process sharing a single
// broker. With BROKER=memory and QUESTION_STORE=memory it needs no
// external infrastructure.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"overflow/internal/app"
	"overflow/internal/platform/config"
	"overflow/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("overflow failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	qcfg, err := config.LoadQuestion()
	if err != nil {
		return err
	}
	scfg, err := config.LoadSearch()
	if err != nil {
		return err
	}
	log := logger.New("overflow", qcfg.LogLevel)
	app.InstallPropagator()

	b, err := app.OpenBroker(ctx, qcfg.Common, "overflow", log)
	if err != nil {
		return err
	}
	defer b.Close()

	// The search queues must exist before the relay publishes.
	search, err := app.NewSearch(ctx, scfg, b, log.With("component", "search"))
	if err != nil {
		return err
	}
	defer search.Close()

	question, err := app.NewQuestion(ctx, qcfg, b, log.With("component", "question"))
	if err != nil {
		return err
	}
	defer question.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return search.Run(ctx) })
	g.Go(func() error { return question.Run(ctx) })
	return g.Wait()
}
