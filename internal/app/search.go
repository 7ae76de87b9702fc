package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"overflow/internal/platform/config"
	"overflow/internal/platform/httpserver"
	"overflow/internal/search/consumer"
	searchhandler "overflow/internal/search/handler"
	"overflow/internal/search/index"
	"overflow/internal/search/metrics"
	"overflow/internal/search/projection"
	"overflow/pkg/platform/broker"
)

const indexGaugeInterval = 30 * time.Second

// Search is the assembled read-side service.
type Search struct {
	cfg      config.Search
	logger   *slog.Logger
	router   chi.Router
	store    *projection.Store
	index    *index.Index
	consumer *consumer.Consumer
	metrics  *metrics.Metrics
	closers  []closer
}

// NewSearch opens the projection store and index, re-derives the index when
// it had to be recreated, and declares the consumer queues. An empty
// DataDir keeps everything in memory. The broker is owned by the caller.
func NewSearch(ctx context.Context, cfg config.Search, b broker.Broker, logger *slog.Logger) (*Search, error) {
	a := &Search{cfg: cfg, logger: logger}

	projectionPath := ""
	if cfg.DataDir != "" {
		projectionPath = filepath.Join(cfg.DataDir, "projection")
	}
	store, err := projection.Open(projectionPath,
		projection.WithTombstoneTTL(cfg.TombstoneTTL),
		projection.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closer{name: "projection", fn: store.Close})

	idx, rebuilt, err := index.Open(index.Options{DataPath: cfg.DataDir, Logger: logger})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.index = idx
	a.closers = append(a.closers, closer{name: "index", fn: idx.Close})

	reg := newRegistry()
	a.metrics = metrics.New(reg)

	projector := consumer.NewProjector(store, idx)
	if rebuilt {
		n, err := projector.Rebuild(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
		logger.InfoContext(ctx, "search index rebuilt from projection", "documents", n)
	}
	a.refreshIndexGauge()

	router := consumer.NewRouter(logger)
	projector.Register(router)

	a.consumer = consumer.New(b, router,
		consumer.WithWorkers(cfg.Workers),
		consumer.WithMaxAttempts(cfg.MaxAttempts),
		consumer.WithHandlerTimeout(cfg.HandlerTimeout),
		consumer.WithKinds(router.Kinds()),
		consumer.WithLogger(logger),
		consumer.WithMetrics(a.metrics),
	)
	if err := a.consumer.Declare(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.router = newRouter(logger, reg)
	searchhandler.New(idx, cfg.ResultLimit, logger, a.metrics).Register(a.router)
	return a, nil
}

// Handler exposes the router, mainly for tests.
func (a *Search) Handler() http.Handler { return a.router }

// Run consumes events and serves HTTP until ctx is cancelled.
func (a *Search) Run(ctx context.Context) error {
	srv := httpserver.New(a.cfg.Addr, a.router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Serve(ctx, srv, a.logger) })
	g.Go(func() error { return a.consumer.Run(ctx) })
	g.Go(func() error {
		ticker := time.NewTicker(indexGaugeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.refreshIndexGauge()
			}
		}
	})
	return g.Wait()
}

func (a *Search) refreshIndexGauge() {
	n, err := a.index.Count()
	if err != nil {
		a.logger.Warn("count index documents", "error", err)
		return
	}
	a.metrics.SetIndexedDocuments(int(n))
}

// Close flushes and closes the index and projection store.
func (a *Search) Close() {
	closeAll(a.logger, a.closers)
	a.closers = nil
}
