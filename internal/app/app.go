// Package app wires the question and search services from configuration.
// Binaries under cmd/ only parse config, install signal handling and call
// into this package.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"overflow/internal/platform/config"
	"overflow/internal/platform/kafka"
	"overflow/internal/platform/metrics"
	"overflow/internal/platform/middleware"
	"overflow/pkg/platform/broker"
	"overflow/pkg/platform/broker/memory"
	"overflow/pkg/platform/httputil"
)

// InstallPropagator makes the W3C trace context the process-wide propagator
// so relay and consumer carry traces through broker headers.
func InstallPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// OpenBroker connects the transport selected by cfg.Broker.
func OpenBroker(ctx context.Context, cfg config.Common, clientID string, logger *slog.Logger) (broker.Broker, error) {
	switch cfg.Broker {
	case "memory":
		logger.Warn("using in-process broker; events do not leave this process")
		return memory.New(), nil
	case "kafka":
		b, err := kafka.New(ctx, kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
			ClientID:          clientID,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// check is one dependency probed by /healthz.
type check struct {
	name string
	fn   func(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// newRouter returns a chi router with the middleware stack and operational
// endpoints shared by both services.
func newRouter(logger *slog.Logger, reg *prometheus.Registry, checks ...check) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestContext)
	r.Use(middleware.AccessLog(logger))
	r.Use(metrics.NewHTTP(reg).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.fn(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", c.name, "error", err)
				status[c.name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

type closer struct {
	name string
	fn   func() error
}

// closeAll runs closers in reverse order of acquisition.
func closeAll(logger *slog.Logger, closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			logger.Warn("close failed", "resource", closers[i].name, "error", err)
		}
	}
}
