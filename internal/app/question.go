package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	jwttoken "overflow/internal/jwt_token"
	"overflow/internal/outbox"
	outboxmemory "overflow/internal/outbox/store/memory"
	outboxpostgres "overflow/internal/outbox/store/postgres"
	"overflow/internal/platform/config"
	"overflow/internal/platform/httpserver"
	"overflow/internal/platform/postgres"
	"overflow/internal/platform/redis"
	questionhandler "overflow/internal/question/handler"
	questionmetrics "overflow/internal/question/metrics"
	questionservice "overflow/internal/question/service"
	questionstore "overflow/internal/question/store"
	"overflow/internal/tags"
	taghandler "overflow/internal/tags/handler"
	tagservice "overflow/internal/tags/service"
	tagstore "overflow/internal/tags/store"
	"overflow/pkg/platform/broker"
	"overflow/pkg/platform/circuit"
	"overflow/pkg/platform/tx"
)

const jwtIssuer = "overflow"

type tagStore interface {
	tagservice.Store
	tags.Loader
}

// questionStorage is the persistence selected by QUESTION_STORE.
type questionStorage struct {
	questions questionservice.Store
	tags      tagStore
	outbox    outbox.Store
	runner    tx.Runner
	db        *sql.DB
}

// Question is the assembled write-side service.
type Question struct {
	cfg         config.Question
	logger      *slog.Logger
	router      chi.Router
	relay       *outbox.Relay
	invalidator *tags.Invalidator
	closers     []closer
}

// NewQuestion opens storage, the tag cache and the outbox relay, and mounts
// the HTTP API. The publisher is owned by the caller.
func NewQuestion(ctx context.Context, cfg config.Question, publisher broker.Publisher, logger *slog.Logger) (*Question, error) {
	a := &Question{cfg: cfg, logger: logger}

	storage, err := openQuestionStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if storage.db != nil {
		a.closers = append(a.closers, closer{name: "postgres", fn: storage.db.Close})
	}

	reg := newRegistry()

	cache := tags.NewCache(storage.tags,
		tags.WithTTL(cfg.TagCacheTTL),
		tags.WithLogger(logger),
		tags.WithMetrics(tags.NewMetrics(reg)),
	)
	tagOpts := []tagservice.Option{tagservice.WithLogger(logger)}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		a.closers = append(a.closers, closer{name: "redis", fn: rdb.Close})
		a.invalidator = tags.NewInvalidator(rdb.Client, cache, logger)
		tagOpts = append(tagOpts, tagservice.WithAnnouncer(a.invalidator))
	}

	var checks []check
	if storage.db != nil {
		checks = append(checks, check{name: "postgres", fn: storage.db.PingContext})
	}
	if rdb != nil {
		checks = append(checks, check{name: "redis", fn: rdb.Health})
	}

	validator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer))

	svc := questionservice.New(storage.questions, cache, storage.outbox, storage.runner,
		questionservice.WithLogger(logger),
		questionservice.WithMetrics(questionmetrics.New(reg)),
	)
	tagSvc := tagservice.New(storage.tags, cache, tagOpts...)

	a.relay = outbox.NewRelay(storage.outbox, publisher,
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBreaker(circuit.New("outbox-relay",
			circuit.WithFailureThreshold(cfg.Outbox.FailureThreshold),
			circuit.WithCooldown(cfg.Outbox.Cooldown),
		)),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
		outbox.WithLogger(logger),
	)

	a.router = newRouter(logger, reg, checks...)
	questionhandler.New(svc, logger, validator).Register(a.router)
	taghandler.New(tagSvc, logger, validator).Register(a.router)
	return a, nil
}

func openQuestionStorage(ctx context.Context, cfg config.Question, logger *slog.Logger) (questionStorage, error) {
	if cfg.Store == "memory" {
		logger.Warn("using in-memory question storage; data is lost on exit")
		return questionStorage{
			questions: questionstore.NewInMemory(),
			tags:      tagstore.NewInMemory(),
			outbox:    outboxmemory.New(),
			runner:    tx.NewLockRunner(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return questionStorage{}, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return questionStorage{}, err
	}
	return questionStorage{
		questions: questionstore.NewPostgres(db),
		tags:      tagstore.NewPostgres(db),
		outbox:    outboxpostgres.New(db),
		runner:    tx.NewSQLRunner(db, cfg.TxTimeout),
		db:        db,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (a *Question) Handler() http.Handler { return a.router }

// Relay exposes the outbox relay so tests can drain synchronously.
func (a *Question) Relay() *outbox.Relay { return a.relay }

// Run serves HTTP and relays the outbox until ctx is cancelled.
func (a *Question) Run(ctx context.Context) error {
	srv := httpserver.New(a.cfg.Addr, a.router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Serve(ctx, srv, a.logger) })
	g.Go(func() error { return a.relay.Run(ctx) })
	if a.invalidator != nil {
		g.Go(func() error { return a.invalidator.Run(ctx) })
	}
	return g.Wait()
}

// Close releases storage and cache connections.
func (a *Question) Close() {
	closeAll(a.logger, a.closers)
	a.closers = nil
}
