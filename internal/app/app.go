package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TemirB/orderfeed/internal/application/handler"
	"github.com/TemirB/orderfeed/internal/application/service"
	"github.com/TemirB/orderfeed/internal/auth"
	"github.com/TemirB/orderfeed/internal/cache"
	"github.com/TemirB/orderfeed/internal/config"
	"github.com/TemirB/orderfeed/internal/directory"
	"github.com/TemirB/orderfeed/internal/httpapi"
	"github.com/TemirB/orderfeed/internal/kafka"
	"github.com/TemirB/orderfeed/internal/observability"
	"github.com/TemirB/orderfeed/internal/pkg/breaker"
	"github.com/TemirB/orderfeed/internal/postgres"
	"github.com/TemirB/orderfeed/internal/registry"
	"github.com/TemirB/orderfeed/internal/retryqueue"
	"github.com/TemirB/orderfeed/internal/stream"
)

const (
	directoryMemo = 256
	drainWorkers  = 4
)

// Run wires the server from cfg and blocks until ctx is done or a component
// fails. Everything it opened is closed before it returns.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
	}()

	metrics := observability.NewProm()

	orders, err := newCache(cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := orders.(io.Closer); ok {
		closers = append(closers, c)
	}

	reg := registry.New(cfg.Stream.MaxConnsPerShop, logger.Named("registry"), metrics)

	var pool *pgxpool.Pool
	if cfg.Pg.Enabled() {
		if err := postgres.Migrate(cfg.DSN(), logger); err != nil {
			return err
		}
		pool, err = postgres.NewPool(ctx, cfg.DSN(), logger.Named("pg"))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
	}

	shops, err := newDirectory(cfg, pool)
	if err != nil {
		return err
	}

	queue, err := newRetryQueue(cfg, pool)
	if err != nil {
		return err
	}
	if c, ok := queue.(io.Closer); ok {
		closers = append(closers, c)
	}

	brk := breaker.New(cfg.Breaker, breaker.WithOnChange(func(from, to breaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}))

	svc := service.NewService(orders, reg, shops, queue, brk, logger.Named("service"), metrics)

	var lister httpapi.RetryLister
	if s, ok := queue.(retryqueue.Store); ok {
		lister = s
	}
	verifier := auth.NewStaticVerifier(cfg.Auth.Tokens)
	api := httpapi.New(httpapi.Deps{
		Orders:         svc,
		Verifier:       verifier,
		IngestSecret:   cfg.Auth.IngestSecret,
		Stream:         stream.NewHandler(verifier, reg, svc, cfg.Stream.KeepAlive, cfg.Stream.QueueSize, logger.Named("stream")),
		Retries:        lister,
		MetricsHandler: metrics.Handler(),
		Logger:         logger.Named("http"),
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := api.ListenAndServe(gctx, cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Open streams only end once their sinks close, and the HTTP server
	// waits for them on shutdown.
	g.Go(func() error {
		<-gctx.Done()
		reg.CloseAll()
		return nil
	})

	if store, ok := queue.(retryqueue.Store); ok {
		drainer := retryqueue.NewDrainer(store, svc, cfg.RetryQueue, drainWorkers, logger.Named("drainer"), metrics)
		g.Go(func() error { return drainer.Run(gctx) })
	}

	if cfg.Kafka.Enabled() {
		if err := startKafka(gctx, g, cfg, svc, brk, queue, logger, metrics, &closers); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func startKafka(ctx context.Context, g *errgroup.Group, cfg config.Config, svc *service.Service, brk *breaker.Breaker, queue service.Queue, logger *zap.Logger, metrics observability.Metrics, closers *[]io.Closer) error {
	log := logger.Named("kafka")
	topics := []string{cfg.Kafka.Topic}
	if cfg.RetryQueue.Backend == config.BackendKafka {
		topics = append(topics, cfg.Kafka.RetryTopic)
	}
	for _, t := range topics {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, t, cfg.Kafka.Partitions, 1, log); err != nil {
			return fmt.Errorf("ensure topic %s: %w", t, err)
		}
	}

	reader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group)
	*closers = append(*closers, reader)
	ingest := kafka.NewConsumer(handler.NewHandler(svc, brk, cfg.Retry, log), reader, cfg.Kafka.Workers, log, metrics)
	g.Go(func() error {
		ingest.Start(ctx)
		return nil
	})

	if cfg.RetryQueue.Backend != config.BackendKafka {
		return nil
	}
	retryReader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.RetryTopic, cfg.Kafka.Group+"-retry")
	*closers = append(*closers, retryReader)
	// One worker keeps replays in topic order.
	retry := kafka.NewConsumer(handler.NewRetryHandler(svc, queue, cfg.RetryQueue, log.Named("retry"), metrics), retryReader, 1, log.Named("retry"), metrics)
	g.Go(func() error {
		retry.Start(ctx)
		return nil
	})
	return nil
}

func newCache(cfg config.Config, logger *zap.Logger) (service.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		c, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		logger.Info("order cache: redis", zap.String("addr", cfg.Redis.Addr))
		return c, nil
	default:
		logger.Info("order cache: memory", zap.Int("cap", cfg.Cache.Cap))
		return cache.NewMemory(cfg.Cache.Cap, cfg.Cache.MaxShops, logger.Named("cache")), nil
	}
}

func newDirectory(cfg config.Config, pool *pgxpool.Pool) (service.Resolver, error) {
	static := directory.NewStatic(cfg.Shops)
	if pool == nil {
		return static, nil
	}
	pg, err := directory.NewPostgres(pool, directoryMemo)
	if err != nil {
		return nil, fmt.Errorf("shop directory: %w", err)
	}
	return directory.Chain{static, pg}, nil
}

func newRetryQueue(cfg config.Config, pool *pgxpool.Pool) (service.Queue, error) {
	switch cfg.RetryQueue.Backend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, errors.New("retry queue: postgres backend needs PG_HOST")
		}
		return retryqueue.NewPostgres(pool), nil
	case config.BackendKafka:
		return retryqueue.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.RetryTopic), nil
	default:
		return retryqueue.NewMemory(), nil
	}
}
