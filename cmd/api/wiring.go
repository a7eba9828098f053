package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/config"
	"github.com/Agbobli5373/grocery-shop/internal/dedupe"
	"github.com/Agbobli5373/grocery-shop/internal/events"
	"github.com/Agbobli5373/grocery-shop/internal/live"
	"github.com/Agbobli5373/grocery-shop/internal/observability/logger"
	"github.com/Agbobli5373/grocery-shop/internal/observability/metrics"
	"github.com/Agbobli5373/grocery-shop/internal/observability/tracing"
	"github.com/Agbobli5373/grocery-shop/internal/storage/postgres"
	transporthttp "github.com/Agbobli5373/grocery-shop/internal/transport/http"
	"github.com/Agbobli5373/grocery-shop/migrations"
	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	reapInterval    = time.Minute
	sweepInterval   = time.Minute
)

func loadConfig() (config.Config, error) {
	boot, err := zap.NewProduction()
	if err != nil {
		return config.Config{}, err
	}
	defer func() { _ = boot.Sync() }()
	return config.Load(boot), nil
}

func newLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func newMetrics() *metrics.Metrics {
	return metrics.New()
}

func startTracing(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) error {
	_, err := tracing.NewProvider(lc, tracing.Config{
		Enabled:          cfg.OTelEnabled,
		ServiceName:      "grocery-shop",
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: cfg.OTLPProtocol,
		SamplingRatio:    1,
	}, log)
	return err
}

func newPool(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database ready")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func newIDs(cfg config.Config) (app.IDGenerator, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return app.NewSnowflakeIDs(node), nil
}

func newClock() clock.Clock {
	return clock.NewSystem()
}

type storage struct {
	fx.Out

	Ledger *postgres.StockLedger
	Carts  *postgres.CartRepository
	Orders *postgres.OrderRepository
	Outbox *postgres.OutboxRepository
}

func newStorage(pool *pgxpool.Pool) storage {
	return storage{
		Ledger: postgres.NewStockLedger(pool),
		Carts:  postgres.NewCartRepository(pool),
		Orders: postgres.NewOrderRepository(pool),
		Outbox: postgres.NewOutboxRepository(pool),
	}
}

func newRegistry(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *live.Registry {
	reg := live.NewRegistry(clk,
		live.WithBuffer(cfg.LiveBuffer),
		live.WithIdleTimeout(cfg.LiveIdleTimeout),
		live.WithLogger(log),
		live.WithMetrics(m),
	)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			reg.Shutdown()
			return nil
		},
	})
	return reg
}

// newDedupe uses Redis when configured so several instances share the seen
// set; otherwise ids are remembered in process.
func newDedupe(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) (dedupe.Store, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, live event dedupe is per process")
		return dedupe.NewMemoryStore(clk, dedupe.DefaultTTL), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return dedupe.NewRedisStore(client, cfg.LiveDedupePrefix(), dedupe.DefaultTTL), nil
}

// newDispatcher routes committed events. With Kafka they go to the outbox and
// reach live channels through the broker; without it they are pushed to the
// registry directly.
func newDispatcher(cfg config.Config, log *zap.Logger, outbox *postgres.OutboxRepository, reg *live.Registry) *events.Dispatcher {
	d := events.NewDispatcher(log)
	if cfg.KafkaEnabled() {
		d.SubscribeAll(events.NewOutboxSink(outbox))
		return d
	}
	log.Warn("KAFKA_BROKERS not set, delivering events in process")
	d.SubscribeAll(live.NewRouter(reg, log))
	return d
}

type services struct {
	fx.Out

	Checkout  *app.CheckoutService
	Orders    *app.OrderService
	Inventory *app.InventoryService
	Carts     *app.CartService
	Sweeper   *app.ReservationSweeper
}

type serviceDeps struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Clock      clock.Clock
	IDs        app.IDGenerator
	Ledger     *postgres.StockLedger
	Carts      *postgres.CartRepository
	Orders     *postgres.OrderRepository
	Dispatcher *events.Dispatcher
}

func newServices(d serviceDeps) services {
	return services{
		Checkout: app.NewCheckoutService(d.Ledger, d.Carts, d.Orders, d.Dispatcher, d.IDs, d.Clock,
			app.WithLowStockThreshold(d.Config.LowStockThreshold),
			app.WithAttemptTimeout(d.Config.CheckoutTimeout),
			app.WithCheckoutLogger(d.Log),
			app.WithCheckoutMetrics(d.Metrics),
		),
		Orders:    app.NewOrderService(d.Orders, d.Ledger, d.Dispatcher, d.IDs, d.Clock, d.Log, d.Metrics),
		Inventory: app.NewInventoryService(d.Ledger, d.Ledger, d.Dispatcher, d.IDs, d.Clock, d.Log, d.Config.LowStockThreshold),
		Carts:     app.NewCartService(d.Carts),
		Sweeper:   app.NewReservationSweeper(d.Ledger, d.Dispatcher, d.IDs, d.Clock, d.Log, d.Config.ReservationMaxAge),
	}
}

type serverDeps struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	Pool      *pgxpool.Pool
	Registry  *live.Registry
	Checkout  *app.CheckoutService
	Orders    *app.OrderService
	Inventory *app.InventoryService
	Carts     *app.CartService
}

func newHTTPServer(d serverDeps) *http.Server {
	streams := transporthttp.NewStreams(d.Registry, d.Orders, d.Inventory, d.Clock, d.Log)
	handler := transporthttp.NewRouter(transporthttp.Services{
		Checkout:  d.Checkout,
		Orders:    d.Orders,
		Inventory: d.Inventory,
		Carts:     d.Carts,
		Streams:   streams,
		DB:        d.Pool,
		Metrics:   d.Metrics.Handler(),
	}, transporthttp.RouterConfig{
		CORSOrigins: d.Config.CORSOrigins,
		Log:         d.Log,
		HTTPMetrics: d.Metrics,
	})
	server := &http.Server{
		Addr:              ":" + d.Config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open event streams never finish on their own.
	server.RegisterOnShutdown(d.Registry.Shutdown)
	return server
}

func runHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", server.Addr, err)
			}
			log.Info("api listening", zap.String("addr", server.Addr))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server error", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server shutdown: %w", err)
			}
			log.Info("server stopped")
			return nil
		},
	})
}

func runReaper(lc fx.Lifecycle, reg *live.Registry) {
	background(lc, func(ctx context.Context) error {
		reg.RunReaper(ctx, reapInterval)
		return nil
	})
}

// runSweeper restores stock held by checkouts that never settled or released.
func runSweeper(lc fx.Lifecycle, sweeper *app.ReservationSweeper) {
	background(lc, func(ctx context.Context) error {
		sweeper.Run(ctx, sweepInterval)
		return nil
	})
}

type pipelineDeps struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	Outbox   *postgres.OutboxRepository
	Registry *live.Registry
	Seen     dedupe.Store
}

// runEventPipeline starts the outbox relay and the broker-to-live bridge.
// Nothing runs when Kafka is not configured.
func runEventPipeline(lc fx.Lifecycle, d pipelineDeps) {
	if !d.Config.KafkaEnabled() {
		return
	}

	writer := events.NewWriter(d.Config.KafkaBrokers)
	reader := events.NewReader(d.Config.KafkaBrokers, d.Config.LiveGroupID(), events.AllTopics...)

	relay := events.NewRelay(d.Outbox, writer, d.Clock, d.Log, d.Metrics, events.RelayConfig{
		PollInterval: d.Config.OutboxPollInterval,
		BatchSize:    d.Config.OutboxBatchSize,
	})
	bridge := events.NewLiveBridge(reader, d.Seen, live.NewRouter(d.Registry, d.Log), d.Log)

	// Appended first so it runs after the workers below have stopped.
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return errors.Join(writer.Close(), reader.Close())
		},
	})
	background(lc,
		func(ctx context.Context) error {
			relay.Run(ctx)
			return nil
		},
		func(ctx context.Context) error {
			bridge.Run(ctx)
			return nil
		},
	)
}

// background runs each worker until the app stops, then waits for all of
// them to return.
func background(lc fx.Lifecycle, workers ...func(ctx context.Context) error) {
	var (
		cancel context.CancelFunc
		group  *errgroup.Group
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			group, ctx = errgroup.WithContext(ctx)
			for _, w := range workers {
				w := w
				group.Go(func() error { return w(ctx) })
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return group.Wait()
		},
	})
}
