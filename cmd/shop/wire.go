package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"InterShop/internal/cache"
	"InterShop/internal/catalog"
	"InterShop/internal/checkout"
	"InterShop/internal/config"
	"InterShop/internal/events"
	"InterShop/internal/order"
	"InterShop/internal/payment"
)

const connectTimeout = 5 * time.Second

// app holds everything the shop commands run on.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry

	catalog    *catalog.Service
	orders     *order.Service
	checkout   *checkout.Orchestrator
	reconciler *checkout.Reconciler
	ready      []checkout.ReadyCheck

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	cd := cache.Deps{Backend: backend, Log: log, Metrics: cache.NewMetrics(a.registry)}

	var (
		items   catalog.Store
		orders  order.Store
		journal checkout.Journal
	)
	if cfg.DatabaseURL != "" {
		pool, err := a.connectDB(ctx)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		items = catalog.NewPostgresStore(pool)
		orders = order.NewPostgresStore(pool)
		journal = checkout.NewPostgresJournal(pool)
	} else {
		log.Warn("database_url not set, using in-memory stores")
		items = catalog.NewMemStore()
		orders = order.NewMemStore()
		journal = checkout.NewMemJournal()
	}

	pub := a.publisher()
	metrics := checkout.NewMetrics(a.registry)

	a.catalog = catalog.NewService(items,
		cache.NewItemCache(cd, cfg.Cache.ItemTTL),
		cache.NewPageCache(cd, cfg.Cache.PageTTL),
		log.Named("catalog"),
	)
	a.orders = order.NewService(orders, a.catalog, log.Named("order")).
		WithHold(checkout.JournalHold{Journal: journal})
	a.checkout = checkout.New(checkout.Deps{
		Orders:           a.orders,
		Payments:         payment.NewClient(cfg.Payments.URL, cfg.Payments.Timeout),
		Journal:          journal,
		Events:           pub,
		Metrics:          metrics,
		Log:              log.Named("checkout"),
		FinalizeAttempts: cfg.Checkout.FinalizeAttempts,
		FinalizeBackoff:  cfg.Checkout.FinalizeBackoff,
	})
	a.reconciler = checkout.NewReconciler(journal, a.orders, pub, metrics, log.Named("reconciler"), cfg.Checkout.ReconcileInterval)

	a.ready = append(a.ready,
		checkout.ReadyCheck{Name: "db", Ping: a.catalog.Ping},
		checkout.ReadyCheck{Name: "cache", Ping: backend.Ping, Optional: true},
	)
	return a, nil
}

func (a *app) cacheBackend(ctx context.Context) (cache.Backend, error) {
	if a.cfg.Redis.Addr == "" {
		a.log.Warn("redis.addr not set, using in-process cache")
		return cache.NewMemBackend(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, rdb.Close)

	// An unreachable cache degrades to misses; it does not stop startup.
	pctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		a.log.Warn("redis ping failed", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
	}
	return cache.NewRedisBackend(rdb), nil
}

func (a *app) connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(cctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

func (a *app) publisher() events.Publisher {
	brokers := a.cfg.KafkaBrokers()
	if len(brokers) == 0 {
		return events.Nop{}
	}
	p := events.NewKafkaPublisher(brokers, a.cfg.Kafka.Topic, a.log.Named("events"))
	a.closers = append(a.closers, p.Close)
	return p
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
