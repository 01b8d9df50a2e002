package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"InterShop/internal/catalog"
	"InterShop/internal/checkout"
	"InterShop/internal/config"
	"InterShop/internal/order"
	"InterShop/pkg/kit"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the shop HTTP API and run the reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(service, defaultAddr, *configPath)
			if err != nil {
				return err
			}
			log := kit.NewLogger(cfg.Service, cfg.LogLevel)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	shop := &checkout.Server{
		Checkout: a.checkout,
		Lines:    a.orders,
		Log:      log.Named("http"),
	}
	if cfg.Checkout.BuyLimitPerMin > 0 {
		shop.BuyLimiter = kit.NewIPRateLimiter(cfg.Checkout.BuyLimitPerMin, time.Minute)
	}

	h := checkout.NewHandler(checkout.HTTPDeps{
		Log:            log,
		Service:        cfg.Service,
		Registry:       a.registry,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
		Ready:          a.ready,
	},
		&catalog.Server{Catalog: a.catalog, Cart: a.orders, Log: log.Named("http")},
		&order.Server{Orders: a.orders, Log: log.Named("http")},
		shop,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return kit.RunHTTPServer(gctx, cfg.HTTPAddr, h, log) })
	g.Go(func() error { return a.reconciler.Run(gctx) })
	return g.Wait()
}
