package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	cartsync "github.com/angelmondragon/packfinderz-storefront/internal/cart/sync"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/draft"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/env"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"github.com/angelmondragon/packfinderz-storefront/pkg/payment"
	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
	"github.com/angelmondragon/packfinderz-storefront/pkg/retry"
	"github.com/angelmondragon/packfinderz-storefront/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	sess := session.New(
		env.Get("PFSTORE_AUTH_TOKEN", ""),
		env.Get("PFSTORE_COUNTRY", "US"),
		env.Get("PFSTORE_REGION", ""),
	)

	apiClient, err := api.NewClient(cfg.API, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build api client", err)
		os.Exit(1)
	}

	store, err := cart.NewStore(apiClient, sess, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart store", err)
		os.Exit(1)
	}
	defer store.Close()

	drafts, cleanup, err := buildDraftStore(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build draft store", err)
		os.Exit(1)
	}
	defer cleanup()

	var provider payment.Provider
	if strings.TrimSpace(cfg.Square.AccessToken) != "" {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to build square client", err)
			os.Exit(1)
		}
		provider, err = payment.NewSquareProvider(squareClient)
		if err != nil {
			logg.Error(context.Background(), "failed to build payment provider", err)
			os.Exit(1)
		}
	}

	taxRate, err := checkout.ParseTaxRate(cfg.Checkout.TaxRate)
	if err != nil {
		logg.Error(context.Background(), "invalid tax rate", err)
		os.Exit(1)
	}

	flow, err := checkout.NewFlow(checkout.FlowParams{
		API:            apiClient,
		Cart:           store,
		Session:        sess,
		Drafts:         drafts,
		Provider:       provider,
		Logger:         logg,
		TaxRate:        taxRate,
		ValidationWait: cfg.Checkout.ValidationWait,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout flow", err)
		os.Exit(1)
	}
	defer flow.Close()

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)
	submissionMetrics := metrics.NewSubmissionMetrics(registry)

	submitter, err := checkout.NewSubmitter(checkout.SubmitterParams{
		API:     apiClient,
		Cart:    store,
		Flow:    flow,
		Session: sess,
		Logger:  logg,
		Metrics: submissionMetrics,
		Retry: retry.Config{
			MaxAttempts: cfg.Checkout.MaxAttempts,
			BaseDelay:   cfg.Checkout.BackoffBase,
			MaxDelay:    cfg.Checkout.BackoffCap,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout submitter", err)
		os.Exit(1)
	}

	synchronizer, err := cartsync.NewSynchronizer(cartsync.Params{
		API:      apiClient,
		Store:    store,
		Session:  sess,
		Logger:   logg,
		Metrics:  syncMetrics,
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build cart synchronizer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"sync_interval": cfg.Sync.Interval.String(),
		"draft_backend": cfg.Draft.Backend,
	})
	logg.Info(ctx, "starting storefront client")

	if err := flow.Resume(ctx); err != nil {
		logg.Error(ctx, "failed to resume checkout draft", err)
	}

	if _, err := store.Load(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "initial cart load failed")
	}

	go serveMetrics(ctx, logg, registry)

	if env.Get("PFSTORE_DEMO", "false") == "true" {
		go runDemo(ctx, logg, store, flow, submitter)
	}

	if err := synchronizer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cart synchronizer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "storefront client shutting down gracefully")
}

// runDemo walks the happy path against a running mock API: add an
// item, complete the wizard, and submit the order.
func runDemo(ctx context.Context, logg *logger.Logger, store *cart.Store, flow *checkout.Flow, submitter *checkout.Submitter) {
	if _, err := store.AddItem(ctx, api.AddItemInput{
		VariantID:    env.Get("PFSTORE_DEMO_VARIANT", "variant-demo"),
		Quantity:     1,
		PricePerUnit: 2500,
	}); err != nil {
		logg.Error(ctx, "demo add to cart failed", err)
		return
	}

	steps := []func() error{
		func() error { return flow.SetShippingAddress(ctx, "addr-demo") },
		func() error { return flow.Next(ctx) },
		func() error { return flow.SetShippingMethod(ctx, "method-500", 500) },
		func() error { return flow.Next(ctx) },
		func() error { return flow.SetPaymentMethod(ctx, "pm-demo") },
		func() error { return flow.Next(ctx) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			logg.Error(ctx, "demo checkout step failed", err)
			return
		}
	}

	order, err := submitter.Submit(ctx)
	if err != nil {
		logg.Error(ctx, "demo checkout failed", err)
		return
	}
	logg.Info(logg.WithField(ctx, "order_id", order.ID), "demo checkout complete")
}

func buildDraftStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (draft.Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Draft.Backend)) {
	case config.DraftBackendMemory:
		return draft.NewMemoryStore(), noop, nil
	case config.DraftBackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		store, err := draft.NewRedisStore(client, cfg.Draft.TTL)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}
		return store, cleanup, nil
	default:
		store, err := draft.NewSQLiteStore(cfg.Draft.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}

func serveMetrics(ctx context.Context, logg *logger.Logger, registry *prometheus.Registry) {
	addr := ":" + env.Get("PFSTORE_METRICS_PORT", "9190")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}
