package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/mockapi"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/env"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "mockapi"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	taxRate, err := checkout.ParseTaxRate(env.Get("PFSTORE_CHECKOUT_TAX_RATE", checkout.DefaultTaxRate))
	if err != nil {
		logg.Error(context.Background(), "invalid tax rate", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "mockapi",
		Level:       logger.ParseLevel(env.Get("PFSTORE_LOG_LEVEL", "info")),
	})

	addr := ":" + env.Get("PORT", "8090")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":       addr,
		"env_prefix": config.EnvPrefix,
	})
	logg.Info(ctx, "starting mock storefront api")

	server := &http.Server{
		Addr:    addr,
		Handler: mockapi.NewServer(logg, taxRate).Handler(),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "mock storefront api stopped unexpectedly", err)
		os.Exit(1)
	}
}
