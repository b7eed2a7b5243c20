package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handler"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
	"storefront/internal/shipping"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize Redis client for webhook event dedup
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The reconciler degrades to state guards without the dedup cache,
		// so a cold Redis is not fatal at startup.
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)

	// Load the shipping rate table: S3 when enabled, then local file, then
	// built-in defaults.
	fileLoader := shipping.NewFileLoader(logger)
	var s3Loader shipping.Loader
	if cfg.Shipping.S3Enabled {
		s3Loader, err = shipping.NewS3Loader(ctx, cfg.Shipping.S3Bucket, cfg.Shipping.S3Region, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialise S3 loader, falling back to local file system only")
			s3Loader = nil
		}
	}
	rateLoader := shipping.NewFallbackLoader(
		s3Loader,
		fileLoader,
		cfg.Shipping.S3Key,
		cfg.Shipping.S3Enabled && s3Loader != nil,
		cfg.Checkout.Currency,
		logger,
	)
	rates, err := rateLoader.Load(ctx, cfg.Shipping.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load shipping rates: %w", err)
	}

	// Initialize webhook plumbing
	verifier := payment.NewVerifier(cfg.Payment.WebhookSecret, time.Duration(cfg.Payment.SignatureTolerance)*time.Second)
	dedup := payment.NewRedisEventDedup(redisClient, time.Duration(cfg.Payment.DedupTTL)*time.Second, logger)

	// Initialize services
	checkoutService := service.NewCheckoutService(orderRepo, productRepo, rates, cfg.Checkout, logger)
	reconcileService := service.NewReconcileService(orderRepo, dedup, logger)

	// Initialize HTTP handlers
	checkoutHandler := handler.NewCheckoutHandler(checkoutService, logger)
	orderHandler := handler.NewOrderHandler(checkoutService, logger)
	webhookHandler := handler.NewWebhookHandler(verifier, reconcileService, logger)

	// Initialize router
	mux := router.New(checkoutHandler, orderHandler, webhookHandler, cfg.Checkout.TokenSecret, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
