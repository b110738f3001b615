package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digital-storefront/internal/config"
	"digital-storefront/internal/domain/ports/adapter"
	payAdapters "digital-storefront/internal/infra/adapters/payment"
	"digital-storefront/internal/infra/api"
	pg "digital-storefront/internal/infra/db/postgres"
	"digital-storefront/internal/infra/logging"
	"digital-storefront/internal/infra/metrics"
	red "digital-storefront/internal/infra/redis"
	"digital-storefront/internal/infra/sched"
	"digital-storefront/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no-op payment gateway without a Stripe key)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Payment provider ----
	var gateway adapter.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		gateway, err = payAdapters.NewStripeGateway(cfg.Stripe.SecretKey, nil, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe gateway")
		}
	} else {
		logger.Warn().Msg("stripe.secret_key not set; refunds go to the in-memory gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	}
	gateway = payAdapters.NewLimitedGateway(gateway, cfg.Stripe.MaxConcurrent)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	productRepo := pg.NewProductRepoCacheDecorator(pg.NewProductRepo(pool), redisClient, cfg.Cache.ProductTTL, logger)
	accessRepo := pg.NewAccessRepo(pool)
	guestRepo := pg.NewGuestPurchaseRepo(pool)
	txnRepo := pg.NewPaymentRepo(pool)

	// ---- Use cases ----
	entUC := usecase.NewEntitlementUseCase(productRepo, accessRepo, cfg.Entitlement.ExpiringSoonWindow, nil, logger)
	claimUC := usecase.NewClaimUseCase(guestRepo, txnRepo, productRepo, accessRepo, tm, locker, cfg.Claim.LockTTL, nil, logger)
	refundUC := usecase.NewRefundUseCase(txnRepo, accessRepo, guestRepo, tm, gateway, usecase.RefundConfig{
		FinalizeAttempts: cfg.Refund.FinalizeAttempts,
		FinalizeTimeout:  cfg.Refund.FinalizeTimeout,
		ProviderTimeout:  cfg.Refund.ProviderTimeout,
		RetryBackoff:     cfg.Refund.RetryBackoff,
	}, nil, logger)
	accessUC := usecase.NewAccessUseCase(productRepo, accessRepo, guestRepo, txnRepo, tm, nil, logger)

	// ---- Stale refund claims ----
	reconciler := sched.NewRefundReconciler(refundUC, txnRepo, gateway, cfg.Refund.SweepInterval, cfg.Refund.ClaimStaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- HTTP ----
	server := api.NewServer(entUC, claimUC, refundUC, accessUC, api.NewAuthenticator(cfg.Auth.JWTSecret),
		cfg.Auth.AdminAPIKey, cfg.HTTP.RequestTimeout, logger).
		WithClaimRateLimit(red.NewRateLimiter(redisClient), cfg.HTTP.ClaimRateLimit, cfg.HTTP.ClaimRateWindow)
	go func() {
		if err := server.Start(cfg.HTTP.Port); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
