package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/teamlumen/lumen-backend/api/routes"
	"github.com/teamlumen/lumen-backend/internal/billing"
	"github.com/teamlumen/lumen-backend/internal/billingevents"
	"github.com/teamlumen/lumen-backend/internal/featuregate"
	"github.com/teamlumen/lumen-backend/internal/memberships"
	stripewebhook "github.com/teamlumen/lumen-backend/internal/webhooks/stripe"
	"github.com/teamlumen/lumen-backend/pkg/config"
	"github.com/teamlumen/lumen-backend/pkg/db"
	"github.com/teamlumen/lumen-backend/pkg/logger"
	"github.com/teamlumen/lumen-backend/pkg/metrics"
	"github.com/teamlumen/lumen-backend/pkg/migrate"
	"github.com/teamlumen/lumen-backend/pkg/plans"
	"github.com/teamlumen/lumen-backend/pkg/pubsub"
	"github.com/teamlumen/lumen-backend/pkg/redis"
	pkgstripe "github.com/teamlumen/lumen-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no GCP project configured, billing events disabled")
	}

	catalog := plans.NewCatalog(plans.Config{
		StarterPriceID: cfg.Stripe.StarterPriceID,
		ProPriceID:     cfg.Stripe.ProPriceID,
	})

	var billingTopic *billingevents.Publisher
	if pubsubClient != nil {
		billingTopic = billingevents.NewPublisher(pubsubClient.BillingPublisher(), logg)
	} else {
		billingTopic = billingevents.NewPublisher(nil, logg)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	membershipsRepo := memberships.NewRepository(dbClient.DB())

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:    billingRepo,
		Catalog: catalog,
		Stripe:  billing.NewStripeClient(stripeClient),
		Events:  billingTopic,
		Logger:  logg,
		Config:  cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	featureGate, err := featuregate.NewService(billingService, membershipsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create feature gate", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:  billingRepo,
		Catalog:      catalog,
		StripeClient: stripewebhook.NewStripeFetcher(stripeClient),
		Events:       billingTopic,
		Logger:       logg,
		Metrics:      webhookMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookDedupeWindow, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		BillingService: billingService,
		FeatureGate:    featureGate,
		Memberships:    membershipsRepo,
		StripeClient:   stripeClient,
		WebhookService: webhookService,
		WebhookGuard:   webhookGuard,
	}
	if pubsubClient != nil {
		deps.PubSub = pubsubClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}

	var closeErr error
	if pubsubClient != nil {
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
	}
	closeErr = multierr.Append(closeErr, redisClient.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "error closing resources", closeErr)
	}

	logg.Info(ctx, "api server shut down")
}
