package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/checkout"
	"github.com/Aswinesag/gitness/internal/config"
	"github.com/Aswinesag/gitness/internal/db"
	"github.com/Aswinesag/gitness/internal/events"
	httpapi "github.com/Aswinesag/gitness/internal/http"
	"github.com/Aswinesag/gitness/internal/identity"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
	"github.com/Aswinesag/gitness/internal/pricing"
	"github.com/Aswinesag/gitness/internal/sequence"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", "gitness"))

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			logger.Fatal("run migrations", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()

	// Events are optional; without a broker the storefront keeps serving and
	// only the websocket hub is notified.
	hub := cart.NewHub()
	notifiers := cart.Notifiers{hub}
	var (
		orderEvents order.EventPublisher
		deadLetters httpapi.DeadLetterPublisher
	)
	if cfg.PublishEvents {
		publisher, conn, err := dialPublisher(cfg.RabbitURL, sequence.NewPostgresRepository(pool), logger)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer conn.Close()
			defer func() {
				if err := publisher.Close(); err != nil {
					logger.Warn("publisher close", zap.Error(err))
				}
			}()
			notifiers = append(notifiers, publisher)
			orderEvents = publisher
			deadLetters = publisher
		}
	}

	var gateway payment.Gateway = payment.Unconfigured{}
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; hosted checkout disabled")
	}
	webhooks := payment.NewVerifier(cfg.StripeWebhookSecret)
	if !webhooks.Verifying() {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhook signatures are not checked")
	}
	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET not set; every request is anonymous")
	}

	resolver := pricing.NewResolver(logger)
	products := catalog.NewPostgresRepository(pool)
	carts := cart.NewService(cart.NewPostgresRepository(pool), notifiers, logger)
	finalizer := order.NewFinalizer(order.NewPostgresRepository(pool, resolver), notifiers, orderEvents, logger)
	orchestrator := checkout.NewOrchestrator(carts, finalizer, gateway, resolver, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:           logger,
		Catalog:          products,
		Cart:             carts,
		Checkout:         orchestrator,
		Orders:           finalizer,
		Gateway:          gateway,
		Webhooks:         webhooks,
		DeadLetters:      deadLetters,
		Stream:           hub,
		Prices:           resolver,
		Identity:         identity.NewVerifier(cfg.AuthSecret, cfg.AdminEmail),
		PublicOrigin:     cfg.PublicOrigin,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RequestTimeout:   cfg.RequestTimeout,
	})

	// No WriteTimeout: the cart stream holds its connection open.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gitness listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" || os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

func dialPublisher(url string, seq events.Sequencer, logger *zap.Logger) (*events.Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	p, err := events.NewPublisher(conn, seq, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return p, conn, nil
}
