package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cache"
	"expenses/internal/cli"
	"expenses/internal/config"
	apphttp "expenses/internal/http"
	applog "expenses/internal/log"
	"expenses/internal/services"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	medium, err := backend.NewFactory(logger).CreateMedium(ctx, backendCfg)
	if err != nil {
		return err
	}

	readyChecks := map[string]apphttp.ReadyCheck{}
	if medium.Ping != nil {
		readyChecks["storage"] = apphttp.ReadyCheck(medium.Ping)
	}

	// a nil *amqp.Client must not reach the Publisher interface
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events",
				applog.FieldError, err)
		} else {
			publisher = client
			readyChecks["amqp"] = func(context.Context) error {
				if !client.Healthy() {
					return errors.New("amqp connection is down")
				}
				return nil
			}
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewExpenseService(medium.Medium, publisher, services.ExpenseServiceConfig{
		MaxSessions: cfg.SessionCacheSize,
		SessionTTL:  cfg.SessionTTL,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to release backends", applog.FieldError, err)
		}
	}()

	caches := cache.NewManager()
	caches.Register(svc.Sessions())

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Currency:           cfg.Currency,
		IdentityHeader:     cfg.IdentityHeader,
		RequireIdentity:    cfg.RequireIdentity,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		ReadyChecks:        readyChecks,
		SessionCount:       svc.Sessions().Size,
	}, svc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting expenses server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return caches.Run(gctx, time.Minute)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
