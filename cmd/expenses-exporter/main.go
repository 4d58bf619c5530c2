package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/config"
	applog "expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/worker"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	logger.Info("Starting expenses-exporter")
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Exporter exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Exporter shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	if backendCfg.Type != backend.SQLiteBackend {
		return fmt.Errorf("the exporter reads the mirror written by the server and needs DATA_BACKEND=sqlite, got %q", cfg.DataBackend)
	}

	factory := backend.NewFactory(logger)
	medium, err := factory.CreateMedium(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer medium.Close()

	exporter, err := factory.CreateExporter(ctx, backendCfg)
	if err != nil {
		return err
	}
	w := worker.NewExportWorker(medium.Medium, exporter)

	reconciler := services.NewSyncProcessor(w, services.SyncProcessorConfig{
		Interval:   cfg.ReconcileInterval,
		RunOnStart: true,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("initialize AMQP client: %w", err)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeExpenseChanged(gctx, w.HandleChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Warn("AMQP_URL not set, relying on periodic reconcile only",
			"interval", cfg.ReconcileInterval)
	}

	if err := reconciler.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return reconciler.Stop(stopCtx)
	})

	return g.Wait()
}
