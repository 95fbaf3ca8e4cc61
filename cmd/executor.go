package main

import (
	"context"
	"time"

	"project_broadcast/internal/config"
	"project_broadcast/internal/executor"
	"project_broadcast/internal/infrastructure"
	httpapi "project_broadcast/internal/interfaces/http"
	"project_broadcast/internal/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func runExecutor(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	if err := httpapi.RegisterValidators(); err != nil {
		return err
	}

	metrics := infrastructure.NewMetrics(prometheus.DefaultRegisterer)
	registry := executor.NewRegistry()
	control := webhook.NewControlClient(conf.Executor.ControlURL, conf.WebhookSecret, conf.Executor.WebhookTimeout)

	manager, err := infrastructure.NewWhatsAppManager(conf.Executor.DevicesDir, executor.SessionEvents(registry, control, logger), logger)
	if err != nil {
		return err
	}
	defer manager.DisconnectAll()

	dispatcher := executor.NewDispatcher(registry, control, executor.DispatcherConfig{
		PaceMin: conf.Executor.PaceMin,
		PaceMax: conf.Executor.PaceMax,
	}, metrics, logger)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Shutdown(stopCtx); err != nil {
			logger.Warn("dispatch loops did not stop in time", zap.Error(err))
		}
	}()

	limiter := infrastructure.NewMessageRateLimiter(conf.Executor.SendRate, conf.Executor.SendBurst)

	r := newEngine(conf)
	httpapi.SetupExecutorRoutes(r, httpapi.ExecutorDeps{
		Handler:       httpapi.NewExecutorHandler(dispatcher, registry, manager, limiter),
		Metrics:       metrics,
		WebhookSecret: conf.WebhookSecret,
	})

	go func() {
		start := time.Now()
		if err := executor.Restore(ctx, control, manager, registry, dispatcher, conf.Executor.RestoreWait, logger); err != nil {
			logger.Error("restore failed", zap.Error(err))
			infrastructure.CaptureError(err, map[string]string{"op": "restore"})
			return
		}
		logger.Info("restore finished", zap.Duration("took", time.Since(start)))
	}()

	return serve(ctx, conf.Executor.ListenAddr, r, logger)
}
