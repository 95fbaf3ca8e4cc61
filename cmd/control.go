package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_broadcast/internal/config"
	"project_broadcast/internal/infrastructure"
	httpapi "project_broadcast/internal/interfaces/http"
	"project_broadcast/internal/repository"
	"project_broadcast/internal/usecases"
	"project_broadcast/internal/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	inboundDedupeTTL = 24 * time.Hour
	quotaResetJob    = "quota-reset"
	quotaResetLimit  = 10 * time.Minute
)

// controlPlane holds the wired control plane services.
type controlPlane struct {
	pg      *infrastructure.PostgresClient
	deduper *infrastructure.RedisDeduper
	metrics *infrastructure.Metrics

	auth       *usecases.AuthUsecase
	campaigns  *usecases.CampaignService
	lifecycle  *usecases.CampaignLifecycle
	feed       *usecases.DispatchFeed
	devices    *usecases.DeviceService
	quota      *usecases.QuotaTracker
	quotaReset *usecases.QuotaReset
	inbound    *usecases.InboundRouter
	flows      *usecases.DialogFlows
}

func newControlPlane(ctx context.Context, conf config.Config, logger *zap.Logger) (*controlPlane, error) {
	pg, err := infrastructure.NewPostgresClient(ctx, conf.Control.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	deduper, err := infrastructure.NewRedisDeduper(conf.Control.RedisURL, inboundDedupeTTL)
	if err != nil {
		pg.Close()
		return nil, err
	}
	if err := deduper.Ping(ctx); err != nil {
		pg.Close()
		_ = deduper.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	metrics := infrastructure.NewMetrics(prometheus.DefaultRegisterer)

	userRepo := repository.NewUserRepository(pg.Pool)
	deviceRepo := repository.NewDeviceRepository(pg.Pool)
	contactRepo := repository.NewContactRepository(pg.Pool)
	templateRepo := repository.NewTemplateRepository(pg.Pool)
	campaignRepo := repository.NewCampaignRepository(pg.Pool)
	queueRepo := repository.NewContactQueueRepository(pg.Pool)
	usageRepo := repository.NewUsageRepository(pg.Pool)
	conversationRepo := repository.NewConversationRepository(pg.Pool)
	flowRepo := repository.NewDialogFlowRepository(pg.Pool)

	execution := webhook.NewExecutorClient(conf.Control.ExecutorURL, conf.WebhookSecret, conf.Control.WebhookTimeout)
	ai := infrastructure.NewOpenAIClient(conf.OpenAI.APIKey, conf.OpenAI.Model, conf.OpenAI.BaseURL, logger)

	quota := usecases.NewQuotaTracker(userRepo, usageRepo)
	lifecycle := usecases.NewCampaignLifecycle(campaignRepo, queueRepo, templateRepo, deviceRepo, quota, execution, metrics, logger)

	return &controlPlane{
		pg:         pg,
		deduper:    deduper,
		metrics:    metrics,
		auth:       usecases.NewAuthUsecase(userRepo, conf.Control.JWTSecret),
		campaigns:  usecases.NewCampaignService(campaignRepo, queueRepo, templateRepo, deviceRepo),
		lifecycle:  lifecycle,
		feed:       usecases.NewDispatchFeed(campaignRepo, queueRepo, templateRepo, quota, metrics, logger),
		devices:    usecases.NewDeviceService(deviceRepo, conversationRepo, execution, logger),
		quota:      quota,
		quotaReset: usecases.NewQuotaReset(usageRepo, campaignRepo, quota, lifecycle, metrics, logger),
		inbound: usecases.NewInboundRouter(usecases.InboundRouterDeps{
			Users:         userRepo,
			Devices:       deviceRepo,
			Contacts:      contactRepo,
			Queue:         queueRepo,
			Campaigns:     campaignRepo,
			Conversations: conversationRepo,
			DialogFlows:   flowRepo,
			Quota:         quota,
			AI:            ai,
			Executor:      execution,
			Deduper:       deduper,
			Metrics:       metrics,
			Logger:        logger,
		}),
		flows: usecases.NewDialogFlows(flowRepo),
	}, nil
}

func (p *controlPlane) Close() {
	_ = p.deduper.Close()
	p.pg.Close()
}

func runControl(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	if conf.Control.JWTSecret == "" {
		return errors.New("CONTROL_JWT_SECRET is required")
	}
	if err := httpapi.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	plane, err := newControlPlane(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer plane.Close()

	if err := plane.auth.EnsureAdmin(ctx, conf.Control.AdminUsername, conf.Control.AdminPassword); err != nil {
		logger.Warn("failed to ensure admin user", zap.Error(err))
	}

	scheduler, err := infrastructure.NewScheduler(conf.Control.Timezone, logger)
	if err != nil {
		return err
	}
	err = scheduler.AddJob(quotaResetJob, conf.Control.QuotaResetCron, quotaResetLimit, func(ctx context.Context) error {
		_, err := plane.quotaReset.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		scheduler.Stop(stopCtx)
	}()

	r := newEngine(conf)
	httpapi.SetupControlRoutes(r, httpapi.ControlDeps{
		API:           httpapi.NewHandler(plane.auth, plane.campaigns, plane.lifecycle, plane.devices, plane.quota, plane.flows),
		Webhooks:      httpapi.NewWebhookHandler(plane.feed, plane.inbound, plane.devices, plane.campaigns),
		Middleware:    httpapi.NewMiddleware(conf.Control.JWTSecret),
		Metrics:       plane.metrics,
		WebhookSecret: conf.WebhookSecret,
	})

	err = serve(ctx, conf.Control.ListenAddr, r, logger)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if werr := plane.inbound.Shutdown(stopCtx); werr != nil {
		logger.Warn("inbound routing did not finish in time", zap.Error(werr))
	}
	return err
}

func runResetQuotas(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	plane, err := newControlPlane(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer plane.Close()

	res, err := plane.quotaReset.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("quota reset done",
		zap.Int64("counters_reset", res.CountersReset),
		zap.Ints("resumed", res.Resumed),
		zap.Ints("failed", res.Failed),
	)
	return nil
}
