package usecases

import (
	"context"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/interfaces"

	"go.uber.org/zap"
)

var startableStatuses = []entities.CampaignStatus{
	entities.CampaignDraft,
	entities.CampaignPaused,
	entities.CampaignPausedLimit,
}

// CampaignLifecycle validates and performs campaign status changes that
// start or stop dispatch on the execution plane.
type CampaignLifecycle struct {
	campaigns CampaignStore
	queue     ContactQueue
	templates TemplateStore
	devices   DeviceStore
	quota     *QuotaTracker
	executor  interfaces.ExecutionPlane
	metrics   *infrastructure.Metrics
	logger    *zap.Logger
}

func NewCampaignLifecycle(
	campaigns CampaignStore,
	queue ContactQueue,
	templates TemplateStore,
	devices DeviceStore,
	quota *QuotaTracker,
	executor interfaces.ExecutionPlane,
	metrics *infrastructure.Metrics,
	logger *zap.Logger,
) *CampaignLifecycle {
	return &CampaignLifecycle{
		campaigns: campaigns,
		queue:     queue,
		templates: templates,
		devices:   devices,
		quota:     quota,
		executor:  executor,
		metrics:   metrics,
		logger:    logger,
	}
}

// owned loads a campaign and hides other users' campaigns as not found.
func (l *CampaignLifecycle) owned(ctx context.Context, userID, campaignID int) (*entities.Campaign, error) {
	campaign, err := l.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, entities.ErrNotFound)
	}
	return campaign, nil
}

// preflight runs every start check without mutating anything.
func (l *CampaignLifecycle) preflight(ctx context.Context, campaign *entities.Campaign) error {
	if !campaign.Status.Startable() {
		return fmt.Errorf("%w (status %s)", entities.ErrInvalidState, campaign.Status)
	}

	if campaign.TemplateID == nil {
		return entities.ErrTemplateMissing
	}
	if _, err := l.templates.GetByID(ctx, *campaign.TemplateID); err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			return entities.ErrTemplateMissing
		}
		return err
	}

	device, err := l.devices.Get(ctx, campaign.DeviceID)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			return entities.ErrDeviceDisconnected
		}
		return err
	}
	if device.Status != entities.DeviceConnected {
		return entities.ErrDeviceDisconnected
	}

	n, err := l.queue.Count(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return entities.ErrQueueEmpty
	}

	busy, err := l.campaigns.HasRunningOnDevice(ctx, campaign.DeviceID, campaign.ID)
	if err != nil {
		return err
	}
	if busy {
		return entities.ErrDeviceBusy
	}

	allowed, err := l.quota.CanSendCampaign(ctx, campaign.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return entities.ErrQuotaExceeded
	}
	return nil
}

// Start moves a campaign to running and asks the execution plane to start
// its dispatch loop. If that request fails the campaign goes back to draft.
func (l *CampaignLifecycle) Start(ctx context.Context, userID, campaignID int) (*entities.Campaign, error) {
	campaign, err := l.owned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := l.preflight(ctx, campaign); err != nil {
		return nil, err
	}

	if err := l.activate(ctx, campaign, startableStatuses, entities.CampaignDraft); err != nil {
		return nil, err
	}
	campaign.Status = entities.CampaignRunning
	return campaign, nil
}

// activate flips the campaign to running atomically and sends start-dispatch,
// restoring rollbackTo if the execution plane refuses.
func (l *CampaignLifecycle) activate(ctx context.Context, campaign *entities.Campaign, from []entities.CampaignStatus, rollbackTo entities.CampaignStatus) error {
	log := l.logger.With(zap.Int("campaign_id", campaign.ID), zap.String("device_id", campaign.DeviceID))

	ok, err := l.campaigns.TransitionStatus(ctx, campaign.ID, from, entities.CampaignRunning)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w (status changed concurrently)", entities.ErrInvalidState)
	}

	if err := l.executor.StartDispatch(ctx, campaign.ID, campaign.DeviceID); err != nil {
		log.Error("start dispatch failed, rolling back", zap.Error(err), zap.String("rollback_to", string(rollbackTo)))
		if _, rbErr := l.campaigns.TransitionStatus(ctx, campaign.ID,
			[]entities.CampaignStatus{entities.CampaignRunning}, rollbackTo); rbErr != nil {
			log.Error("rollback failed", zap.Error(rbErr))
			infrastructure.CaptureError(rbErr, map[string]string{"op": "campaign_rollback"})
		}
		return fmt.Errorf("start dispatch: %w", err)
	}

	l.metrics.CampaignsStarted.Inc()
	log.Info("campaign running")
	return nil
}

// Pause stops a running campaign. The stop request to the execution plane is
// best effort: the loop also halts on its next pull.
func (l *CampaignLifecycle) Pause(ctx context.Context, userID, campaignID int) (*entities.Campaign, error) {
	campaign, err := l.owned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	ok, err := l.campaigns.TransitionStatus(ctx, campaignID,
		[]entities.CampaignStatus{entities.CampaignRunning}, entities.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (status %s)", entities.ErrInvalidState, campaign.Status)
	}
	l.metrics.RecordCampaignStopped(string(entities.CampaignPaused))

	if _, err := l.executor.StopDispatch(ctx, campaignID); err != nil {
		l.logger.Warn("stop dispatch failed", zap.Int("campaign_id", campaignID), zap.Error(err))
	}

	campaign.Status = entities.CampaignPaused
	return campaign, nil
}

// Resume restarts a campaign paused for quota. Used by the daily reset.
func (l *CampaignLifecycle) Resume(ctx context.Context, campaign *entities.Campaign) error {
	return l.activate(ctx, campaign,
		[]entities.CampaignStatus{entities.CampaignPausedLimit}, entities.CampaignPausedLimit)
}
