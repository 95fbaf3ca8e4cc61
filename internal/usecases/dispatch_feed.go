package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/webhook"

	"go.uber.org/zap"
)

// DispatchFeed serves the execution plane's pull loop: it hands out one
// queue entry at a time and records the reported outcome.
type DispatchFeed struct {
	campaigns CampaignStore
	queue     ContactQueue
	templates TemplateStore
	quota     *QuotaTracker
	metrics   *infrastructure.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatchFeed(campaigns CampaignStore, queue ContactQueue, templates TemplateStore, quota *QuotaTracker, metrics *infrastructure.Metrics, logger *zap.Logger) *DispatchFeed {
	return &DispatchFeed{
		campaigns: campaigns,
		queue:     queue,
		templates: templates,
		quota:     quota,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func halted(reason string) *webhook.NextContactResponse {
	return &webhook.NextContactResponse{State: webhook.StateHalted, Reason: reason}
}

// NextContact returns the next job for a running campaign. Exhausting the
// queue completes the campaign; an exhausted daily quota moves it to
// paused_limit. Both end the loop.
func (f *DispatchFeed) NextContact(ctx context.Context, campaignID int) (*webhook.NextContactResponse, error) {
	log := f.logger.With(zap.Int("campaign_id", campaignID))

	campaign, err := f.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != entities.CampaignRunning {
		return halted(fmt.Sprintf("campaign is %s", campaign.Status)), nil
	}

	allowed, err := f.quota.CanSendCampaign(ctx, campaign.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		if err := f.stop(ctx, campaignID, entities.CampaignPausedLimit); err != nil {
			return nil, err
		}
		log.Info("daily limit reached, campaign paused")
		return halted("daily campaign message limit reached"), nil
	}

	entry, err := f.queue.NextPending(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	if entry == nil {
		if err := f.stop(ctx, campaignID, entities.CampaignCompleted); err != nil {
			return nil, err
		}
		log.Info("queue exhausted, campaign completed")
		return &webhook.NextContactResponse{State: webhook.StateExhausted}, nil
	}

	var tmpl *entities.Template
	if campaign.TemplateID != nil {
		tmpl, err = f.templates.GetByID(ctx, *campaign.TemplateID)
		if err != nil && !errors.Is(err, entities.ErrNotFound) {
			return nil, fmt.Errorf("load template: %w", err)
		}
	}
	if tmpl == nil {
		if err := f.stop(ctx, campaignID, entities.CampaignPaused); err != nil {
			return nil, err
		}
		log.Warn("template missing mid-run, campaign paused")
		return halted(entities.ErrTemplateMissing.Error()), nil
	}

	job := &webhook.DispatchJob{
		CampaignContactID: entry.ID,
		TemplateSource:    tmpl.Body,
	}
	if c := entry.Contact; c != nil {
		job.Contact = webhook.JobContact{ID: c.ID, Name: c.Name, Phone: c.Phone, Company: c.Company}
	}
	return &webhook.NextContactResponse{State: webhook.StateJob, Job: job}, nil
}

// stop moves a running campaign to a terminal or paused status. Losing the
// race to a concurrent pause is not an error.
func (f *DispatchFeed) stop(ctx context.Context, campaignID int, to entities.CampaignStatus) error {
	ok, err := f.campaigns.TransitionStatus(ctx, campaignID, []entities.CampaignStatus{entities.CampaignRunning}, to)
	if err != nil {
		return fmt.Errorf("set campaign %d %s: %w", campaignID, to, err)
	}
	if ok {
		f.metrics.RecordCampaignStopped(string(to))
	}
	return nil
}

// ReportStatus records a send outcome. A sent report bumps the campaign's
// sent counter and the owner's daily usage.
func (f *DispatchFeed) ReportStatus(ctx context.Context, campaignContactID int64, status entities.ContactStatus) error {
	entry, err := f.queue.Get(ctx, campaignContactID)
	if err != nil {
		return err
	}

	switch status {
	case entities.ContactSent:
		if err := f.queue.MarkSent(ctx, entry.ID, f.now()); err != nil {
			return err
		}
		campaign, err := f.campaigns.GetByID(ctx, entry.CampaignID)
		if err != nil {
			return err
		}
		if err := f.campaigns.IncrementSent(ctx, campaign.ID); err != nil {
			return fmt.Errorf("increment sent: %w", err)
		}
		if err := f.quota.RecordCampaignSend(ctx, campaign.UserID); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
	case entities.ContactFailed:
		if err := f.queue.MarkFailed(ctx, entry.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("status %q: %w", status, entities.ErrInvalidTransition)
	}

	f.metrics.RecordSend(string(status))
	return nil
}
