package usecases

import (
	"context"
	"fmt"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"

	"go.uber.org/zap"
)

// QuotaReset zeroes daily counters and resumes campaigns that were paused
// for hitting the daily limit.
type QuotaReset struct {
	usage     UsageStore
	campaigns CampaignStore
	quota     *QuotaTracker
	lifecycle *CampaignLifecycle
	metrics   *infrastructure.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewQuotaReset(usage UsageStore, campaigns CampaignStore, quota *QuotaTracker, lifecycle *CampaignLifecycle, metrics *infrastructure.Metrics, logger *zap.Logger) *QuotaReset {
	return &QuotaReset{
		usage:     usage,
		campaigns: campaigns,
		quota:     quota,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

type ResetResult struct {
	CountersReset int64
	Resumed       []int
	Failed        []int
}

// Run resets every counter, then resumes each paused_limit campaign whose
// owner is now under the limit. A failed resume leaves the campaign in
// paused_limit for the next run.
func (r *QuotaReset) Run(ctx context.Context) (*ResetResult, error) {
	n, err := r.usage.ResetAll(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("reset usage: %w", err)
	}
	r.metrics.QuotaResets.Inc()
	result := &ResetResult{CountersReset: n}

	paused, err := r.campaigns.ListByStatus(ctx, entities.CampaignPausedLimit)
	if err != nil {
		return result, fmt.Errorf("list paused campaigns: %w", err)
	}

	for i := range paused {
		campaign := &paused[i]
		log := r.logger.With(zap.Int("campaign_id", campaign.ID))

		allowed, err := r.quota.CanSendCampaign(ctx, campaign.UserID)
		if err != nil {
			log.Error("quota check failed", zap.Error(err))
			result.Failed = append(result.Failed, campaign.ID)
			continue
		}
		if !allowed {
			continue
		}

		if err := r.lifecycle.Resume(ctx, campaign); err != nil {
			log.Error("resume failed", zap.Error(err))
			infrastructure.CaptureError(err, map[string]string{"op": "campaign_resume"})
			result.Failed = append(result.Failed, campaign.ID)
			continue
		}
		result.Resumed = append(result.Resumed, campaign.ID)
	}

	r.logger.Info("daily quota reset",
		zap.Int64("counters", result.CountersReset),
		zap.Ints("resumed", result.Resumed),
		zap.Ints("failed", result.Failed))
	return result, nil
}
