package usecases

import (
	"context"
	"fmt"

	"project_broadcast/internal/entities"
)

// QuotaTracker gates campaign sends and bot replies on the user's daily
// counters. Counters are zeroed only by the scheduled reset.
type QuotaTracker struct {
	users UserStore
	usage UsageStore
}

func NewQuotaTracker(users UserStore, usage UsageStore) *QuotaTracker {
	return &QuotaTracker{users: users, usage: usage}
}

// UsageReport is the per-user quota view returned by the API.
type UsageReport struct {
	entities.UsageCounter
	DailyLimit    int `json:"daily_limit"`
	BotReplyLimit int `json:"bot_reply_limit"`
}

func (q *QuotaTracker) Report(ctx context.Context, userID int) (*UsageReport, error) {
	user, err := q.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := q.usage.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	return &UsageReport{
		UsageCounter:  *usage,
		DailyLimit:    user.DailyLimit,
		BotReplyLimit: user.BotReplyLimit,
	}, nil
}

// CanSendCampaign reports whether the user's campaign counter is below the daily limit.
func (q *QuotaTracker) CanSendCampaign(ctx context.Context, userID int) (bool, error) {
	user, err := q.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	usage, err := q.usage.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load usage: %w", err)
	}
	return entities.Below(usage.CampaignMessagesSent, user.DailyLimit), nil
}

// CanSendBotReply reports whether the user may send another automated reply.
func (q *QuotaTracker) CanSendBotReply(ctx context.Context, user *entities.User) (bool, error) {
	usage, err := q.usage.Get(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("load usage: %w", err)
	}
	return entities.Below(usage.BotRepliesSent, user.BotReplyLimit), nil
}

func (q *QuotaTracker) RecordCampaignSend(ctx context.Context, userID int) error {
	return q.usage.IncrementCampaign(ctx, userID)
}

func (q *QuotaTracker) RecordBotReply(ctx context.Context, userID int) error {
	return q.usage.IncrementBotReply(ctx, userID)
}
