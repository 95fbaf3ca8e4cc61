package repository

import (
	"context"
	"errors"
	"time"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// Get returns the user's counters. A user with no row yet has zero usage.
func (r *UsageRepository) Get(ctx context.Context, userID int) (*entities.UsageCounter, error) {
	u := entities.UsageCounter{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT campaign_messages_sent, bot_replies_sent, last_reset_at
		FROM usage_counters WHERE user_id = $1`,
		userID).Scan(&u.CampaignMessagesSent, &u.BotRepliesSent, &u.LastResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementCampaign bumps campaign_messages_sent for the user
func (r *UsageRepository) IncrementCampaign(ctx context.Context, userID int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO usage_counters (user_id, campaign_messages_sent, bot_replies_sent)
		VALUES ($1, 1, 0)
		ON CONFLICT (user_id)
		DO UPDATE SET campaign_messages_sent = usage_counters.campaign_messages_sent + 1
	`, userID)
	return err
}

// IncrementBotReply bumps bot_replies_sent for the user
func (r *UsageRepository) IncrementBotReply(ctx context.Context, userID int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO usage_counters (user_id, campaign_messages_sent, bot_replies_sent)
		VALUES ($1, 0, 1)
		ON CONFLICT (user_id)
		DO UPDATE SET bot_replies_sent = usage_counters.bot_replies_sent + 1
	`, userID)
	return err
}

// ResetAll zeroes every user's counters and stamps last_reset_at.
func (r *UsageRepository) ResetAll(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE usage_counters
		SET campaign_messages_sent = 0, bot_replies_sent = 0, last_reset_at = $1
	`, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
