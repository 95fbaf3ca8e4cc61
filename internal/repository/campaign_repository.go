package repository

import (
	"context"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type CampaignRepository struct {
	db *pgxpool.Pool
}

func NewCampaignRepository(db *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *entities.Campaign) error {
	if c.Status == "" {
		c.Status = entities.CampaignDraft
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO campaigns (user_id, name, device_id, template_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		c.UserID, c.Name, c.DeviceID, c.TemplateID, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

const campaignColumns = `id, user_id, name, device_id, template_id, status,
	sent_count, delivered_count, replied_count, created_at, updated_at`

func scanCampaign(row pgx.Row) (*entities.Campaign, error) {
	var c entities.Campaign
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.DeviceID, &c.TemplateID, &c.Status,
		&c.SentCount, &c.DeliveredCount, &c.RepliedCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*entities.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaign %d: %w", id, entities.ErrNotFound)
	}
	return c, err
}

func (r *CampaignRepository) HasRunningOnDevice(ctx context.Context, deviceID string, exceptID int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM campaigns
			WHERE device_id = $1 AND status = 'running' AND id <> $2
		)`, deviceID, exceptID).Scan(&exists)
	return exists, err
}

// TransitionStatus moves a campaign to `to` only if its current status is one
// of `from`. It reports false when the campaign was in some other status.
// Entering running while another campaign runs on the same device fails with
// ErrDeviceBusy.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from []entities.CampaignStatus, to entities.CampaignStatus) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)`,
		id, statuses, to)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, entities.ErrDeviceBusy
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status entities.CampaignStatus) ([]entities.Campaign, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE status = $1 ORDER BY id", status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []entities.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) IncrementSent(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE campaigns SET sent_count = sent_count + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *CampaignRepository) IncrementReplied(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE campaigns SET replied_count = replied_count + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}
