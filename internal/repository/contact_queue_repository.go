package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactQueueRepository stores the per-campaign send queue. Entries are
// dispensed in insertion order.
type ContactQueueRepository struct {
	db *pgxpool.Pool
}

func NewContactQueueRepository(db *pgxpool.Pool) *ContactQueueRepository {
	return &ContactQueueRepository{db: db}
}

// Enqueue adds the given contacts as pending entries in the order given.
// Contacts not owned by userID are skipped. It returns how many were queued.
func (r *ContactQueueRepository) Enqueue(ctx context.Context, campaignID, userID int, contactIDs []int) (int, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO campaign_contacts (campaign_id, contact_id)
		SELECT $1, c.id
		FROM contacts c
		WHERE c.user_id = $2 AND c.id = ANY($3)
		ORDER BY array_position($3, c.id)`,
		campaignID, userID, contactIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const queueSelect = `
	SELECT cc.id, cc.campaign_id, cc.contact_id, cc.status, cc.sent_at, cc.replied_at, cc.created_at,
		c.id, c.user_id, c.phone, c.name, c.company
	FROM campaign_contacts cc
	JOIN contacts c ON c.id = cc.contact_id`

func scanQueueEntry(row pgx.Row) (*entities.CampaignContact, error) {
	var (
		e entities.CampaignContact
		c entities.Contact
	)
	err := row.Scan(&e.ID, &e.CampaignID, &e.ContactID, &e.Status, &e.SentAt, &e.RepliedAt, &e.CreatedAt,
		&c.ID, &c.UserID, &c.Phone, &c.Name, &c.Company)
	if err != nil {
		return nil, err
	}
	e.Contact = &c
	return &e, nil
}

// NextPending returns the oldest pending entry, or nil, nil when none is left.
func (r *ContactQueueRepository) NextPending(ctx context.Context, campaignID int) (*entities.CampaignContact, error) {
	e, err := scanQueueEntry(r.db.QueryRow(ctx, queueSelect+`
		WHERE cc.campaign_id = $1 AND cc.status = 'pending'
		ORDER BY cc.id
		LIMIT 1`, campaignID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *ContactQueueRepository) Get(ctx context.Context, id int64) (*entities.CampaignContact, error) {
	e, err := scanQueueEntry(r.db.QueryRow(ctx, queueSelect+` WHERE cc.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaign contact %d: %w", id, entities.ErrNotFound)
	}
	return e, err
}

func (r *ContactQueueRepository) Count(ctx context.Context, campaignID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM campaign_contacts WHERE campaign_id = $1`, campaignID).Scan(&n)
	return n, err
}

// Stats returns entry counts keyed by status.
func (r *ContactQueueRepository) Stats(ctx context.Context, campaignID int) (map[entities.ContactStatus]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM campaign_contacts
		WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[entities.ContactStatus]int{}
	for rows.Next() {
		var (
			status entities.ContactStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

func (r *ContactQueueRepository) transition(ctx context.Context, id int64, from, to entities.ContactStatus, column string, at *time.Time) error {
	query := `UPDATE campaign_contacts SET status = $3 WHERE id = $1 AND status = $2`
	args := []any{id, from, to}
	if column != "" {
		query = `UPDATE campaign_contacts SET status = $3, ` + column + ` = $4 WHERE id = $1 AND status = $2`
		args = append(args, at)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign contact %d %s->%s: %w", id, from, to, entities.ErrInvalidTransition)
	}
	return nil
}

func (r *ContactQueueRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.transition(ctx, id, entities.ContactPending, entities.ContactSent, "sent_at", &at)
}

func (r *ContactQueueRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.transition(ctx, id, entities.ContactPending, entities.ContactFailed, "", nil)
}

func (r *ContactQueueRepository) MarkReplied(ctx context.Context, id int64, at time.Time) error {
	return r.transition(ctx, id, entities.ContactSent, entities.ContactReplied, "replied_at", &at)
}

// FindAttributable returns the most recently sent entry for the contact in a
// running campaign bound to deviceID, or nil, nil when there is none.
func (r *ContactQueueRepository) FindAttributable(ctx context.Context, contactID int, deviceID string) (*entities.CampaignContact, error) {
	e, err := scanQueueEntry(r.db.QueryRow(ctx, queueSelect+`
		JOIN campaigns cp ON cp.id = cc.campaign_id
		WHERE cc.contact_id = $1 AND cc.status = 'sent' AND cp.device_id = $2 AND cp.status = 'running'
		ORDER BY cc.sent_at DESC, cc.id DESC
		LIMIT 1`, contactID, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}
