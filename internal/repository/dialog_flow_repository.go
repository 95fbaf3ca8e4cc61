package repository

import (
	"context"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DialogFlowRepository struct {
	db *pgxpool.Pool
}

func NewDialogFlowRepository(db *pgxpool.Pool) *DialogFlowRepository {
	return &DialogFlowRepository{db: db}
}

// ListByUser returns the user's flows in stored order.
func (r *DialogFlowRepository) ListByUser(ctx context.Context, userID int) ([]entities.DialogFlow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, parent_id, trigger, response, position
		FROM dialog_flows WHERE user_id = $1
		ORDER BY position, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flows := []entities.DialogFlow{}
	for rows.Next() {
		var f entities.DialogFlow
		if err := rows.Scan(&f.ID, &f.UserID, &f.ParentID, &f.Trigger, &f.Response, &f.Position); err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func (r *DialogFlowRepository) Create(ctx context.Context, f *entities.DialogFlow) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO dialog_flows (user_id, parent_id, trigger, response, position)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		f.UserID, f.ParentID, f.Trigger, f.Response, f.Position).Scan(&f.ID)
}
