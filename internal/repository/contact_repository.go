package repository

import (
	"context"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetByPhone returns nil, nil when the user has no contact with that number.
func (r *ContactRepository) GetByPhone(ctx context.Context, userID int, phone string) (*entities.Contact, error) {
	var c entities.Contact
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, phone, name, company
		FROM contacts WHERE user_id = $1 AND phone = $2`,
		userID, phone).Scan(&c.ID, &c.UserID, &c.Phone, &c.Name, &c.Company)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByID treats soft-deleted templates as missing.
func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*entities.Template, error) {
	var t entities.Template
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, name, body
		FROM templates WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&t.ID, &t.UserID, &t.Name, &t.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
