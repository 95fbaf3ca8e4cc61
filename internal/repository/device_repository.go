package repository

import (
	"context"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeviceRepository struct {
	db *pgxpool.Pool
}

func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts the device, or loads it into d when the same user already
// bound it. A device id owned by someone else is ErrDeviceTaken.
func (r *DeviceRepository) Create(ctx context.Context, d *entities.Device) error {
	if d.Status == "" {
		d.Status = entities.DeviceDisconnected
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO devices (device_id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO NOTHING
		RETURNING updated_at`,
		d.DeviceID, d.UserID, d.Status,
	).Scan(&d.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	existing, err := r.Get(ctx, d.DeviceID)
	if err != nil {
		return err
	}
	if existing.UserID != d.UserID {
		return fmt.Errorf("device %s: %w", d.DeviceID, entities.ErrDeviceTaken)
	}
	*d = *existing
	return nil
}

const deviceColumns = `device_id, user_id, session_id, status, name, phone, updated_at`

func scanDevice(row pgx.Row) (*entities.Device, error) {
	var d entities.Device
	if err := row.Scan(&d.DeviceID, &d.UserID, &d.SessionID, &d.Status, &d.Name, &d.Phone, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeviceRepository) Get(ctx context.Context, deviceID string) (*entities.Device, error) {
	d, err := scanDevice(r.db.QueryRow(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE device_id = $1", deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, entities.ErrNotFound)
	}
	return d, err
}

// UpdateStatus records a connect/disconnect notice. Name and phone are kept
// when the notice leaves them empty.
func (r *DeviceRepository) UpdateStatus(ctx context.Context, d entities.Device) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE devices
		SET status = $2,
			session_id = COALESCE(NULLIF($3, ''), session_id),
			name = COALESCE(NULLIF($4, ''), name),
			phone = COALESCE(NULLIF($5, ''), phone),
			updated_at = NOW()
		WHERE device_id = $1`,
		d.DeviceID, d.Status, d.SessionID, d.Name, d.Phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device %s: %w", d.DeviceID, entities.ErrNotFound)
	}
	return nil
}

func (r *DeviceRepository) ListAll(ctx context.Context) ([]entities.Device, error) {
	rows, err := r.db.Query(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY device_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []entities.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}
