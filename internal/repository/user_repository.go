package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	aiConfig, err := json.Marshal(user.AIConfig)
	if err != nil {
		return err
	}
	if user.ReplyMode == "" {
		user.ReplyMode = entities.ReplyModeOff
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, reply_mode, ai_config, daily_limit, bot_reply_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		user.Username, user.PasswordHash, user.Role, user.ReplyMode, aiConfig, user.DailyLimit, user.BotReplyLimit,
	).Scan(&user.ID)
}

const userColumns = `id, username, password_hash, role, reply_mode, ai_config, daily_limit, bot_reply_limit`

func scanUser(row pgx.Row) (*entities.User, error) {
	var (
		user     entities.User
		aiConfig []byte
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&user.ReplyMode, &aiConfig, &user.DailyLimit, &user.BotReplyLimit)
	if err != nil {
		return nil, err
	}
	if len(aiConfig) > 0 {
		if err := json.Unmarshal(aiConfig, &user.AIConfig); err != nil {
			return nil, fmt.Errorf("decode ai_config for user %d: %w", user.ID, err)
		}
	}
	return &user, nil
}

// GetByUsername returns nil, nil when no user has that name.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*entities.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, entities.ErrNotFound)
	}
	return user, err
}
