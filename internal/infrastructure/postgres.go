package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string, logger *zap.Logger) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("postgres ready", zap.Int32("max_conns", config.MaxConns))

	return client, nil
}

// schema is applied in order on every start; each statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'user',
			reply_mode VARCHAR(16) NOT NULL DEFAULT 'off',
			ai_config JSONB NOT NULL DEFAULT '{}',
			daily_limit INT NOT NULL DEFAULT 0,
			bot_reply_limit INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`},
	{"devices", `
		CREATE TABLE IF NOT EXISTS devices (
			device_id VARCHAR(64) PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			session_id VARCHAR(128) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'disconnected',
			name VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(20) NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"contacts", `
		CREATE TABLE IF NOT EXISTS contacts (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			phone VARCHAR(20) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			company VARCHAR(255) NOT NULL DEFAULT '',
			UNIQUE (phone, user_id)
		)`},
	{"templates", `
		CREATE TABLE IF NOT EXISTS templates (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			deleted_at TIMESTAMPTZ
		)`},
	{"campaigns", `
		CREATE TABLE IF NOT EXISTS campaigns (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			device_id VARCHAR(64) NOT NULL,
			template_id INT REFERENCES templates(id) ON DELETE SET NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'draft',
			sent_count INT NOT NULL DEFAULT 0,
			delivered_count INT NOT NULL DEFAULT 0,
			replied_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	// At most one running campaign per device, enforced by the database.
	{"campaigns_one_running_per_device", `
		CREATE UNIQUE INDEX IF NOT EXISTS campaigns_one_running_per_device
			ON campaigns (device_id) WHERE status = 'running'`},
	{"campaign_contacts", `
		CREATE TABLE IF NOT EXISTS campaign_contacts (
			id BIGSERIAL PRIMARY KEY,
			campaign_id INT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
			contact_id INT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			sent_at TIMESTAMPTZ,
			replied_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"campaign_contacts_queue_idx", `
		CREATE INDEX IF NOT EXISTS campaign_contacts_queue_idx
			ON campaign_contacts (campaign_id, status, id)`},
	{"campaign_contacts_contact_idx", `
		CREATE INDEX IF NOT EXISTS campaign_contacts_contact_idx
			ON campaign_contacts (contact_id, status, sent_at DESC)`},
	{"usage_counters", `
		CREATE TABLE IF NOT EXISTS usage_counters (
			user_id INT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			campaign_messages_sent INT NOT NULL DEFAULT 0 CHECK (campaign_messages_sent >= 0),
			bot_replies_sent INT NOT NULL DEFAULT 0 CHECK (bot_replies_sent >= 0),
			last_reset_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			contact_phone VARCHAR(20) NOT NULL,
			is_manual_mode BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, contact_phone)
		)`},
	{"chat_messages", `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			campaign_id INT REFERENCES campaigns(id) ON DELETE SET NULL,
			sender VARCHAR(8) NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"dialog_flows", `
		CREATE TABLE IF NOT EXISTS dialog_flows (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			parent_id INT REFERENCES dialog_flows(id) ON DELETE CASCADE,
			trigger TEXT NOT NULL,
			response TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0
		)`},
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.Pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
