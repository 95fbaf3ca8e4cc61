package repository

import (
	"context"
	"errors"
	"fmt"

	"project_broadcast/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate returns the conversation for (user, phone), creating it on first contact.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, userID int, phone string) (*entities.Conversation, error) {
	var c entities.Conversation
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (user_id, contact_phone)
		VALUES ($1, $2)
		ON CONFLICT (user_id, contact_phone) DO UPDATE SET contact_phone = EXCLUDED.contact_phone
		RETURNING id, user_id, contact_phone, is_manual_mode, updated_at`,
		userID, phone).Scan(&c.ID, &c.UserID, &c.ContactPhone, &c.IsManualMode, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) SetManualMode(ctx context.Context, userID int, phone string, manual bool) (*entities.Conversation, error) {
	var c entities.Conversation
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (user_id, contact_phone, is_manual_mode)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, contact_phone) DO UPDATE SET is_manual_mode = EXCLUDED.is_manual_mode
		RETURNING id, user_id, contact_phone, is_manual_mode, updated_at`,
		userID, phone, manual).Scan(&c.ID, &c.UserID, &c.ContactPhone, &c.IsManualMode, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendMessage logs a message and touches the conversation's updated_at.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *entities.ChatMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (conversation_id, campaign_id, sender, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		m.ConversationID, m.CampaignID, m.Sender, m.Body).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("conversation %d: %w", m.ConversationID, entities.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecentMessages returns up to limit messages, oldest first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID, limit int) ([]entities.ChatMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, campaign_id, sender, body, created_at FROM (
			SELECT * FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []entities.ChatMessage{}
	for rows.Next() {
		var m entities.ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.CampaignID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
