package usecases

import (
	"context"
	"time"

	"project_broadcast/internal/entities"
)

// Storage the control plane usecases depend on. The pgx repositories in
// internal/repository satisfy these; tests use in-memory fakes.

type UserStore interface {
	GetByID(ctx context.Context, id int) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	Create(ctx context.Context, user *entities.User) error
}

type DeviceStore interface {
	Create(ctx context.Context, d *entities.Device) error
	Get(ctx context.Context, deviceID string) (*entities.Device, error)
	UpdateStatus(ctx context.Context, d entities.Device) error
	ListAll(ctx context.Context) ([]entities.Device, error)
}

type ContactStore interface {
	GetByPhone(ctx context.Context, userID int, phone string) (*entities.Contact, error)
}

type TemplateStore interface {
	GetByID(ctx context.Context, id int) (*entities.Template, error)
}

type CampaignStore interface {
	Create(ctx context.Context, c *entities.Campaign) error
	GetByID(ctx context.Context, id int) (*entities.Campaign, error)
	HasRunningOnDevice(ctx context.Context, deviceID string, exceptID int) (bool, error)
	TransitionStatus(ctx context.Context, id int, from []entities.CampaignStatus, to entities.CampaignStatus) (bool, error)
	ListByStatus(ctx context.Context, status entities.CampaignStatus) ([]entities.Campaign, error)
	IncrementSent(ctx context.Context, id int) error
	IncrementReplied(ctx context.Context, id int) error
}

type ContactQueue interface {
	Enqueue(ctx context.Context, campaignID, userID int, contactIDs []int) (int, error)
	NextPending(ctx context.Context, campaignID int) (*entities.CampaignContact, error)
	Get(ctx context.Context, id int64) (*entities.CampaignContact, error)
	Count(ctx context.Context, campaignID int) (int, error)
	Stats(ctx context.Context, campaignID int) (map[entities.ContactStatus]int, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	MarkReplied(ctx context.Context, id int64, at time.Time) error
	FindAttributable(ctx context.Context, contactID int, deviceID string) (*entities.CampaignContact, error)
}

type UsageStore interface {
	Get(ctx context.Context, userID int) (*entities.UsageCounter, error)
	IncrementCampaign(ctx context.Context, userID int) error
	IncrementBotReply(ctx context.Context, userID int) error
	ResetAll(ctx context.Context, at time.Time) (int64, error)
}

type ConversationStore interface {
	GetOrCreate(ctx context.Context, userID int, phone string) (*entities.Conversation, error)
	SetManualMode(ctx context.Context, userID int, phone string, manual bool) (*entities.Conversation, error)
	AppendMessage(ctx context.Context, m *entities.ChatMessage) error
	RecentMessages(ctx context.Context, conversationID, limit int) ([]entities.ChatMessage, error)
}

type DialogFlowStore interface {
	ListByUser(ctx context.Context, userID int) ([]entities.DialogFlow, error)
	Create(ctx context.Context, f *entities.DialogFlow) error
}
