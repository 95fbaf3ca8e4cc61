package entities

import "time"

// InboundMessage is one message received by a device session and forwarded
// to the control plane.
type InboundMessage struct {
	ID            string
	DeviceID      string
	ContactNumber string
	Body          string
	ReceivedAt    time.Time
}

// Sender tags who authored a logged chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatMessage is an immutable conversation log entry.
type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int       `json:"conversation_id"`
	CampaignID     *int      `json:"campaign_id,omitempty"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is keyed by (user, contact phone).
type Conversation struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	ContactPhone string    `json:"contact_phone"`
	IsManualMode bool      `json:"is_manual_mode"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DialogFlow maps a trigger substring to a canned response. Children hang off
// a parent trigger; matching walks entries in stored order regardless of depth.
type DialogFlow struct {
	ID       int    `json:"id"`
	UserID   int    `json:"user_id"`
	ParentID *int   `json:"parent_id,omitempty"`
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
	Position int    `json:"position"`
}
