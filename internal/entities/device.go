package entities

import "time"

type DeviceStatus string

const (
	DeviceConnected    DeviceStatus = "connected"
	DeviceDisconnected DeviceStatus = "disconnected"
)

// Device binds a stable device id to an execution-plane session.
type Device struct {
	DeviceID  string       `json:"device_id"`
	UserID    int          `json:"user_id"`
	SessionID string       `json:"session_id"`
	Status    DeviceStatus `json:"status"`
	Name      string       `json:"name"`
	Phone     string       `json:"phone"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// UsageCounter holds a user's daily counters.
type UsageCounter struct {
	UserID               int       `json:"user_id"`
	CampaignMessagesSent int       `json:"campaign_messages_sent"`
	BotRepliesSent       int       `json:"bot_replies_sent"`
	LastResetAt          time.Time `json:"last_reset_at"`
}

// Below reports whether used is under limit. A limit of 0 means unlimited.
func Below(used, limit int) bool {
	return limit <= 0 || used < limit
}
