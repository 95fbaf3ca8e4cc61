package entities

import "time"

type CampaignStatus string

const (
	CampaignDraft       CampaignStatus = "draft"
	CampaignRunning     CampaignStatus = "running"
	CampaignPaused      CampaignStatus = "paused"
	CampaignPausedLimit CampaignStatus = "paused_limit"
	CampaignCompleted   CampaignStatus = "completed"
)

// Startable reports whether Start may move a campaign in this status to running.
func (s CampaignStatus) Startable() bool {
	switch s {
	case CampaignDraft, CampaignPaused, CampaignPausedLimit:
		return true
	}
	return false
}

type Campaign struct {
	ID             int            `json:"id"`
	UserID         int            `json:"user_id"`
	Name           string         `json:"name"`
	DeviceID       string         `json:"device_id"`
	TemplateID     *int           `json:"template_id,omitempty"`
	Status         CampaignStatus `json:"status"`
	SentCount      int            `json:"sent_count"`
	DeliveredCount int            `json:"delivered_count"`
	RepliedCount   int            `json:"replied_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Template is the message body a campaign renders per contact.
type Template struct {
	ID     int    `json:"id"`
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Body   string `json:"body"`
}
