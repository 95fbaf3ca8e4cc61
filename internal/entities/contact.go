package entities

import "time"

type Contact struct {
	ID      int    `json:"id"`
	UserID  int    `json:"user_id"`
	Phone   string `json:"phone"` // canonical digits, country prefix included
	Name    string `json:"name"`
	Company string `json:"company"`
}

type ContactStatus string

const (
	ContactPending ContactStatus = "pending"
	ContactSent    ContactStatus = "sent"
	ContactFailed  ContactStatus = "failed"
	ContactReplied ContactStatus = "replied"
)

// CanTransition reports whether a queue entry may move from s to next.
// Allowed: pending->sent, pending->failed, sent->replied.
func (s ContactStatus) CanTransition(next ContactStatus) bool {
	switch s {
	case ContactPending:
		return next == ContactSent || next == ContactFailed
	case ContactSent:
		return next == ContactReplied
	}
	return false
}

// CampaignContact is one queued send job.
type CampaignContact struct {
	ID         int64         `json:"id"`
	CampaignID int           `json:"campaign_id"`
	ContactID  int           `json:"contact_id"`
	Status     ContactStatus `json:"status"`
	SentAt     *time.Time    `json:"sent_at,omitempty"`
	RepliedAt  *time.Time    `json:"replied_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`

	Contact *Contact `json:"contact,omitempty"`
}
