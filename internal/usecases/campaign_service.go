package usecases

import (
	"context"
	"fmt"

	"project_broadcast/internal/entities"
)

// CampaignService builds campaigns and their contact queues.
type CampaignService struct {
	campaigns CampaignStore
	queue     ContactQueue
	templates TemplateStore
	devices   DeviceStore
}

func NewCampaignService(campaigns CampaignStore, queue ContactQueue, templates TemplateStore, devices DeviceStore) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		queue:     queue,
		templates: templates,
		devices:   devices,
	}
}

type CreateCampaignInput struct {
	Name       string `json:"name" binding:"required,max=255"`
	DeviceID   string `json:"device_id" binding:"required"`
	TemplateID int    `json:"template_id" binding:"required,gt=0"`
	ContactIDs []int  `json:"contact_ids" binding:"required,min=1,dive,gt=0"`
}

type CampaignDetails struct {
	*entities.Campaign
	Queued int                            `json:"queued"`
	Queue  map[entities.ContactStatus]int `json:"queue"`
}

// Create stores a draft campaign and enqueues the contacts in the given
// order. Device and template must belong to the user.
func (s *CampaignService) Create(ctx context.Context, userID int, in CreateCampaignInput) (*CampaignDetails, error) {
	device, err := s.devices.Get(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.UserID != userID {
		return nil, fmt.Errorf("device %s: %w", in.DeviceID, entities.ErrNotFound)
	}

	tmpl, err := s.templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl.UserID != userID {
		return nil, fmt.Errorf("template %d: %w", in.TemplateID, entities.ErrNotFound)
	}

	campaign := &entities.Campaign{
		UserID:     userID,
		Name:       in.Name,
		DeviceID:   device.DeviceID,
		TemplateID: &tmpl.ID,
		Status:     entities.CampaignDraft,
	}
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	queued, err := s.queue.Enqueue(ctx, campaign.ID, userID, dedupeIDs(in.ContactIDs))
	if err != nil {
		return nil, fmt.Errorf("enqueue contacts: %w", err)
	}

	return &CampaignDetails{
		Campaign: campaign,
		Queued:   queued,
		Queue:    map[entities.ContactStatus]int{entities.ContactPending: queued},
	}, nil
}

func (s *CampaignService) Get(ctx context.Context, userID, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, entities.ErrNotFound)
	}

	stats, err := s.queue.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	return &CampaignDetails{Campaign: campaign, Queued: total, Queue: stats}, nil
}

// ListRunning returns every running campaign, used by the execution plane
// to restore loops after a restart.
func (s *CampaignService) ListRunning(ctx context.Context) ([]entities.Campaign, error) {
	return s.campaigns.ListByStatus(ctx, entities.CampaignRunning)
}

func dedupeIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
