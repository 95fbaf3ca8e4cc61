package usecases

import (
	"context"
	"fmt"
	"strings"

	"project_broadcast/internal/entities"
)

// DialogFlows manages the keyword rules used by keyword reply mode.
type DialogFlows struct {
	flows DialogFlowStore
}

func NewDialogFlows(flows DialogFlowStore) *DialogFlows {
	return &DialogFlows{flows: flows}
}

func (d *DialogFlows) List(ctx context.Context, userID int) ([]entities.DialogFlow, error) {
	return d.flows.ListByUser(ctx, userID)
}

// Add appends a rule. A parent, if given, must be one of the user's rules.
func (d *DialogFlows) Add(ctx context.Context, userID int, f entities.DialogFlow) (*entities.DialogFlow, error) {
	f.UserID = userID
	f.Trigger = strings.TrimSpace(f.Trigger)

	if f.ParentID != nil {
		existing, err := d.flows.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		found := false
		for _, e := range existing {
			if e.ID == *f.ParentID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("parent dialog flow %d: %w", *f.ParentID, entities.ErrNotFound)
		}
	}

	if err := d.flows.Create(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
