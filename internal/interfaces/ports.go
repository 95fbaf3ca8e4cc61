package interfaces

import (
	"context"

	"project_broadcast/internal/entities"
)

// AIClient generates a reply from a system prompt, prior turns and the new
// inbound text.
type AIClient interface {
	GenerateResponse(ctx context.Context, prompt entities.AIPrompt) (string, error)
}

// ExecutionPlane is what the control plane can ask of the process holding
// the live device sessions.
type ExecutionPlane interface {
	StartDispatch(ctx context.Context, campaignID int, deviceID string) error
	StopDispatch(ctx context.Context, campaignID int) (bool, error)
	SendMessage(ctx context.Context, deviceID, to, message string) error
	ConnectSession(ctx context.Context, deviceID string) error
}

// EventDeduper reports whether an inbound event id is seen for the first time.
type EventDeduper interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
}
