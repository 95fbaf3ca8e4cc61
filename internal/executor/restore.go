package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"project_broadcast/internal/webhook"

	"go.uber.org/zap"
)

// RestoreSource is what the control plane knows about sessions and running
// campaigns after an execution plane restart.
type RestoreSource interface {
	GetAllSessions(ctx context.Context) ([]webhook.SessionInfo, error)
	ListRunningCampaigns(ctx context.Context) ([]webhook.RunningCampaign, error)
}

// Connector opens a device session.
type Connector interface {
	Connect(ctx context.Context, deviceID string) error
}

// ConnectorFunc adapts a plain function to Connector.
type ConnectorFunc func(ctx context.Context, deviceID string) error

func (f ConnectorFunc) Connect(ctx context.Context, deviceID string) error { return f(ctx, deviceID) }

// Restore reconnects every known session and restarts the loops of running
// campaigns. Each loop starts once its device registers or after wait,
// whichever comes first; a loop whose session never came up aborts on its
// own. Restore returns after all loops have been handed to the dispatcher.
func Restore(ctx context.Context, source RestoreSource, connector Connector, registry *Registry, dispatcher *Dispatcher, wait time.Duration, logger *zap.Logger) error {
	sessions, err := source.GetAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("get all sessions: %w", err)
	}
	for _, s := range sessions {
		if err := connector.Connect(ctx, s.DeviceID); err != nil {
			logger.Warn("restore connect failed", zap.String("device_id", s.DeviceID), zap.Error(err))
		}
	}

	campaigns, err := source.ListRunningCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}

	var wg sync.WaitGroup
	for _, c := range campaigns {
		wg.Add(1)
		go func(c webhook.RunningCampaign) {
			defer wg.Done()
			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()

			if _, err := registry.WaitFor(waitCtx, c.DeviceID); err != nil {
				logger.Warn("device not registered before restore deadline",
					zap.Int("campaign_id", c.CampaignID),
					zap.String("device_id", c.DeviceID))
			}
			if ctx.Err() != nil {
				return
			}
			dispatcher.Start(c.CampaignID, c.DeviceID)
		}(c)
	}
	wg.Wait()

	logger.Info("restore complete",
		zap.Int("sessions", len(sessions)),
		zap.Int("campaigns", len(campaigns)))
	return nil
}
