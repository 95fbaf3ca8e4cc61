package usecases

import (
	"context"
	"fmt"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/interfaces"
	"project_broadcast/internal/phone"

	"go.uber.org/zap"
)

// DeviceService keeps the control plane's view of device sessions.
type DeviceService struct {
	devices       DeviceStore
	conversations ConversationStore
	executor      interfaces.ExecutionPlane
	logger        *zap.Logger
}

func NewDeviceService(devices DeviceStore, conversations ConversationStore, executor interfaces.ExecutionPlane, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		devices:       devices,
		conversations: conversations,
		executor:      executor,
		logger:        logger,
	}
}

// Bind registers a device for the user and asks the execution plane to open
// its session. The device stays disconnected until the session reports in.
// Binding a device the user already owns only retries the connect.
func (s *DeviceService) Bind(ctx context.Context, userID int, deviceID string) (*entities.Device, error) {
	d := &entities.Device{DeviceID: deviceID, UserID: userID, Status: entities.DeviceDisconnected}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	if err := s.executor.ConnectSession(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("connect session: %w", err)
	}
	return d, nil
}

// UpdateStatus applies a connect/disconnect notice from the execution plane.
func (s *DeviceService) UpdateStatus(ctx context.Context, d entities.Device) error {
	if err := s.devices.UpdateStatus(ctx, d); err != nil {
		return err
	}
	s.logger.Info("device status updated",
		zap.String("device_id", d.DeviceID),
		zap.String("status", string(d.Status)))
	return nil
}

func (s *DeviceService) ListAll(ctx context.Context) ([]entities.Device, error) {
	return s.devices.ListAll(ctx)
}

// SetManualMode toggles the per-conversation override that suppresses
// automated replies.
func (s *DeviceService) SetManualMode(ctx context.Context, userID int, rawPhone string, manual bool) (*entities.Conversation, error) {
	number, err := phone.Canonicalize(rawPhone)
	if err != nil {
		return nil, err
	}
	return s.conversations.SetManualMode(ctx, userID, number, manual)
}
