package executor

import (
	"context"
	"sync"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/webhook"

	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

// notifier runs calls off the caller's goroutine, one at a time and in
// arrival order per device.
type notifier struct {
	mu      sync.Mutex
	pending map[string][]func()
}

func newNotifier() *notifier {
	return &notifier{pending: make(map[string][]func())}
}

func (n *notifier) enqueue(deviceID string, call func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, busy := n.pending[deviceID]
	n.pending[deviceID] = append(q, call)
	if !busy {
		go n.drain(deviceID)
	}
}

func (n *notifier) drain(deviceID string) {
	for {
		n.mu.Lock()
		q := n.pending[deviceID]
		if len(q) == 0 {
			delete(n.pending, deviceID)
			n.mu.Unlock()
			return
		}
		call := q[0]
		n.pending[deviceID] = q[1:]
		n.mu.Unlock()

		call()
	}
}

// SessionReporter forwards session events to the control plane.
type SessionReporter interface {
	ProcessIncomingMessage(ctx context.Context, req webhook.IncomingMessageRequest) error
	SessionStatusUpdate(ctx context.Context, req webhook.SessionStatusRequest) error
}

// SessionEvents keeps the registry in step with the WhatsApp sessions and
// reports every change and inbound message to the control plane. Webhook
// calls run off the session's event goroutine, in order per device.
func SessionEvents(registry *Registry, reporter SessionReporter, logger *zap.Logger) infrastructure.SessionEvents {
	queue := newNotifier()
	notify := func(op, deviceID string, call func(ctx context.Context) error) {
		queue.enqueue(deviceID, func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := call(ctx); err != nil {
				logger.Error("control plane notification failed",
					zap.String("op", op),
					zap.String("device_id", deviceID),
					zap.Error(err))
				infrastructure.CaptureError(err, map[string]string{"op": op, "device_id": deviceID})
			}
		})
	}

	return infrastructure.SessionEvents{
		OnConnected: func(client *infrastructure.WhatsAppClient) {
			registry.Register(client.DeviceID, client)
			phone, name := client.Identity()
			logger.Info("session connected", zap.String("device_id", client.DeviceID), zap.String("phone", phone))

			req := webhook.SessionStatusRequest{
				DeviceID:  client.DeviceID,
				Status:    string(entities.DeviceConnected),
				SessionID: client.SessionID(),
				UserName:  name,
				UserPhone: phone,
			}
			notify("session_status", client.DeviceID, func(ctx context.Context) error {
				return reporter.SessionStatusUpdate(ctx, req)
			})
		},
		OnDisconnected: func(deviceID string) {
			registry.Deregister(deviceID)
			logger.Info("session disconnected", zap.String("device_id", deviceID))

			req := webhook.SessionStatusRequest{DeviceID: deviceID, Status: string(entities.DeviceDisconnected)}
			notify("session_status", deviceID, func(ctx context.Context) error {
				return reporter.SessionStatusUpdate(ctx, req)
			})
		},
		OnMessage: func(msg entities.InboundMessage) {
			req := webhook.IncomingMessageRequest{
				DeviceID:      msg.DeviceID,
				ContactNumber: msg.ContactNumber,
				MessageBody:   msg.Body,
				MessageID:     msg.ID,
			}
			notify("process_incoming", msg.DeviceID, func(ctx context.Context) error {
				return reporter.ProcessIncomingMessage(ctx, req)
			})
		},
	}
}
