package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"project_broadcast/internal/entities"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// SessionEvents receives lifecycle and message events from every device.
type SessionEvents struct {
	OnConnected    func(client *WhatsAppClient)
	OnDisconnected func(deviceID string)
	OnMessage      func(msg entities.InboundMessage)
}

// WhatsAppManager manages per-device WhatsApp clients
type WhatsAppManager struct {
	clients map[string]*WhatsAppClient
	mu      sync.RWMutex
	baseDir string
	logger  *zap.Logger
	events  SessionEvents
}

// NewWhatsAppManager creates a manager storing one sqlite file per device under baseDir.
func NewWhatsAppManager(baseDir string, events SessionEvents, logger *zap.Logger) (*WhatsAppManager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create devices directory: %w", err)
	}

	return &WhatsAppManager{
		clients: make(map[string]*WhatsAppClient),
		baseDir: baseDir,
		logger:  logger,
		events:  events,
	}, nil
}

// GetClient returns the device's client, or nil if it was never opened.
func (m *WhatsAppManager) GetClient(deviceID string) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[deviceID]
}

func (m *WhatsAppManager) getOrCreateClient(ctx context.Context, deviceID string) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[deviceID]; exists {
		return client, nil
	}

	dbPath := filepath.Join(m.baseDir, deviceID+".db")
	client, err := NewWhatsAppClient(ctx, dbPath, deviceID, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for device %s: %w", deviceID, err)
	}
	client.AddHandler(m.eventHandler(client))

	m.clients[deviceID] = client
	return client, nil
}

// ConnectClient opens the device's client (creating it if needed). Connecting
// an already connected client is a no-op.
func (m *WhatsAppManager) ConnectClient(ctx context.Context, deviceID string) (*WhatsAppClient, error) {
	client, err := m.getOrCreateClient(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if client.Client.IsConnected() {
		return client, nil
	}

	// The pairing QR channel lives as long as this context.
	if err := client.Connect(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp for device %s: %w", deviceID, err)
	}
	return client, nil
}

// Connect opens the device's session, discarding the client.
func (m *WhatsAppManager) Connect(ctx context.Context, deviceID string) error {
	_, err := m.ConnectClient(ctx, deviceID)
	return err
}

// QRCode returns the device's current pairing code, and whether the device
// is already paired.
func (m *WhatsAppManager) QRCode(deviceID string) (code string, loggedIn bool) {
	client := m.GetClient(deviceID)
	if client == nil {
		return "", false
	}
	return client.QR(), client.IsLoggedIn()
}

func (m *WhatsAppManager) eventHandler(client *WhatsAppClient) func(interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Connected:
			if m.events.OnConnected != nil {
				m.events.OnConnected(client)
			}
		case *events.Disconnected, *events.LoggedOut, *events.StreamReplaced:
			if m.events.OnDisconnected != nil {
				m.events.OnDisconnected(client.DeviceID)
			}
		case *events.Message:
			sender, content, ok := parseMessage(v)
			if !ok || m.events.OnMessage == nil {
				return
			}
			id := v.Info.ID
			if id == "" {
				id = uuid.NewString()
			}
			m.events.OnMessage(entities.InboundMessage{
				ID:            id,
				DeviceID:      client.DeviceID,
				ContactNumber: sender,
				Body:          content,
				ReceivedAt:    v.Info.Timestamp,
			})
		}
	}
}

// DisconnectAll disconnects all clients (for graceful shutdown)
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*WhatsAppClient)
}
