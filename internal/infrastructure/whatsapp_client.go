package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// WhatsAppClient is one device's whatsmeow connection.
type WhatsAppClient struct {
	Client   *whatsmeow.Client
	DeviceID string

	logger *zap.Logger
	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(ctx context.Context, dbPath, deviceID string, logger *zap.Logger) (*WhatsAppClient, error) {
	logger = logger.With(zap.String("device_id", deviceID))

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", newWALogger(logger, "Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return &WhatsAppClient{
		Client:   whatsmeow.NewClient(deviceStore, newWALogger(logger, "Client")),
		DeviceID: deviceID,
		logger:   logger,
	}, nil
}

// Connect opens the websocket. An unpaired device starts publishing QR codes
// readable through QR.
func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return err
		}
		w.logger.Info("whatsapp connected with existing session")
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return err
	}

	go func() {
		for evt := range qrChan {
			if evt.Event == "code" {
				w.qrLock.Lock()
				w.qrCode = evt.Code
				w.qrLock.Unlock()
				w.logger.Info("pairing qr code refreshed")
				continue
			}
			w.logger.Info("pairing event", zap.String("event", evt.Event))
			if evt.Event == "success" {
				w.qrLock.Lock()
				w.qrCode = ""
				w.qrLock.Unlock()
			}
		}
	}()
	return nil
}

// QR returns the latest pairing code, empty once paired.
func (w *WhatsAppClient) QR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// IsConnected returns true if client is connected and logged in
func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// Identity returns the paired phone number and push name.
func (w *WhatsAppClient) Identity() (phone, name string) {
	if w.Client.Store.ID == nil {
		return "", ""
	}
	return w.Client.Store.ID.User, w.Client.Store.PushName
}

// SessionID is the paired JID, empty before pairing.
func (w *WhatsAppClient) SessionID() string {
	if w.Client.Store.ID == nil {
		return ""
	}
	return w.Client.Store.ID.String()
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

// SendText sends a plain text message to a canonical digit phone number.
func (w *WhatsAppClient) SendText(ctx context.Context, to, body string) error {
	jid := types.NewJID(to, types.DefaultUserServer)
	_, err := w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(body),
	})
	return err
}

// parseMessage extracts sender digits and text. ok is false for messages
// that should not be forwarded (own, group, broadcast, non-text).
func parseMessage(evt *events.Message) (sender, content string, ok bool) {
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Info.Chat.Server == types.BroadcastServer {
		return "", "", false
	}

	switch {
	case evt.Message.GetConversation() != "":
		content = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage() != nil:
		content = evt.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(content) == "" {
		return "", "", false
	}
	return senderPhone(evt.Info.MessageSource), content, true
}

// senderPhone returns the phone digits of the sender. Hidden (LID) senders
// carry the phone number in SenderAlt.
func senderPhone(src types.MessageSource) string {
	if src.Sender.Server == types.HiddenUserServer && !src.SenderAlt.IsEmpty() {
		return src.SenderAlt.User
	}
	return src.Sender.User
}

// waLogger routes whatsmeow logs through zap.
type waLogger struct {
	s *zap.SugaredLogger
}

func newWALogger(logger *zap.Logger, module string) waLog.Logger {
	return waLogger{s: logger.Named(module).Sugar()}
}

func (l waLogger) Warnf(msg string, args ...interface{})  { l.s.Warnf(msg, args...) }
func (l waLogger) Errorf(msg string, args ...interface{}) { l.s.Errorf(msg, args...) }
func (l waLogger) Infof(msg string, args ...interface{})  { l.s.Infof(msg, args...) }
func (l waLogger) Debugf(msg string, args ...interface{}) { l.s.Debugf(msg, args...) }
func (l waLogger) Sub(module string) waLog.Logger {
	return waLogger{s: l.s.Named(module)}
}
