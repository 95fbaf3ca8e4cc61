package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/interfaces"
	"project_broadcast/internal/phone"

	"go.uber.org/zap"
)

const (
	historyLimit = 10
	routeTimeout = 2 * time.Minute
)

// InboundRouter handles messages received by device sessions: it logs them,
// attributes replies to campaigns and decides on an automated answer.
type InboundRouter struct {
	users         UserStore
	devices       DeviceStore
	contacts      ContactStore
	queue         ContactQueue
	campaigns     CampaignStore
	conversations ConversationStore
	dialogFlows   DialogFlowStore
	quota         *QuotaTracker
	ai            interfaces.AIClient
	executor      interfaces.ExecutionPlane
	deduper       interfaces.EventDeduper
	locks         *infrastructure.KeyedMutex
	metrics       *infrastructure.Metrics
	logger        *zap.Logger
	now           func() time.Time
	wg            sync.WaitGroup
}

type InboundRouterDeps struct {
	Users         UserStore
	Devices       DeviceStore
	Contacts      ContactStore
	Queue         ContactQueue
	Campaigns     CampaignStore
	Conversations ConversationStore
	DialogFlows   DialogFlowStore
	Quota         *QuotaTracker
	AI            interfaces.AIClient
	Executor      interfaces.ExecutionPlane
	Deduper       interfaces.EventDeduper
	Metrics       *infrastructure.Metrics
	Logger        *zap.Logger
}

func NewInboundRouter(d InboundRouterDeps) *InboundRouter {
	return &InboundRouter{
		users:         d.Users,
		devices:       d.Devices,
		contacts:      d.Contacts,
		queue:         d.Queue,
		campaigns:     d.Campaigns,
		conversations: d.Conversations,
		dialogFlows:   d.DialogFlows,
		quota:         d.Quota,
		ai:            d.AI,
		executor:      d.Executor,
		deduper:       d.Deduper,
		locks:         infrastructure.NewKeyedMutex(),
		metrics:       d.Metrics,
		logger:        d.Logger,
		now:           time.Now,
	}
}

// Dispatch routes msg in the background and returns immediately.
func (r *InboundRouter) Dispatch(msg entities.InboundMessage) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), routeTimeout)
		defer cancel()

		if err := r.Route(ctx, msg); err != nil {
			r.logger.Error("inbound routing failed",
				zap.String("device_id", msg.DeviceID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
			infrastructure.CaptureError(err, map[string]string{"op": "inbound_route", "device_id": msg.DeviceID})
		}
	}()
}

// Shutdown waits for dispatched messages to finish routing or for ctx to end.
func (r *InboundRouter) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Route processes one inbound event. Unknown devices, senders that are not
// contacts and redelivered events are dropped without error.
func (r *InboundRouter) Route(ctx context.Context, msg entities.InboundMessage) error {
	log := r.logger.With(zap.String("device_id", msg.DeviceID), zap.String("message_id", msg.ID))

	first, err := r.deduper.FirstDelivery(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}
	if !first {
		r.metrics.RecordInbound("duplicate")
		log.Debug("duplicate inbound event dropped")
		return nil
	}

	number, err := phone.Canonicalize(msg.ContactNumber)
	if err != nil {
		r.drop(log, "unparseable sender")
		return nil
	}

	device, err := r.devices.Get(ctx, msg.DeviceID)
	if errors.Is(err, entities.ErrNotFound) {
		r.drop(log, "unknown device")
		return nil
	}
	if err != nil {
		return err
	}
	user, err := r.users.GetByID(ctx, device.UserID)
	if errors.Is(err, entities.ErrNotFound) {
		r.drop(log, "device owner missing")
		return nil
	}
	if err != nil {
		return err
	}
	contact, err := r.contacts.GetByPhone(ctx, user.ID, number)
	if err != nil {
		return err
	}
	if contact == nil {
		r.drop(log, "sender is not a contact")
		return nil
	}

	unlock := r.locks.Lock(fmt.Sprintf("%d:%s", user.ID, number))
	defer unlock()

	conv, err := r.conversations.GetOrCreate(ctx, user.ID, number)
	if err != nil {
		return fmt.Errorf("conversation: %w", err)
	}

	attributed, err := r.queue.FindAttributable(ctx, contact.ID, device.DeviceID)
	if err != nil {
		return fmt.Errorf("find attributable: %w", err)
	}

	inbound := &entities.ChatMessage{
		ConversationID: conv.ID,
		Sender:         entities.SenderUser,
		Body:           msg.Body,
	}
	if attributed != nil {
		campaignID := attributed.CampaignID
		inbound.CampaignID = &campaignID
	}
	if err := r.conversations.AppendMessage(ctx, inbound); err != nil {
		return fmt.Errorf("log inbound: %w", err)
	}
	r.metrics.RecordInbound("routed")

	if attributed != nil {
		r.attribute(ctx, log, attributed)
	}

	reply, mode := r.chooseReply(ctx, log, user, conv, inbound)
	if reply == "" {
		return nil
	}

	allowed, err := r.quota.CanSendBotReply(ctx, user)
	if err != nil {
		return err
	}
	if !allowed {
		log.Info("bot reply limit reached, reply suppressed")
		return nil
	}

	if err := r.conversations.AppendMessage(ctx, &entities.ChatMessage{
		ConversationID: conv.ID,
		Sender:         entities.SenderBot,
		Body:           reply,
	}); err != nil {
		return fmt.Errorf("log reply: %w", err)
	}
	if err := r.quota.RecordBotReply(ctx, user.ID); err != nil {
		return fmt.Errorf("record bot reply: %w", err)
	}
	r.metrics.RecordBotReply(string(mode))

	if err := r.executor.SendMessage(ctx, device.DeviceID, number, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *InboundRouter) drop(log *zap.Logger, reason string) {
	r.metrics.RecordInbound("dropped")
	log.Debug("inbound message dropped", zap.String("reason", reason))
}

// attribute marks the campaign entry replied. A concurrent transition is
// logged and otherwise ignored.
func (r *InboundRouter) attribute(ctx context.Context, log *zap.Logger, entry *entities.CampaignContact) {
	log = log.With(zap.Int("campaign_id", entry.CampaignID), zap.Int64("campaign_contact_id", entry.ID))

	if err := r.queue.MarkReplied(ctx, entry.ID, r.now()); err != nil {
		if !errors.Is(err, entities.ErrInvalidTransition) {
			log.Error("mark replied failed", zap.Error(err))
		}
		return
	}
	if err := r.campaigns.IncrementReplied(ctx, entry.CampaignID); err != nil {
		log.Error("increment replied failed", zap.Error(err))
	}
}

func (r *InboundRouter) chooseReply(ctx context.Context, log *zap.Logger, user *entities.User, conv *entities.Conversation, inbound *entities.ChatMessage) (string, entities.ReplyMode) {
	if conv.IsManualMode {
		return "", ""
	}

	switch user.ReplyMode {
	case entities.ReplyModeAI:
		history, err := r.conversations.RecentMessages(ctx, conv.ID, historyLimit+1)
		if err != nil {
			log.Warn("history unavailable", zap.Error(err))
			history = nil
		}
		prior := history[:0:0]
		for _, m := range history {
			if m.ID != inbound.ID {
				prior = append(prior, m)
			}
		}

		reply, err := r.ai.GenerateResponse(ctx, BuildAIPrompt(user.AIConfig, prior, inbound.Body))
		if err != nil || reply == "" {
			log.Warn("ai reply unavailable, sending fallback", zap.Error(err))
			return FallbackReply, entities.ReplyModeAI
		}
		return reply, entities.ReplyModeAI

	case entities.ReplyModeKeyword:
		flows, err := r.dialogFlows.ListByUser(ctx, user.ID)
		if err != nil {
			log.Error("load dialog flows failed", zap.Error(err))
			return "", ""
		}
		if reply, ok := MatchDialogFlow(flows, inbound.Body); ok {
			return reply, entities.ReplyModeKeyword
		}
	}
	return "", ""
}
