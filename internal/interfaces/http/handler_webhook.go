package http

import (
	"context"
	"net/http"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

type DispatchFeed interface {
	NextContact(ctx context.Context, campaignID int) (*webhook.NextContactResponse, error)
	ReportStatus(ctx context.Context, campaignContactID int64, status entities.ContactStatus) error
}

type InboundDispatcher interface {
	Dispatch(msg entities.InboundMessage)
}

type DeviceDirectory interface {
	UpdateStatus(ctx context.Context, d entities.Device) error
	ListAll(ctx context.Context) ([]entities.Device, error)
}

type RunningCampaignLister interface {
	ListRunning(ctx context.Context) ([]entities.Campaign, error)
}

// WebhookHandler serves the control plane side of the webhook protocol.
type WebhookHandler struct {
	feed      DispatchFeed
	inbound   InboundDispatcher
	devices   DeviceDirectory
	campaigns RunningCampaignLister
}

func NewWebhookHandler(feed DispatchFeed, inbound InboundDispatcher, devices DeviceDirectory, campaigns RunningCampaignLister) *WebhookHandler {
	return &WebhookHandler{
		feed:      feed,
		inbound:   inbound,
		devices:   devices,
		campaigns: campaigns,
	}
}

// bind decodes the cached webhook body and answers 400 on schema errors.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, webhook.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *WebhookHandler) NextContact(c *gin.Context) {
	var req webhook.NextContactRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.feed.NextContact(c.Request.Context(), req.CampaignID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WebhookHandler) UpdateStatus(c *gin.Context) {
	var req webhook.UpdateStatusRequest
	if !bind(c, &req) {
		return
	}
	if err := h.feed.ReportStatus(c.Request.Context(), req.CampaignContactID, entities.ContactStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ProcessIncoming acknowledges before routing; the outcome is not reported
// back to the execution plane.
func (h *WebhookHandler) ProcessIncoming(c *gin.Context) {
	var req webhook.IncomingMessageRequest
	if !bind(c, &req) {
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	h.inbound.Dispatch(entities.InboundMessage{
		ID:            req.MessageID,
		DeviceID:      req.DeviceID,
		ContactNumber: req.ContactNumber,
		Body:          TruncateString(SanitizeString(req.MessageBody), MaxMessageLength),
		ReceivedAt:    time.Now(),
	})
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

func (h *WebhookHandler) SessionStatusUpdate(c *gin.Context) {
	var req webhook.SessionStatusRequest
	if !bind(c, &req) {
		return
	}
	err := h.devices.UpdateStatus(c.Request.Context(), entities.Device{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Status:    entities.DeviceStatus(req.Status),
		Name:      req.UserName,
		Phone:     req.UserPhone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *WebhookHandler) GetAllSessions(c *gin.Context) {
	if !bind(c, &webhook.ListRequest{}) {
		return
	}
	devices, err := h.devices.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := webhook.GetAllSessionsResponse{Sessions: make([]webhook.SessionInfo, 0, len(devices))}
	for _, d := range devices {
		out.Sessions = append(out.Sessions, webhook.SessionInfo{
			DeviceID:  d.DeviceID,
			SessionID: d.SessionID,
			Status:    string(d.Status),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *WebhookHandler) ListRunningCampaigns(c *gin.Context) {
	if !bind(c, &webhook.ListRequest{}) {
		return
	}
	campaigns, err := h.campaigns.ListRunning(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := webhook.ListRunningCampaignsResponse{Campaigns: make([]webhook.RunningCampaign, 0, len(campaigns))}
	for _, cp := range campaigns {
		out.Campaigns = append(out.Campaigns, webhook.RunningCampaign{CampaignID: cp.ID, DeviceID: cp.DeviceID})
	}
	c.JSON(http.StatusOK, out)
}
