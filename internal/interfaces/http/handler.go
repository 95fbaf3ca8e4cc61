package http

import (
	"context"
	"net/http"
	"strconv"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/usecases"
	"project_broadcast/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) (*entities.User, error)
}

type CampaignCatalog interface {
	Create(ctx context.Context, userID int, in usecases.CreateCampaignInput) (*usecases.CampaignDetails, error)
	Get(ctx context.Context, userID, campaignID int) (*usecases.CampaignDetails, error)
}

type CampaignController interface {
	Start(ctx context.Context, userID, campaignID int) (*entities.Campaign, error)
	Pause(ctx context.Context, userID, campaignID int) (*entities.Campaign, error)
}

type DeviceBinder interface {
	Bind(ctx context.Context, userID int, deviceID string) (*entities.Device, error)
	SetManualMode(ctx context.Context, userID int, rawPhone string, manual bool) (*entities.Conversation, error)
}

type UsageReporter interface {
	Report(ctx context.Context, userID int) (*usecases.UsageReport, error)
}

type DialogFlowEditor interface {
	List(ctx context.Context, userID int) ([]entities.DialogFlow, error)
	Add(ctx context.Context, userID int, f entities.DialogFlow) (*entities.DialogFlow, error)
}

// Handler serves the authenticated user API.
type Handler struct {
	auth      Authenticator
	campaigns CampaignCatalog
	lifecycle CampaignController
	devices   DeviceBinder
	usage     UsageReporter
	flows     DialogFlowEditor
}

func NewHandler(auth Authenticator, campaigns CampaignCatalog, lifecycle CampaignController, devices DeviceBinder, usage UsageReporter, flows DialogFlowEditor) *Handler {
	return &Handler{
		auth:      auth,
		campaigns: campaigns,
		lifecycle: lifecycle,
		devices:   devices,
		usage:     usage,
		flows:     flows,
	}
}

// ControlDeps is everything the control plane router needs.
type ControlDeps struct {
	API           *Handler
	Webhooks      *WebhookHandler
	Middleware    *Middleware
	Metrics       *infrastructure.Metrics
	WebhookSecret string
}

func SetupControlRoutes(r *gin.Engine, d ControlDeps) {
	r.Use(d.Metrics.Middleware())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(d.Middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := r.Group("", WebhookAuth(d.WebhookSecret))
	{
		hooks.POST(webhook.PathNextContact, d.Webhooks.NextContact)
		hooks.POST(webhook.PathUpdateStatus, d.Webhooks.UpdateStatus)
		hooks.POST(webhook.PathProcessIncoming, d.Webhooks.ProcessIncoming)
		hooks.POST(webhook.PathSessionStatusUpdate, d.Webhooks.SessionStatusUpdate)
		hooks.POST(webhook.PathGetAllSessions, d.Webhooks.GetAllSessions)
		hooks.POST(webhook.PathListRunningCampaigns, d.Webhooks.ListRunningCampaigns)
	}

	h := d.API
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
	}

	api := r.Group("/api")
	api.Use(d.Middleware.AuthRequired())
	api.Use(d.Middleware.RateLimitPerUser(5, 10))
	{
		api.POST("/campaigns", h.CreateCampaign)
		api.GET("/campaigns/:id", h.GetCampaign)
		api.POST("/campaigns/:id/start", h.StartCampaign)
		api.POST("/campaigns/:id/pause", h.PauseCampaign)

		api.POST("/devices", h.BindDevice)
		api.PUT("/conversations/:phone/manual-mode", h.SetManualMode)
		api.GET("/usage", h.GetUsage)

		api.GET("/dialog-flows", h.ListDialogFlows)
		api.POST("/dialog-flows", h.AddDialogFlow)
	}
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidSlug(req.Username) || len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func campaignID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req usecases.CreateCampaignInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	details, err := h.campaigns.Create(c.Request.Context(), c.GetInt(userIDKey), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	details, err := h.campaigns.Get(c.Request.Context(), c.GetInt(userIDKey), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) StartCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	campaign, err := h.lifecycle.Start(c.Request.Context(), c.GetInt(userIDKey), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) PauseCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	campaign, err := h.lifecycle.Pause(c.Request.Context(), c.GetInt(userIDKey), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) BindDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required,max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidSlug(req.DeviceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
		return
	}
	device, err := h.devices.Bind(c.Request.Context(), c.GetInt(userIDKey), req.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *Handler) SetManualMode(c *gin.Context) {
	var req struct {
		Manual *bool `json:"manual" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.devices.SetManualMode(c.Request.Context(), c.GetInt(userIDKey), c.Param("phone"), *req.Manual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) GetUsage(c *gin.Context) {
	report, err := h.usage.Report(c.Request.Context(), c.GetInt(userIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListDialogFlows(c *gin.Context) {
	flows, err := h.flows.List(c.Request.Context(), c.GetInt(userIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flows)
}

func (h *Handler) AddDialogFlow(c *gin.Context) {
	var req struct {
		ParentID *int   `json:"parent_id"`
		Trigger  string `json:"trigger" binding:"required,max=255"`
		Response string `json:"response" binding:"required,max=4096"`
		Position int    `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flow, err := h.flows.Add(c.Request.Context(), c.GetInt(userIDKey), entities.DialogFlow{
		ParentID: req.ParentID,
		Trigger:  SanitizeString(req.Trigger),
		Response: SanitizeString(req.Response),
		Position: req.Position,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flow)
}
