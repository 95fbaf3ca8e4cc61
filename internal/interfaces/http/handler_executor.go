package http

import (
	"context"
	"net/http"

	"project_broadcast/internal/executor"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"
)

type LoopController interface {
	Start(campaignID int, deviceID string) bool
	Stop(campaignID int) bool
	Running() []int
}

type SessionDirectory interface {
	Get(deviceID string) (executor.Session, bool)
	Devices() []string
}

type SessionOpener interface {
	Connect(ctx context.Context, deviceID string) error
	QRCode(deviceID string) (code string, loggedIn bool)
}

// ExecutorHandler serves the execution plane side of the webhook protocol
// plus pairing and health endpoints.
type ExecutorHandler struct {
	loops    LoopController
	sessions SessionDirectory
	opener   SessionOpener
	limiter  *infrastructure.MessageRateLimiter
}

func NewExecutorHandler(loops LoopController, sessions SessionDirectory, opener SessionOpener, limiter *infrastructure.MessageRateLimiter) *ExecutorHandler {
	return &ExecutorHandler{
		loops:    loops,
		sessions: sessions,
		opener:   opener,
		limiter:  limiter,
	}
}

// ExecutorDeps is everything the execution plane router needs.
type ExecutorDeps struct {
	Handler       *ExecutorHandler
	Metrics       *infrastructure.Metrics
	WebhookSecret string
}

func SetupExecutorRoutes(r *gin.Engine, d ExecutorDeps) {
	r.Use(d.Metrics.Middleware())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))

	h := d.Handler
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/sessions/:deviceId/qr", h.QRCode)

	hooks := r.Group("", WebhookAuth(d.WebhookSecret))
	{
		hooks.POST(webhook.PathStartDispatch, h.StartDispatch)
		hooks.POST(webhook.PathStopDispatch, h.StopDispatch)
		hooks.POST(webhook.PathSendMessage, h.SendMessage)
		hooks.POST(webhook.PathConnectSession, h.ConnectSession)
	}
}

// StartDispatch launches the loop and returns at once. A missing session is
// detected by the loop itself, which aborts and leaves the campaign running.
func (h *ExecutorHandler) StartDispatch(c *gin.Context) {
	var req webhook.StartDispatchRequest
	if !bind(c, &req) {
		return
	}
	started := h.loops.Start(req.CampaignID, req.DeviceID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "started": started})
}

func (h *ExecutorHandler) StopDispatch(c *gin.Context) {
	var req webhook.StopDispatchRequest
	if !bind(c, &req) {
		return
	}
	stopped := h.loops.Stop(req.CampaignID)
	c.JSON(http.StatusOK, webhook.StopDispatchResponse{OK: true, Stopped: stopped})
}

func (h *ExecutorHandler) SendMessage(c *gin.Context) {
	var req webhook.SendMessageRequest
	if !bind(c, &req) {
		return
	}
	session, ok := h.sessions.Get(req.DeviceID)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, webhook.ErrorResponse{Error: "session unavailable"})
		return
	}
	if err := h.limiter.Wait(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusTooManyRequests, webhook.ErrorResponse{Error: "rate limit exceeded"})
		return
	}
	if err := session.SendText(c.Request.Context(), req.To, req.Message); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, webhook.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *ExecutorHandler) ConnectSession(c *gin.Context) {
	var req webhook.ConnectSessionRequest
	if !bind(c, &req) {
		return
	}
	if err := h.opener.Connect(c.Request.Context(), req.DeviceID); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, webhook.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// QRCode returns the pairing QR code PNG for a device
func (h *ExecutorHandler) QRCode(c *gin.Context) {
	code, loggedIn := h.opener.QRCode(c.Param("deviceId"))
	if code == "" {
		if loggedIn {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *ExecutorHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.sessions.Devices(),
		"loops":    h.loops.Running(),
	})
}
