// Package webhook defines the request/response schemas exchanged between the
// control plane and the execution plane, plus typed HTTP clients for both
// directions. Every request embeds Envelope so the receiver can check the
// shared secret before looking at anything else.
package webhook

const (
	PathStartDispatch        = "/webhook/start-dispatch"
	PathStopDispatch         = "/webhook/stop-dispatch"
	PathSendMessage          = "/webhook/send-message"
	PathConnectSession       = "/webhook/connect-session"
	PathNextContact          = "/webhook/next-contact"
	PathUpdateStatus         = "/webhook/update-status"
	PathProcessIncoming      = "/webhook/process-incoming-message"
	PathSessionStatusUpdate  = "/webhook/session-status-update"
	PathGetAllSessions       = "/webhook/get-all-sessions"
	PathListRunningCampaigns = "/webhook/list-running-campaigns"
)

// Envelope carries the shared secret.
type Envelope struct {
	Auth string `json:"auth"`
}

// control -> execution

type StartDispatchRequest struct {
	Envelope
	CampaignID int    `json:"campaignId" binding:"required,gt=0"`
	DeviceID   string `json:"deviceId" binding:"required"`
}

type StopDispatchRequest struct {
	Envelope
	CampaignID int `json:"campaignId" binding:"required,gt=0"`
}

type StopDispatchResponse struct {
	OK      bool `json:"ok"`
	Stopped bool `json:"stopped"`
}

type SendMessageRequest struct {
	Envelope
	DeviceID string `json:"deviceId" binding:"required"`
	To       string `json:"to" binding:"required,e164digits"`
	Message  string `json:"message" binding:"required"`
}

type ConnectSessionRequest struct {
	Envelope
	DeviceID string `json:"deviceId" binding:"required"`
}

// execution -> control

type NextContactRequest struct {
	Envelope
	CampaignID int `json:"campaignId" binding:"required,gt=0"`
}

// NextContactState tells the dispatch loop what to do next.
type NextContactState string

const (
	StateJob       NextContactState = "job"
	StateExhausted NextContactState = "exhausted"
	StateHalted    NextContactState = "halted"
)

type NextContactResponse struct {
	State  NextContactState `json:"state"`
	Reason string           `json:"reason,omitempty"`
	Job    *DispatchJob     `json:"job,omitempty"`
}

type DispatchJob struct {
	CampaignContactID int64      `json:"campaignContactId"`
	Contact           JobContact `json:"contact"`
	TemplateSource    string     `json:"templateSource"`
}

type JobContact struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

type UpdateStatusRequest struct {
	Envelope
	CampaignContactID int64  `json:"campaignContactId" binding:"required,gt=0"`
	Status            string `json:"status" binding:"required,contactstatus"`
}

type IncomingMessageRequest struct {
	Envelope
	DeviceID      string `json:"deviceId" binding:"required"`
	ContactNumber string `json:"contactNumber" binding:"required"`
	MessageBody   string `json:"messageBody" binding:"required"`
	MessageID     string `json:"messageId"`
}

type SessionStatusRequest struct {
	Envelope
	DeviceID  string `json:"deviceId" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=connected disconnected"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	UserPhone string `json:"userPhone"`
}

type ListRequest struct {
	Envelope
}

type SessionInfo struct {
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type GetAllSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type RunningCampaign struct {
	CampaignID int    `json:"campaignId"`
	DeviceID   string `json:"deviceId"`
}

type ListRunningCampaignsResponse struct {
	Campaigns []RunningCampaign `json:"campaigns"`
}

// ErrorResponse is the body of every non-2xx webhook reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
