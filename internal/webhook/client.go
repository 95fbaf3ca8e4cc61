package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"project_broadcast/internal/entities"
)

// SetAuth stamps the shared secret onto a request.
func (e *Envelope) SetAuth(secret string) { e.Auth = secret }

type authenticated interface {
	SetAuth(secret string)
}

// StatusError is returned for any non-2xx webhook reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.Code, e.Message)
}

// client posts JSON bodies with the shared secret attached. Calls are not
// retried; callers log and move on.
type client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func newClient(baseURL, secret string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c client) post(ctx context.Context, path string, req authenticated, out any) error {
	req.SetAuth(c.secret)
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.Unmarshal(body, &e)
		statusErr := &StatusError{Code: resp.StatusCode, Message: e.Error}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", path, errors.Join(entities.ErrUnauthorized, statusErr))
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%s: %w", path, errors.Join(entities.ErrSessionUnavailable, statusErr))
		}
		return statusErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ControlClient is the execution plane's view of the control plane.
type ControlClient struct {
	client
}

func NewControlClient(baseURL, secret string, timeout time.Duration) *ControlClient {
	return &ControlClient{client: newClient(baseURL, secret, timeout)}
}

func (c *ControlClient) NextContact(ctx context.Context, campaignID int) (*NextContactResponse, error) {
	var out NextContactResponse
	if err := c.post(ctx, PathNextContact, &NextContactRequest{CampaignID: campaignID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ControlClient) UpdateStatus(ctx context.Context, campaignContactID int64, status entities.ContactStatus) error {
	return c.post(ctx, PathUpdateStatus, &UpdateStatusRequest{
		CampaignContactID: campaignContactID,
		Status:            string(status),
	}, nil)
}

func (c *ControlClient) ProcessIncomingMessage(ctx context.Context, req IncomingMessageRequest) error {
	return c.post(ctx, PathProcessIncoming, &req, nil)
}

func (c *ControlClient) SessionStatusUpdate(ctx context.Context, req SessionStatusRequest) error {
	return c.post(ctx, PathSessionStatusUpdate, &req, nil)
}

func (c *ControlClient) GetAllSessions(ctx context.Context) ([]SessionInfo, error) {
	var out GetAllSessionsResponse
	if err := c.post(ctx, PathGetAllSessions, &ListRequest{}, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *ControlClient) ListRunningCampaigns(ctx context.Context) ([]RunningCampaign, error) {
	var out ListRunningCampaignsResponse
	if err := c.post(ctx, PathListRunningCampaigns, &ListRequest{}, &out); err != nil {
		return nil, err
	}
	return out.Campaigns, nil
}

// ExecutorClient is the control plane's view of the execution plane.
type ExecutorClient struct {
	client
}

func NewExecutorClient(baseURL, secret string, timeout time.Duration) *ExecutorClient {
	return &ExecutorClient{client: newClient(baseURL, secret, timeout)}
}

func (c *ExecutorClient) StartDispatch(ctx context.Context, campaignID int, deviceID string) error {
	return c.post(ctx, PathStartDispatch, &StartDispatchRequest{CampaignID: campaignID, DeviceID: deviceID}, nil)
}

func (c *ExecutorClient) StopDispatch(ctx context.Context, campaignID int) (bool, error) {
	var out StopDispatchResponse
	if err := c.post(ctx, PathStopDispatch, &StopDispatchRequest{CampaignID: campaignID}, &out); err != nil {
		return false, err
	}
	return out.Stopped, nil
}

func (c *ExecutorClient) SendMessage(ctx context.Context, deviceID, to, message string) error {
	return c.post(ctx, PathSendMessage, &SendMessageRequest{DeviceID: deviceID, To: to, Message: message}, nil)
}

func (c *ExecutorClient) ConnectSession(ctx context.Context, deviceID string) error {
	return c.post(ctx, PathConnectSession, &ConnectSessionRequest{DeviceID: deviceID}, nil)
}
