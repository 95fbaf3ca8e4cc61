package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/webhook"

	"go.uber.org/zap"
)

// sendTimeout bounds a send that outlives its loop after Stop.
const sendTimeout = time.Minute

// ControlPlane is the part of the control plane API a dispatch loop needs.
type ControlPlane interface {
	NextContact(ctx context.Context, campaignID int) (*webhook.NextContactResponse, error)
	UpdateStatus(ctx context.Context, campaignContactID int64, status entities.ContactStatus) error
}

type loopState int

const (
	stateFetch loopState = iota
	stateSend
	stateReport
	statePace
	stateDone
)

func (s loopState) String() string {
	switch s {
	case stateFetch:
		return "fetch"
	case stateSend:
		return "send"
	case stateReport:
		return "report"
	case statePace:
		return "pace"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("loopState(%d)", int(s))
}

// loop delivers one campaign through one device session. It pulls a job,
// sends it, reports the outcome and waits a paced interval before the next
// pull. The control plane decides when the campaign is over.
type loop struct {
	campaignID int
	deviceID   string
	registry   *Registry
	control    ControlPlane
	metrics    *infrastructure.Metrics
	logger     *zap.Logger
	pace       func() time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	job     *webhook.DispatchJob
	outcome entities.ContactStatus
	sent    int
	failed  int
}

// run drives the state machine until the queue is done, the campaign halts,
// ctx is cancelled or a step fails. The returned error is nil for every
// ordinary ending.
func (l *loop) run(ctx context.Context) error {
	if _, ok := l.registry.Get(l.deviceID); !ok {
		return fmt.Errorf("device %s: %w", l.deviceID, entities.ErrSessionUnavailable)
	}

	state := stateFetch
	for state != stateDone {
		// A send that went out is always reported, even after Stop.
		if state != stateReport && ctx.Err() != nil {
			return nil
		}

		var err error
		switch state {
		case stateFetch:
			state, err = l.fetch(ctx)
		case stateSend:
			state, err = l.send(ctx)
		case stateReport:
			state, err = l.report(ctx)
		case statePace:
			state = l.wait(ctx)
		}
		if err != nil {
			if state != stateReport && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w", state, err)
		}
	}
	return nil
}

func (l *loop) fetch(ctx context.Context) (loopState, error) {
	resp, err := l.control.NextContact(ctx, l.campaignID)
	if err != nil {
		return stateFetch, err
	}

	switch resp.State {
	case webhook.StateJob:
		if resp.Job == nil {
			return stateFetch, errors.New("job state without a job")
		}
		l.job = resp.Job
		return stateSend, nil
	case webhook.StateExhausted:
		l.logger.Info("queue exhausted", zap.Int("sent", l.sent), zap.Int("failed", l.failed))
	default:
		l.logger.Info("campaign halted", zap.String("reason", resp.Reason))
	}
	return stateDone, nil
}

// send renders the template and hands it to the session. A send error marks
// the contact failed; a session that vanished ends the loop without marking.
// Once handed over, the send is not cancelled by the loop's context.
func (l *loop) send(ctx context.Context) (loopState, error) {
	session, ok := l.registry.Get(l.deviceID)
	if !ok {
		return stateSend, fmt.Errorf("device %s: %w", l.deviceID, entities.ErrSessionUnavailable)
	}

	c := l.job.Contact
	body := entities.RenderTemplate(l.job.TemplateSource, entities.Contact{
		ID:      c.ID,
		Name:    c.Name,
		Phone:   c.Phone,
		Company: c.Company,
	})

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := session.SendText(sendCtx, c.Phone, body); err != nil {
		l.logger.Warn("send failed",
			zap.Int64("campaign_contact_id", l.job.CampaignContactID),
			zap.Error(err))
		l.outcome = entities.ContactFailed
	} else {
		l.outcome = entities.ContactSent
	}
	return stateReport, nil
}

// report is synchronous so the next pull never sees this entry as pending.
// Reporting runs to completion even if the loop was cancelled meanwhile.
func (l *loop) report(ctx context.Context) (loopState, error) {
	reportCtx := context.WithoutCancel(ctx)
	if err := l.control.UpdateStatus(reportCtx, l.job.CampaignContactID, l.outcome); err != nil {
		return stateReport, err
	}

	l.metrics.RecordSend(string(l.outcome))
	if l.outcome == entities.ContactSent {
		l.sent++
	} else {
		l.failed++
	}
	l.job = nil
	return statePace, nil
}

func (l *loop) wait(ctx context.Context) loopState {
	if err := l.sleep(ctx, l.pace()); err != nil {
		return stateDone
	}
	return stateFetch
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
