package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"
	"project_broadcast/internal/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentText struct {
	To, Body string
}

type fakeSession struct {
	mu        sync.Mutex
	sent      []sentText
	failFor   map[string]bool
	connected bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{connected: true, failFor: map[string]bool{}}
}

func (s *fakeSession) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[to] {
		return errors.New("not on whatsapp")
	}
	s.sent = append(s.sent, sentText{To: to, Body: body})
	return nil
}

func (s *fakeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) texts() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentText(nil), s.sent...)
}

type statusReport struct {
	ID     int64
	Status entities.ContactStatus
}

type fakeControl struct {
	mu       sync.Mutex
	jobs     []webhook.DispatchJob
	final    webhook.NextContactResponse
	pulls    int
	reports  []statusReport
	reported chan statusReport
	nextErr  error

	sessions  []webhook.SessionInfo
	campaigns []webhook.RunningCampaign
}

func newFakeControl(jobs ...webhook.DispatchJob) *fakeControl {
	return &fakeControl{
		jobs:     jobs,
		final:    webhook.NextContactResponse{State: webhook.StateExhausted},
		reported: make(chan statusReport, 100),
	}
}

func (c *fakeControl) NextContact(_ context.Context, _ int) (*webhook.NextContactResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulls++
	if c.nextErr != nil {
		return nil, c.nextErr
	}
	if len(c.jobs) == 0 {
		resp := c.final
		return &resp, nil
	}
	job := c.jobs[0]
	c.jobs = c.jobs[1:]
	return &webhook.NextContactResponse{State: webhook.StateJob, Job: &job}, nil
}

func (c *fakeControl) UpdateStatus(_ context.Context, id int64, status entities.ContactStatus) error {
	c.mu.Lock()
	r := statusReport{ID: id, Status: status}
	c.reports = append(c.reports, r)
	c.mu.Unlock()
	c.reported <- r
	return nil
}

func (c *fakeControl) GetAllSessions(context.Context) ([]webhook.SessionInfo, error) {
	return c.sessions, nil
}

func (c *fakeControl) ListRunningCampaigns(context.Context) ([]webhook.RunningCampaign, error) {
	return c.campaigns, nil
}

func (c *fakeControl) pullCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulls
}

func (c *fakeControl) statusReports() []statusReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]statusReport(nil), c.reports...)
}

func job(id int64, name, phone string) webhook.DispatchJob {
	return webhook.DispatchJob{
		CampaignContactID: id,
		Contact:           webhook.JobContact{ID: int(id), Name: name, Phone: phone, Company: "Acme"},
		TemplateSource:    "Hi {{name}} from {{company}}{{unknown}}",
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestDispatcher(t *testing.T, registry *Registry, control ControlPlane, sleep func(context.Context, time.Duration) error) (*Dispatcher, *infrastructure.Metrics) {
	t.Helper()
	metrics := infrastructure.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(registry, control, DispatcherConfig{
		PaceMin: 30 * time.Second,
		PaceMax: 40 * time.Second,
		Sleep:   sleep,
	}, metrics, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d, metrics
}

func waitLoop(t *testing.T, d *Dispatcher, campaignID int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx, campaignID))
}

func TestDispatcher_DeliversQueueInOrder(t *testing.T) {
	registry := NewRegistry()
	session := newFakeSession()
	registry.Register("dev-1", session)
	control := newFakeControl(job(1, "Alice", "919876543210"), job(2, "Bob", "919812345678"))
	rec := &sleepRecorder{}
	d, metrics := newTestDispatcher(t, registry, control, rec.sleep)

	require.True(t, d.Start(7, "dev-1"))
	waitLoop(t, d, 7)

	assert.Equal(t, []sentText{
		{To: "919876543210", Body: "Hi Alice from Acme"},
		{To: "919812345678", Body: "Hi Bob from Acme"},
	}, session.texts())
	assert.Equal(t, []statusReport{{1, entities.ContactSent}, {2, entities.ContactSent}}, control.statusReports())
	assert.Equal(t, 3, control.pullCount())

	require.Len(t, rec.slept, 2)
	for _, s := range rec.slept {
		assert.GreaterOrEqual(t, s, 30*time.Second)
		assert.LessOrEqual(t, s, 40*time.Second)
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("sent")))
	assert.Empty(t, d.Running())
}

func TestDispatcher_SendFailureMarksContactAndContinues(t *testing.T) {
	registry := NewRegistry()
	session := newFakeSession()
	session.failFor["919800000001"] = true
	registry.Register("dev-1", session)
	control := newFakeControl(job(1, "Ghost", "919800000001"), job(2, "Bob", "919812345678"))
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)

	d.Start(7, "dev-1")
	waitLoop(t, d, 7)

	assert.Equal(t, []statusReport{{1, entities.ContactFailed}, {2, entities.ContactSent}}, control.statusReports())
	assert.Len(t, session.texts(), 1)
}

func TestDispatcher_MissingSessionAbortsWithoutPulling(t *testing.T) {
	control := newFakeControl(job(1, "Alice", "919876543210"))
	d, _ := newTestDispatcher(t, NewRegistry(), control, (&sleepRecorder{}).sleep)

	require.True(t, d.Start(7, "dev-1"))
	waitLoop(t, d, 7)

	assert.Zero(t, control.pullCount())
	assert.Empty(t, control.statusReports())
}

func TestDispatcher_DisconnectedSessionCountsAsMissing(t *testing.T) {
	registry := NewRegistry()
	session := newFakeSession()
	session.connected = false
	registry.Register("dev-1", session)
	control := newFakeControl(job(1, "Alice", "919876543210"))
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)

	d.Start(7, "dev-1")
	waitLoop(t, d, 7)
	assert.Zero(t, control.pullCount())
}

func TestDispatcher_HaltedEndsLoop(t *testing.T) {
	registry := NewRegistry()
	registry.Register("dev-1", newFakeSession())
	control := newFakeControl(job(1, "Alice", "919876543210"))
	control.final = webhook.NextContactResponse{State: webhook.StateHalted, Reason: "campaign is paused"}
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)

	d.Start(7, "dev-1")
	waitLoop(t, d, 7)
	assert.Equal(t, 2, control.pullCount())
}

func TestDispatcher_ControlPlaneErrorAborts(t *testing.T) {
	registry := NewRegistry()
	registry.Register("dev-1", newFakeSession())
	control := newFakeControl(job(1, "Alice", "919876543210"))
	control.nextErr = errors.New("connection refused")
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)

	d.Start(7, "dev-1")
	waitLoop(t, d, 7)
	assert.Equal(t, 1, control.pullCount())
	assert.Empty(t, control.statusReports())
}

func TestDispatcher_StopInterruptsPacing(t *testing.T) {
	registry := NewRegistry()
	session := newFakeSession()
	registry.Register("dev-1", session)
	control := newFakeControl(job(1, "Alice", "919876543210"), job(2, "Bob", "919812345678"))
	d, metrics := newTestDispatcher(t, registry, control, sleepContext)

	require.True(t, d.Start(7, "dev-1"))
	assert.False(t, d.Start(7, "dev-1"))
	assert.Equal(t, []int{7}, d.Running())

	select {
	case <-control.reported:
	case <-time.After(5 * time.Second):
		t.Fatal("first contact never reported")
	}

	require.True(t, d.Stop(7))
	assert.False(t, d.Stop(7))
	waitLoop(t, d, 7)

	assert.Len(t, session.texts(), 1)
	assert.Equal(t, 1, control.pullCount())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.Zero(t, testutil.ToFloat64(metrics.DispatchLoops))
}

// stoppingSession stops the campaign while a send is on the wire, then
// fails the send if the stop reached its context.
type stoppingSession struct {
	*fakeSession
	stop func()
}

func (s *stoppingSession) SendText(ctx context.Context, to, body string) error {
	s.stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeSession.SendText(ctx, to, body)
}

func TestDispatcher_StopDuringSendStillReports(t *testing.T) {
	registry := NewRegistry()
	control := newFakeControl(job(1, "Alice", "919876543210"), job(2, "Bob", "919812345678"))
	d, metrics := newTestDispatcher(t, registry, control, sleepContext)

	session := &stoppingSession{fakeSession: newFakeSession()}
	session.stop = func() { d.Stop(7) }
	registry.Register("dev-1", session)

	require.True(t, d.Start(7, "dev-1"))
	waitLoop(t, d, 7)

	assert.Len(t, session.texts(), 1)
	assert.Equal(t, []statusReport{{1, entities.ContactSent}}, control.statusReports())
	assert.Equal(t, 1, control.pullCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("sent")))
}

func TestDispatcher_ShutdownDuringSendStillReports(t *testing.T) {
	registry := NewRegistry()
	control := newFakeControl(job(1, "Alice", "919876543210"))
	d, _ := newTestDispatcher(t, registry, control, sleepContext)

	// stopBase is the cancellation Shutdown starts with
	session := &stoppingSession{fakeSession: newFakeSession(), stop: func() { d.stopBase() }}
	registry.Register("dev-1", session)

	require.True(t, d.Start(7, "dev-1"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-control.reported:
	case <-ctx.Done():
		t.Fatal("send was never reported")
	}
	require.NoError(t, d.Shutdown(ctx))

	assert.Len(t, session.texts(), 1)
	assert.Equal(t, []statusReport{{1, entities.ContactSent}}, control.statusReports())
}

func TestDispatcher_RestartAfterStop(t *testing.T) {
	registry := NewRegistry()
	registry.Register("dev-1", newFakeSession())
	control := newFakeControl(job(1, "Alice", "919876543210"), job(2, "Bob", "919812345678"))
	d, _ := newTestDispatcher(t, registry, control, sleepContext)

	d.Start(7, "dev-1")
	<-control.reported
	d.Stop(7)

	require.True(t, d.Start(7, "dev-1"))
	select {
	case r := <-control.reported:
		assert.Equal(t, int64(2), r.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("restarted loop never reported")
	}
}

func TestDispatcher_StartAfterShutdown(t *testing.T) {
	d, _ := newTestDispatcher(t, NewRegistry(), newFakeControl(), sleepContext)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.False(t, d.Start(1, "dev-1"))
}

func TestDispatcher_PaceWithinBounds(t *testing.T) {
	d, _ := newTestDispatcher(t, NewRegistry(), newFakeControl(), sleepContext)
	for i := 0; i < 1000; i++ {
		p := d.pace()
		require.GreaterOrEqual(t, p, 30*time.Second)
		require.LessOrEqual(t, p, 40*time.Second)
	}
}

func TestRegistry_WaitFor(t *testing.T) {
	r := NewRegistry()
	session := newFakeSession()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Register("dev-1", session)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := r.WaitFor(ctx, "dev-1")
	require.NoError(t, err)
	assert.Same(t, session, got)
	assert.Equal(t, []string{"dev-1"}, r.Devices())

	r.Deregister("dev-1")
	_, ok := r.Get("dev-1")
	assert.False(t, ok)
}

func TestRegistry_WaitForTimesOut(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.WaitFor(ctx, "dev-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, r.waiters)
}

func TestRestore(t *testing.T) {
	registry := NewRegistry()
	control := newFakeControl(job(1, "Alice", "919876543210"))
	control.sessions = []webhook.SessionInfo{{DeviceID: "dev-1", Status: "connected"}, {DeviceID: "dev-2", Status: "disconnected"}}
	control.campaigns = []webhook.RunningCampaign{{CampaignID: 7, DeviceID: "dev-1"}}
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)

	session := newFakeSession()
	var connected []string
	connector := ConnectorFunc(func(_ context.Context, deviceID string) error {
		connected = append(connected, deviceID)
		if deviceID == "dev-2" {
			return errors.New("logged out")
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			registry.Register(deviceID, session)
		}()
		return nil
	})

	require.NoError(t, Restore(context.Background(), control, connector, registry, d, 5*time.Second, zap.NewNop()))
	assert.Equal(t, []string{"dev-1", "dev-2"}, connected)

	waitLoop(t, d, 7)
	assert.Equal(t, []sentText{{To: "919876543210", Body: "Hi Alice from Acme"}}, session.texts())
}

func TestRestore_StartsAfterWaitTimeout(t *testing.T) {
	registry := NewRegistry()
	control := newFakeControl(job(1, "Alice", "919876543210"))
	control.campaigns = []webhook.RunningCampaign{{CampaignID: 7, DeviceID: "dev-9"}}
	d, _ := newTestDispatcher(t, registry, control, (&sleepRecorder{}).sleep)
	noop := ConnectorFunc(func(context.Context, string) error { return nil })

	require.NoError(t, Restore(context.Background(), control, noop, registry, d, 10*time.Millisecond, zap.NewNop()))
	waitLoop(t, d, 7)

	// the loop ran and aborted on the missing session
	assert.Zero(t, control.pullCount())
}

type fakeReporter struct {
	statuses chan webhook.SessionStatusRequest
	messages chan webhook.IncomingMessageRequest
}

func (f *fakeReporter) ProcessIncomingMessage(_ context.Context, req webhook.IncomingMessageRequest) error {
	f.messages <- req
	return nil
}

func (f *fakeReporter) SessionStatusUpdate(_ context.Context, req webhook.SessionStatusRequest) error {
	f.statuses <- req
	return nil
}

func TestSessionEvents_ForwardsInboundAndDisconnect(t *testing.T) {
	registry := NewRegistry()
	registry.Register("dev-1", newFakeSession())
	reporter := &fakeReporter{
		statuses: make(chan webhook.SessionStatusRequest, 1),
		messages: make(chan webhook.IncomingMessageRequest, 1),
	}
	events := SessionEvents(registry, reporter, zap.NewNop())

	events.OnMessage(entities.InboundMessage{ID: "m1", DeviceID: "dev-1", ContactNumber: "919876543210", Body: "hello"})
	select {
	case req := <-reporter.messages:
		assert.Equal(t, webhook.IncomingMessageRequest{
			DeviceID: "dev-1", ContactNumber: "919876543210", MessageBody: "hello", MessageID: "m1",
		}, req)
	case <-time.After(5 * time.Second):
		t.Fatal("inbound message not forwarded")
	}

	events.OnDisconnected("dev-1")
	_, ok := registry.Get("dev-1")
	assert.False(t, ok)
	select {
	case req := <-reporter.statuses:
		assert.Equal(t, "disconnected", req.Status)
		assert.Equal(t, "dev-1", req.DeviceID)
	case <-time.After(5 * time.Second):
		t.Fatal("status not forwarded")
	}
}

// orderedReporter records the calls it receives and holds the call named
// by hold until gate is closed.
type orderedReporter struct {
	mu    sync.Mutex
	hold  string
	gate  chan struct{}
	calls []string
}

func (r *orderedReporter) record(call string) {
	if call == r.hold {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *orderedReporter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *orderedReporter) ProcessIncomingMessage(_ context.Context, req webhook.IncomingMessageRequest) error {
	r.record(req.DeviceID + " message " + req.MessageID)
	return nil
}

func (r *orderedReporter) SessionStatusUpdate(_ context.Context, req webhook.SessionStatusRequest) error {
	r.record(req.DeviceID + " " + req.Status)
	return nil
}

func TestSessionEvents_OrderedPerDevice(t *testing.T) {
	registry := NewRegistry()
	reporter := &orderedReporter{hold: "dev-1 message m1", gate: make(chan struct{})}
	events := SessionEvents(registry, reporter, zap.NewNop())

	events.OnMessage(entities.InboundMessage{ID: "m1", DeviceID: "dev-1", ContactNumber: "919876543210", Body: "hi"})
	events.OnDisconnected("dev-1")
	events.OnMessage(entities.InboundMessage{ID: "m2", DeviceID: "dev-1", ContactNumber: "919876543210", Body: "hi"})

	// another device is not held up by dev-1
	events.OnDisconnected("dev-2")
	require.Eventually(t, func() bool {
		return len(reporter.snapshot()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"dev-2 disconnected"}, reporter.snapshot())

	close(reporter.gate)
	require.Eventually(t, func() bool {
		return len(reporter.snapshot()) == 4
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"dev-2 disconnected",
		"dev-1 message m1",
		"dev-1 disconnected",
		"dev-1 message m2",
	}, reporter.snapshot())
}
