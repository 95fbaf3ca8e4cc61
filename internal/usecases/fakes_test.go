package usecases

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/infrastructure"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int]*entities.User
	nextID int
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[int]*entities.User{}} }

func (f *fakeUsers) GetByID(_ context.Context, id int) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, entities.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Create(_ context.Context, user *entities.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == 0 {
		f.nextID++
		user.ID = f.nextID
	}
	cp := *user
	f.byID[user.ID] = &cp
	return nil
}

func (f *fakeUsers) update(id int, fn func(u *entities.User)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.byID[id])
}

type fakeDevices struct {
	mu   sync.Mutex
	byID map[string]*entities.Device
}

func newFakeDevices() *fakeDevices { return &fakeDevices{byID: map[string]*entities.Device{}} }

func (f *fakeDevices) Create(_ context.Context, d *entities.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byID[d.DeviceID]; ok {
		if existing.UserID != d.UserID {
			return fmt.Errorf("device %s: %w", d.DeviceID, entities.ErrDeviceTaken)
		}
		*d = *existing
		return nil
	}
	cp := *d
	f.byID[d.DeviceID] = &cp
	return nil
}

func (f *fakeDevices) Get(_ context.Context, deviceID string) (*entities.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, entities.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDevices) UpdateStatus(_ context.Context, d entities.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[d.DeviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", d.DeviceID, entities.ErrNotFound)
	}
	existing.Status = d.Status
	if d.Name != "" {
		existing.Name = d.Name
	}
	if d.Phone != "" {
		existing.Phone = d.Phone
	}
	if d.SessionID != "" {
		existing.SessionID = d.SessionID
	}
	return nil
}

func (f *fakeDevices) ListAll(_ context.Context) ([]entities.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.Device{}
	for _, d := range f.byID {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

type fakeContacts struct {
	mu   sync.Mutex
	byID map[int]*entities.Contact
}

func newFakeContacts() *fakeContacts { return &fakeContacts{byID: map[int]*entities.Contact{}} }

func (f *fakeContacts) add(c entities.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = &c
}

func (f *fakeContacts) get(id int) (*entities.Contact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (f *fakeContacts) GetByPhone(_ context.Context, userID int, phone string) (*entities.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.UserID == userID && c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeTemplates struct {
	mu   sync.Mutex
	byID map[int]*entities.Template
}

func newFakeTemplates() *fakeTemplates { return &fakeTemplates{byID: map[int]*entities.Template{}} }

func (f *fakeTemplates) GetByID(_ context.Context, id int) (*entities.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("template %d: %w", id, entities.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplates) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

type fakeCampaigns struct {
	mu     sync.Mutex
	byID   map[int]*entities.Campaign
	nextID int
}

func newFakeCampaigns() *fakeCampaigns { return &fakeCampaigns{byID: map[int]*entities.Campaign{}} }

func (f *fakeCampaigns) Create(_ context.Context, c *entities.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	if c.Status == "" {
		c.Status = entities.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int) (*entities.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, entities.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) HasRunningOnDevice(_ context.Context, deviceID string, exceptID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.DeviceID == deviceID && c.Status == entities.CampaignRunning && c.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

// TransitionStatus mirrors the partial unique index on running campaigns.
func (f *fakeCampaigns) TransitionStatus(_ context.Context, id int, from []entities.CampaignStatus, to entities.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if c.Status == s {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	if to == entities.CampaignRunning {
		for _, other := range f.byID {
			if other.ID != id && other.DeviceID == c.DeviceID && other.Status == entities.CampaignRunning {
				return false, entities.ErrDeviceBusy
			}
		}
	}
	c.Status = to
	return true, nil
}

func (f *fakeCampaigns) ListByStatus(_ context.Context, status entities.CampaignStatus) ([]entities.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.Campaign{}
	for _, c := range f.byID {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCampaigns) IncrementSent(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].SentCount++
	return nil
}

func (f *fakeCampaigns) IncrementReplied(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].RepliedCount++
	return nil
}

func (f *fakeCampaigns) status(id int) entities.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeQueue struct {
	mu        sync.Mutex
	entries   []*entities.CampaignContact
	nextID    int64
	contacts  *fakeContacts
	campaigns *fakeCampaigns
}

func (f *fakeQueue) Enqueue(_ context.Context, campaignID, userID int, contactIDs []int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range contactIDs {
		c, ok := f.contacts.get(id)
		if !ok || c.UserID != userID {
			continue
		}
		f.nextID++
		f.entries = append(f.entries, &entities.CampaignContact{
			ID:         f.nextID,
			CampaignID: campaignID,
			ContactID:  id,
			Status:     entities.ContactPending,
			CreatedAt:  time.Now(),
		})
		n++
	}
	return n, nil
}

func (f *fakeQueue) withContact(e *entities.CampaignContact) *entities.CampaignContact {
	cp := *e
	cp.Contact, _ = f.contacts.get(e.ContactID)
	return &cp
}

func (f *fakeQueue) NextPending(_ context.Context, campaignID int) (*entities.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.CampaignID == campaignID && e.Status == entities.ContactPending {
			return f.withContact(e), nil
		}
	}
	return nil, nil
}

func (f *fakeQueue) Get(_ context.Context, id int64) (*entities.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return f.withContact(e), nil
		}
	}
	return nil, fmt.Errorf("campaign contact %d: %w", id, entities.ErrNotFound)
}

func (f *fakeQueue) Count(_ context.Context, campaignID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQueue) Stats(_ context.Context, campaignID int) (map[entities.ContactStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := map[entities.ContactStatus]int{}
	for _, e := range f.entries {
		if e.CampaignID == campaignID {
			stats[e.Status]++
		}
	}
	return stats, nil
}

func (f *fakeQueue) transition(id int64, to entities.ContactStatus, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID != id {
			continue
		}
		if !e.Status.CanTransition(to) {
			return fmt.Errorf("campaign contact %d %s->%s: %w", id, e.Status, to, entities.ErrInvalidTransition)
		}
		e.Status = to
		switch to {
		case entities.ContactSent:
			e.SentAt = at
		case entities.ContactReplied:
			e.RepliedAt = at
		}
		return nil
	}
	return fmt.Errorf("campaign contact %d: %w", id, entities.ErrInvalidTransition)
}

func (f *fakeQueue) MarkSent(_ context.Context, id int64, at time.Time) error {
	return f.transition(id, entities.ContactSent, &at)
}

func (f *fakeQueue) MarkFailed(_ context.Context, id int64) error {
	return f.transition(id, entities.ContactFailed, nil)
}

func (f *fakeQueue) MarkReplied(_ context.Context, id int64, at time.Time) error {
	return f.transition(id, entities.ContactReplied, &at)
}

func (f *fakeQueue) FindAttributable(ctx context.Context, contactID int, deviceID string) (*entities.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *entities.CampaignContact
	for _, e := range f.entries {
		if e.ContactID != contactID || e.Status != entities.ContactSent {
			continue
		}
		c, err := f.campaigns.GetByID(ctx, e.CampaignID)
		if err != nil || c.DeviceID != deviceID || c.Status != entities.CampaignRunning {
			continue
		}
		if best == nil || e.SentAt.After(*best.SentAt) || (e.SentAt.Equal(*best.SentAt) && e.ID > best.ID) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	return f.withContact(best), nil
}

func (f *fakeQueue) entry(id int64) entities.CampaignContact {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return *e
		}
	}
	return entities.CampaignContact{}
}

type fakeUsage struct {
	mu     sync.Mutex
	byUser map[int]*entities.UsageCounter
}

func newFakeUsage() *fakeUsage { return &fakeUsage{byUser: map[int]*entities.UsageCounter{}} }

func (f *fakeUsage) counter(userID int) *entities.UsageCounter {
	u, ok := f.byUser[userID]
	if !ok {
		u = &entities.UsageCounter{UserID: userID}
		f.byUser[userID] = u
	}
	return u
}

func (f *fakeUsage) Get(_ context.Context, userID int) (*entities.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.counter(userID)
	return &cp, nil
}

func (f *fakeUsage) IncrementCampaign(_ context.Context, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter(userID).CampaignMessagesSent++
	return nil
}

func (f *fakeUsage) IncrementBotReply(_ context.Context, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter(userID).BotRepliesSent++
	return nil
}

func (f *fakeUsage) ResetAll(_ context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byUser {
		u.CampaignMessagesSent = 0
		u.BotRepliesSent = 0
		u.LastResetAt = at
	}
	return int64(len(f.byUser)), nil
}

func (f *fakeUsage) set(userID, campaign, bot int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.counter(userID)
	u.CampaignMessagesSent = campaign
	u.BotRepliesSent = bot
}

type fakeConversations struct {
	mu       sync.Mutex
	convs    map[string]*entities.Conversation
	messages []entities.ChatMessage
	nextConv int
	nextMsg  int64
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: map[string]*entities.Conversation{}}
}

func (f *fakeConversations) conv(userID int, phone string) *entities.Conversation {
	key := fmt.Sprintf("%d:%s", userID, phone)
	c, ok := f.convs[key]
	if !ok {
		f.nextConv++
		c = &entities.Conversation{ID: f.nextConv, UserID: userID, ContactPhone: phone, UpdatedAt: time.Now()}
		f.convs[key] = c
	}
	return c
}

func (f *fakeConversations) GetOrCreate(_ context.Context, userID int, phone string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.conv(userID, phone)
	return &cp, nil
}

func (f *fakeConversations) SetManualMode(_ context.Context, userID int, phone string, manual bool) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conv(userID, phone)
	c.IsManualMode = manual
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, m *entities.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	m.ID = f.nextMsg
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeConversations) RecentMessages(_ context.Context, conversationID, limit int) ([]entities.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.ChatMessage
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeConversations) bySender(sender entities.Sender) []entities.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.ChatMessage
	for _, m := range f.messages {
		if m.Sender == sender {
			out = append(out, m)
		}
	}
	return out
}

type fakeFlows struct {
	mu     sync.Mutex
	flows  []entities.DialogFlow
	nextID int
}

func (f *fakeFlows) ListByUser(_ context.Context, userID int) ([]entities.DialogFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.DialogFlow{}
	for _, fl := range f.flows {
		if fl.UserID == userID {
			out = append(out, fl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeFlows) Create(_ context.Context, fl *entities.DialogFlow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fl.ID = f.nextID
	f.flows = append(f.flows, *fl)
	return nil
}

type sentMessage struct {
	DeviceID, To, Body string
}

type fakeExecutor struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	sendErr   error
	connErr   error
	started   []int
	stopped   []int
	sent      []sentMessage
	connected []string
}

func (f *fakeExecutor) StartDispatch(_ context.Context, campaignID int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, campaignID)
	return nil
}

func (f *fakeExecutor) StopDispatch(_ context.Context, campaignID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, campaignID)
	return f.stopErr == nil, f.stopErr
}

func (f *fakeExecutor) SendMessage(_ context.Context, deviceID, to, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{DeviceID: deviceID, To: to, Body: message})
	return nil
}

func (f *fakeExecutor) ConnectSession(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return f.connErr
	}
	f.connected = append(f.connected, deviceID)
	return nil
}

type fakeAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []entities.AIPrompt
}

func (f *fakeAI) GenerateResponse(_ context.Context, prompt entities.AIPrompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDeduper) FirstDelivery(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

const (
	testUserID    = 1
	testDeviceID  = "dev-1"
	alicePhone    = "919876543210"
	aliceID       = 1
	bobID         = 2
	carolID       = 3
	strangerID    = 9
	testTemplate  = 1
	otherDeviceID = "dev-2"
)

// testEnv wires every usecase over in-memory stores seeded with one user,
// two connected devices, a template and three contacts.
type testEnv struct {
	users     *fakeUsers
	devices   *fakeDevices
	contacts  *fakeContacts
	templates *fakeTemplates
	campaigns *fakeCampaigns
	queue     *fakeQueue
	usage     *fakeUsage
	convs     *fakeConversations
	flows     *fakeFlows
	exec      *fakeExecutor
	ai        *fakeAI
	deduper   *fakeDeduper

	metrics   *infrastructure.Metrics
	quota     *QuotaTracker
	feed      *DispatchFeed
	lifecycle *CampaignLifecycle
	reset     *QuotaReset
	router    *InboundRouter
	service   *CampaignService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	e := &testEnv{
		users:     newFakeUsers(),
		devices:   newFakeDevices(),
		contacts:  newFakeContacts(),
		templates: newFakeTemplates(),
		campaigns: newFakeCampaigns(),
		usage:     newFakeUsage(),
		convs:     newFakeConversations(),
		flows:     &fakeFlows{},
		exec:      &fakeExecutor{},
		ai:        &fakeAI{},
		deduper:   &fakeDeduper{},
		metrics:   infrastructure.NewMetrics(prometheus.NewRegistry()),
	}
	e.queue = &fakeQueue{contacts: e.contacts, campaigns: e.campaigns}

	_ = e.users.Create(ctx, &entities.User{ID: testUserID, Username: "owner", ReplyMode: entities.ReplyModeKeyword})
	_ = e.users.Create(ctx, &entities.User{ID: 2, Username: "other", ReplyMode: entities.ReplyModeOff})
	_ = e.devices.Create(ctx, &entities.Device{DeviceID: testDeviceID, UserID: testUserID, Status: entities.DeviceConnected})
	_ = e.devices.Create(ctx, &entities.Device{DeviceID: otherDeviceID, UserID: testUserID, Status: entities.DeviceConnected})
	e.templates.byID[testTemplate] = &entities.Template{ID: testTemplate, UserID: testUserID, Body: "Hi {{name}} from {{company}}"}
	e.contacts.add(entities.Contact{ID: aliceID, UserID: testUserID, Phone: alicePhone, Name: "Alice", Company: "Acme"})
	e.contacts.add(entities.Contact{ID: bobID, UserID: testUserID, Phone: "919812345678", Name: "Bob"})
	e.contacts.add(entities.Contact{ID: carolID, UserID: testUserID, Phone: "919800000003", Name: "Carol"})
	e.contacts.add(entities.Contact{ID: strangerID, UserID: 2, Phone: "919800000009", Name: "Stranger"})

	e.quota = NewQuotaTracker(e.users, e.usage)
	e.feed = NewDispatchFeed(e.campaigns, e.queue, e.templates, e.quota, e.metrics, logger)
	e.lifecycle = NewCampaignLifecycle(e.campaigns, e.queue, e.templates, e.devices, e.quota, e.exec, e.metrics, logger)
	e.reset = NewQuotaReset(e.usage, e.campaigns, e.quota, e.lifecycle, e.metrics, logger)
	e.router = NewInboundRouter(InboundRouterDeps{
		Users:         e.users,
		Devices:       e.devices,
		Contacts:      e.contacts,
		Queue:         e.queue,
		Campaigns:     e.campaigns,
		Conversations: e.convs,
		DialogFlows:   e.flows,
		Quota:         e.quota,
		AI:            e.ai,
		Executor:      e.exec,
		Deduper:       e.deduper,
		Metrics:       e.metrics,
		Logger:        logger,
	})
	e.service = NewCampaignService(e.campaigns, e.queue, e.templates, e.devices)
	return e
}

// newCampaign creates a campaign on deviceID with the given contacts queued
// and forces it into status.
func (e *testEnv) newCampaign(t *testing.T, deviceID string, status entities.CampaignStatus, contactIDs ...int) int {
	t.Helper()
	ctx := context.Background()
	tmpl := testTemplate
	c := &entities.Campaign{UserID: testUserID, Name: "promo", DeviceID: deviceID, TemplateID: &tmpl}
	if err := e.campaigns.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, err := e.queue.Enqueue(ctx, c.ID, testUserID, contactIDs); err != nil {
		t.Fatal(err)
	}
	e.campaigns.mu.Lock()
	e.campaigns.byID[c.ID].Status = status
	e.campaigns.mu.Unlock()
	return c.ID
}
