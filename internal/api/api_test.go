package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
	"github.com/leadline/outreach-engine/internal/intake"
	"github.com/leadline/outreach-engine/internal/worker"
)

type memContacts struct {
	contacts map[string]*domain.Contact
}

func newMemContacts() *memContacts {
	return &memContacts{contacts: map[string]*domain.Contact{}}
}

func (m *memContacts) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	return c, nil
}

func (m *memContacts) PendingDue(ctx context.Context, now time.Time, limit int, sdrID, campaignID *string) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, c := range m.contacts {
		if c.Status == domain.ContactPending && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memContacts) MarkStatus(ctx context.Context, id string, status domain.ContactStatus) error {
	c, ok := m.contacts[id]
	if !ok {
		return worker.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memContacts) Create(ctx context.Context, c *domain.Contact) error {
	m.contacts[c.ID] = c
	return nil
}

type memQueue struct {
	items    map[string]*domain.SendQueueItem
	enqueued []*domain.SendQueueItem
	requeued []string
}

func newMemQueue() *memQueue {
	return &memQueue{items: map[string]*domain.SendQueueItem{}}
}

func (m *memQueue) Enqueue(ctx context.Context, item *domain.SendQueueItem) (string, error) {
	if item.ID == "" {
		item.ID = "q-1"
	}
	item.Status = domain.QueuePending
	m.items[item.ID] = item
	m.enqueued = append(m.enqueued, item)
	return item.ID, nil
}

func (m *memQueue) NextPending(ctx context.Context) (*domain.SendQueueItem, error) {
	return nil, nil
}

func (m *memQueue) ClaimNextPending(ctx context.Context, workerID string) (*domain.SendQueueItem, error) {
	return nil, nil
}

func (m *memQueue) MarkSent(ctx context.Context, id, providerMessageID string) error { return nil }
func (m *memQueue) MarkFailed(ctx context.Context, id, errMsg string) error          { return nil }

func (m *memQueue) Get(ctx context.Context, id string) (*domain.SendQueueItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	return item, nil
}

func (m *memQueue) PendingCount(ctx context.Context) (int, error) { return len(m.items), nil }

func (m *memQueue) StuckSending(ctx context.Context, olderThan time.Duration) ([]domain.SendQueueItem, error) {
	return nil, nil
}

func (m *memQueue) Requeue(ctx context.Context, id string) error {
	item, ok := m.items[id]
	if !ok || (item.Status != domain.QueueFailed && item.Status != domain.QueueSending) {
		return worker.ErrNotFound
	}
	item.Status = domain.QueuePending
	m.requeued = append(m.requeued, id)
	return nil
}

type memSessions struct {
	sessions map[string]*domain.DispatchSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*domain.DispatchSession{}}
}

func (m *memSessions) Get(ctx context.Context, id string) (*domain.DispatchSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	return s, nil
}

func (m *memSessions) GetByName(ctx context.Context, name string) (*domain.DispatchSession, error) {
	for _, s := range m.sessions {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, worker.ErrNotFound
}

func (m *memSessions) Create(ctx context.Context, s *domain.DispatchSession) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessions) SetStatus(ctx context.Context, id string, status domain.SessionStatus, pausedUntil *time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return worker.ErrNotFound
	}
	s.Status = status
	s.PausedUntil = pausedUntil
	return nil
}

func (m *memSessions) Attach(ctx context.Context, id, workerID string) error { return nil }

func (m *memSessions) Heartbeat(ctx context.Context, id, workerID string, totalSent, totalFailed int) error {
	return nil
}

type memSettings struct {
	active *domain.CadenceSettings
	saved  []*domain.CadenceSettings
}

func (m *memSettings) ActiveSettings(ctx context.Context) (*domain.CadenceSettings, error) {
	return m.active, nil
}

func (m *memSettings) Save(ctx context.Context, s *domain.CadenceSettings) error {
	m.saved = append(m.saved, s)
	if s.IsActive {
		m.active = s
	}
	return nil
}

// memTestRepo is a minimal abtest.Repository.
type memTestRepo struct {
	tests       map[string]*domain.ABTest
	assignments map[string]*domain.ABTestAssignment
	events      []*domain.ABTestEvent
}

func newMemTestRepo() *memTestRepo {
	return &memTestRepo{
		tests:       map[string]*domain.ABTest{},
		assignments: map[string]*domain.ABTestAssignment{},
	}
}

func (m *memTestRepo) GetTest(ctx context.Context, testID string) (*domain.ABTest, error) {
	t, ok := m.tests[testID]
	if !ok {
		return nil, abtest.ErrNotFound
	}
	return t, nil
}

func (m *memTestRepo) ActiveTestForCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error) {
	for _, t := range m.tests {
		if t.CampaignID == campaignID && t.Status == domain.ABTestActive {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTestRepo) CreateTest(ctx context.Context, t *domain.ABTest) error {
	m.tests[t.ID] = t
	return nil
}

func (m *memTestRepo) UpdateTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error {
	t, ok := m.tests[testID]
	if !ok {
		return abtest.ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *memTestRepo) GetAssignment(ctx context.Context, testID, contactID string) (*domain.ABTestAssignment, error) {
	return m.assignments[testID+"|"+contactID], nil
}

func (m *memTestRepo) CreateAssignment(ctx context.Context, a *domain.ABTestAssignment) error {
	key := a.TestID + "|" + a.ContactID
	if _, exists := m.assignments[key]; exists {
		return abtest.ErrDuplicateAssignment
	}
	m.assignments[key] = a
	return nil
}

func (m *memTestRepo) AssignmentCounts(ctx context.Context, testID string) (map[string]int, error) {
	counts := map[string]int{}
	for _, a := range m.assignments {
		if a.TestID == testID {
			counts[a.VariantName]++
		}
	}
	return counts, nil
}

func (m *memTestRepo) AppendEvent(ctx context.Context, e *domain.ABTestEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memTestRepo) VariantResults(ctx context.Context, testID string) ([]domain.ABVariantResult, error) {
	return []domain.ABVariantResult{}, nil
}

type allowAllGate struct{}

func (allowAllGate) CanContactLead(ctx context.Context, phone string, email *string, daysThreshold int) eligibility.Decision {
	return eligibility.Decision{CanContact: true}
}

func (allowAllGate) DailyMessageCount(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error) {
	return 0, nil
}

func (allowAllGate) RecordContact(ctx context.Context, p eligibility.RecordParams) error { return nil }

type testEnv struct {
	handlers *Handlers
	contacts *memContacts
	queue    *memQueue
	sessions *memSessions
	settings *memSettings
	repo     *memTestRepo
}

func newTestEnv() *testEnv {
	contacts := newMemContacts()
	queue := newMemQueue()
	sessions := newMemSessions()
	settings := &memSettings{}
	repo := newMemTestRepo()

	tests := abtest.NewService(repo)
	builder := intake.NewBuilder(intake.NewRenderer(), tests,
		"Oi {{ first_name }}, tudo bem?", "")
	pipeline := intake.NewPipeline()
	ondemand := worker.NewOnDemandProcessor(contacts, allowAllGate{}, settings, builder, nil)

	return &testEnv{
		handlers: NewHandlers(contacts, queue, sessions, settings, tests, builder, pipeline, ondemand),
		contacts: contacts,
		queue:    queue,
		sessions: sessions,
		settings: settings,
		repo:     repo,
	}
}

func doRequest(t *testing.T, env *testEnv, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	SetupRoutes(env.handlers, nil).ServeHTTP(rec, req)
	return rec
}

func TestCreateContact(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/contacts", CreateContactRequest{
		CampaignID: "camp-1",
		FirstName:  "Maria",
		Phone:      "+5511999990000",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, env.contacts.contacts, 1)
}

func TestCreateContactValidation(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/contacts", CreateContactRequest{
		CampaignID: "camp-1",
		FirstName:  "Maria",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.contacts.contacts)
}

func TestEnqueueRendersBody(t *testing.T) {
	env := newTestEnv()
	env.contacts.contacts["c-1"] = &domain.Contact{
		ID:         "c-1",
		CampaignID: "camp-1",
		FirstName:  "Maria",
		Phone:      "+5511999990000",
		Status:     domain.ContactPending,
	}

	rec := doRequest(t, env, http.MethodPost, "/api/queue/", EnqueueRequest{ContactID: "c-1"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.queue.enqueued, 1)
	assert.Equal(t, "Oi Maria, tudo bem?", env.queue.enqueued[0].Body)
	assert.Equal(t, "+5511999990000", env.queue.enqueued[0].Destination)
}

func TestEnqueuePreRenderedBody(t *testing.T) {
	env := newTestEnv()
	env.contacts.contacts["c-1"] = &domain.Contact{
		ID:         "c-1",
		CampaignID: "camp-1",
		Phone:      "+5511999990000",
		Status:     domain.ContactPending,
	}

	rec := doRequest(t, env, http.MethodPost, "/api/queue/", EnqueueRequest{
		ContactID: "c-1",
		Body:      "custom text",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.queue.enqueued, 1)
	assert.Equal(t, "custom text", env.queue.enqueued[0].Body)
}

func TestEnqueueUnknownContact(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/queue/", EnqueueRequest{ContactID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequeueOnlyFailedOrStuck(t *testing.T) {
	env := newTestEnv()
	env.queue.items["q-1"] = &domain.SendQueueItem{ID: "q-1", Status: domain.QueueSent}
	env.queue.items["q-2"] = &domain.SendQueueItem{ID: "q-2", Status: domain.QueueFailed}

	rec := doRequest(t, env, http.MethodPost, "/api/queue/q-1/requeue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "sent items are terminal")

	rec = doRequest(t, env, http.MethodPost, "/api/queue/q-2/requeue", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.QueuePending, env.queue.items["q-2"].Status)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/sessions/", CreateSessionRequest{Name: "sdr-maria"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var s domain.DispatchSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, domain.SessionStopped, s.Status)

	rec = doRequest(t, env, http.MethodPost, "/api/sessions/"+s.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionRunning, env.sessions.sessions[s.ID].Status)

	rec = doRequest(t, env, http.MethodPost, "/api/sessions/"+s.ID+"/pause", PauseSessionRequest{Minutes: 30})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionPaused, env.sessions.sessions[s.ID].Status)
	assert.NotNil(t, env.sessions.sessions[s.ID].PausedUntil)

	rec = doRequest(t, env, http.MethodPost, "/api/sessions/"+s.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionRunning, env.sessions.sessions[s.ID].Status)
}

func TestCreateTestValidatesWeights(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/ab-tests/", CreateTestRequest{
		CampaignID: "camp-1",
		Name:       "subject test",
		Variants: []domain.ABVariant{
			{Name: "A", Weight: 60},
			{Name: "B", Weight: 60},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestABTestLifecycleAndAssignment(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/ab-tests/", CreateTestRequest{
		CampaignID: "camp-1",
		Name:       "subject test",
		Variants: []domain.ABVariant{
			{Name: "A", Weight: 50, Body: "a"},
			{Name: "B", Weight: 50, Body: "b"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.ABTest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Draft tests refuse assignments.
	rec = doRequest(t, env, http.MethodPost, "/api/ab-tests/"+created.ID+"/assign",
		AssignVariantRequest{ContactID: "c-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, env, http.MethodPost, "/api/ab-tests/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodPost, "/api/ab-tests/"+created.ID+"/assign",
		AssignVariantRequest{ContactID: "c-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var a abtest.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Contains(t, []string{"A", "B"}, a.VariantName)

	// A draft-only transition is rejected once the test is active.
	rec = doRequest(t, env, http.MethodPost, "/api/ab-tests/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, env, http.MethodPost, "/api/ab-tests/"+created.ID+"/activate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "completed tests never reopen")
}

func TestRecordEventRejectsUnknownType(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(t, env, http.MethodPost, "/api/ab-events", RecordEventRequest{
		AssignmentID: "a-1",
		EventType:    "totally-bogus-event",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, env.repo.events, "the ledger never stores a rejected type")

	rec = doRequest(t, env, http.MethodPost, "/api/ab-events", RecordEventRequest{
		AssignmentID: "a-1",
		EventType:    "opened",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.repo.events, 1)
	assert.Equal(t, domain.ABEventOpened, env.repo.events[0].EventType)
}

func TestSaveAndGetSettings(t *testing.T) {
	env := newTestEnv()

	s := domain.CadenceSettings{
		IsActive:             true,
		HumanMode:            true,
		DelayBetweenMessages: 120,
		DailyLimit:           50,
		StartTime:            "10:00",
		EndTime:              "17:00",
		WorkingHoursEnabled:  true,
	}
	rec := doRequest(t, env, http.MethodPut, "/api/settings/cadence", s)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/api/settings/cadence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.CadenceSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 50, got.DailyLimit)
	assert.Equal(t, "10:00", got.StartTime)
	// Zero fields in the stored record come back filled from defaults.
	assert.Greater(t, got.CoffeeBreakInterval, 0)
}

func TestRunOutreachSkipReportedAsOK(t *testing.T) {
	env := newTestEnv()

	// No pending contacts: the run reports a structured skip, not an error.
	rec := doRequest(t, env, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodPost, "/api/outreach/run", RunOutreachRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res worker.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Skipped)
}
