package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-autoresponder-go/internal/config"
	"mail-autoresponder-go/internal/filter"
	"mail-autoresponder-go/internal/metrics"
	"mail-autoresponder-go/internal/models"
	"mail-autoresponder-go/internal/monitor"
	"mail-autoresponder-go/internal/responder"
	"mail-autoresponder-go/internal/sender"
)

var testMetrics = metrics.NewMetrics()

type fakeStore struct {
	mu      sync.Mutex
	replies map[string]models.Reply
	logs    []models.ActivityLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{replies: make(map[string]models.Reply)}
}

func (f *fakeStore) SaveReply(reply *models.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[reply.ID] = *reply
	return nil
}

func (f *fakeStore) SaveActivityLog(log *models.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeStore) UpdateSettings(settings *models.Settings) error { return nil }

func (f *fakeStore) ListLogs(page, limit int) ([]models.ActivityLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ActivityLog{}, f.logs...), int64(len(f.logs)), nil
}

func (f *fakeStore) ListRepliesByStatus(status string) ([]models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Reply{}
	for _, r := range f.replies {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountRepliesByStatus(status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.replies {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, msg sender.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg.To)
	return nil
}

func (f *fakeSender) Close() error { return nil }

type fakeFetcher struct{}

func (f *fakeFetcher) FetchUnread(ctx context.Context) ([]models.EmailMessage, error) {
	return nil, nil
}

func (f *fakeFetcher) Close() error { return nil }

type fakeReadTracker struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeReadTracker) MarkSeen(ctx context.Context, emailID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, emailID)
	return nil
}

func (f *fakeReadTracker) IsSeen(ctx context.Context, emailID string) (bool, error) {
	return false, nil
}

type testEnv struct {
	router    *gin.Engine
	responder *responder.AutoResponder
	monitor   *monitor.EmailMonitor
	store     *fakeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := &models.Settings{
		KeywordsEnabled:      true,
		Keywords:             models.StringList{"urgent"},
		ManualConfirmation:   true,
		ReplyTemplate:        "Hello {sender}",
		CheckIntervalSeconds: 60,
	}

	store := newFakeStore()
	reads := &fakeReadTracker{}
	r := responder.New(settings, "autoresponder@example.com", &fakeSender{}, reads, store, testMetrics)
	msgFilter := filter.New(settings)
	mon := monitor.New(settings, &fakeFetcher{}, reads, msgFilter, r, store, testMetrics)

	manager := config.NewManager(settings, store)
	manager.Subscribe(msgFilter)
	manager.Subscribe(r)
	manager.Subscribe(mon)

	h := NewHandlers(nil, store, manager, r, mon)
	router := gin.New()
	h.SetupRoutes(router)

	t.Cleanup(func() {
		if mon.IsRunning() {
			_ = mon.Stop()
		}
	})

	return &testEnv{router: router, responder: r, monitor: mon, store: store}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) queuePendingReply(id string) {
	reply := &models.Reply{
		ID:              id,
		OriginalEmailID: "email-" + id,
		ToAddress:       "sender@example.com",
		Subject:         "Re: help",
		Body:            "Hello",
		Status:          models.ReplyStatusPending,
		GeneratedAt:     time.Now(),
	}
	e.responder.QueueForConfirmation(reply)
}

func TestGetConfigReturnsCurrentSettings(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.True(t, settings.KeywordsEnabled)
	assert.Equal(t, models.StringList{"urgent"}, settings.Keywords)
	assert.Equal(t, 60, settings.CheckIntervalSeconds)
}

func TestUpdateConfigAppliesPartialUpdate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/config", gin.H{
		"keywords":               []string{"invoice", "billing"},
		"check_interval_seconds": 30,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, models.StringList{"invoice", "billing"}, settings.Keywords)
	assert.Equal(t, 30, settings.CheckIntervalSeconds)
	// Untouched fields survive.
	assert.True(t, settings.ManualConfirmation)
}

func TestUpdateConfigRejectsInvalidInterval(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/config", gin.H{
		"check_interval_seconds": 0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)

	// Snapshot unchanged.
	w = env.do(http.MethodGet, "/api/v1/config", nil)
	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 60, settings.CheckIntervalSeconds)
}

func TestUpdateConfigRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPendingReplies(t *testing.T) {
	env := newTestEnv(t)
	env.queuePendingReply("r1")
	env.queuePendingReply("r2")

	w := env.do(http.MethodGet, "/api/v1/replies/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var replies []models.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replies))
	require.Len(t, replies, 2)
}

func TestApproveReplySendsAndReturnsIt(t *testing.T) {
	env := newTestEnv(t)
	env.queuePendingReply("r1")

	w := env.do(http.MethodPost, "/api/v1/replies/r1/approve", gin.H{"approved_by": "ops"})
	require.Equal(t, http.StatusOK, w.Code)

	var reply models.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, models.ReplyStatusSent, reply.Status)
	assert.Equal(t, "ops", reply.ApprovedBy)
	assert.Equal(t, 0, env.responder.PendingCount())
}

func TestRejectReplyWithoutBody(t *testing.T) {
	env := newTestEnv(t)
	env.queuePendingReply("r1")

	w := env.do(http.MethodPost, "/api/v1/replies/r1/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var reply models.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, models.ReplyStatusRejected, reply.Status)
}

func TestApproveUnknownReplyReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/replies/nope/approve", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestDoubleApproveReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.queuePendingReply("r1")

	w := env.do(http.MethodPost, "/api/v1/replies/r1/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/replies/r1/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitorLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/monitor/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/v1/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/monitor/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/v1/monitor/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stopped", resp["status"])
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	env.queuePendingReply("r1")
	require.NoError(t, env.store.SaveReply(&models.Reply{ID: "r0", Status: models.ReplyStatusSent}))

	w := env.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Monitoring)
	assert.Equal(t, "stopped", status.State)
	assert.True(t, status.ManualConfirmation)
	assert.Equal(t, 1, status.PendingCount)
	assert.Equal(t, int64(1), status.SentCount)
	assert.Nil(t, status.NextRun)
}

func TestGetStatusWhileRunningIncludesNextRun(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Monitoring)
	assert.Equal(t, "running", status.State)
	require.NotNil(t, status.NextRun)
}

func TestGetLogsWithPagination(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SaveActivityLog(&models.ActivityLog{
		ID: "l1", Type: models.LogTypeReplySent, EmailID: "e1", Details: "sent",
	}))

	w := env.do(http.MethodGet, "/api/v1/logs?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Logs       []models.ActivityLog `json:"logs"`
		Pagination struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "l1", resp.Logs[0].ID)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.Limit)
	assert.Equal(t, int64(1), resp.Pagination.Total)
}

func TestGetRepliesFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SaveReply(&models.Reply{ID: "r1", Status: models.ReplyStatusSent}))
	require.NoError(t, env.store.SaveReply(&models.Reply{ID: "r2", Status: models.ReplyStatusFailed}))

	w := env.do(http.MethodGet, "/api/v1/replies?status=sent", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var replies []models.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replies))
	require.Len(t, replies, 1)
	assert.Equal(t, "r1", replies[0].ID)
}

func TestTriggerPollEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/monitor/poll", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/v1/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/monitor/poll", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mail_autoresponder_poll_cycles_total")
}
