package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/scanwatch/internal/api/middleware"
	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/metrics"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/target"
	"github.com/hakim/scanwatch/internal/tasks"
)

type fakeService struct {
	scans   map[string][]*models.StoredScan
	diff    *models.ScanDiff
	err     error
	scope   *target.Scope
	lastLim int
}

func (f *fakeService) ValidateRequest(tgt string, opts models.Options) error {
	if !target.IsValid(tgt) {
		return scanerr.ErrInvalidTarget
	}
	if err := f.scope.Check(tgt); err != nil {
		return scanerr.Wrap(scanerr.CodeOutOfScope, "out of scope", err)
	}
	if err := opts.Validate(); err != nil {
		return scanerr.Wrap(scanerr.CodeInvalidOptions, "invalid scan options", err)
	}
	return nil
}

func (f *fakeService) RecentScans(_ context.Context, tgt string, limit int) ([]*models.StoredScan, error) {
	f.lastLim = limit
	if f.err != nil {
		return nil, f.err
	}
	scans := f.scans[tgt]
	if scans == nil {
		scans = []*models.StoredScan{}
	}
	return scans, nil
}

func (f *fakeService) LatestScan(ctx context.Context, tgt string) (*models.StoredScan, error) {
	scans, err := f.RecentScans(ctx, tgt, 1)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, scanerr.ErrNotFound
	}
	return scans[0], nil
}

func (f *fakeService) ScanChanges(_ context.Context, tgt string) (*models.ScanDiff, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scans[tgt]) < 2 {
		return nil, scanerr.ErrInsufficientHistory
	}
	return f.diff, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	submitted []string
	tasks     map[string]tasks.Task
	err       error
}

func (q *fakeQueue) Submit(tgt string, _ models.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.submitted = append(q.submitted, tgt)
	return "task-1", nil
}

func (q *fakeQueue) Status(id string) (tasks.Task, error) {
	t, ok := q.tasks[id]
	if !ok {
		return tasks.Task{}, scanerr.ErrTaskNotFound
	}
	return t, nil
}

func (q *fakeQueue) Stats() tasks.Stats {
	return tasks.Stats{Workers: 2, QueueCapacity: 100, Pending: 1, Running: 1, Succeeded: 3, Accepting: true}
}

func newTestServer(t *testing.T, svc *fakeService, q *fakeQueue, opts ...Option) http.Handler {
	t.Helper()
	if q.tasks == nil {
		q.tasks = map[string]tasks.Task{}
	}
	s := New(Config{Address: "127.0.0.1:0"}, svc, q, opts...)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.1:40000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSubmitScan(t *testing.T) {
	q := &fakeQueue{}
	h := newTestServer(t, &fakeService{}, q)

	rr := do(t, h, http.MethodPost, "/scan", `{"target":"scanme.nmap.org","options":{"-p":"22,80","-sV":null}}`)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "task-1", decode(t, rr)["task_id"])
	assert.Equal(t, []string{"scanme.nmap.org"}, q.submitted)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestSubmitScanSanitizesTarget(t *testing.T) {
	q := &fakeQueue{}
	h := newTestServer(t, &fakeService{}, q)

	rr := do(t, h, http.MethodPost, "/scan", `{"target":" example.com\n"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"example.com"}, q.submitted)
}

func TestSubmitScanRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		svc      *fakeService
		queueErr error
		code     int
		errMsg   string
	}{
		{"missing target", `{"options":{}}`, &fakeService{}, nil, http.StatusBadRequest, "Target is required."},
		{"malformed json", `{"target":`, &fakeService{}, nil, http.StatusBadRequest, "JSON object"},
		{"options not an object", `{"target":"example.com","options":["-sV"]}`, &fakeService{}, nil, http.StatusBadRequest, "JSON object"},
		{"invalid target", `{"target":"-bad-.example"}`, &fakeService{}, nil, http.StatusBadRequest, "Invalid IP address or hostname."},
		{"invalid flag", `{"target":"example.com","options":{"rm":null}}`, &fakeService{}, nil, http.StatusBadRequest, "Invalid scan options"},
		{"out of scope", `{"target":"10.9.0.1"}`, &fakeService{scope: &target.Scope{AllowedCIDRs: []string{"10.0.0.0/24"}}}, nil, http.StatusForbidden, "scope"},
		{"queue full", `{"target":"example.com"}`, &fakeService{}, scanerr.ErrQueueFull, http.StatusServiceUnavailable, "queue is full"},
		{"queue broken", `{"target":"example.com"}`, &fakeService{}, errors.New("boom"), http.StatusInternalServerError, "Failed to initiate scan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{err: tt.queueErr}
			h := newTestServer(t, tt.svc, q)

			rr := do(t, h, http.MethodPost, "/scan", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.Contains(t, decode(t, rr)["error"], tt.errMsg)
			if tt.queueErr == nil {
				assert.Empty(t, q.submitted)
			}
		})
	}
}

func TestTaskStatus(t *testing.T) {
	rec := models.NewScanRecord()
	rec.IP = "10.0.0.1"
	q := &fakeQueue{tasks: map[string]tasks.Task{
		"ok":   {ID: "ok", Status: models.TaskSuccess, Result: rec},
		"bad":  {ID: "bad", Status: models.TaskFailure, Error: "[SCAN_FAILED] scanner exited with an error"},
		"wait": {ID: "wait", Status: models.TaskPending},
	}}
	h := newTestServer(t, &fakeService{}, q)

	rr := do(t, h, http.MethodGet, "/scan/ok", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "ok", body["task_id"])
	assert.Equal(t, "10.0.0.1", body["result"].(map[string]any)["ip"])

	body = decode(t, do(t, h, http.MethodGet, "/scan/bad", ""))
	assert.Equal(t, "failure", body["status"])
	assert.Contains(t, body["error"], "SCAN_FAILED")
	assert.NotContains(t, body, "result")

	body = decode(t, do(t, h, http.MethodGet, "/scan/wait", ""))
	assert.Equal(t, "pending", body["status"])

	rr = do(t, h, http.MethodGet, "/scan/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecentScans(t *testing.T) {
	svc := &fakeService{scans: map[string][]*models.StoredScan{
		"example.com": {{ID: "b", Target: "example.com"}, {ID: "a", Target: "example.com"}},
	}}
	h := newTestServer(t, svc, &fakeQueue{})

	rr := do(t, h, http.MethodGet, "/scans/example.com?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	scans := decode(t, rr)["scans"].([]any)
	assert.Len(t, scans, 2)
	assert.Equal(t, 2, svc.lastLim)

	rr = do(t, h, http.MethodGet, "/scans/example.com", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, svc.lastLim, "service applies the default")

	rr = do(t, h, http.MethodGet, "/scans/unknown.example", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decode(t, rr)["scans"])

	rr = do(t, h, http.MethodGet, "/scans/example.com?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/scans/-bad-", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLatestScan(t *testing.T) {
	svc := &fakeService{scans: map[string][]*models.StoredScan{
		"10.0.0.1": {{ID: "newest", Target: "10.0.0.1"}},
	}}
	h := newTestServer(t, svc, &fakeQueue{})

	rr := do(t, h, http.MethodGet, "/latest_scan/10.0.0.1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "newest", decode(t, rr)["latest_scan"].(map[string]any)["id"])

	rr = do(t, h, http.MethodGet, "/latest_scan/10.0.0.2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No scans found for the given target.", decode(t, rr)["error"])
}

func TestScanChanges(t *testing.T) {
	svc := &fakeService{
		scans: map[string][]*models.StoredScan{
			"example.com": {{ID: "b"}, {ID: "a"}},
			"single.example": {{ID: "only"}},
		},
		diff: &models.ScanDiff{
			NewlyOpened:     []string{"22: ssh"},
			NewlyClosed:     []string{},
			ChangedState:    []string{},
			ChangedServices: []string{},
			ScriptChanges:   map[string]models.ScriptChange{},
		},
	}
	h := newTestServer(t, svc, &fakeQueue{})

	rr := do(t, h, http.MethodGet, "/scan_changes/example.com", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, []any{"22: ssh"}, body["newly_opened"])
	assert.Equal(t, []any{}, body["newly_closed"])

	rr = do(t, h, http.MethodGet, "/scan_changes/single.example", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestStorageFailuresAreGeneric(t *testing.T) {
	svc := &fakeService{err: scanerr.Wrap(scanerr.CodeStorage, "reading scan history", errors.New("pq: password authentication failed"))}
	h := newTestServer(t, svc, &fakeQueue{})

	rr := do(t, h, http.MethodGet, "/scans/example.com", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to retrieve recent scans. Please try again later.", decode(t, rr)["error"])
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestWorkerStatusAndHealth(t *testing.T) {
	h := newTestServer(t, &fakeService{}, &fakeQueue{})

	rr := do(t, h, http.MethodGet, "/worker_status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, 2.0, body["workers"])
	assert.Equal(t, 3.0, body["succeeded"])

	rr = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode(t, rr)["status"])
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthPingsStorage(t *testing.T) {
	h := newTestServer(t, &fakeService{}, &fakeQueue{}, WithHealthCheck(fakePinger{}))
	rr := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode(t, rr)["status"])

	h = newTestServer(t, &fakeService{}, &fakeQueue{}, WithHealthCheck(fakePinger{err: errors.New("database not open")}))
	rr = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "unhealthy", body["status"])
	assert.NotContains(t, rr.Body.String(), "database not open")
}

func TestRateLimitedRoutes(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := middleware.NewRateLimiter(2, time.Minute, middleware.WithClock(func() time.Time { return clock }))
	h := newTestServer(t, &fakeService{}, &fakeQueue{}, WithRateLimiter(rl))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/scans/example.com", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/worker_status", "").Code)
	limited := do(t, h, http.MethodGet, "/latest_scan/example.com", "")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, limited)["code"])
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/scan", `{"target":"example.com"}`).Code)

	// Unlimited routes still answer.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/scan/unknown", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	h := newTestServer(t, &fakeService{}, &fakeQueue{}, WithMetrics(m))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `scanwatch_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(t, &fakeService{}, &fakeQueue{})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/health", "").Code)
}

func TestPanicsAreRecovered(t *testing.T) {
	s := New(Config{}, &fakeService{}, &fakeQueue{tasks: map[string]tasks.Task{}})
	s.router.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
