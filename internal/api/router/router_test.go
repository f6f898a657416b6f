package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/api/dto"
	"github.com/cuongbtq/community-broadcast/internal/api/handler"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/runner"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
	"github.com/cuongbtq/community-broadcast/internal/cache"
	"github.com/cuongbtq/community-broadcast/internal/sms"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobID = "7d0e4a3c-52a4-4c43-9a57-0f1b3f3c2c11"

type fakeJobs struct {
	created []domain.BroadcastJob
	jobs    map[string]*domain.BroadcastJob
	list    []domain.BroadcastJob
	filter  storage.JobFilter
	err     error
}

func (f *fakeJobs) CreateJob(ctx context.Context, job *domain.BroadcastJob) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *job)
	return nil
}

func (f *fakeJobs) GetJobByID(ctx context.Context, jobID string) (*domain.BroadcastJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.BroadcastJob, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	p.bodies = append(p.bodies, body)
	return p.err
}

type fakeRunner struct {
	summary runner.Summary
	err     error
	calls   int
}

func (r *fakeRunner) ProcessQueued(ctx context.Context) (runner.Summary, error) {
	r.calls++
	return r.summary, r.err
}

type fakeProgress struct {
	snapshot cache.Progress
	ok       bool
}

func (p *fakeProgress) Get(ctx context.Context, jobID string) (cache.Progress, bool, error) {
	return p.snapshot, p.ok, nil
}

type fakeSender struct {
	result sms.Result
	to     string
}

func (s *fakeSender) Send(ctx context.Context, to, text string) sms.Result {
	s.to = to
	return s.result
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type testDeps struct {
	jobs      *fakeJobs
	publisher *fakePublisher
	runner    *fakeRunner
	progress  *fakeProgress
	sender    *fakeSender
}

func newTestRouter(t *testing.T, requireAuth bool) (*gin.Engine, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := &testDeps{
		jobs:      &fakeJobs{jobs: map[string]*domain.BroadcastJob{}},
		publisher: &fakePublisher{},
		runner:    &fakeRunner{},
		progress:  &fakeProgress{},
		sender:    &fakeSender{},
	}

	r := SetupRouter(&handler.Dependencies{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:         d.jobs,
		Publisher:    d.publisher,
		Runner:       d.runner,
		Progress:     d.progress,
		Sender:       d.sender,
		DB:           fakePinger{},
		TriggerToken: "s3cret",
		RequireAuth:  requireAuth,
	})
	return r, d
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProcessQueued_Auth(t *testing.T) {
	tests := []struct {
		name        string
		requireAuth bool
		header      string
		wantStatus  int
	}{
		{name: "missing header", requireAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "wrong token", requireAuth: true, header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", requireAuth: true, header: "Basic s3cret", wantStatus: http.StatusUnauthorized},
		{name: "valid token", requireAuth: true, header: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "development skips check", requireAuth: false, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d := newTestRouter(t, tt.requireAuth)
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}

			w := do(r, http.MethodPost, "/api/v1/broadcasts/process", "", headers)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, 0, d.runner.calls)
				assert.JSONEq(t, `{"success":false,"error":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestProcessQueued_Responses(t *testing.T) {
	r, d := newTestRouter(t, false)

	d.runner.summary = runner.Summary{ProcessedJobs: 2, JobIDs: []string{"a", "b"}}
	w := do(r, http.MethodPost, "/api/v1/broadcasts/process", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"processedJobs":2,"jobIds":["a","b"]}`, w.Body.String())

	d.runner.summary = runner.Summary{}
	w = do(r, http.MethodPost, "/api/v1/broadcasts/process", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"processedJobs":0,"jobIds":[]}`, w.Body.String())

	d.runner.err = errors.New("failed to list queued jobs: connection refused")
	w = do(r, http.MethodPost, "/api/v1/broadcasts/process", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"failed to list queued jobs: connection refused"}`, w.Body.String())
}

func TestCreateBroadcast(t *testing.T) {
	r, d := newTestRouter(t, true)

	w := do(r, http.MethodPost, "/api/v1/broadcasts",
		`{"message":"Dues reminder","members_filter":"Unpaid","months_filter":["2024-01-01","2024-02-01","2024-01-01"],"search_filter":"lane 3"}`,
		nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, d.jobs.created, 1)
	job := d.jobs.created[0]
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, domain.MembersFilterUnpaid, job.MembersFilter)
	assert.Equal(t, `["2024-01-01","2024-02-01"]`, job.MonthsFilter)
	assert.Equal(t, "lane 3", job.SearchFilter)

	require.Len(t, d.publisher.bodies, 1)
	assert.JSONEq(t, `{"job_id":"`+job.JobID+`"}`, string(d.publisher.bodies[0]))

	var out dto.BroadcastDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, job.JobID, out.JobID)
	assert.Equal(t, "QUEUED", out.Status)
	assert.Equal(t, []string{"2024-01-01", "2024-02-01"}, out.MonthsFilter)
}

func TestCreateBroadcast_DefaultsAndPublishFailure(t *testing.T) {
	r, d := newTestRouter(t, false)
	d.publisher.err = errors.New("channel closed")

	w := do(r, http.MethodPost, "/api/v1/broadcasts", `{"message":"Hello all"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, d.jobs.created, 1)
	assert.Equal(t, domain.MembersFilterAll, d.jobs.created[0].MembersFilter)
	assert.Equal(t, `[]`, d.jobs.created[0].MonthsFilter)
}

func TestCreateBroadcast_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing message", body: `{"members_filter":"All"}`},
		{name: "unknown filter", body: `{"message":"x","members_filter":"Everyone"}`},
		{name: "bad month", body: `{"message":"x","months_filter":["2024-13-01"]}`},
		{name: "malformed json", body: `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d := newTestRouter(t, false)
			w := do(r, http.MethodPost, "/api/v1/broadcasts", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, d.jobs.created)
			assert.Empty(t, d.publisher.bodies)
		})
	}
}

func TestGetBroadcast(t *testing.T) {
	r, d := newTestRouter(t, false)
	completed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d.jobs.jobs[testJobID] = &domain.BroadcastJob{
		JobID:           testJobID,
		Status:          domain.JobStatusCompleted,
		Message:         "hi",
		MembersFilter:   domain.MembersFilterAll,
		MonthsFilter:    `[]`,
		TotalRecipients: 2,
		ProcessedCount:  2,
		SuccessCount:    1,
		FailedCount:     1,
		Results:         []byte(`[{"name":"B","number":"0772","status":false,"error":"boom"},{"name":"A","number":"0771","status":true}]`),
		CompletedAt:     &completed,
	}

	w := do(r, http.MethodGet, "/api/v1/broadcasts/"+testJobID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out dto.BroadcastDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "COMPLETED", out.Status)
	require.Len(t, out.Results, 2)
	assert.False(t, out.Results[0].Status)
	assert.Equal(t, "boom", out.Results[0].Error)
	assert.Equal(t, "2024-03-01T10:00:00Z", out.CompletedAt)
}

func TestGetBroadcast_Errors(t *testing.T) {
	r, d := newTestRouter(t, false)

	w := do(r, http.MethodGet, "/api/v1/broadcasts/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/broadcasts/"+testJobID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	d.jobs.err = errors.New("db down")
	w = do(r, http.MethodGet, "/api/v1/broadcasts/"+testJobID, "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListBroadcasts(t *testing.T) {
	r, d := newTestRouter(t, false)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ids := []string{
		"00000000-0000-0000-0000-000000000003",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000001",
	}
	for i, id := range ids {
		d.jobs.list = append(d.jobs.list, domain.BroadcastJob{
			JobID:     id,
			Status:    domain.JobStatusQueued,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}

	w := do(r, http.MethodGet, "/api/v1/broadcasts?page_size=2&status=QUEUED", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, d.jobs.filter.PageSize)
	assert.Equal(t, domain.JobStatusQueued, d.jobs.filter.Status)
	assert.Nil(t, d.jobs.filter.Cursor)

	var out dto.ListBroadcastsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Broadcasts, 2)
	require.NotEmpty(t, out.NextCursor)

	cursor, err := handler.DecodeJobCursor(out.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, ids[1], cursor.JobID)
	assert.True(t, cursor.CreatedAt.Equal(base.Add(-time.Minute)))

	d.jobs.list = d.jobs.list[2:]
	w = do(r, http.MethodGet, "/api/v1/broadcasts?cursor="+out.NextCursor, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.jobs.filter.Cursor)
	assert.Equal(t, ids[1], d.jobs.filter.Cursor.JobID)
	assert.Equal(t, 20, d.jobs.filter.PageSize)

	out = dto.ListBroadcastsResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Broadcasts, 1)
	assert.Empty(t, out.NextCursor)
}

func TestListBroadcasts_BadQuery(t *testing.T) {
	r, _ := newTestRouter(t, false)

	for _, q := range []string{"?page_size=500", "?status=DONE", "?cursor=bm90LWEtY3Vyc29y"} {
		w := do(r, http.MethodGet, "/api/v1/broadcasts"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetProgress(t *testing.T) {
	r, d := newTestRouter(t, false)
	d.jobs.jobs[testJobID] = &domain.BroadcastJob{
		JobID:           testJobID,
		Status:          domain.JobStatusProcessing,
		TotalRecipients: 45,
		ProcessedCount:  20,
		SuccessCount:    20,
	}

	w := do(r, http.MethodGet, "/api/v1/broadcasts/"+testJobID+"/progress", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out dto.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "database", out.Source)
	assert.Equal(t, 20, out.Counters.Processed)

	d.progress.ok = true
	d.progress.snapshot = cache.Progress{
		JobID:    testJobID,
		Status:   domain.JobStatusProcessing,
		Counters: domain.Counters{Total: 45, Processed: 40, Success: 39, Failed: 1},
	}
	w = do(r, http.MethodGet, "/api/v1/broadcasts/"+testJobID+"/progress", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = dto.ProgressResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "cache", out.Source)
	assert.Equal(t, 40, out.Counters.Processed)
}

func TestSendMessage(t *testing.T) {
	r, d := newTestRouter(t, true)
	auth := map[string]string{"Authorization": "Bearer s3cret"}

	w := do(r, http.MethodPost, "/api/v1/messages", `{"phone_number":"0771234567","message":"hi"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	d.sender.result = sms.Result{Success: true}
	w = do(r, http.MethodPost, "/api/v1/messages", `{"phone_number":"0771234567","message":"hi"}`, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0771234567", d.sender.to)

	d.sender.result = sms.Result{Error: "unexpected status code: 500"}
	w = do(r, http.MethodPost, "/api/v1/messages", `{"phone_number":"0771234567","message":"hi"}`, auth)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"unexpected status code: 500"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/messages", `{"message":"hi"}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, true)

	w := do(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
