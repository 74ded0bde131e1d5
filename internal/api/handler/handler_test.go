package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/api/dto"
	"github.com/monicap360/move-around-tms-sub008/internal/api/handler"
	"github.com/monicap360/move-around-tms-sub008/internal/api/router"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/schedulertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	store  *schedulertest.MemStore
	health *schedulertest.StubHealth
	sched  *scheduler.Scheduler
	pinger *stubPinger
	engine *gin.Engine
}

func newTestAPI(t *testing.T, maxSlots int) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := schedulertest.NewMemStore()
	health := schedulertest.NewStubHealth()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.New(scheduler.Config{MaxConcurrentJobs: maxSlots},
		store, health, &schedulertest.FakeDispatcher{}, logger)
	pinger := &stubPinger{}

	engine := router.SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Scheduler: sched,
		Reader:    store,
		Health:    health,
		DB:        pinger,
	})

	return &testAPI{
		store:  store,
		health: health,
		sched:  sched,
		pinger: pinger,
		engine: engine,
	}
}

func (a *testAPI) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) submit(t *testing.T, tenantID string) dto.SubmitPayrollRunResponse {
	t.Helper()

	w := a.request(t, http.MethodPost, "/api/v1/payroll-runs", gin.H{
		"tenant_id":    tenantID,
		"requested_by": "ops@example.com",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp dto.SubmitPayrollRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitPayrollRunEndpoint(t *testing.T) {
	t.Run("new run is accepted", func(t *testing.T) {
		api := newTestAPI(t, 2)

		resp := api.submit(t, "tenant-a")

		assert.True(t, resp.Created)
		assert.Equal(t, "tenant-a", resp.Job.TenantID)
		assert.Equal(t, string(domain.StatusRunning), resp.Job.Status)
	})

	t.Run("duplicate submit returns 200 with the existing run", func(t *testing.T) {
		api := newTestAPI(t, 2)

		first := api.submit(t, "tenant-a")

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs", gin.H{
			"tenant_id":    "tenant-a",
			"requested_by": "ops@example.com",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.SubmitPayrollRunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Created)
		assert.Equal(t, first.Job.JobID, resp.Job.JobID)
	})

	t.Run("missing tenant_id is a 400", func(t *testing.T) {
		api := newTestAPI(t, 2)

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs", gin.H{
			"requested_by": "ops@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown priority is a 400", func(t *testing.T) {
		api := newTestAPI(t, 2)

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs", gin.H{
			"tenant_id":    "tenant-a",
			"requested_by": "ops@example.com",
			"priority":     "urgent",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("degraded system reports the paused run", func(t *testing.T) {
		api := newTestAPI(t, 2)
		api.health.Set(false, "queue depth over threshold")

		resp := api.submit(t, "tenant-a")

		assert.Equal(t, string(domain.StatusPaused), resp.Job.Status)
		assert.Contains(t, resp.Message, "degraded")
	})
}

func TestGetPayrollRunEndpoint(t *testing.T) {
	api := newTestAPI(t, 2)
	created := api.submit(t, "tenant-a")

	t.Run("existing run", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs/"+created.Job.JobID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var job dto.PayrollJobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, created.Job.JobID, job.JobID)
	})

	t.Run("unknown run is a 404", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id is a 400", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListPayrollRunsEndpoint(t *testing.T) {
	api := newTestAPI(t, 10)
	for _, tenant := range []string{"tenant-a", "tenant-b", "tenant-c"} {
		api.submit(t, tenant)
	}

	t.Run("lists all runs", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListPayrollRunsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Jobs, 3)
		assert.Empty(t, resp.NextCursor)
	})

	t.Run("filters by tenant", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs?tenant_id=tenant-b", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListPayrollRunsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, "tenant-b", resp.Jobs[0].TenantID)
	})

	t.Run("paginates with a cursor", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs?page_size=2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var first dto.ListPayrollRunsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
		require.Len(t, first.Jobs, 2)
		require.NotEmpty(t, first.NextCursor)

		w = api.request(t, http.MethodGet, "/api/v1/payroll-runs?page_size=2&cursor="+first.NextCursor, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var second dto.ListPayrollRunsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
		require.Len(t, second.Jobs, 1)
		assert.Empty(t, second.NextCursor)

		// No overlap between pages
		seen := map[string]bool{}
		for _, job := range append(first.Jobs, second.Jobs...) {
			assert.False(t, seen[job.JobID])
			seen[job.JobID] = true
		}
	})

	t.Run("invalid cursor is a 400", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs?cursor=garbage", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPayrollRunEventsEndpoint(t *testing.T) {
	api := newTestAPI(t, 1)
	created := api.submit(t, "tenant-a")

	w := api.request(t, http.MethodGet, "/api/v1/payroll-runs/"+created.Job.JobID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Admission and promotion both leave audit entries
	require.GreaterOrEqual(t, len(resp.Events), 2)
	assert.Equal(t, string(domain.EventQueued), resp.Events[0].EventType)

	t.Run("unknown run is a 404", func(t *testing.T) {
		w := api.request(t, http.MethodGet, "/api/v1/payroll-runs/"+uuid.New().String()+"/events", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCancelPayrollRunEndpoint(t *testing.T) {
	t.Run("cancels a running job", func(t *testing.T) {
		api := newTestAPI(t, 1)
		created := api.submit(t, "tenant-a")

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/cancel", gin.H{
			"reason": "wrong pay period",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var job dto.PayrollJobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, string(domain.StatusCancelled), job.Status)
	})

	t.Run("missing reason is a 400", func(t *testing.T) {
		api := newTestAPI(t, 1)
		created := api.submit(t, "tenant-a")

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/cancel", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cancelling a finished run is a 409", func(t *testing.T) {
		api := newTestAPI(t, 1)
		created := api.submit(t, "tenant-a")

		require.NoError(t, api.sched.ReleaseSlot(context.Background(), created.Job.JobID, domain.StatusCompleted, ""))

		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/cancel", gin.H{
			"reason": "too late",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRerunPayrollRunEndpoint(t *testing.T) {
	api := newTestAPI(t, 1)
	created := api.submit(t, "tenant-a")
	require.NoError(t, api.sched.ReleaseSlot(context.Background(), created.Job.JobID, domain.StatusFailed, "bank file rejected"))

	w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/rerun", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.SubmitPayrollRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.NotEqual(t, created.Job.JobID, resp.Job.JobID)
	assert.Equal(t, string(domain.PriorityHigh), resp.Job.Priority)

	t.Run("rerun of an active run is a 409", func(t *testing.T) {
		w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+resp.Job.JobID+"/rerun", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestPauseResumePayrollRunEndpoints(t *testing.T) {
	api := newTestAPI(t, 1)
	created := api.submit(t, "tenant-a")

	w := api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/pause", gin.H{
		"reason": "ledger discrepancy",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var paused dto.PayrollJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paused))
	assert.Equal(t, string(domain.StatusPaused), paused.Status)
	assert.Equal(t, "operator", paused.Metadata["paused_by"])

	w = api.request(t, http.MethodPost, "/api/v1/payroll-runs/"+created.Job.JobID+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resumed dto.PayrollJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resumed))
	assert.Equal(t, string(domain.StatusRunning), resumed.Status)
}

func TestSchedulerEndpoints(t *testing.T) {
	api := newTestAPI(t, 3)

	t.Run("state reflects pause and slot usage", func(t *testing.T) {
		api.submit(t, "tenant-a")

		w := api.request(t, http.MethodPost, "/api/v1/scheduler/pause", gin.H{
			"reason": "maintenance window",
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = api.request(t, http.MethodGet, "/api/v1/scheduler", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Scheduler scheduler.State       `json:"scheduler"`
			Health    domain.HealthSnapshot `json:"health"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.True(t, resp.Scheduler.Paused)
		assert.Equal(t, "maintenance window", resp.Scheduler.PauseReason)
		assert.Equal(t, 1, resp.Scheduler.SlotsInUse)
		assert.Equal(t, 3, resp.Scheduler.MaxConcurrentJobs)
		assert.True(t, resp.Health.Healthy)
	})

	t.Run("resume clears the pause", func(t *testing.T) {
		w := api.request(t, http.MethodPost, "/api/v1/scheduler/resume", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Scheduler scheduler.State `json:"scheduler"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Scheduler.Paused)
	})

	t.Run("pause without a reason is a 400", func(t *testing.T) {
		w := api.request(t, http.MethodPost, "/api/v1/scheduler/pause", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		api := newTestAPI(t, 1)

		w := api.request(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("database down", func(t *testing.T) {
		api := newTestAPI(t, 1)
		api.pinger.err = errors.New("connection refused")

		w := api.request(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
