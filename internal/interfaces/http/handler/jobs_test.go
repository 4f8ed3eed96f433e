package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/dto"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
	"github.com/erp/weclapp-migration/tests/testutil"
)

func init() {
	middleware.SetupValidator()
}

type fakeQueue struct {
	submitted []scheduler.Job
	err       error
	jobs      map[uuid.UUID]scheduler.Job
}

func (q *fakeQueue) Submit(job *scheduler.Job) (scheduler.Job, error) {
	if q.err != nil {
		return scheduler.Job{}, q.err
	}
	q.submitted = append(q.submitted, *job)
	return *job, nil
}

func (q *fakeQueue) Get(id uuid.UUID) (scheduler.Job, error) {
	job, ok := q.jobs[id]
	if !ok {
		return scheduler.Job{}, scheduler.ErrJobNotFound
	}
	return job, nil
}

func (q *fakeQueue) List() []scheduler.Job {
	out := make([]scheduler.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	return out
}

type fakeCatalog struct {
	kinds   []string
	logs    []migration.Outcome
	filter  migration.OutcomeFilter
	planErr error
}

func (f *fakeCatalog) CheckKind(kind string) error {
	for _, k := range f.kinds {
		if k == kind {
			return nil
		}
	}
	return migration.ErrUnknownKind
}

func (f *fakeCatalog) Plan() ([]migrationapp.PlanStep, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	steps := make([]migrationapp.PlanStep, 0, len(f.kinds))
	for _, k := range f.kinds {
		steps = append(steps, migrationapp.PlanStep{Kind: k, DestinationType: k})
	}
	return steps, nil
}

func (f *fakeCatalog) Logs(_ context.Context, filter migration.OutcomeFilter) ([]migration.Outcome, error) {
	f.filter = filter
	return f.logs, nil
}

func newJobHandler() (*JobHandler, *fakeQueue, *fakeCatalog) {
	q := &fakeQueue{jobs: map[uuid.UUID]scheduler.Job{}}
	cat := &fakeCatalog{kinds: []string{"contact", "customer"}}
	return NewJobHandler(q, cat), q, cat
}

func param(key, value string) gin.Params {
	return gin.Params{{Key: key, Value: value}}
}

func TestJobHandler_Cache(t *testing.T) {
	h, q, _ := newJobHandler()

	testutil.RunHTTPTestCase(t, h.Cache, testutil.HTTPTestCase{
		Method:         http.MethodPost,
		Path:           "/api/v1/jobs/cache",
		ExpectedStatus: http.StatusAccepted,
		Validate: func(t *testing.T, tc *testutil.TestContext) {
			var job dto.JobResponse
			testutil.DecodeEnvelope(t, tc, &job)
			assert.Equal(t, "CACHE", job.Type)
			assert.Equal(t, "PENDING", job.Status)
		},
	})
	require.Len(t, q.submitted, 1)
	assert.Equal(t, scheduler.JobTypeCache, q.submitted[0].Type)
}

func TestJobHandler_Migrate(t *testing.T) {
	h, q, _ := newJobHandler()

	testutil.RunHTTPTestCases(t, h.Migrate, []testutil.HTTPTestCase{
		{
			Name:           "all kinds without body",
			Method:         http.MethodPost,
			ExpectedStatus: http.StatusAccepted,
		},
		{
			Name:           "one kind with filter",
			Method:         http.MethodPost,
			Body:           map[string]any{"kind": "customer", "where": map[string]string{"customerNumber": "C-1"}},
			ExpectedStatus: http.StatusAccepted,
		},
		{
			Name:           "unknown kind",
			Method:         http.MethodPost,
			Body:           map[string]any{"kind": "gadget"},
			ExpectedStatus: http.StatusNotFound,
			Validate: func(t *testing.T, tc *testutil.TestContext) {
				testutil.AssertErrorResponse(t, tc, dto.ErrCodeUnknownKind)
			},
		},
		{
			Name:           "malformed kind",
			Method:         http.MethodPost,
			Body:           map[string]any{"kind": "Customer"},
			ExpectedStatus: http.StatusBadRequest,
			Validate: func(t *testing.T, tc *testutil.TestContext) {
				testutil.AssertErrorResponse(t, tc, dto.ErrCodeValidation)
			},
		},
	})

	require.Len(t, q.submitted, 2)
	assert.Empty(t, q.submitted[0].Kind)
	assert.Equal(t, "customer", q.submitted[1].Kind)
	assert.Equal(t, map[string]string{"customerNumber": "C-1"}, q.submitted[1].Where)
}

func TestJobHandler_Migrate_FilterWithoutKind(t *testing.T) {
	h, q, _ := newJobHandler()
	q.err = scheduler.ErrInvalidJob

	testutil.RunHTTPTestCase(t, h.Migrate, testutil.HTTPTestCase{
		Method:         http.MethodPost,
		Body:           map[string]any{"where": map[string]string{"id": "1"}},
		ExpectedStatus: http.StatusBadRequest,
		Validate: func(t *testing.T, tc *testutil.TestContext) {
			testutil.AssertErrorResponse(t, tc, dto.ErrCodeBadRequest)
		},
	})
}

func TestJobHandler_Clear(t *testing.T) {
	h, q, _ := newJobHandler()

	testutil.RunHTTPTestCases(t, h.Clear, []testutil.HTTPTestCase{
		{
			Name:           "known kind",
			Method:         http.MethodPost,
			Params:         param("kind", "contact"),
			ExpectedStatus: http.StatusAccepted,
		},
		{
			Name:           "unknown kind",
			Method:         http.MethodPost,
			Params:         param("kind", "gadget"),
			ExpectedStatus: http.StatusNotFound,
		},
	})

	require.Len(t, q.submitted, 1)
	assert.Equal(t, scheduler.JobTypeClear, q.submitted[0].Type)
	assert.Equal(t, "contact", q.submitted[0].Kind)
}

func TestJobHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"queue full", scheduler.ErrJobQueueFull, http.StatusServiceUnavailable, dto.ErrCodeQueueFull},
		{"not running", scheduler.ErrSchedulerNotRunning, http.StatusServiceUnavailable, dto.ErrCodeUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, q, _ := newJobHandler()
			q.err = tt.err

			testutil.RunHTTPTestCase(t, h.Cache, testutil.HTTPTestCase{
				Method:         http.MethodPost,
				ExpectedStatus: tt.status,
				Validate: func(t *testing.T, tc *testutil.TestContext) {
					testutil.AssertErrorResponse(t, tc, tt.code)
				},
			})
		})
	}
}

func TestJobHandler_GetAndList(t *testing.T) {
	h, q, _ := newJobHandler()
	job := scheduler.NewJob(scheduler.JobTypeClear, "contact", nil)
	job.Fail("contact k1: still linked")
	q.jobs[job.ID] = *job

	testutil.RunHTTPTestCases(t, h.Get, []testutil.HTTPTestCase{
		{
			Name:           "found",
			Params:         param("id", job.ID.String()),
			ExpectedStatus: http.StatusOK,
			Validate: func(t *testing.T, tc *testutil.TestContext) {
				var got dto.JobResponse
				env := testutil.DecodeEnvelope(t, tc, &got)
				assert.True(t, env.Success)
				assert.Equal(t, job.ID, got.ID)
				assert.Equal(t, "FAILED", got.Status)
				assert.Equal(t, "contact k1: still linked", got.Error)
			},
		},
		{
			Name:           "unknown id",
			Params:         param("id", uuid.NewString()),
			ExpectedStatus: http.StatusNotFound,
		},
		{
			Name:           "malformed id",
			Params:         param("id", "42"),
			ExpectedStatus: http.StatusBadRequest,
		},
	})

	testutil.RunHTTPTestCase(t, h.List, testutil.HTTPTestCase{
		ExpectedStatus: http.StatusOK,
		Validate: func(t *testing.T, tc *testutil.TestContext) {
			var jobs []dto.JobResponse
			env := testutil.DecodeEnvelope(t, tc, &jobs)
			assert.Len(t, jobs, 1)
			require.NotNil(t, env.Meta)
			assert.Equal(t, 1, env.Meta.Total)
		},
	})
}

func TestJobHandler_Logs(t *testing.T) {
	h, _, cat := newJobHandler()
	cat.logs = []migration.Outcome{{
		ID:        "1",
		Status:    migration.OutcomeError,
		Message:   "Error while migrating customer",
		Detail:    "customer c1: phone is invalid",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	testutil.RunHTTPTestCase(t, h.Logs, testutil.HTTPTestCase{
		Path:           "/api/v1/logs",
		Query:          url.Values{"status": {"Error"}, "limit": {"5"}},
		ExpectedStatus: http.StatusOK,
		Validate: func(t *testing.T, tc *testutil.TestContext) {
			var entries []dto.LogEntryResponse
			testutil.DecodeEnvelope(t, tc, &entries)
			require.Len(t, entries, 1)
			assert.Equal(t, "customer c1: phone is invalid", entries[0].Detail)
		},
	})
	assert.Equal(t, migration.OutcomeFilter{Status: migration.OutcomeError, Limit: 5}, cat.filter)

	testutil.RunHTTPTestCase(t, h.Logs, testutil.HTTPTestCase{
		Path:           "/api/v1/logs",
		ExpectedStatus: http.StatusOK,
	})
	assert.Equal(t, migration.OutcomeFilter{Limit: defaultLogLimit}, cat.filter)

	testutil.RunHTTPTestCase(t, h.Logs, testutil.HTTPTestCase{
		Path:           "/api/v1/logs",
		Query:          url.Values{"status": {"Warning"}},
		ExpectedStatus: http.StatusBadRequest,
	})
}

func TestJobHandler_Plan(t *testing.T) {
	h, _, cat := newJobHandler()

	testutil.RunHTTPTestCase(t, h.Plan, testutil.HTTPTestCase{
		ExpectedStatus: http.StatusOK,
		Validate: func(t *testing.T, tc *testutil.TestContext) {
			var steps []migrationapp.PlanStep
			testutil.DecodeEnvelope(t, tc, &steps)
			require.Len(t, steps, 2)
			assert.Equal(t, "contact", steps[0].Kind)
		},
	})

	cat.planErr = errors.New("dependency cycle between a, b")
	testutil.RunHTTPTestCase(t, h.Plan, testutil.HTTPTestCase{
		ExpectedStatus: http.StatusInternalServerError,
	})
}

func TestHealth(t *testing.T) {
	testutil.RunHTTPTestCase(t, Health(pinger{}), testutil.HTTPTestCase{
		ExpectedStatus: http.StatusOK,
		ExpectedBody:   map[string]any{"status": "healthy"},
	})
	testutil.RunHTTPTestCase(t, Health(pinger{err: errors.New("down")}), testutil.HTTPTestCase{
		ExpectedStatus: http.StatusServiceUnavailable,
		ExpectedBody:   map[string]any{"database": "error"},
	})
}

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }
