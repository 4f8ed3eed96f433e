package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/auth"
	"github.com/erp/weclapp-migration/internal/infrastructure/joblock"
	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/handler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
	"github.com/erp/weclapp-migration/tests/testutil"
)

type recordingExecutor struct {
	mu   sync.Mutex
	jobs []scheduler.Job
}

func (e *recordingExecutor) Execute(_ context.Context, job scheduler.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

type staticCatalog struct{}

func (staticCatalog) CheckKind(kind string) error {
	if kind == "customer" {
		return nil
	}
	return migration.ErrUnknownKind
}

func (staticCatalog) Plan() ([]migrationapp.PlanStep, error) {
	return []migrationapp.PlanStep{{Kind: "customer", DestinationType: "Customer"}}, nil
}

func (staticCatalog) Logs(context.Context, migration.OutcomeFilter) ([]migration.Outcome, error) {
	return nil, nil
}

type okPinger struct{}

func (okPinger) Ping() error { return nil }

type engineFixture struct {
	engine   http.Handler
	tokens   *auth.TokenService
	executor *recordingExecutor
}

func newEngineFixture(t *testing.T, limiter *middleware.RateLimiter) *engineFixture {
	t.Helper()
	return newEngineFixtureWithDocs(t, limiter, middleware.SwaggerConfig{})
}

func newEngineFixtureWithDocs(t *testing.T, limiter *middleware.RateLimiter, docs middleware.SwaggerConfig) *engineFixture {
	t.Helper()

	tokens, err := auth.NewTokenService("router-test-secret-at-least-32-chars", "weclapp-migration")
	require.NoError(t, err)

	exec := &recordingExecutor{}
	sched := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig(), exec, joblock.NewMemoryLocker(), zap.NewNop())
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	engine := NewEngine(EngineConfig{
		Tokens:         tokens,
		MaxBodySize:    1 << 20,
		RateLimiter:    limiter,
		RequestTimeout: 5 * time.Second,
		Swagger:        docs,
		Health:         okPinger{},
		Jobs:           handler.NewJobHandler(sched, staticCatalog{}),
	})
	return &engineFixture{engine: engine, tokens: tokens, executor: exec}
}

func (f *engineFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *engineFixture) token(t *testing.T, scopes ...string) string {
	t.Helper()
	token, err := f.tokens.Issue("operator", time.Hour, scopes...)
	require.NoError(t, err)
	return token
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestNewEngine_HealthIsPublic(t *testing.T) {
	f := newEngineFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestNewEngine_SwaggerHiddenByDefault(t *testing.T) {
	f := newEngineFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/swagger/index.html", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_NOT_FOUND", errorCodeOf(t, rec))
}

func TestNewEngine_SwaggerBehindToken(t *testing.T) {
	f := newEngineFixtureWithDocs(t, nil, middleware.SwaggerConfig{Enabled: true, RequireAuth: true})

	rec := f.do(t, http.MethodGet, "/swagger/doc.json", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/swagger/doc.json", "", f.token(t, auth.ScopeJobsRead))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths, "/jobs/migrate")
	assert.Contains(t, doc.Paths["/jobs/clear/{kind}"], "post")
	assert.Contains(t, doc.Paths["/logs"], "get")
}

func TestNewEngine_RequiresToken(t *testing.T) {
	f := newEngineFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/jobs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCodeOf(t, rec))
}

func TestNewEngine_ReadOnlyTokenCannotSubmit(t *testing.T) {
	f := newEngineFixture(t, nil)
	token := f.token(t, auth.ScopeJobsRead)

	rec := f.do(t, http.MethodGet, "/api/v1/plan", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/jobs/cache", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCodeOf(t, rec))
}

func TestNewEngine_SubmitAndPoll(t *testing.T) {
	f := newEngineFixture(t, nil)
	token := f.token(t)

	rec := f.do(t, http.MethodPost, "/api/v1/jobs/migrate", `{"kind":"customer"}`, token)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Data.ID)

	testutil.RequireEventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/v1/jobs/"+submitted.Data.ID, "", token)
		var got struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &got) != nil {
			return false
		}
		return got.Data.Status == string(scheduler.JobStatusSuccess)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.executor.count())

	rec = f.do(t, http.MethodPost, "/api/v1/jobs/clear/gadget", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_UNKNOWN_KIND", errorCodeOf(t, rec))
}

func TestNewEngine_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)
	f := newEngineFixture(t, limiter)
	token := f.token(t)

	rec := f.do(t, http.MethodGet, "/api/v1/jobs", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/jobs", "", token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
