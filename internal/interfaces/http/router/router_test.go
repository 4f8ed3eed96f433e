package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/weclapp-migration/internal/infrastructure/auth"
	"github.com/erp/weclapp-migration/internal/interfaces/http/handler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func text(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

// grant stores claims as the JWT middleware would
func grant(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTClaimsKey, &auth.Claims{Scopes: scopes})
		c.Next()
	}
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithMiddleware(func(c *gin.Context) {
		c.Header("X-API", "yes")
		c.Next()
	}))
	r.Register(NewRouteGroup("/test").GET("/ping", "", text("pong"))).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-API"))
}

func TestRouteGroup_Scopes(t *testing.T) {
	build := func(scopes ...string) *gin.Engine {
		engine := gin.New()
		g := NewRouteGroup("").Use(grant(scopes...))
		g.GET("/plan", auth.ScopeJobsRead, text("plan"))
		g.Group("/jobs").
			GET("", auth.ScopeJobsRead, text("list")).
			POST("/cache", auth.ScopeJobsWrite, text("queued"))
		g.RegisterRoutes(engine.Group("/api/v1"))
		return engine
	}

	reader := build(auth.ScopeJobsRead)
	assert.Equal(t, "plan", serve(reader, http.MethodGet, "/api/v1/plan").Body.String())
	assert.Equal(t, "list", serve(reader, http.MethodGet, "/api/v1/jobs").Body.String())
	assert.Equal(t, http.StatusForbidden, serve(reader, http.MethodPost, "/api/v1/jobs/cache").Code)
	assert.Equal(t, http.StatusNotFound, serve(reader, http.MethodDelete, "/api/v1/jobs").Code)

	writer := build(auth.ScopeJobsRead, auth.ScopeJobsWrite)
	assert.Equal(t, "queued", serve(writer, http.MethodPost, "/api/v1/jobs/cache").Body.String())
}

func TestJobRoutes_Table(t *testing.T) {
	routes := JobRoutes(&handler.JobHandler{}).Routes()

	type key struct{ method, path, scope string }
	got := make([]key, 0, len(routes))
	for _, r := range routes {
		require.NotNil(t, r.Handler)
		got = append(got, key{r.Method, r.Path, r.Scope})
	}
	assert.ElementsMatch(t, []key{
		{http.MethodGet, "/logs", auth.ScopeJobsRead},
		{http.MethodGet, "/plan", auth.ScopeJobsRead},
		{http.MethodGet, "/jobs", auth.ScopeJobsRead},
		{http.MethodGet, "/jobs/:id", auth.ScopeJobsRead},
		{http.MethodPost, "/jobs/cache", auth.ScopeJobsWrite},
		{http.MethodPost, "/jobs/migrate", auth.ScopeJobsWrite},
		{http.MethodPost, "/jobs/clear/:kind", auth.ScopeJobsWrite},
	}, got)
}
