package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/weclapp-migration/internal/interfaces/http/dto"
)

type migrateBody struct {
	Kind  string            `json:"kind"`
	Where map[string]string `json:"where"`
}

func bodyLimitRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(BodyLimit(limit))
	router.POST("/jobs/migrate", func(c *gin.Context) {
		var req migrateBody
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.String(http.StatusAccepted, req.Kind)
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	small := `{"kind":"customer"}`
	large := `{"kind":"customer","where":{"customerNumber":"` + strings.Repeat("9", 200) + `"}}`

	t.Run("within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/migrate", strings.NewReader(small))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		bodyLimitRouter(64).ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "customer", w.Body.String())
	})

	t.Run("declared length over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/migrate", strings.NewReader(large))
		req.Header.Set("X-Request-ID", "req-413")
		w := httptest.NewRecorder()
		bodyLimitRouter(64).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, resp.Code)
		assert.Equal(t, "req-413", resp.RequestID)
		assert.Contains(t, resp.Message, "64 bytes")
	})

	t.Run("streamed body over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/migrate", strings.NewReader(large))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = -1
		w := httptest.NewRecorder()
		bodyLimitRouter(64).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, decodeError(t, w).Code)
	})

	t.Run("bodyless request", func(t *testing.T) {
		router := gin.New()
		router.Use(BodyLimit(1))
		router.GET("/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	return *resp.Error
}
