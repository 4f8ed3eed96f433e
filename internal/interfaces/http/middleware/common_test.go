package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// serveThrough serves GET /jobs behind mw and hands the request to inspect
func serveThrough(mw gin.HandlerFunc, inspect func(*http.Request)) http.Header {
	router := gin.New()
	router.Use(mw)
	router.GET("/jobs", func(c *gin.Context) {
		if inspect != nil {
			inspect(c.Request)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	return w.Header()
}

func TestSecure(t *testing.T) {
	tests := []struct {
		name string
		mw   gin.HandlerFunc
		want map[string]string
	}{
		{
			name: "defaults",
			mw:   Secure(),
			want: map[string]string{
				"X-Frame-Options":           "DENY",
				"X-Content-Type-Options":    "nosniff",
				"Referrer-Policy":           "no-referrer",
				"Cache-Control":             "no-store",
				"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
				"Strict-Transport-Security": "",
			},
		},
		{
			name: "hsts without csp",
			mw:   SecureWithConfig(SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}),
			want: map[string]string{
				"Strict-Transport-Security": "max-age=600; includeSubDomains",
				"Content-Security-Policy":   "",
				"Cache-Control":             "no-store",
			},
		},
		{
			name: "hsts for host only",
			mw:   SecureWithConfig(SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 60}),
			want: map[string]string{"Strict-Transport-Security": "max-age=60"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := serveThrough(tt.mw, nil)
			for key, value := range tt.want {
				assert.Equal(t, value, header.Get(key), key)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	header := serveThrough(Timeout(30*time.Second), func(r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	assert.Equal(t, "30s", header.Get("X-Request-Timeout"))
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, 5*time.Second)

	header = serveThrough(Timeout(0), func(r *http.Request) {
		_, ok = r.Context().Deadline()
	})
	assert.False(t, ok)
	assert.Empty(t, header.Get("X-Request-Timeout"))
}
