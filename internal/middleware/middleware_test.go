package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fail"})
	})
	return r
}

func doRequest(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	r := newRouter(AdminAuth("admin-secret"))

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"valid key", "admin-secret", http.StatusOK},
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers[AdminKeyHeader] = tt.key
			}
			w := doRequest(r, "/test", headers)
			assert.Equal(t, tt.status, w.Code)

			if tt.status == http.StatusUnauthorized {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestAdminAuth_Disabled(t *testing.T) {
	r := newRouter(AdminAuth(""))
	w := doRequest(r, "/test", map[string]string{AdminKeyHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(RequestLogger(zerolog.New(&buf)))

	w := doRequest(r, "/test?user_id=secret-user", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.NotContains(t, buf.String(), "secret-user")

	buf.Reset()
	w = doRequest(r, "/fail", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "req-123")
}

func TestNewRateLimiter(t *testing.T) {
	t.Run("invalid configuration", func(t *testing.T) {
		_, err := NewRateLimiter(0, time.Minute, nil)
		assert.Error(t, err)
		_, err = NewRateLimiter(10, 0, nil)
		assert.Error(t, err)
	})

	t.Run("memory store rejects over limit", func(t *testing.T) {
		mw, err := NewRateLimiter(2, time.Minute, nil)
		require.NoError(t, err)
		r := newRouter(mw)

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, doRequest(r, "/test", nil).Code)
		}

		w := doRequest(r, "/test", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "RATE_LIMITED", body["code"])
	})

	t.Run("redis store", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		mw, err := NewRateLimiter(1, time.Minute, client)
		require.NoError(t, err)
		r := newRouter(mw)

		assert.Equal(t, http.StatusOK, doRequest(r, "/test", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "/test", nil).Code)
	})
}
