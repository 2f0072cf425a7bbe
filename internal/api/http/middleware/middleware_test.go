package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/pkg/translator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		rid := rr.Header().Get(HeaderRequestID)
		_, err := uuid.Parse(rid)
		assert.NoError(t, err)
		assert.Equal(t, rid, rr.Body.String())
	})

	t.Run("replaces malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "bad id\twith spaces")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.NotEqual(t, "bad id\twith spaces", rr.Header().Get(HeaderRequestID))
		assert.Len(t, rr.Header().Get(HeaderRequestID), 36)
	})

	t.Run("echoes caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", rr.Header().Get(HeaderRequestID))
		assert.Equal(t, "abc-123", rr.Body.String())
	})
}

func TestGinZapMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(RequestIDMiddleware(), GinZapMiddleware(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, "/boom", entries[1].ContextMap()["path"])
}

func TestLanguageMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(LanguageMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(translator.LangKey)) })

	cases := []struct {
		header string
		want   string
	}{
		{"", translator.LanguageEn},
		{"fr-FR", translator.LanguageFr},
		{"fr-CA,fr;q=0.9,en;q=0.8", translator.LanguageFr},
		{"de-DE,de;q=0.9,fr;q=0.5", translator.LanguageFr},
		{"en-GB,fr;q=0.4", translator.LanguageEn},
		{"ja", translator.LanguageEn},
		{";;;garbage", translator.LanguageEn},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Accept-Language", tc.header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, tc.want, rr.Body.String(), tc.header)
		assert.Equal(t, tc.want, rr.Header().Get("Content-Language"), tc.header)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/login", NewRateLimiter(time.Hour, 1).Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}
