package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/service/session"
	"github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), ErrorHandler())
	engine.Use(mw...)
	engine.GET("/ping", func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user": id})
	})
	return engine
}

func get(engine *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	m := metrics.NewMetrics("mw", "test", prometheus.NewRegistry())
	resolver := session.ResolverFunc(func(_ context.Context, token string) (int64, error) {
		switch token {
		case "good":
			return 42, nil
		case "broken":
			return 0, stderrors.New("connection refused")
		}
		return 0, session.ErrExpired
	})
	engine := newEngine(NewAuthMiddleware(resolver, m).Authenticate())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "please log in first"},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "please log in first"},
		{"empty token", "Bearer  ", http.StatusUnauthorized, "please log in first"},
		{"expired", "Bearer stale", http.StatusUnauthorized, "session expired"},
		{"resolver failure", "Bearer broken", http.StatusInternalServerError, "internal server error"},
		{"ok", "Bearer good", http.StatusOK, `"user":42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(engine, tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, strings.ToLower(w.Body.String()), tt.body)
		})
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionResolutions.WithLabelValues("unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionResolutions.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionResolutions.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionResolutions.WithLabelValues("ok")))
}

func TestErrorHandler(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandler())
	engine.GET("/missing", func(c *gin.Context) {
		_ = c.Error(errors.NotFound("notification", nil))
	})
	engine.GET("/plain", func(c *gin.Context) {
		_ = c.Error(stderrors.New("boom"))
	})
	engine.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{})
		_ = c.Error(stderrors.New("late"))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery())
	engine.GET("/panic", func(c *gin.Context) {
		panic("nil map")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID(t *testing.T) {
	engine := newEngine()

	w := get(engine, "")
	assert.Len(t, w.Header().Get(HeaderXRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	engine := newEngine(rl.RateLimit())

	first := httptest.NewRequest(http.MethodGet, "/ping", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, first)
	assert.Equal(t, http.StatusOK, w.Code)

	again := httptest.NewRequest(http.MethodGet, "/ping", nil)
	again.RemoteAddr = "10.0.0.1:1235"
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, again)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := httptest.NewRequest(http.MethodGet, "/ping", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	engine := newEngine(CORS(cfg))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type bindTarget struct {
	Frequency *string                `json:"frequency" binding:"omitempty,oneof=immediate hourly daily weekly"`
	Quiet     *model.QuietHoursPatch `json:"quietHours"`
	Name      string                 `json:"name" binding:"required"`
	Channel   string                 `json:"channel" binding:"omitempty,channel"`
	Metadata  model.Metadata         `json:"metadata"`
}

func bindBody(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	var p bindTarget
	return binding.JSON.Bind(req, &p)
}

func TestBindingError(t *testing.T) {
	err := BindingError(bindBody(t, `{"quietHours":{"start":"7pm"}}`))
	require.NotNil(t, err)
	assert.Equal(t, errors.ErrBadRequest, err.Code)
	assert.Contains(t, err.Message, "quietHours.start must be a time in HH:MM format")
	assert.Contains(t, err.Message, "name is required")

	err = BindingError(bindBody(t, `{"name":"x","frequency":"yearly"}`))
	assert.Contains(t, err.Message, "frequency must be one of: immediate hourly daily weekly")

	err = BindingError(bindBody(t, `{"name":"x","channel":"pigeon"}`))
	assert.Equal(t, "channel must be one of: push, email, desktop", err.Message)
	assert.NoError(t, bindBody(t, `{"name":"x","channel":" Push "}`))

	err = BindingError(bindBody(t, `{"name":7}`))
	assert.Contains(t, err.Message, "name has the wrong type")

	err = BindingError(bindBody(t, `{"name":"x","metadata":"text"}`))
	assert.Equal(t, model.ErrMetadataNotObject.Error(), err.Message)

	err = BindingError(bindBody(t, `{"name":`))
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())
}
