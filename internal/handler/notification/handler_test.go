package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/inbox-api/internal/middleware"
	"github.com/jwalitptl/inbox-api/internal/repository/sqlstore"
	notificationService "github.com/jwalitptl/inbox-api/internal/service/notification"
	"github.com/jwalitptl/inbox-api/internal/service/session"
	settingsService "github.com/jwalitptl/inbox-api/internal/service/settings"
	statsService "github.com/jwalitptl/inbox-api/internal/service/stats"
	subscriptionService "github.com/jwalitptl/inbox-api/internal/service/subscription"
	"github.com/jwalitptl/inbox-api/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Cause   string `json:"cause"`
	} `json:"error"`
}

type view struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title"`
	Read         bool                   `json:"read"`
	ReadAt       *string                `json:"readAt"`
	CreatedAt    string                 `json:"createdAt"`
	RelativeTime string                 `json:"relativeTime"`
	Icon         *string                `json:"icon"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type pageData struct {
	Items      []view `json:"items"`
	Pagination struct {
		Page       int   `json:"page"`
		PageSize   int   `json:"pageSize"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
}

type testServer struct {
	engine *gin.Engine
	clock  *testutil.Clock
}

// newTestServer maps the bearer token "user-<n>" to user n.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.RegisterValidators()

	db := testutil.NewDB(t)
	base := sqlstore.NewBaseRepository(db)
	clock := testutil.NewClock(time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC))
	notificationRepo := sqlstore.NewNotificationRepository(base)

	h := NewHandler(
		notificationService.NewService(notificationRepo, notificationService.WithClock(clock.Now)),
		settingsService.NewService(sqlstore.NewSettingsRepository(base), clock.Now),
		subscriptionService.NewService(sqlstore.NewSubscriptionRepository(base), clock.Now),
		statsService.NewService(notificationRepo, clock.Now),
	)

	resolver := session.ResolverFunc(func(_ context.Context, token string) (int64, error) {
		switch token {
		case "user-1":
			return 1, nil
		case "user-2":
			return 2, nil
		}
		return 0, session.ErrExpired
	})

	engine := gin.New()
	engine.Use(middleware.ErrorHandler())
	api := engine.Group("/api/v1")
	api.Use(middleware.NewAuthMiddleware(resolver, nil).Authenticate())
	h.RegisterRoutes(api)

	return &testServer{engine: engine, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		var raw []byte
		switch b := body.(type) {
		case string:
			raw = []byte(b)
		default:
			var err error
			raw, err = json.Marshal(b)
			require.NoError(t, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1/notifications"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) create(t *testing.T, token string, body map[string]interface{}) view {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v view
	require.NoError(t, json.Unmarshal(env.Data, &v))
	s.clock.Advance(time.Minute)
	return v
}

func TestHandler_Auth(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Token user-1")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	w, env = s.do(t, http.MethodGet, "", "stale", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "session expired")
}

func TestHandler_CreateAndGet(t *testing.T) {
	s := newTestServer(t)

	v := s.create(t, "user-1", map[string]interface{}{
		"type":     "document_shared",
		"title":    "Shared with you",
		"message":  "Alice shared a document",
		"icon":     "/icons/doc.png",
		"metadata": json.RawMessage(`{"z":1,"a":2}`),
	})
	assert.True(t, strings.HasPrefix(v.ID, "notif_"))
	assert.Equal(t, "2024-09-01T10:00:00Z", v.CreatedAt)
	assert.Equal(t, "just now", v.RelativeTime)
	assert.False(t, v.Read)
	assert.Nil(t, v.ReadAt)
	require.NotNil(t, v.Icon)

	s.clock.Advance(2 * time.Hour)
	w, env := s.do(t, http.MethodGet, "/"+v.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got view
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, "2 hours ago", got.RelativeTime)
	assert.EqualValues(t, 1, got.Metadata["z"])
	assert.Contains(t, string(env.Data), `"metadata":{"z":1,"a":2}`)

	w, _ = s.do(t, http.MethodGet, "/"+v.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/notif_abc", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "", "user-1", map[string]interface{}{"type": "x", "title": "y"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "message")

	w, _ = s.do(t, http.MethodPost, "", "user-1", map[string]interface{}{"type": "x", "title": "  ", "message": "z"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "", "user-1", `{"type":"x","title":"y","message":"z","metadata":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListAndPaginate(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 5; i++ {
		typ := "system_update"
		if i%2 == 0 {
			typ = "review_reminder"
		}
		s.create(t, "user-1", map[string]interface{}{"type": typ, "title": "t", "message": "m"})
	}
	s.create(t, "user-2", map[string]interface{}{"type": "system_update", "title": "t", "message": "m"})

	w, env := s.do(t, http.MethodGet, "?page=2&pageSize=2", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page pageData
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 5, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, 2, page.Pagination.Page)

	w, env = s.do(t, http.MethodGet, "?type=review_reminder&sortBy=bogus&sortOrder=up", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 3, page.Pagination.Total)
	for _, item := range page.Items {
		assert.Equal(t, "review_reminder", item.Type)
	}

	w, env = s.do(t, http.MethodGet, "/history?type=all&startDate=2024-09-01&endDate=2024-09-01", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 5, page.Pagination.Total)

	w, _ = s.do(t, http.MethodGet, "/history?startDate=yesterday", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListLenientQuery(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.create(t, "user-1", map[string]interface{}{"type": "system_update", "title": "t", "message": "m"})
	}

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantSize  int
		wantItems int
	}{
		{"unparsable values", "?unreadOnly=abc&page=x&pageSize=ten", 1, 20, 3},
		{"negative size", "?pageSize=-4", 1, 20, 3},
		{"page beyond int range", "?page=99999999999999999999", 1, 20, 3},
		{"page far past the end", "?page=922337203685477581", 922337203685477581, 20, 0},
		{"history page far past the end", "/history?page=922337203685477581&pageSize=2", 922337203685477581, 2, 0},
		{"history unparsable paging", "/history?page=&pageSize=zz", 1, 50, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodGet, tt.query, "user-1", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var page pageData
			require.NoError(t, json.Unmarshal(env.Data, &page))
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantPage, page.Pagination.Page)
			assert.Equal(t, tt.wantSize, page.Pagination.PageSize)
			assert.EqualValues(t, 3, page.Pagination.Total)
		})
	}
}

func TestHandler_ReadFlow(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "user-1", map[string]interface{}{"type": "a", "title": "t", "message": "m"})
	b := s.create(t, "user-1", map[string]interface{}{"type": "b", "title": "t", "message": "m"})
	c := s.create(t, "user-1", map[string]interface{}{"type": "c", "title": "t", "message": "m"})

	w, env := s.do(t, http.MethodPut, "/"+a.ID+"/read", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notification marked as read", env.Message)

	w, env = s.do(t, http.MethodPut, "/mark-as-read", "user-1", map[string]string{"notificationId": a.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notification already read", env.Message)
	assert.Contains(t, string(env.Data), `"alreadyRead":true`)

	w, env = s.do(t, http.MethodGet, "/unread-count", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unreadCount":2}`, string(env.Data))

	w, env = s.do(t, http.MethodPut, "/batch-read", "user-1", map[string]interface{}{
		"notificationIds": []string{b.ID, "notif_zz"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"successCount":1,"failedCount":1,"failures":[{"id":"notif_zz","reason":"invalid notification id format"}]}`, string(env.Data))

	w, _ = s.do(t, http.MethodPut, "/batch-read", "user-1", map[string]interface{}{"notificationIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPut, "/mark-all-as-read", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updatedCount":1}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "/"+c.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got view
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
}

func TestHandler_DeleteFlow(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "user-1", map[string]interface{}{"type": "a", "title": "t", "message": "m"})
	s.create(t, "user-1", map[string]interface{}{"type": "b", "title": "t", "message": "m"})

	w, _ := s.do(t, http.MethodDelete, "/"+a.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := s.do(t, http.MethodDelete, "/"+strings.TrimPrefix(a.ID, "notif_"), "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notificationId":"`+a.ID+`"}`, string(env.Data))

	w, env = s.do(t, http.MethodDelete, "/clear-all", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deletedCount":1}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page pageData
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Pagination.TotalPages)
}

func TestHandler_Settings(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/settings", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"email": true, "push": true, "desktop": true, "frequency": "immediate",
		"quietHours": {"enabled": true, "start": "22:00", "end": "08:00"},
		"types": {"document_shared": true, "review_reminder": true, "achievement_unlocked": true, "system_update": true, "promotional": false},
		"updatedAt": null
	}`, string(env.Data))

	w, env = s.do(t, http.MethodPut, "/settings", "user-1", map[string]interface{}{
		"quietHours": map[string]interface{}{"end": "07:30"},
		"frequency":  "daily",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settings struct {
		Frequency  string `json:"frequency"`
		QuietHours struct {
			Enabled bool   `json:"enabled"`
			Start   string `json:"start"`
			End     string `json:"end"`
		} `json:"quietHours"`
		UpdatedAt *string `json:"updatedAt"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Equal(t, "daily", settings.Frequency)
	assert.True(t, settings.QuietHours.Enabled)
	assert.Equal(t, "22:00", settings.QuietHours.Start)
	assert.Equal(t, "07:30", settings.QuietHours.End)
	require.NotNil(t, settings.UpdatedAt)
	assert.Equal(t, "2024-09-01T10:00:00Z", *settings.UpdatedAt)

	w, env = s.do(t, http.MethodPut, "/settings", "user-1", map[string]interface{}{
		"quietHours": map[string]interface{}{"start": "25:00"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "quietHours.start")

	w, _ = s.do(t, http.MethodPut, "/settings", "user-1", map[string]interface{}{"frequency": "yearly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Subscriptions(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/subscribe", "user-1", map[string]interface{}{"channel": "push"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/subscribe", "user-1", map[string]interface{}{"channel": "pigeon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodPost, "/subscribe", "user-1", map[string]interface{}{"channel": "push", "deviceToken": "tok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"channel":"push","active":true,"timestamp":"2024-09-01T10:00:00Z"}`, string(env.Data))

	w, env = s.do(t, http.MethodDelete, "/unsubscribe?channel=desktop", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.Message, "already unsubscribed")

	w, env = s.do(t, http.MethodDelete, "/unsubscribe", "user-1", map[string]string{"channel": "push"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unsubscribed from push notifications", env.Message)

	w, env = s.do(t, http.MethodGet, "/settings", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"push":false`)

	w, env = s.do(t, http.MethodGet, "/subscriptions", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subs []struct {
		Channel string `json:"channel"`
		Active  bool   `json:"active"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "push", subs[0].Channel)
	assert.False(t, subs[0].Active)
}

func TestHandler_StatsAndTest(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/test", "user-1", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v view
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "test", v.Type)
	assert.Equal(t, true, v.Metadata["test"])

	w, env = s.do(t, http.MethodPost, "/test", "user-1", map[string]string{"title": "Ping"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "Ping", v.Title)

	_, _ = s.do(t, http.MethodPut, "/"+v.ID+"/read", "user-1", nil)

	w, env = s.do(t, http.MethodGet, "/stats", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total             int64            `json:"totalNotifications"`
		Unread            int64            `json:"unreadCount"`
		ReadRate          float64          `json:"readRate"`
		FormattedReadRate string           `json:"formattedReadRate"`
		ByType            map[string]int64 `json:"byType"`
		ByDay             map[string]int64 `json:"byDay"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Unread)
	assert.Equal(t, 50.0, stats.ReadRate)
	assert.Equal(t, "50.0%", stats.FormattedReadRate)
	assert.Equal(t, map[string]int64{"test": 2}, stats.ByType)
	assert.Equal(t, map[string]int64{"2024-09-01": 2}, stats.ByDay)
}
