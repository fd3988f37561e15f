package notification

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/inbox-api/internal/middleware"
	"github.com/jwalitptl/inbox-api/internal/model"
	notificationService "github.com/jwalitptl/inbox-api/internal/service/notification"
	"github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/httputil"
	"github.com/jwalitptl/inbox-api/pkg/notifid"
)

type SettingsServicer interface {
	Get(ctx context.Context, userID int64) (*model.Settings, error)
	Update(ctx context.Context, userID int64, patch *model.SettingsPatch) (*model.Settings, error)
}

type SubscriptionServicer interface {
	Subscribe(ctx context.Context, userID int64, channel string, deviceToken *string) (*model.SubscriptionResult, error)
	Unsubscribe(ctx context.Context, userID int64, channel string) (*model.SubscriptionResult, error)
	List(ctx context.Context, userID int64) ([]*model.Subscription, error)
}

type StatsServicer interface {
	Compute(ctx context.Context, userID int64) (*model.NotificationStats, error)
}

type Handler struct {
	service       notificationService.NotificationServicer
	settings      SettingsServicer
	subscriptions SubscriptionServicer
	stats         StatsServicer
}

func NewHandler(
	service notificationService.NotificationServicer,
	settings SettingsServicer,
	subscriptions SubscriptionServicer,
	stats StatsServicer,
) *Handler {
	return &Handler{
		service:       service,
		settings:      settings,
		subscriptions: subscriptions,
		stats:         stats,
	}
}

// RegisterRoutes mounts the inbox under /notifications. r is expected to be
// behind the auth middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.Create)
		notifications.GET("", h.List)
		notifications.GET("/history", h.History)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.GET("/stats", h.Stats)
		notifications.GET("/settings", h.GetSettings)
		notifications.PUT("/settings", h.UpdateSettings)
		notifications.GET("/subscriptions", h.ListSubscriptions)
		notifications.POST("/subscribe", h.Subscribe)
		notifications.DELETE("/unsubscribe", h.Unsubscribe)
		notifications.POST("/test", h.SendTest)
		notifications.PUT("/mark-as-read", h.MarkReadByBody)
		notifications.PUT("/mark-all-as-read", h.MarkAllRead)
		notifications.PUT("/batch-read", h.MarkManyRead)
		notifications.DELETE("/clear-all", h.DeleteAll)
		notifications.GET("/:id", h.Get)
		notifications.PUT("/:id/read", h.MarkRead)
		notifications.DELETE("/:id", h.Delete)
	}
}

type createNotificationRequest struct {
	Type       string         `json:"type" binding:"required"`
	Title      string         `json:"title" binding:"required"`
	Message    string         `json:"message" binding:"required"`
	Icon       *string        `json:"icon"`
	Image      *string        `json:"image"`
	ActionURL  *string        `json:"actionUrl"`
	TargetType *string        `json:"targetType"`
	TargetID   *string        `json:"targetId"`
	Metadata   model.Metadata `json:"metadata"`
}

func (r *createNotificationRequest) toModel() *model.NewNotification {
	return &model.NewNotification{
		Type:       r.Type,
		Title:      r.Title,
		Message:    r.Message,
		IconURL:    r.Icon,
		ImageURL:   r.Image,
		ActionURL:  r.ActionURL,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Metadata:   r.Metadata,
	}
}

// testNotificationRequest is createNotificationRequest with every field optional.
type testNotificationRequest struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Icon       *string        `json:"icon"`
	Image      *string        `json:"image"`
	ActionURL  *string        `json:"actionUrl"`
	TargetType *string        `json:"targetType"`
	TargetID   *string        `json:"targetId"`
	Metadata   model.Metadata `json:"metadata"`
}

type markReadRequest struct {
	NotificationID string `json:"notificationId" binding:"required"`
}

type batchReadRequest struct {
	NotificationIDs []string `json:"notificationIds" binding:"required"`
}

type subscribeRequest struct {
	Channel     string  `json:"channel" binding:"required,channel"`
	DeviceToken *string `json:"deviceToken"`
}

type unsubscribeRequest struct {
	Channel string `json:"channel" form:"channel"`
}

func (h *Handler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	n, err := h.service.Create(c.Request.Context(), userID, req.toModel())
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithCreated(c, "notification created", n.View(h.service.Now()))
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := h.service.List(c.Request.Context(), userID, model.NotificationFilter{
		Type:       c.Query("type"),
		UnreadOnly: queryBool(c, "unreadOnly"),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
		Pagination: queryPagination(c),
	})
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithPagination(c, model.Views(page.Items, h.service.Now()), page.Page, page.PageSize, page.Total)
}

func (h *Handler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	filter := model.HistoryFilter{Type: c.Query("type"), Pagination: queryPagination(c)}
	var err error
	if filter.StartDate, err = parseDate("startDate", c.Query("startDate")); err != nil {
		fail(c, err)
		return
	}
	if filter.EndDate, err = parseDate("endDate", c.Query("endDate")); err != nil {
		fail(c, err)
		return
	}

	page, err := h.service.History(c.Request.Context(), userID, filter)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithPagination(c, model.Views(page.Items, h.service.Now()), page.Page, page.PageSize, page.Total)
}

func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "", n.View(h.service.Now()))
}

func (h *Handler) MarkRead(c *gin.Context) {
	h.markRead(c, c.Param("id"))
}

func (h *Handler) MarkReadByBody(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}
	h.markRead(c, req.NotificationID)
}

func (h *Handler) markRead(c *gin.Context, id string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.service.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		fail(c, err)
		return
	}

	message := "notification marked as read"
	if result.AlreadyRead {
		message = "notification already read"
	}
	httputil.RespondWithSuccess(c, message, result)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "all notifications marked as read", gin.H{"updatedCount": count})
}

func (h *Handler) MarkManyRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req batchReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	result, err := h.service.MarkManyRead(c.Request.Context(), userID, req.NotificationIDs)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "batch mark as read completed", result)
}

func (h *Handler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		fail(c, err)
		return
	}

	key, _ := notifid.Decode(id)
	httputil.RespondWithSuccess(c, "notification deleted", gin.H{"notificationId": notifid.Encode(key)})
}

func (h *Handler) DeleteAll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.service.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "all notifications cleared", gin.H{"deletedCount": count})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "", gin.H{"unreadCount": count})
}

func (h *Handler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := h.stats.Compute(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "", stats)
}

func (h *Handler) GetSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	settings, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "", settings.View())
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var patch model.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), userID, &patch)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "notification settings updated", settings.View())
}

func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	result, err := h.subscriptions.Subscribe(c.Request.Context(), userID, req.Channel, req.DeviceToken)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result.Message, result)
}

// Unsubscribe takes the channel from the query string or a JSON body.
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req unsubscribeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}
	if req.Channel == "" && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, middleware.BindingError(err))
			return
		}
	}

	result, err := h.subscriptions.Unsubscribe(c.Request.Context(), userID, req.Channel)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result.Message, result)
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	subs, err := h.subscriptions.List(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "", subs)
}

func (h *Handler) SendTest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req testNotificationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, middleware.BindingError(err))
			return
		}
	}

	n, err := h.service.SendTest(c.Request.Context(), userID, &model.NewNotification{
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		IconURL:    req.Icon,
		ImageURL:   req.Image,
		ActionURL:  req.ActionURL,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}

	httputil.RespondWithCreated(c, "test notification sent", n.View(h.service.Now()))
}

func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return 0, false
	}
	return userID, true
}

// fail hands err to the error middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// queryPagination reads page and pageSize. Values that do not parse are left
// zero so the service substitutes its defaults.
func queryPagination(c *gin.Context) model.Pagination {
	return model.Pagination{
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return n
}

// queryBool treats anything strconv.ParseBool rejects as false.
func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return b
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.Validation(field + " must be a date in YYYY-MM-DD format")
}
