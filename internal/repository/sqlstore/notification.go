package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
)

const notificationColumns = `notification_id, user_id, type, title, message, icon_url, image_url,
	action_url, target_type, target_id, metadata, is_read, read_at, created_at`

// sortColumns is the allow-list of client sort keys.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"createdAt":  "created_at",
	"title":      "title",
	"type":       "type",
	"read":       "is_read",
	"is_read":    "is_read",
}

// orderClause never fails: unknown keys sort by created_at, unknown directions
// sort descending.
func orderClause(sortBy, sortOrder string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, notification_id %s", col, dir, dir)
}

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, userID int64, in *model.NewNotification, createdAt time.Time) (*model.Notification, error) {
	n := &model.Notification{
		UserID:     userID,
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		IconURL:    in.IconURL,
		ImageURL:   in.ImageURL,
		ActionURL:  in.ActionURL,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Metadata:   model.DecodeMetadata(in.Metadata),
		CreatedAt:  dbTime(createdAt),
	}

	query := r.Rebind(`
		INSERT INTO notifications (
			user_id, type, title, message, icon_url, image_url, action_url,
			target_type, target_id, metadata, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		RETURNING notification_id
	`)

	err := r.GetDB().QueryRowxContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.IconURL,
		n.ImageURL,
		n.ActionURL,
		n.TargetType,
		n.TargetID,
		n.Metadata,
		n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return n, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, userID, id int64) (*model.Notification, error) {
	query := r.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE notification_id = ? AND user_id = ?`)

	var n model.Notification
	if err := r.GetDB().GetContext(ctx, &n, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	normalize(&n)
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, userID int64, filter model.NotificationFilter) ([]*model.Notification, int64, error) {
	baseQuery := ` FROM notifications WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.Type != "" {
		baseQuery += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.UnreadOnly {
		baseQuery += " AND is_read = FALSE"
	}

	return r.page(ctx, baseQuery, args, orderClause(filter.SortBy, filter.SortOrder), filter.Pagination)
}

func (r *notificationRepository) ListHistory(ctx context.Context, userID int64, filter model.HistoryFilter) ([]*model.Notification, int64, error) {
	baseQuery := ` FROM notifications WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.StartDate != nil {
		baseQuery += " AND created_at >= ?"
		args = append(args, startOfDay(*filter.StartDate))
	}
	if filter.EndDate != nil {
		baseQuery += " AND created_at < ?"
		args = append(args, startOfDay(*filter.EndDate).AddDate(0, 0, 1))
	}
	if filter.Type != "" && filter.Type != "all" {
		baseQuery += " AND type = ?"
		args = append(args, filter.Type)
	}

	return r.page(ctx, baseQuery, args, orderClause("created_at", "desc"), filter.Pagination)
}

func (r *notificationRepository) page(ctx context.Context, baseQuery string, args []interface{}, order string, p model.Pagination) ([]*model.Notification, int64, error) {
	var total int64
	if err := r.GetDB().GetContext(ctx, &total, r.Rebind("SELECT COUNT(*)"+baseQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	query := r.Rebind("SELECT " + notificationColumns + baseQuery + order + " LIMIT ? OFFSET ?")
	queryArgs := append(append([]interface{}{}, args...), p.PageSize, p.Offset())

	items := []*model.Notification{}
	if err := r.GetDB().SelectContext(ctx, &items, query, queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	for _, n := range items {
		normalize(n)
	}

	return items, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id int64, at time.Time) (bool, error) {
	query := r.Rebind(`
		UPDATE notifications SET is_read = TRUE, read_at = ?
		WHERE notification_id = ? AND user_id = ? AND is_read = FALSE
	`)

	result, err := r.GetDB().ExecContext(ctx, query, dbTime(at), id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *notificationRepository) Exists(ctx context.Context, userID, id int64) (bool, error) {
	query := r.Rebind(`SELECT COUNT(*) FROM notifications WHERE notification_id = ? AND user_id = ?`)

	var count int64
	if err := r.GetDB().GetContext(ctx, &count, query, id, userID); err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return count > 0, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := r.Rebind(`
		UPDATE notifications SET is_read = TRUE, read_at = ?
		WHERE user_id = ? AND is_read = FALSE
	`)

	result, err := r.GetDB().ExecContext(ctx, query, dbTime(at), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) MarkManyRead(ctx context.Context, userID int64, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications SET is_read = TRUE, read_at = ?
		WHERE user_id = ? AND is_read = FALSE AND notification_id IN (?)
	`, dbTime(at), userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build batch update: %w", err)
	}

	result, err := r.GetDB().ExecContext(ctx, r.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id int64) error {
	query := r.Rebind(`DELETE FROM notifications WHERE notification_id = ? AND user_id = ?`)

	result, err := r.GetDB().ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	query := r.Rebind(`DELETE FROM notifications WHERE user_id = ?`)

	result, err := r.GetDB().ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	query := r.Rebind(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = FALSE`)

	var count int64
	if err := r.GetDB().GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) Stats(ctx context.Context, userID int64, since time.Time) (*model.StatsSnapshot, error) {
	db := r.GetDB()
	stats := &model.StatsSnapshot{}

	var totals struct {
		Total  int64 `db:"total"`
		Unread int64 `db:"unread"`
	}
	totalsQuery := r.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) AS unread
		FROM notifications WHERE user_id = ?
	`)
	if err := db.GetContext(ctx, &totals, totalsQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to get notification totals: %w", err)
	}
	stats.Total = totals.Total
	stats.Unread = totals.Unread

	typeQuery := r.Rebind(`
		SELECT type, COUNT(*) AS count
		FROM notifications WHERE user_id = ?
		GROUP BY type ORDER BY type
	`)
	if err := db.SelectContext(ctx, &stats.ByType, typeQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to get type counts: %w", err)
	}

	recentQuery := r.Rebind(`
		SELECT created_at FROM notifications
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at
	`)
	if err := db.SelectContext(ctx, &stats.Recent, recentQuery, userID, dbTime(since)); err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	for i := range stats.Recent {
		stats.Recent[i] = stats.Recent[i].UTC()
	}

	var err error
	if stats.FirstAt, err = r.edgeCreatedAt(ctx, userID, "ASC"); err != nil {
		return nil, err
	}
	if stats.LastAt, err = r.edgeCreatedAt(ctx, userID, "DESC"); err != nil {
		return nil, err
	}

	return stats, nil
}

// edgeCreatedAt returns the oldest (ASC) or newest (DESC) creation time.
func (r *notificationRepository) edgeCreatedAt(ctx context.Context, userID int64, dir string) (*time.Time, error) {
	query := r.Rebind(`SELECT created_at FROM notifications WHERE user_id = ? ORDER BY created_at ` + dir + ` LIMIT 1`)

	var t time.Time
	if err := r.GetDB().GetContext(ctx, &t, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification time bounds: %w", err)
	}
	t = t.UTC()
	return &t, nil
}

func normalize(n *model.Notification) {
	n.CreatedAt = n.CreatedAt.UTC()
	n.ReadAt = utcPtr(n.ReadAt)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
