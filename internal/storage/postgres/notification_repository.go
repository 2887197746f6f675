package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"courier-sync/internal/notification"
	"courier-sync/internal/storage/postgres/models"
	appErrors "courier-sync/pkg/errors"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, userID uuid.UUID, item *notification.Item) error {
	var body string
	if item.Body != nil {
		body = *item.Body
	}
	dbModel := &models.NotificationModel{
		UserID:    userID,
		Type:      item.Type,
		Title:     item.Title,
		Body:      body,
		Payload:   item.Payload,
		IsRead:    item.IsRead,
		ReadAt:    item.ReadAt,
		CreatedAt: item.CreatedAt,
	}
	if dbModel.CreatedAt.IsZero() {
		dbModel.CreatedAt = time.Now()
	}

	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	item.ID = dbModel.ID.String()
	item.CreatedAt = dbModel.CreatedAt
	return nil
}

// ListByUser returns the newest notifications for a user along with the
// total row count and the authoritative unread count.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]notification.Item, int64, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	query := r.db.DB.WithContext(ctx).
		Model(&models.NotificationModel{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	unread, err := r.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, 0, err
	}

	var dbModels []models.NotificationModel
	err = query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	items := make([]notification.Item, len(dbModels))
	for i := range dbModels {
		items[i] = toNotificationItem(&dbModels[i])
	}
	return items, total, unread, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var unread int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.NotificationModel{}).
		Where("user_id = ? AND is_read = false", userID).
		Count(&unread).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return int(unread), nil
}

// MarkRead marks one notification read and returns the remaining unread
// count. Marking an already-read notification is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (int, error) {
	now := time.Now()
	result := r.db.DB.WithContext(ctx).
		Model(&models.NotificationModel{}).
		Where("id = ? AND user_id = ? AND is_read = false", notificationID, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var exists int64
		if err := r.db.DB.WithContext(ctx).
			Model(&models.NotificationModel{}).
			Where("id = ? AND user_id = ?", notificationID, userID).
			Count(&exists).Error; err == nil && exists == 0 {
			return 0, appErrors.ErrNotificationNotFound
		}
	}

	return r.UnreadCount(ctx, userID)
}

// MarkAllRead marks every unread notification for the user read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	now := time.Now()
	err := r.db.DB.WithContext(ctx).
		Model(&models.NotificationModel{}).
		Where("user_id = ? AND is_read = false", userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return 0, nil
}

func (r *NotificationRepository) deleteOlderThan(ctx context.Context, cutoff time.Time) error {
	err := r.db.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.NotificationModel{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to prune notifications: %w", err)
	}
	return nil
}

// PruneOlderThan removes notifications created before the retention
// window.
func (r *NotificationRepository) PruneOlderThan(ctx context.Context, retention time.Duration) error {
	return r.deleteOlderThan(ctx, time.Now().Add(-retention))
}

func toNotificationItem(m *models.NotificationModel) notification.Item {
	var body *string
	if m.Body != "" {
		body = &m.Body
	}
	return notification.Item{
		ID:        m.ID.String(),
		Type:      m.Type,
		Title:     m.Title,
		Body:      body,
		Payload:   m.Payload,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}
