package datastore

import (
	"time"

	"github.com/swarahealth/coughwatch-go/internal/errors"
	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = errors.Newf("notification not found").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()

	ErrNotificationAcknowledged = errors.Newf("notification has already been acknowledged").
					Component("datastore").
					Category(errors.CategoryConflict).
					Build()
)

// SaveNotification inserts a new notification record.
func (ds *DataStore) SaveNotification(notification *CoughNotification) error {
	if err := ds.DB.Create(notification).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_notification").
			Build()
	}
	return nil
}

// GetNotification retrieves a notification with its cough event and the
// event's device preloaded.
func (ds *DataStore) GetNotification(id string) (*CoughNotification, error) {
	var notification CoughNotification
	err := ds.DB.
		Preload("CoughEvent").
		Preload("CoughEvent.Device").
		First(&notification, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_notification").
			Build()
	}
	return &notification, nil
}

// GetUnreadNotifications lists notifications without an acknowledger, most
// recent first, along with their count.
func (ds *DataStore) GetUnreadNotifications() ([]CoughNotification, int64, error) {
	query := ds.DB.Model(&CoughNotification{}).Where("read_by IS NULL")

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_unread_notifications").
			Build()
	}

	var notifications []CoughNotification
	err := ds.DB.
		Where("read_by IS NULL").
		Preload("CoughEvent").
		Preload("CoughEvent.Device").
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_unread_notifications").
			Build()
	}

	return notifications, count, nil
}

// AcknowledgeNotification sets the acknowledger with a single conditional
// update so that two concurrent callers cannot both succeed: the update
// only matches while read_by is still NULL. The loser sees
// ErrNotificationAcknowledged.
func (ds *DataStore) AcknowledgeNotification(id, userID string, at time.Time) error {
	result := ds.DB.Model(&CoughNotification{}).
		Where("id = ? AND read_by IS NULL", id).
		Updates(map[string]any{
			"read_by": userID,
			"read_at": at,
		})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "acknowledge_notification").
			Build()
	}

	if result.RowsAffected == 0 {
		// Either the id is unknown or someone acknowledged first.
		var count int64
		if err := ds.DB.Model(&CoughNotification{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "acknowledge_notification").
				Build()
		}
		if count == 0 {
			return ErrNotificationNotFound
		}
		return ErrNotificationAcknowledged
	}

	return nil
}
