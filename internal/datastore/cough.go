package datastore

import (
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"gorm.io/gorm"
)

// Sentinel errors shared by the store methods.
var (
	ErrCoughEventNotFound = errors.Newf("cough event not found").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
)

// SaveCoughEvent inserts a new cough event record.
func (ds *DataStore) SaveCoughEvent(event *CoughEvent) error {
	if err := ds.DB.Create(event).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_cough_event").
			Build()
	}
	return nil
}

// GetCoughEvent retrieves a cough event by id with its device, owner and
// note authors preloaded. Notes come back most recent first.
func (ds *DataStore) GetCoughEvent(id string) (*CoughEvent, error) {
	var event CoughEvent
	err := ds.DB.
		Preload("Device").
		Preload("User").
		Preload("Notes", func(db *gorm.DB) *gorm.DB {
			return db.Order("cough_notes.created_at DESC, cough_notes.id DESC")
		}).
		Preload("Notes.Author").
		First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCoughEventNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_cough_event").
			Build()
	}
	return &event, nil
}

// UpdateCoughEvent persists changes to an existing cough event.
func (ds *DataStore) UpdateCoughEvent(event *CoughEvent) error {
	if err := ds.DB.Save(event).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_cough_event").
			Build()
	}
	return nil
}

// DeleteCoughEvent removes a cough event and, through the cascade
// constraint, its notes.
func (ds *DataStore) DeleteCoughEvent(id string) error {
	result := ds.DB.Delete(&CoughEvent{}, "id = ?", id)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_cough_event").
			Build()
	}
	if result.RowsAffected == 0 {
		return ErrCoughEventNotFound
	}
	return nil
}

// SearchCoughEvents returns a page of events matching the filter, most
// recent capture first, together with the total match count.
func (ds *DataStore) SearchCoughEvents(filter *CoughEventFilter) ([]CoughEvent, int64, error) {
	query := ds.DB.Model(&CoughEvent{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Start != nil {
		query = query.Where("timestamp >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("timestamp <= ?", *filter.End)
	}
	if filter.DeviceID != nil {
		query = query.Where("device_id = ?", *filter.DeviceID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_cough_events").
			Build()
	}

	offset := (filter.Page - 1) * filter.Limit

	var events []CoughEvent
	err := query.
		Preload("Device").
		Order("timestamp DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "search_cough_events").
			Build()
	}

	return events, total, nil
}

// AddCoughNote appends a note row for a cough event.
func (ds *DataStore) AddCoughNote(note *CoughNote) error {
	if err := ds.DB.Create(note).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "add_cough_note").
			Build()
	}
	return nil
}
