// Package notification owns the creation, unread listing and
// single-acknowledgment-wins semantics of staff notifications raised for
// positive TB classifications.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

// CreateParams describes a notification to raise.
type CreateParams struct {
	Type         string
	Message      string
	CoughEventID string
}

// AcknowledgedPayload is the bus payload published when a notification is
// acknowledged.
type AcknowledgedPayload struct {
	NotificationID string       `json:"notificationId"`
	User           Acknowledger `json:"user"`
}

// Acknowledger identifies the user who acknowledged a notification.
type Acknowledger struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Manager coordinates notification persistence and real-time broadcast.
// Construct with NewManager; all collaborators are injected.
type Manager struct {
	ds     datastore.Interface
	bus    *events.Bus
	logger *slog.Logger
}

// NewManager creates a notification manager.
func NewManager(ds datastore.Interface, bus *events.Bus) *Manager {
	return &Manager{
		ds:     ds,
		bus:    bus,
		logger: logging.ForService("notification"),
	}
}

// Create persists a new unacknowledged notification and broadcasts it with
// its cough event and device context attached. Multiple notifications for
// the same event are allowed.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*datastore.CoughNotification, error) {
	if params.Type == "" {
		params.Type = datastore.NotificationPositiveTBResult
	}

	notification := &datastore.CoughNotification{
		Type:         params.Type,
		Message:      params.Message,
		CoughEventID: params.CoughEventID,
	}
	if err := m.ds.SaveNotification(notification); err != nil {
		return nil, err
	}

	// Reload with event and device context for the broadcast payload.
	stored, err := m.ds.GetNotification(notification.ID)
	if err != nil {
		// The row exists; a failed preload only degrades the broadcast.
		m.logger.Warn("failed to load notification context for broadcast",
			"id", notification.ID,
			"error", err)
		stored = notification
	}

	m.bus.Publish(events.TopicNotificationNew, stored)

	m.logger.Info("notification created",
		"id", notification.ID,
		"type", notification.Type,
		"cough_event_id", notification.CoughEventID)

	return stored, nil
}

// ListUnread returns all unacknowledged notifications, most recent first,
// plus the unread count.
func (m *Manager) ListUnread(ctx context.Context) ([]datastore.CoughNotification, int64, error) {
	return m.ds.GetUnreadNotifications()
}

// Acknowledge marks a notification as handled by the given user. The first
// acknowledger wins; later attempts fail with a conflict. The store
// enforces this with an atomic conditional update, so concurrent callers
// cannot both succeed.
func (m *Manager) Acknowledge(ctx context.Context, notificationID string, actor *datastore.User) error {
	if actor == nil || actor.ID == "" {
		return errors.Newf("acknowledging user is required").
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := m.ds.AcknowledgeNotification(notificationID, actor.ID, time.Now()); err != nil {
		return err
	}

	m.bus.Publish(events.TopicNotificationAcknowledged, AcknowledgedPayload{
		NotificationID: notificationID,
		User: Acknowledger{
			ID:   actor.ID,
			Name: actor.Name,
		},
	})

	m.logger.Info("notification acknowledged",
		"id", notificationID,
		"user_id", actor.ID)

	return nil
}
