// Package cough implements the lifecycle of a submitted cough recording:
// intake, asynchronous classification, result recording, listing, notes
// and deletion.
package cough

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/blobstore"
	"github.com/swarahealth/coughwatch-go/internal/classifier"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/notification"
)

// positiveMessageFormat is the staff notification raised for a positive
// classification. The argument is the device display name.
const positiveMessageFormat = "Terdeteksi indikasi batuk TB pada perangkat %s."

// Enqueuer hands classification jobs to a background dispatcher. Enqueue
// reports whether the job was accepted; a full queue is not an error.
type Enqueuer interface {
	Enqueue(job classifier.Job) bool
}

// Notifier raises staff notifications for positive results.
type Notifier interface {
	Create(ctx context.Context, params notification.CreateParams) (*datastore.CoughNotification, error)
}

// SubmitParams describes an incoming cough recording.
type SubmitParams struct {
	Audio              io.Reader
	Filename           string
	DeviceID           string // external device identifier, device-tier submissions
	UserID             string // owning user, session-tier submissions
	Timestamp          *time.Time
	DirectionOfArrival *float64
	SubmitterName      string // forwarded to the classifier as the submitter
}

// Result is a classification outcome to record against an event.
type Result struct {
	IsTBCough       bool
	ConfidenceScore float64
}

// Query filters and paginates event listings. Date bounds are normalized
// to whole days.
type Query struct {
	Status   string
	Start    *time.Time
	End      *time.Time
	DeviceID string // external device identifier
	UserID   string
	Page     int
	Limit    int
}

// DetectionPayload is the broadcast snapshot of a completed classification.
// The event model keeps its detection numbers out of REST serialization, so
// the bus carries this flattened form instead of the bare record.
type DetectionPayload struct {
	RecordID        string  `json:"recordId"`
	Status          string  `json:"status"`
	IsTBCough       bool    `json:"isTBCough"`
	ConfidenceScore float64 `json:"confidenceScore"`
	SubmitterName   string  `json:"submitterName"`
}

// Page is one page of cough events.
type Page struct {
	Events []datastore.CoughEvent `json:"events"`
	Total  int64                  `json:"total"`
	Pages  int                    `json:"pages"`
	Page   int                    `json:"page"`
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Manager owns the cough event lifecycle. Construct with NewManager; all
// collaborators are injected.
type Manager struct {
	ds         datastore.Interface
	blobs      *blobstore.Store
	bus        *events.Bus
	dispatcher Enqueuer
	notifier   Notifier
	logger     *slog.Logger
}

// NewManager creates a cough lifecycle manager. dispatcher may be nil when
// no classifier is configured; submissions then stay ANALYZING until a
// result arrives through the API.
func NewManager(ds datastore.Interface, blobs *blobstore.Store, bus *events.Bus, dispatcher Enqueuer, notifier Notifier) *Manager {
	return &Manager{
		ds:         ds,
		blobs:      blobs,
		bus:        bus,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logging.ForService("cough"),
	}
}

// Submit stores the audio, creates the event in ANALYZING state and hands
// the recording to the classifier dispatcher. The stored audio is removed
// again if the database create fails, so no orphan files accumulate.
func (m *Manager) Submit(ctx context.Context, params SubmitParams) (*datastore.CoughEvent, error) {
	if params.Audio == nil {
		return nil, errors.Newf("audio file is required").
			Component("cough").
			Category(errors.CategoryValidation).
			Build()
	}

	var device *datastore.Device
	if params.DeviceID != "" {
		var err error
		device, err = m.ds.GetDeviceByDeviceID(params.DeviceID)
		if err != nil {
			return nil, err
		}
	}

	audioPath, err := m.blobs.Save(params.Audio, params.Filename)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now()
	if params.Timestamp != nil {
		timestamp = *params.Timestamp
	}

	event := &datastore.CoughEvent{
		Timestamp:          timestamp,
		DirectionOfArrival: params.DirectionOfArrival,
		AudioPath:          audioPath,
		Status:             datastore.StatusAnalyzing,
	}
	if device != nil {
		event.DeviceID = &device.ID
		event.Device = device
	}
	if params.UserID != "" {
		userID := params.UserID
		event.UserID = &userID
	}

	if err := m.ds.SaveCoughEvent(event); err != nil {
		// Compensate: the audio must not outlive the failed create.
		if delErr := m.blobs.Delete(audioPath); delErr != nil {
			m.logger.Error("failed to remove audio after create failure",
				"audio_path", audioPath,
				"error", delErr)
		}
		return nil, err
	}

	m.bus.Publish(events.TopicCoughEventNew, event)

	if m.dispatcher != nil {
		accepted := m.dispatcher.Enqueue(classifier.Job{
			RecordID:      event.ID,
			SubmitterName: params.SubmitterName,
			AudioPath:     audioPath,
		})
		if !accepted {
			m.logger.Warn("classifier queue full, recording stays unclassified",
				"cough_event_id", event.ID)
		}
	}

	m.logger.Info("cough event submitted",
		"cough_event_id", event.ID,
		"device_id", params.DeviceID,
		"audio_path", audioPath)

	return event, nil
}

// RecordResult applies a classification outcome to an event. A result may
// overwrite a previous one; the latest classification wins.
func (m *Manager) RecordResult(ctx context.Context, coughID string, result Result) (*datastore.CoughEvent, error) {
	event, err := m.ds.GetCoughEvent(coughID)
	if err != nil {
		return nil, err
	}
	return m.resolve(ctx, event, result)
}

// RecordExternalDetection handles the classifier callback. The payload is
// validated in full before any state changes: status must be 0 or 1 and
// confidence must lie in [0,1].
func (m *Manager) RecordExternalDetection(ctx context.Context, recordID string, status int, confidence float64) (*datastore.CoughEvent, error) {
	if recordID == "" {
		return nil, errors.Newf("record_id is required").
			Component("cough").
			Category(errors.CategoryValidation).
			Build()
	}
	if status != 0 && status != 1 {
		return nil, errors.Newf("status must be 0 or 1, got %d", status).
			Component("cough").
			Category(errors.CategoryValidation).
			Context("record_id", recordID).
			Build()
	}
	if confidence < 0 || confidence > 1 {
		return nil, errors.Newf("confidence_score must be between 0 and 1, got %g", confidence).
			Component("cough").
			Category(errors.CategoryValidation).
			Context("record_id", recordID).
			Build()
	}

	event, err := m.ds.GetCoughEvent(recordID)
	if err != nil {
		return nil, err
	}

	return m.resolve(ctx, event, Result{
		IsTBCough:       status == 1,
		ConfidenceScore: confidence,
	})
}

// resolve persists a classification outcome, broadcasts it and raises a
// notification for positive results.
func (m *Manager) resolve(ctx context.Context, event *datastore.CoughEvent, result Result) (*datastore.CoughEvent, error) {
	isTB := result.IsTBCough
	score := result.ConfidenceScore
	event.IsTBCough = &isTB
	event.ConfidenceScore = &score
	if isTB {
		event.Status = datastore.StatusPositiveTB
	} else {
		event.Status = datastore.StatusNegativeTB
	}

	if err := m.ds.UpdateCoughEvent(event); err != nil {
		return nil, err
	}

	m.bus.Publish(events.TopicCoughDetectionComplete, DetectionPayload{
		RecordID:        event.ID,
		Status:          event.Status,
		IsTBCough:       isTB,
		ConfidenceScore: score,
		SubmitterName:   m.submitterLabel(event),
	})

	m.logger.Info("detection recorded",
		"cough_event_id", event.ID,
		"status", event.Status,
		"confidence", score)

	if isTB && m.notifier != nil {
		_, err := m.notifier.Create(ctx, notification.CreateParams{
			Message:      fmt.Sprintf(positiveMessageFormat, m.deviceLabel(event)),
			CoughEventID: event.ID,
		})
		if err != nil {
			// The classification stands even when the alert fails.
			m.logger.Error("failed to create positive result notification",
				"cough_event_id", event.ID,
				"error", err)
		}
	}

	return event, nil
}

// submitterLabel resolves the display name broadcast with a detection: the
// owning user's name when the event came from a session upload, the device
// label otherwise.
func (m *Manager) submitterLabel(event *datastore.CoughEvent) string {
	if event.User != nil && event.User.Name != "" {
		return event.User.Name
	}
	return m.deviceLabel(event)
}

func (m *Manager) deviceLabel(event *datastore.CoughEvent) string {
	if event.Device == nil {
		return "unknown"
	}
	if event.Device.Name != "" {
		return event.Device.Name
	}
	return event.Device.DeviceID
}

// List returns a page of events matching the query, most recent first. An
// unknown device identifier yields an empty page rather than an error.
func (m *Manager) List(ctx context.Context, query Query) (*Page, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := &datastore.CoughEventFilter{
		Status: query.Status,
		UserID: query.UserID,
		Page:   page,
		Limit:  limit,
	}
	if query.Start != nil {
		start := dayStart(*query.Start)
		filter.Start = &start
	}
	if query.End != nil {
		end := dayEnd(*query.End)
		filter.End = &end
	}

	if query.DeviceID != "" {
		device, err := m.ds.GetDeviceByDeviceID(query.DeviceID)
		if err != nil {
			if errors.Is(err, datastore.ErrDeviceNotFound) {
				return &Page{Events: []datastore.CoughEvent{}, Page: page}, nil
			}
			return nil, err
		}
		filter.DeviceID = &device.ID
	}

	found, total, err := m.ds.SearchCoughEvents(filter)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []datastore.CoughEvent{}
	}

	pages := int((total + int64(limit) - 1) / int64(limit))

	return &Page{
		Events: found,
		Total:  total,
		Pages:  pages,
		Page:   page,
	}, nil
}

// Get returns a single event with its device, owner and notes.
func (m *Manager) Get(ctx context.Context, id string) (*datastore.CoughEvent, error) {
	return m.ds.GetCoughEvent(id)
}

// AddNote attaches a staff note to an event and returns the event with its
// notes, most recent first.
func (m *Manager) AddNote(ctx context.Context, coughID string, author *datastore.User, content string) (*datastore.CoughEvent, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.Newf("note content is required").
			Component("cough").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, err := m.ds.GetCoughEvent(coughID); err != nil {
		return nil, err
	}

	note := &datastore.CoughNote{
		CoughEventID: coughID,
		Content:      strings.TrimSpace(content),
	}
	if author != nil {
		note.AuthorID = author.ID
	}
	if err := m.ds.AddCoughNote(note); err != nil {
		return nil, err
	}

	return m.ds.GetCoughEvent(coughID)
}

// Delete removes an event and its stored audio. The audio goes first; if
// that fails the record is kept so the file can be retried.
func (m *Manager) Delete(ctx context.Context, id string) error {
	event, err := m.ds.GetCoughEvent(id)
	if err != nil {
		return err
	}

	if event.AudioPath != "" {
		if err := m.blobs.Delete(event.AudioPath); err != nil {
			return errors.New(err).
				Component("cough").
				Category(errors.CategoryFileIO).
				Context("cough_event_id", id).
				Build()
		}
	}

	if err := m.ds.DeleteCoughEvent(id); err != nil {
		return err
	}

	m.logger.Info("cough event deleted", "cough_event_id", id)
	return nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
