// datastore_test.go: integration tests using real SQLite databases (not
// mocks) to exercise actual GORM behavior, including the conditional-update
// acknowledgment guard.
package datastore

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarahealth/coughwatch-go/internal/conf"
	"github.com/swarahealth/coughwatch-go/internal/errors"
)

// createTestSettings returns settings pointing at a SQLite database inside
// a per-test temporary directory.
func createTestSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	return settings
}

// createDatabase opens a fresh store and registers cleanup.
func createDatabase(t *testing.T, settings *conf.Settings) Interface {
	t.Helper()

	ds := New(settings)
	require.NotNil(t, ds, "datastore must be created")
	require.NoError(t, ds.Open(), "failed to open test database")
	t.Cleanup(func() {
		_ = ds.Close()
	})
	return ds
}

func createTestDevice(t *testing.T, ds Interface, deviceID string) *Device {
	t.Helper()

	device := &Device{
		DeviceID: deviceID,
		Name:     "Ward A " + deviceID,
		Location: "Puskesmas Cempaka",
	}
	require.NoError(t, ds.SaveDevice(device))
	return device
}

func createTestEvent(t *testing.T, ds Interface, device *Device, ts time.Time) *CoughEvent {
	t.Helper()

	event := &CoughEvent{
		Timestamp: ts,
		AudioPath: "/uploads/test.wav",
		Status:    StatusAnalyzing,
	}
	if device != nil {
		event.DeviceID = &device.ID
	}
	require.NoError(t, ds.SaveCoughEvent(event))
	return event
}

func TestSaveCoughEventAssignsUUID(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	assert.Len(t, event.ID, 36, "expected a UUID primary key")

	stored, err := ds.GetCoughEvent(event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAnalyzing, stored.Status)
	assert.Nil(t, stored.DetectionResult())
}

func TestGetCoughEventNotFound(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))

	_, err := ds.GetCoughEvent("no-such-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCoughEventNotFound))
}

func TestGetCoughEventNotesMostRecentFirst(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	author := &User{Email: "staff@example.com", Username: "staff", Name: "Staff", PasswordHash: "x"}
	require.NoError(t, ds.SaveUser(author))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		note := &CoughNote{
			CoughEventID: event.ID,
			AuthorID:     author.ID,
			Content:      fmt.Sprintf("note %d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, ds.AddCoughNote(note))
	}

	stored, err := ds.GetCoughEvent(event.ID)
	require.NoError(t, err)
	require.Len(t, stored.Notes, 3)
	assert.Equal(t, "note 2", stored.Notes[0].Content, "latest note must come first")
	assert.Equal(t, "note 0", stored.Notes[2].Content)
	require.NotNil(t, stored.Notes[0].Author)
	assert.Equal(t, "Staff", stored.Notes[0].Author.Name)
}

func TestSearchCoughEventsPagination(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	device := createTestDevice(t, ds, "cg-001")

	base := time.Now().Add(-25 * time.Hour)
	for i := 0; i < 25; i++ {
		createTestEvent(t, ds, device, base.Add(time.Duration(i)*time.Hour))
	}

	events, total, err := ds.SearchCoughEvents(&CoughEventFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Len(t, events, 5, "page 3 of 25 with limit 10 holds 5 events")

	// Most-recent-first ordering across pages.
	first, _, err := ds.SearchCoughEvents(&CoughEventFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.True(t, first[0].Timestamp.After(first[9].Timestamp))
}

func TestSearchCoughEventsFilters(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	deviceA := createTestDevice(t, ds, "cg-00a")
	deviceB := createTestDevice(t, ds, "cg-00b")

	now := time.Now()
	evA := createTestEvent(t, ds, deviceA, now.Add(-2*time.Hour))
	evB := createTestEvent(t, ds, deviceB, now.Add(-time.Hour))

	positive := true
	confidence := 0.9
	evA.Status = StatusPositiveTB
	evA.IsTBCough = &positive
	evA.ConfidenceScore = &confidence
	require.NoError(t, ds.UpdateCoughEvent(evA))

	// Status filter
	events, total, err := ds.SearchCoughEvents(&CoughEventFilter{Status: StatusPositiveTB, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, evA.ID, events[0].ID)
	require.NotNil(t, events[0].Device)
	assert.Equal(t, "cg-00a", events[0].Device.DeviceID)

	// Device filter
	events, total, err = ds.SearchCoughEvents(&CoughEventFilter{DeviceID: &deviceB.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, evB.ID, events[0].ID)

	// Date range covering only evB
	start := now.Add(-90 * time.Minute)
	events, total, err = ds.SearchCoughEvents(&CoughEventFilter{Start: &start, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, evB.ID, events[0].ID)
}

func TestDeleteCoughEvent(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	require.NoError(t, ds.DeleteCoughEvent(event.ID))

	_, err := ds.GetCoughEvent(event.ID)
	assert.True(t, errors.Is(err, ErrCoughEventNotFound))

	err = ds.DeleteCoughEvent(event.ID)
	assert.True(t, errors.Is(err, ErrCoughEventNotFound), "second delete reports NotFound")
}

func TestSaveDeviceDuplicateConflict(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	createTestDevice(t, ds, "cg-dup")

	err := ds.SaveDevice(&Device{DeviceID: "cg-dup", Name: "Other"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceExists))
	assert.Equal(t, 409, errors.HTTPStatus(err))
}

func TestTouchDeviceHeartbeat(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	device := createTestDevice(t, ds, "cg-hb")
	assert.Equal(t, DeviceOffline, device.Status)

	at := time.Now()
	updated, err := ds.TouchDeviceHeartbeat("cg-hb", at)
	require.NoError(t, err)
	assert.Equal(t, DeviceOnline, updated.Status)
	require.NotNil(t, updated.LastHeartbeat)
	assert.WithinDuration(t, at, *updated.LastHeartbeat, time.Second)

	_, err = ds.TouchDeviceHeartbeat("cg-missing", at)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestMarkStaleDevicesOffline(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))

	fresh := createTestDevice(t, ds, "cg-fresh")
	stale := createTestDevice(t, ds, "cg-stale")
	silent := createTestDevice(t, ds, "cg-silent")

	now := time.Now()
	_, err := ds.TouchDeviceHeartbeat(fresh.DeviceID, now)
	require.NoError(t, err)
	_, err = ds.TouchDeviceHeartbeat(stale.DeviceID, now.Add(-10*time.Minute))
	require.NoError(t, err)

	// silent is ONLINE without any heartbeat recorded
	silent.Status = DeviceOnline
	require.NoError(t, ds.UpdateDevice(silent))

	changed, err := ds.MarkStaleDevicesOffline(now.Add(-3 * time.Minute))
	require.NoError(t, err)

	changedIDs := make([]string, 0, len(changed))
	for i := range changed {
		changedIDs = append(changedIDs, changed[i].DeviceID)
		assert.Equal(t, DeviceOffline, changed[i].Status)
	}
	assert.ElementsMatch(t, []string{"cg-stale", "cg-silent"}, changedIDs)

	kept, err := ds.GetDeviceByDeviceID("cg-fresh")
	require.NoError(t, err)
	assert.Equal(t, DeviceOnline, kept.Status)
}

func TestAcknowledgeNotification(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	notification := &CoughNotification{
		Type:         NotificationPositiveTBResult,
		Message:      "positive result",
		CoughEventID: event.ID,
	}
	require.NoError(t, ds.SaveNotification(notification))

	require.NoError(t, ds.AcknowledgeNotification(notification.ID, "user-a", time.Now()))

	err := ds.AcknowledgeNotification(notification.ID, "user-b", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotificationAcknowledged))

	stored, err := ds.GetNotification(notification.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadBy)
	assert.Equal(t, "user-a", *stored.ReadBy)
	assert.NotNil(t, stored.ReadAt)
}

func TestAcknowledgeNotificationNotFound(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	err := ds.AcknowledgeNotification("no-such-id", "user-a", time.Now())
	assert.True(t, errors.Is(err, ErrNotificationNotFound))
}

// TestAcknowledgeNotificationRace verifies first-write-wins under
// concurrent acknowledgment attempts: exactly one succeeds, the rest see
// a conflict, and the stored acknowledger is the winner's.
func TestAcknowledgeNotificationRace(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	notification := &CoughNotification{
		Type:         NotificationPositiveTBResult,
		Message:      "positive result",
		CoughEventID: event.ID,
	}
	require.NoError(t, ds.SaveNotification(notification))

	const attempts = 8
	var wg sync.WaitGroup
	outcomes := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			outcomes[n] = ds.AcknowledgeNotification(notification.ID, fmt.Sprintf("user-%d", n), time.Now())
		}(i)
	}
	wg.Wait()

	successes := 0
	conflicts := 0
	for _, err := range outcomes {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrNotificationAcknowledged):
			conflicts++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one acknowledger wins")
	assert.Equal(t, attempts-1, conflicts)

	stored, err := ds.GetNotification(notification.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadBy)
}

func TestGetUnreadNotificationsOrderAndCount(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	event := createTestEvent(t, ds, nil, time.Now())

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		n := &CoughNotification{
			Type:         NotificationPositiveTBResult,
			Message:      fmt.Sprintf("alert %d", i),
			CoughEventID: event.ID,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, ds.SaveNotification(n))
		ids = append(ids, n.ID)
	}

	require.NoError(t, ds.AcknowledgeNotification(ids[0], "user-a", time.Now()))

	unread, count, err := ds.GetUnreadNotifications()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, unread, 2)
	assert.Equal(t, "alert 2", unread[0].Message, "newest unread first")
	require.NotNil(t, unread[0].CoughEvent)
	assert.Equal(t, event.ID, unread[0].CoughEvent.ID)
}

func TestGetDashboardStats(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	device := createTestDevice(t, ds, "cg-dash")
	_, err := ds.TouchDeviceHeartbeat(device.DeviceID, time.Now())
	require.NoError(t, err)
	createTestDevice(t, ds, "cg-dash2")

	positive := true
	score := 0.8
	ev := createTestEvent(t, ds, device, time.Now())
	ev.Status = StatusPositiveTB
	ev.IsTBCough = &positive
	ev.ConfidenceScore = &score
	require.NoError(t, ds.UpdateCoughEvent(ev))
	createTestEvent(t, ds, device, time.Now())

	stats, err := ds.GetDashboardStats(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PositiveSince)
	assert.Equal(t, int64(2), stats.TotalSince)
	assert.Equal(t, int64(1), stats.ActiveDevices)
	assert.Equal(t, int64(2), stats.TotalDevices)
}

func TestUserUniqueLookups(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	user := &User{Email: "dr.sari@example.com", Username: "drsari", Name: "Dr. Sari", PasswordHash: "x"}
	require.NoError(t, ds.SaveUser(user))

	byEmail, err := ds.GetUserByEmail("dr.sari@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byUsername, err := ds.GetUserByUsername("drsari")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byUsername.ID)

	_, err = ds.GetUserByEmail("nobody@example.com")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
