package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarahealth/coughwatch-go/internal/conf"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/events"
)

type fixture struct {
	service *Service
	ds      datastore.Interface
	bus     *events.Bus
	busCh   <-chan events.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	bus := events.NewBus(nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})
	ch, unsub := bus.Subscribe()
	t.Cleanup(unsub)

	return &fixture{
		service: NewService(ds, bus),
		ds:      ds,
		bus:     bus,
		busCh:   ch,
	}
}

func (f *fixture) waitForStatus(t *testing.T, deviceID, status string) StatusPayload {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-f.busCh:
			if msg.Topic != events.TopicDeviceStatus {
				continue
			}
			payload, ok := msg.Payload.(StatusPayload)
			require.True(t, ok)
			if payload.DeviceID == deviceID && payload.Status == status {
				return payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s/%s on the bus", deviceID, status)
		}
	}
}

func TestCreateStartsOffline(t *testing.T) {
	f := newFixture(t)

	device, err := f.service.Create(context.Background(), CreateParams{
		DeviceID: "esp32-ward-a",
		Name:     "Ward A",
		Location: "Puskesmas Cempaka",
	})
	require.NoError(t, err)
	assert.Equal(t, datastore.DeviceOffline, device.Status)
	assert.Nil(t, device.LastHeartbeat)
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateParams{DeviceID: " ", Name: "Ward A"})
	require.Error(t, err)
	assert.Equal(t, 400, errors.HTTPStatus(err))
}

func TestCreateDuplicateConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateParams{DeviceID: "esp32-ward-a", Name: "Ward A"})
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), CreateParams{DeviceID: "esp32-ward-a", Name: "Again"})
	require.Error(t, err)
	assert.Equal(t, 409, errors.HTTPStatus(err))
}

func TestHeartbeatBringsDeviceOnline(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateParams{DeviceID: "esp32-ward-a", Name: "Ward A"})
	require.NoError(t, err)

	device, err := f.service.Heartbeat(context.Background(), "esp32-ward-a")
	require.NoError(t, err)
	assert.Equal(t, datastore.DeviceOnline, device.Status)
	require.NotNil(t, device.LastHeartbeat)
	assert.WithinDuration(t, time.Now(), *device.LastHeartbeat, 5*time.Second)

	payload := f.waitForStatus(t, "esp32-ward-a", datastore.DeviceOnline)
	assert.Equal(t, "Ward A", payload.Name)
}

func TestHeartbeatWhileOnlineDoesNotRebroadcast(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateParams{DeviceID: "esp32-ward-a", Name: "Ward A"})
	require.NoError(t, err)

	_, err = f.service.Heartbeat(context.Background(), "esp32-ward-a")
	require.NoError(t, err)
	f.waitForStatus(t, "esp32-ward-a", datastore.DeviceOnline)

	_, err = f.service.Heartbeat(context.Background(), "esp32-ward-a")
	require.NoError(t, err)

	select {
	case msg := <-f.busCh:
		t.Fatalf("unexpected bus message %q after repeat heartbeat", msg.Topic)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHeartbeatUnknownDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Heartbeat(context.Background(), "no-such-device")
	require.Error(t, err)
	assert.Equal(t, 404, errors.HTTPStatus(err))
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateParams{DeviceID: "esp32-ward-a", Name: "Ward A"})
	require.NoError(t, err)

	name := "Ward A (ICU)"
	updated, err := f.service.Update(context.Background(), "esp32-ward-a", UpdateParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ward A (ICU)", updated.Name)

	require.NoError(t, f.service.Delete(context.Background(), "esp32-ward-a"))

	_, err = f.service.Get(context.Background(), "esp32-ward-a")
	require.Error(t, err)
	assert.Equal(t, 404, errors.HTTPStatus(err))
}

func TestMonitorSweepFlipsStaleDevices(t *testing.T) {
	f := newFixture(t)

	stale := time.Now().Add(-10 * time.Minute)
	fresh := time.Now()
	for _, d := range []*datastore.Device{
		{DeviceID: "stale-device", Name: "Stale", Status: datastore.DeviceOnline, LastHeartbeat: &stale},
		{DeviceID: "fresh-device", Name: "Fresh", Status: datastore.DeviceOnline, LastHeartbeat: &fresh},
		{DeviceID: "already-offline", Name: "Off", Status: datastore.DeviceOffline, LastHeartbeat: &stale},
	} {
		require.NoError(t, f.ds.SaveDevice(d))
	}

	monitor := NewMonitor(f.ds, f.bus, 3*time.Minute, time.Minute)
	assert.Equal(t, 1, monitor.Sweep())

	payload := f.waitForStatus(t, "stale-device", datastore.DeviceOffline)
	assert.Equal(t, "Stale", payload.Name)

	device, err := f.ds.GetDeviceByDeviceID("fresh-device")
	require.NoError(t, err)
	assert.Equal(t, datastore.DeviceOnline, device.Status)

	// A second sweep finds nothing left to flip.
	assert.Zero(t, monitor.Sweep())
}

func TestMonitorStartStop(t *testing.T) {
	f := newFixture(t)

	monitor := NewMonitor(f.ds, f.bus, 3*time.Minute, 10*time.Millisecond)
	monitor.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	monitor.Stop()
}
