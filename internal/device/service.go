// Package device manages registered edge devices: CRUD, heartbeat intake
// and the background sweep that flips silent devices to OFFLINE.
package device

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

// CreateParams describes a device to register.
type CreateParams struct {
	DeviceID string
	Name     string
	Location string
}

// UpdateParams carries the mutable device fields. Nil means unchanged.
type UpdateParams struct {
	Name     *string
	Location *string
}

// StatusPayload is the bus payload published on connectivity transitions.
type StatusPayload struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// Service owns device registration and heartbeat handling.
type Service struct {
	ds     datastore.Interface
	bus    *events.Bus
	logger *slog.Logger
}

// NewService creates a device service.
func NewService(ds datastore.Interface, bus *events.Bus) *Service {
	return &Service{
		ds:     ds,
		bus:    bus,
		logger: logging.ForService("device"),
	}
}

// Create registers a new device. It starts OFFLINE until its first
// heartbeat arrives.
func (s *Service) Create(ctx context.Context, params CreateParams) (*datastore.Device, error) {
	deviceID := strings.TrimSpace(params.DeviceID)
	name := strings.TrimSpace(params.Name)
	if deviceID == "" || name == "" {
		return nil, errors.Newf("deviceId and name are required").
			Component("device").
			Category(errors.CategoryValidation).
			Build()
	}

	device := &datastore.Device{
		DeviceID: deviceID,
		Name:     name,
		Location: params.Location,
		Status:   datastore.DeviceOffline,
	}
	if err := s.ds.SaveDevice(device); err != nil {
		return nil, err
	}

	s.logger.Info("device registered", "device_id", deviceID, "name", name)
	return device, nil
}

// List returns all registered devices.
func (s *Service) List(ctx context.Context) ([]datastore.Device, error) {
	return s.ds.GetAllDevices()
}

// Get returns a device by its external identifier.
func (s *Service) Get(ctx context.Context, deviceID string) (*datastore.Device, error) {
	return s.ds.GetDeviceByDeviceID(deviceID)
}

// Update applies the given fields to a device.
func (s *Service) Update(ctx context.Context, deviceID string, params UpdateParams) (*datastore.Device, error) {
	device, err := s.ds.GetDeviceByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, errors.Newf("device name cannot be empty").
				Component("device").
				Category(errors.CategoryValidation).
				Build()
		}
		device.Name = name
	}
	if params.Location != nil {
		device.Location = *params.Location
	}

	if err := s.ds.UpdateDevice(device); err != nil {
		return nil, err
	}
	return device, nil
}

// Delete removes a device.
func (s *Service) Delete(ctx context.Context, deviceID string) error {
	if err := s.ds.DeleteDevice(deviceID); err != nil {
		return err
	}
	s.logger.Info("device removed", "device_id", deviceID)
	return nil
}

// Heartbeat records a liveness ping. The device flips to ONLINE and a
// status message is broadcast when it was OFFLINE before.
func (s *Service) Heartbeat(ctx context.Context, deviceID string) (*datastore.Device, error) {
	previous, err := s.ds.GetDeviceByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	wasOffline := previous.Status != datastore.DeviceOnline

	device, err := s.ds.TouchDeviceHeartbeat(deviceID, time.Now())
	if err != nil {
		return nil, err
	}

	if wasOffline {
		s.bus.Publish(events.TopicDeviceStatus, StatusPayload{
			DeviceID: device.DeviceID,
			Name:     device.Name,
			Status:   datastore.DeviceOnline,
		})
		s.logger.Info("device came online", "device_id", deviceID)
	}

	return device, nil
}
