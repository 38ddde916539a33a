package datastore

import (
	"time"

	"github.com/swarahealth/coughwatch-go/internal/errors"
	"gorm.io/gorm"
)

var (
	ErrDeviceNotFound = errors.Newf("device not found").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()

	ErrDeviceExists = errors.Newf("device already exists").
			Component("datastore").
			Category(errors.CategoryConflict).
			Build()
)

// SaveDevice inserts a new device. The deviceId column carries a unique
// index; a duplicate maps to ErrDeviceExists.
func (ds *DataStore) SaveDevice(device *Device) error {
	var count int64
	if err := ds.DB.Model(&Device{}).Where("device_id = ?", device.DeviceID).Count(&count).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_device").
			Build()
	}
	if count > 0 {
		return ErrDeviceExists
	}

	if err := ds.DB.Create(device).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_device").
			Build()
	}
	return nil
}

// GetDeviceByDeviceID looks up a device by its externally-assigned id.
func (ds *DataStore) GetDeviceByDeviceID(deviceID string) (*Device, error) {
	var device Device
	err := ds.DB.First(&device, "device_id = ?", deviceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_device").
			Build()
	}
	return &device, nil
}

// GetAllDevices lists every registered device, newest registration first.
func (ds *DataStore) GetAllDevices() ([]Device, error) {
	var devices []Device
	if err := ds.DB.Order("created_at DESC").Find(&devices).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_all_devices").
			Build()
	}
	return devices, nil
}

// UpdateDevice persists changes to an existing device.
func (ds *DataStore) UpdateDevice(device *Device) error {
	if err := ds.DB.Save(device).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_device").
			Build()
	}
	return nil
}

// DeleteDevice removes a device by its external id.
func (ds *DataStore) DeleteDevice(deviceID string) error {
	result := ds.DB.Delete(&Device{}, "device_id = ?", deviceID)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_device").
			Build()
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// TouchDeviceHeartbeat marks a device ONLINE and records the heartbeat
// time. Returns the updated device.
func (ds *DataStore) TouchDeviceHeartbeat(deviceID string, at time.Time) (*Device, error) {
	device, err := ds.GetDeviceByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	device.Status = DeviceOnline
	device.LastHeartbeat = &at
	if err := ds.UpdateDevice(device); err != nil {
		return nil, err
	}
	return device, nil
}

// MarkStaleDevicesOffline flips ONLINE devices whose last heartbeat
// predates the cutoff to OFFLINE and returns the devices it changed.
func (ds *DataStore) MarkStaleDevicesOffline(cutoff time.Time) ([]Device, error) {
	var stale []Device
	err := ds.DB.
		Where("status = ?", DeviceOnline).
		Where("last_heartbeat IS NULL OR last_heartbeat < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "find_stale_devices").
			Build()
	}

	for i := range stale {
		stale[i].Status = DeviceOffline
		if err := ds.UpdateDevice(&stale[i]); err != nil {
			return nil, err
		}
	}

	return stale, nil
}
