package datastore

import (
	"time"

	"github.com/swarahealth/coughwatch-go/internal/errors"
)

// GetDashboardStats returns the aggregate counters for the dashboard:
// positive and total cough events created since the given time, plus
// device connectivity counts.
func (ds *DataStore) GetDashboardStats(since time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}

	queries := []struct {
		name string
		run  func() error
	}{
		{"positive_since", func() error {
			return ds.DB.Model(&CoughEvent{}).
				Where("status = ? AND created_at >= ?", StatusPositiveTB, since).
				Count(&stats.PositiveSince).Error
		}},
		{"total_since", func() error {
			return ds.DB.Model(&CoughEvent{}).
				Where("created_at >= ?", since).
				Count(&stats.TotalSince).Error
		}},
		{"active_devices", func() error {
			return ds.DB.Model(&Device{}).
				Where("status = ?", DeviceOnline).
				Count(&stats.ActiveDevices).Error
		}},
		{"total_devices", func() error {
			return ds.DB.Model(&Device{}).Count(&stats.TotalDevices).Error
		}},
	}

	for _, q := range queries {
		if err := q.run(); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "dashboard_stats").
				Context("query", q.name).
				Build()
		}
	}

	return stats, nil
}
