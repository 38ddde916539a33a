// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log"
	"os"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/conf"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the
// operations the services need.
type Interface interface {
	Open() error
	Close() error

	// Cough events
	SaveCoughEvent(event *CoughEvent) error
	GetCoughEvent(id string) (*CoughEvent, error)
	UpdateCoughEvent(event *CoughEvent) error
	DeleteCoughEvent(id string) error
	SearchCoughEvents(filter *CoughEventFilter) ([]CoughEvent, int64, error)
	AddCoughNote(note *CoughNote) error

	// Devices
	SaveDevice(device *Device) error
	GetDeviceByDeviceID(deviceID string) (*Device, error)
	GetAllDevices() ([]Device, error)
	UpdateDevice(device *Device) error
	DeleteDevice(deviceID string) error
	TouchDeviceHeartbeat(deviceID string, at time.Time) (*Device, error)
	MarkStaleDevicesOffline(cutoff time.Time) ([]Device, error)

	// Notifications
	SaveNotification(notification *CoughNotification) error
	GetNotification(id string) (*CoughNotification, error)
	GetUnreadNotifications() ([]CoughNotification, int64, error)
	AcknowledgeNotification(id, userID string, at time.Time) error

	// Users
	SaveUser(user *User) error
	UpdateUser(user *User) error
	GetUser(id string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByUsername(username string) (*User, error)

	// Dashboard
	GetDashboardStats(since time.Time) (*DashboardStats, error)
}

// CoughEventFilter describes the optional filters and pagination for
// SearchCoughEvents. A nil pointer field means "no filter".
type CoughEventFilter struct {
	Status   string     // lifecycle status, empty for all
	Start    *time.Time // inclusive lower bound on capture timestamp
	End      *time.Time // inclusive upper bound on capture timestamp
	DeviceID *uint      // internal device key, resolved by the caller
	UserID   string     // owning user, empty for all
	Page     int        // 1-indexed
	Limit    int
}

// DashboardStats holds the aggregate counters shown on the dashboard.
type DashboardStats struct {
	PositiveSince int64 `json:"positiveLast24h"`
	TotalSince    int64 `json:"totalLast24h"`
	ActiveDevices int64 `json:"activeDevices"`
	TotalDevices  int64 `json:"totalDevices"`
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
// Returns nil when no database output is enabled; conf validation is
// expected to catch that earlier.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
