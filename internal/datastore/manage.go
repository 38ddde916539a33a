package datastore

import (
	"fmt"

	"github.com/swarahealth/coughwatch-go/internal/logging"
	"gorm.io/gorm"
)

// performAutoMigration runs gorm auto-migration for all models.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&User{},
		&Device{},
		&CoughEvent{},
		&CoughNote{},
		&CoughNotification{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		logging.ForService("datastore").Debug("database connection initialized",
			"type", dbType,
			"connection", connectionInfo)
	}

	return nil
}
