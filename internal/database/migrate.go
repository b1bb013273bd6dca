package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/models"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.DailyLog{},
		&models.LogAttachment{},
		&models.RevisionItem{},
		&models.StudentAggregate{},
		&models.StudentBadge{},
		&models.LogEvent{},
		&models.Notification{},
		&models.ActivityLog{},
	)
}
