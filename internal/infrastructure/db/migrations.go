package db

import (
	"github.com/dia/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.User{},
		&domain.RefreshToken{},
		&domain.Task{},
		&domain.SmartTag{},
		&domain.TimelineEvent{},
		&domain.UserSetting{},
	)
	if err != nil {
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		return err
	}

	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	// Owner-scoped range queries from the assistant filter
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_owner_start
		ON tasks (owner_id, start_time)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_owner_status_mark
		ON tasks (owner_id, status, mark)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_timeline_events_owner_request
		ON timeline_events (owner_id, request_id)
	`).Error; err != nil {
		return err
	}

	return nil
}
