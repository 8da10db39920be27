package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration is one numbered schema step. IDs order lexically (0001_, 0002_)
// and are recorded per shard in schema_migrations.
type Migration struct {
	ID      string
	Migrate func(db *gorm.DB) error
}

type schemaMigration struct {
	ID        string    `gorm:"column:id;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// Migrate applies pending migrations in order. Each step runs in its own
// transaction together with its schema_migrations record.
func Migrate(db *gorm.DB, migrations []Migration) error {
	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	var applied []schemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.ID] = true
	}

	for _, m := range migrations {
		if done[m.ID] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Migrate(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{ID: m.ID, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.ID, err)
		}
	}
	return nil
}
