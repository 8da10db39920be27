package helpers

import (
	"testing"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/internal/infrastructure/database"
)

func testDatabaseConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Type:               "sqlite",
		Path:               ":memory:",
		RegionNameTemplate: "sectorwars_region_%s",
	}
}

func openTestDB(t *testing.T, migrations []database.Migration) *gorm.DB {
	t.Helper()

	db, err := database.Open(testDatabaseConfig(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := database.Migrate(db, migrations); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close(db)
	})

	return db
}

// NewGlobalTestDB creates an in-memory SQLite global shard for testing
func NewGlobalTestDB(t *testing.T) *gorm.DB {
	return openTestDB(t, persistence.GlobalMigrations())
}

// NewRegionTestDB creates an in-memory SQLite regional shard for testing
func NewRegionTestDB(t *testing.T) *gorm.DB {
	return openTestDB(t, persistence.RegionMigrations())
}
