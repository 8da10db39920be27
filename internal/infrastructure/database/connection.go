package database

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Open creates a database connection for one shard. dsn is the shard's
// connection string (postgres) or file path (sqlite).
func Open(cfg *config.DatabaseConfig, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(dsn)

	case "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool (only for PostgreSQL)
	if cfg.Type == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpen)
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdle)
		sqlDB.SetConnMaxLifetime(cfg.Pool.MaxLifetime)
	}

	return db, nil
}

// GlobalDSN resolves the global shard's connection string.
func GlobalDSN(cfg *config.DatabaseConfig) string {
	if cfg.Type == "sqlite" {
		if cfg.Path == "" {
			return ":memory:"
		}
		return cfg.Path
	}
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// RegionDSN derives a regional shard's connection string from the global
// shard's settings and the name template. Dashes in region names become
// underscores so the result is a plain database identifier.
func RegionDSN(cfg *config.DatabaseConfig, region string) (string, error) {
	shardName := cfg.RegionDatabaseName(strings.ReplaceAll(region, "-", "_"))

	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" || cfg.Path == ":memory:" {
			// Tests get an isolated in-memory shard per region
			return ":memory:", nil
		}
		return filepath.Join(filepath.Dir(cfg.Path), shardName+".db"), nil

	case "postgres":
		if cfg.URL != "" {
			u, err := url.Parse(cfg.URL)
			if err != nil {
				return "", fmt.Errorf("invalid database url: %w", err)
			}
			u.Path = "/" + shardName
			return u.String(), nil
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, shardName, cfg.SSLMode), nil

	default:
		return "", fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
