package database

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// ShardManager owns the global shard connection and lazily opens one
// connection per regional shard. Account identity, federation state and
// durable events live in the global shard; everything gameplay-local lives in
// the owning region's shard.
type ShardManager struct {
	cfg              *config.DatabaseConfig
	logger           zerolog.Logger
	regionMigrations []Migration

	mu      sync.Mutex
	global  *gorm.DB
	regions map[string]*gorm.DB
}

// NewShardManager opens the global shard and applies its migrations. The
// region list is held for the lazy per-shard migration in Region; the model
// lists live with the gorm models, keeping this package below the adapters.
func NewShardManager(cfg *config.DatabaseConfig, logger zerolog.Logger, globalMigrations, regionMigrations []Migration) (*ShardManager, error) {
	db, err := Open(cfg, GlobalDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open global shard: %w", err)
	}
	if err := Migrate(db, globalMigrations); err != nil {
		return nil, fmt.Errorf("failed to migrate global shard: %w", err)
	}

	return &ShardManager{
		cfg:              cfg,
		logger:           logger.With().Str("component", "shards").Logger(),
		regionMigrations: regionMigrations,
		global:           db,
		regions:          make(map[string]*gorm.DB),
	}, nil
}

// Global returns the global shard connection.
func (m *ShardManager) Global() *gorm.DB {
	return m.global
}

// Region returns the shard connection for a region, opening and migrating it
// on first use. Connections are cached for the manager's lifetime.
func (m *ShardManager) Region(name string) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.regions[name]; ok {
		return db, nil
	}

	dsn, err := RegionDSN(m.cfg, name)
	if err != nil {
		return nil, err
	}
	db, err := Open(m.cfg, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard for region %q: %w", name, err)
	}
	if err := Migrate(db, m.regionMigrations); err != nil {
		return nil, fmt.Errorf("failed to migrate shard for region %q: %w", name, err)
	}

	m.logger.Info().Str("region", name).Msg("opened regional shard")
	m.regions[name] = db
	return db, nil
}

// DropRegion closes a decommissioned region's connection. The underlying
// database is archived out of band, never dropped here.
func (m *ShardManager) DropRegion(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, ok := m.regions[name]
	if !ok {
		return nil
	}
	delete(m.regions, name)
	return Close(db)
}

// RegionNames lists regions with an open shard connection.
func (m *ShardManager) RegionNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.regions))
	for name := range m.regions {
		names = append(names, name)
	}
	return names
}

// Close closes every open shard connection.
func (m *ShardManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, db := range m.regions {
		if err := Close(db); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.regions, name)
	}
	if err := Close(m.global); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
