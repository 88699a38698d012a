package migrations

import (
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"gorm.io/gorm"
)

// Migration represents a database migration
type Migration struct {
	ID        string // Unique identifier (e.g., "001_messaging_indexes")
	Name      string // Human-readable name
	Up        func(db *gorm.DB) error
	Down      func(db *gorm.DB) error
	DependsOn []string // IDs of migrations this depends on
}

// MigrationRecord tracks which migrations have been applied
type MigrationRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"type:text"`
	AppliedAt time.Time `gorm:"autoUpdateTime:nano"`
}

// TableName overrides the table name
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Migrator handles database migrations
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator creates a new migrator
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: GetMigrations(),
	}
}

// Run executes all pending migrations
func (m *Migrator) Run() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.Applied()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.ID] {
			continue
		}

		logger.Info().Str("migration", migration.ID).Str("name", migration.Name).Msg("Running migration")

		for _, dep := range migration.DependsOn {
			if !applied[dep] {
				return fmt.Errorf("migration %s depends on %s which is not applied", migration.ID, dep)
			}
		}

		if err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				ID:   migration.ID,
				Name: migration.Name,
			}).Error
		}); err != nil {
			logger.Error().Err(err).Str("migration", migration.ID).Msg("Migration failed")
			return fmt.Errorf("migration %s failed: %w", migration.ID, err)
		}

		applied[migration.ID] = true
		logger.Info().Str("migration", migration.ID).Msg("Migration completed")
	}

	return nil
}

// Rollback reverts one applied migration and removes its record. It refuses
// while another applied migration still depends on it.
func (m *Migrator) Rollback(id string) error {
	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].ID == id {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("unknown migration %s", id)
	}
	if migration.Down == nil {
		return fmt.Errorf("migration %s cannot be rolled back", id)
	}

	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := m.Applied()
	if err != nil {
		return err
	}
	if !applied[id] {
		return fmt.Errorf("migration %s is not applied", id)
	}
	for _, other := range m.migrations {
		if !applied[other.ID] {
			continue
		}
		for _, dep := range other.DependsOn {
			if dep == id {
				return fmt.Errorf("migration %s is required by %s", id, other.ID)
			}
		}
	}

	logger.Info().Str("migration", id).Str("name", migration.Name).Msg("Rolling back migration")
	if err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&MigrationRecord{ID: id}).Error
	}); err != nil {
		logger.Error().Err(err).Str("migration", id).Msg("Rollback failed")
		return fmt.Errorf("rollback of %s failed: %w", id, err)
	}
	logger.Info().Str("migration", id).Msg("Rollback completed")
	return nil
}

// Applied returns the set of migration ids already recorded.
func (m *Migrator) Applied() (map[string]bool, error) {
	var records []MigrationRecord
	if err := m.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(records))
	for _, r := range records {
		applied[r.ID] = true
	}
	return applied, nil
}

// GetMigrations returns all registered migrations in order
func GetMigrations() []Migration {
	return []Migration{
		Migration001MessagingIndexes(),
		Migration002MemberListingIndex(),
	}
}
