package database

import (
	"context"
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/migrations"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the PostgreSQL connection pool.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	logger.Info().Int("max_open", 25).Int("max_idle", 10).Msg("Connected to PostgreSQL")
	return db, nil
}

// TableModels lists every table owned by the messaging subsystem.
func TableModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.MessageDeletion{},
	}
}

// Migrate creates the tables and then applies the versioned migrations.
func Migrate(db *gorm.DB) error {
	logger.Info().Msg("Running database migrations (stage 1: tables)")
	if err := db.AutoMigrate(TableModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	logger.Info().Msg("Running database migrations (stage 2: indexes)")
	if err := migrations.NewMigrator(db).Run(); err != nil {
		return err
	}
	logger.Info().Msg("Database migrations complete")
	return nil
}

// Ping reports whether the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
