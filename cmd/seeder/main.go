package main

import (
	"context"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/config"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/database"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/seeds"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
)

func main() {
	cfg, err := config.Load(".env")
	logger.Init("development", "info")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.IsProduction() {
		logger.Fatal().Msg("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database unavailable")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("Database migration failed")
	}

	threads := seeds.DemoThreads(cfg.SystemMemberID)
	if err := seeds.SeedConversations(context.Background(), store.New(db), threads); err != nil {
		logger.Fatal().Err(err).Msg("Seeding failed")
	}
	logger.Info().Int("threads", len(threads)).Msg("Seeding complete")
}
