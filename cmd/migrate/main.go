package main

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"formsmith/internal/pkg/logger"
	"formsmith/internal/platform/config"
	"formsmith/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 1, "Number of migrations to roll back (down only)")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	switch *direction {
	case "up":
		err = database.Migrate(db)
	case "down":
		err = database.Rollback(db, *steps)
	default:
		log.Fatal().Str("direction", *direction).Msg("invalid direction: must be 'up' or 'down'")
	}
	if err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}

	version, dirty, err := database.Version(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migration version")
	}
	fmt.Printf("Migration completed successfully (version %d, dirty=%t)\n", version, dirty)
}
