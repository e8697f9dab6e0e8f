package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/welthhq/welth/internal/config"
	"github.com/welthhq/welth/internal/logger"
)

func main() {
	var dir = flag.String("dir", "", "migrations directory (defaults to ./migrations)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	migrationsDir := *dir
	if migrationsDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve working directory")
		}
		migrationsDir = filepath.Join(wd, "migrations")
	}

	log.Info().Str("dir", migrationsDir).Msg("Applying migrations")

	if err := goose.Up(db, migrationsDir); err != nil {
		log.Fatal().Err(err).Msg("Migrations failed")
	}

	log.Info().Msg("Migrations applied")
}
