package main

// Apply the embedded migrations to DATABASE_URL:
//   go run ./cmd/migrate
// Print the applied version without migrating:
//   go run ./cmd/migrate -status

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"picture-backend/internal/shared/config"
	"picture-backend/internal/shared/storage/db"
)

func main() {
	status := flag.Bool("status", false, "print the applied migration version and exit")
	databaseURL := flag.String("database-url", "", "override DATABASE_URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg := config.Load()
	if v := strings.TrimSpace(*databaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, dialect, err := db.Open(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if !*status {
		if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
			log.Printf("failed to run migrations: %v", err)
			os.Exit(1)
		}
	}
	version, err := db.MigrationVersion(ctx, sqlDB, dialect)
	if err != nil {
		log.Printf("failed to read migration version: %v", err)
		os.Exit(1)
	}
	log.Printf("user_submissions schema at version %d (%s)", version, dialect)
}
