// Package main applies the Postgres schema migrations.
package main

import (
	"fmt"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.LevelError).Fatalf("failed to load configuration: %v", err)
	}
	log := logging.New(logging.ParseLevel(cfg.Logging.Level))

	pg := cfg.Database.Postgres
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pg.User, pg.Password, pg.Host, pg.Port, pg.Database,
	)

	if err := storage.RunMigrations(databaseURL, pg.MigrationsPath); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	version, dirty, err := storage.MigrationVersion(databaseURL, pg.MigrationsPath)
	if err != nil {
		log.Fatalf("failed to read migration version: %v", err)
	}
	log.Infof("migrations applied, schema version %d (dirty=%t)", version, dirty)
}
