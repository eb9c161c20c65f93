package app

import (
	"fmt"

	"dms/internal/config"
	"dms/internal/database"
	"dms/internal/database/migrations"
)

// MigrateDatabase brings the configured database to the latest schema and
// returns its status afterwards.
func MigrateDatabase(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return migrations.Status{}, fmt.Errorf("migrating database: %w", err)
	}
	return migrations.ReadStatus(db.DB())
}

// DatabaseStatus reports the schema version of the configured database.
func DatabaseStatus(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return migrations.ReadStatus(db.DB())
}
