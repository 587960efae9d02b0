// Package commands implements the smartcoat CLI subcommands.
package commands

import (
	"database/sql"

	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/db"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/logger"
)

// openDatabase opens and migrates the smartcoat database. An empty path
// resolves through the config cascade.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve database path")
		}
		dbPath = path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

// shortID truncates a run ID for display
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
