package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"imfitboot/internal/errors"
	"imfitboot/internal/migration"
)

// Open connects to the run store and migrates its schema. driver is
// "sqlite" (pure Go, file path or ":memory:") or "postgres".
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", driver))
	}

	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, errors.StorageError("failed to connect to run store", err)
	}
	if driver == "sqlite" {
		// a single connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.StorageError("failed to enable foreign keys", err)
		}
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.StorageError("failed to migrate run store", err)
	}
	return db, nil
}
