// Package sqlite implements the repositories on an embedded SQLite file,
// or on a remote libSQL database when the path is a libsql:// or wss:// URL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"link-tracker/internal/repository/migrations"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // remote libSQL driver
	_ "modernc.org/sqlite"                               // embedded SQLite driver
)

// busyTimeoutPragma makes a writer wait for the lock instead of failing with SQLITE_BUSY
const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

// Open connects to path, applies migrations and returns the handle.
// After migrating, the pool is limited to one connection so writes are serialized.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	driver, dsn := driverFor(path)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if err := migrations.Up(ctx, db, goose.DialectSQLite3); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

func driverFor(path string) (driver, dsn string) {
	if strings.HasPrefix(path, "libsql://") || strings.HasPrefix(path, "wss://") {
		return "libsql", path
	}

	if strings.Contains(path, "_pragma=busy_timeout") {
		return "sqlite", path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "sqlite", path + sep + busyTimeoutPragma
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Both modernc and libSQL surface the SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
