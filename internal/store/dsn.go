package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dialect identifies the database engine behind a DATABASE_URL
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// ParseURL splits a DATABASE_URL into dialect and driver DSN.
//
//	sqlite:///data/app.db     relative path data/app.db
//	sqlite:////var/app.db     absolute path /var/app.db
//	sqlite:///:memory:        in-memory database
//	postgres://user:pw@host/db
func ParseURL(raw string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(raw, "sqlite:///"):
		path := strings.TrimPrefix(raw, "sqlite:///")
		if path == "" {
			return "", "", fmt.Errorf("database url %q has no path", raw)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return DialectSQLite, path + sep + sqliteParams, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DialectPostgres, raw, nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", raw)
	}
}

// ensureDir creates the parent directory of a file-backed SQLite DSN
func ensureDir(dsn string) error {
	path, _, _ := strings.Cut(dsn, "?")
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return nil
	}
	path = strings.TrimPrefix(path, "file:")
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
