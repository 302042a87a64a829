package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/noah-isme/student-records-api/pkg/config"
)

// sqliteUnicodeDriver is go-sqlite3 with LOWER replaced by a Unicode-aware
// version, so LOWER(name) folds the same way as strings.ToLower.
const sqliteUnicodeDriver = "sqlite3_unicode"

func init() {
	sql.Register(sqliteUnicodeDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
}

// NewSQLite opens a file backed SQLite database for local development.
func NewSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	// busy_timeout lets concurrent writers wait on the file lock instead of
	// failing immediately with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	raw, err := sql.Open(sqliteUnicodeDriver, dsn)
	if err != nil {
		return nil, err
	}
	// The sqlite3 name keeps sqlx binding and Migrate on the SQLite dialect.
	db := sqlx.NewDb(raw, config.DriverSQLite)
	// SQLite serialises writes; a single connection also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
