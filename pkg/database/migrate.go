package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS students (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    email VARCHAR(254) NOT NULL,
    age INTEGER NOT NULL,
    course VARCHAR(100) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT students_age_range CHECK (age BETWEEN 18 AND 100),
    CONSTRAINT students_updated_after_created CHECK (updated_at >= created_at)
)`

// AUTOINCREMENT keeps SQLite from reusing the ids of deleted rows.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS students (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    age INTEGER NOT NULL CHECK (age BETWEEN 18 AND 100),
    course TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    CONSTRAINT students_updated_after_created CHECK (updated_at >= created_at)
)`

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_students_email ON students (email)`,
	`CREATE INDEX IF NOT EXISTS idx_students_course ON students (course)`,
	`CREATE INDEX IF NOT EXISTS idx_students_age ON students (age)`,
}

// Migrate creates the students table and its indexes when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := postgresSchema
	if db.DriverName() != "postgres" {
		schema = sqliteSchema
	}

	statements := append([]string{schema}, indexes...)
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate students: %w", err)
		}
	}
	return nil
}
