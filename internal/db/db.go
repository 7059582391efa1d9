// Package db is the sqlite persistence layer: vessel latest-state, alerts
// with evidence, alert cooldowns and optional position history. Schema is
// managed by embedded migrations (see migrate.go).
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB

	path string
}

// Open opens (creating if necessary) the sqlite database at path and applies
// the connection pragmas. It does not run migrations; callers decide when to
// migrate (see MigrateUp).
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = sqlDB.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// Tx mirrors the point-scoped store methods on a transaction so the pipeline
// can process one position report atomically.
type Tx struct {
	*sql.Tx
}

// BeginPointTx starts a transaction covering a single processed point.
func (db *DB) BeginPointTx() (*Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{tx}, nil
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, letting
// the store helpers run either standalone or inside a point transaction.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func nanosOf(t time.Time) int64 { return t.UnixNano() }

func timeOf(nanos int64) time.Time { return time.Unix(0, nanos).UTC() }

// nullFloat converts an optional field for binding.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// floatPtrOf converts a scanned nullable column back to an optional field.
func floatPtrOf(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
