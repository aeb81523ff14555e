// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure-Go translation of SQLite, so the binary
// cross-compiles without a C toolchain. WAL mode lets reads proceed while a
// write is in flight, which matters once concurrent requests share the pool.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Defer it wherever New is called.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe to run
// on every startup.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				display_name  TEXT NOT NULL,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				verified      INTEGER NOT NULL DEFAULT 0,
				admin         INTEGER NOT NULL DEFAULT 0,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"containers", `
			CREATE TABLE IF NOT EXISTS containers (
				runtime_id  TEXT NOT NULL DEFAULT '',
				owner       TEXT NOT NULL,
				name        TEXT NOT NULL,
				memory      INTEGER NOT NULL,
				memory_swap INTEGER NOT NULL,
				cpu_cores   INTEGER NOT NULL,
				cpu_shares  INTEGER NOT NULL,
				port        INTEGER NOT NULL DEFAULT 0,
				state       TEXT NOT NULL,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (owner, name)
			);
			-- At most one live record per leased port. Failed records carry
			-- port 0 and are exempt.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_containers_port
				ON containers(port) WHERE port > 0;
		`},
		{"credits", `
			CREATE TABLE IF NOT EXISTS credits (
				username TEXT PRIMARY KEY,
				credits  INTEGER NOT NULL DEFAULT 0
			);
		`},
		{"verification_codes", `
			CREATE TABLE IF NOT EXISTS verification_codes (
				code       TEXT PRIMARY KEY,
				username   TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"ip_logs", `
			CREATE TABLE IF NOT EXISTS ip_logs (
				username TEXT PRIMARY KEY,
				ip       TEXT NOT NULL,
				seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}

	return nil
}
