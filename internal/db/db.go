// Package db opens the run database and applies its migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

type pragma struct {
	stmt string
	// optional pragmas log a warning instead of failing Open.
	optional bool
}

var pragmas = []pragma{
	{stmt: "PRAGMA foreign_keys=ON;"},
	{stmt: "PRAGMA journal_mode=WAL;", optional: true},
	{stmt: "PRAGMA busy_timeout=5000;"},
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

// Open opens the run database at path, creating its directory, and brings
// the schema up to date.
func Open(path string) (*sql.DB, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// ":memory:" databases are per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, setup := range []func(*sql.DB) error{applyPragmas, migrate} {
		if err := setup(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// SchemaVersion returns the newest applied migration version.
func SchemaVersion(db *sql.DB) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := configureGoose(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		_, err := db.Exec(p.stmt)
		switch {
		case err == nil:
		case p.optional:
			log.Warn().Err(err).Str("pragma", p.stmt).Msg("sqlite pragma not applied")
		default:
			return fmt.Errorf("apply pragma %q: %w", p.stmt, err)
		}
	}
	return nil
}

func configureGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := configureGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
