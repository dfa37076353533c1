package sqlite

import (
	"database/sql"
	"embed"
	"io/fs"
	"sort"

	"github.com/go-errors/errors"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migration/*.sql
var migrationFS embed.FS

// DB wraps the SQLite file holding subscribers and daily stats. The embedded
// schema migrations are applied on Open.
type DB struct {
	sqlDB *sql.DB
	path  string
}

// NewDB returns new database
func NewDB(path string) *DB {
	return &DB{
		path: path,
	}
}

// Open opens the database file and brings the schema up to date
func (db *DB) Open() error {
	if db.path == "" {
		return errors.New("path required")
	}

	if db.sqlDB != nil {
		return nil
	}

	sqlDB, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return errors.Errorf("failed to open %s: %v", db.path, err)
	}
	db.sqlDB = sqlDB

	if err := db.migrate(); err != nil {
		return errors.Errorf("failed to migrate %s: %v", db.path, err)
	}

	return nil
}

// migrate applies every migration/*.sql script that has not run yet, in name
// order. Applied names are tracked in the migrations table.
func (db *DB) migrate() error {
	if _, err := db.sqlDB.Exec(`CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return errors.Errorf("failed to create migrations table: %v", err)
	}

	names, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := db.migrateFile(name); err != nil {
			return errors.Errorf("failed to apply %s: %v", name, err)
		}
	}

	return nil
}

// migrateFile runs one script inside a transaction so a failed migration
// leaves no trace.
func (db *DB) migrateFile(name string) error {
	tx, err := db.sqlDB.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM migrations WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	}
	if n != 0 {
		return nil
	}

	script, err := fs.ReadFile(migrationFS, name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(string(script)); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO migrations (name) VALUES (?)`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes database connection
func (db *DB) Close() error {
	if db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}
