package bolt

import (
	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"
)

// DB represents the embedded bolt database holding subscribers and daily stats
type DB struct {
	path    string
	stormDB *storm.DB
}

// NewDB returns new database
func NewDB(path string) *DB {
	return &DB{
		path: path,
	}
}

// Open opens new database connection
func (db *DB) Open() error {
	if db.path == "" {
		return errors.New("path required")
	}

	stormDB, err := storm.Open(db.path)
	if err != nil {
		return errors.Errorf("failed to open %s: %v", db.path, err)
	}
	db.stormDB = stormDB

	return nil
}

// Close closes database connection
func (db *DB) Close() error {
	if db.stormDB != nil {
		return db.stormDB.Close()
	}

	return nil
}
