package db

import (
	"database/sql"
	"fmt"
)

// DB wraps the two connection pools used against the SQLite database.
// SQLite allows many concurrent readers but only a single writer, so
// queries go through a read-only pool while all writes share one
// connection.
type DB struct {
	reads  *sql.DB
	writes *sql.DB
}

// New opens the database at the given path. The schema must already be
// in place, so run Migrate before calling New.
func New(database string) (*DB, error) {
	writes, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}

	reads, err := readConnection(database)
	if err != nil {
		writes.Close()
		return nil, fmt.Errorf("failed to open read connection: %w", err)
	}

	return &DB{reads: reads, writes: writes}, nil
}

// Close closes both connection pools.
func (db *DB) Close() error {
	rerr := db.reads.Close()
	werr := db.writes.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
