// Package dbindex implements the offline content index writer the data
// runloop steps once per tick.
//
// A Writer scans a fixed list of content paths into a SQLite database, one
// entry per Iterate call, so a large scan never stalls the tick loop. The
// database uses WAL mode and a single connection, SQLite's single-writer
// model.
package dbindex

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Writer incrementally indexes content files into SQLite.
type Writer struct {
	db        *sql.DB
	paths     []string
	pos       int
	indexed   int
	blocking  bool
	iterating bool
}

// NewWriter opens (or creates) the index database at dbPath and prepares to
// index the given content paths.
func NewWriter(dbPath string, paths []string) (*Writer, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index db: %w", err)
	}

	// One connection: SQLite allows a single writer, and the runloop's DB
	// driver is the only caller.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}

	return &Writer{
		db:        db,
		paths:     append([]string(nil), paths...),
		iterating: len(paths) > 0,
	}, nil
}

// Blocking reports whether the writer is waiting on out-of-band I/O.
func (w *Writer) Blocking() bool {
	return w.blocking
}

// Iterating reports whether entries remain to be written.
func (w *Writer) Iterating() bool {
	return w.iterating
}

// Iterate indexes the next content path. An unreadable path is skipped, not
// fatal; the scan keeps going.
func (w *Writer) Iterate() error {
	if !w.iterating {
		return nil
	}

	path := w.paths[w.pos]
	w.pos++
	if w.pos >= len(w.paths) {
		w.iterating = false
	}

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}

	_, err = w.db.Exec(`
		INSERT INTO entries (path, name, size, mtime)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			mtime = excluded.mtime`,
		path, filepath.Base(path), fi.Size(), fi.ModTime().Unix())
	if err != nil {
		return fmt.Errorf("write index entry %s: %w", path, err)
	}
	w.indexed++
	return nil
}

// Indexed returns the number of entries written by this Writer. Valid even
// after Free.
func (w *Writer) Indexed() int {
	return w.indexed
}

// Count returns the number of indexed entries.
func (w *Writer) Count() (int, error) {
	var n int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return n, nil
}

// Free closes the database. The Writer must not be used afterwards.
func (w *Writer) Free() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}
