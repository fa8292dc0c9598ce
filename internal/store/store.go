// Package store manages the SQLite database holding the mirrored catalog.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Identity uniqueness is enforced by the
// schema: every kind's remote_id column carries a UNIQUE constraint, so
// get-or-create and vote increments are single statements and cannot race
// into duplicate rows or lost updates.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/njoerd114/holocron/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS characters (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id  INTEGER NOT NULL,
    url        TEXT    NOT NULL DEFAULT '',
    votes      INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
    created_at TEXT    NOT NULL DEFAULT '',
    updated_at TEXT    NOT NULL DEFAULT '',
    name       TEXT    NOT NULL DEFAULT '',
    height     TEXT    NOT NULL DEFAULT '',
    mass       TEXT    NOT NULL DEFAULT '',
    gender     TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS films (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id    INTEGER NOT NULL,
    url          TEXT    NOT NULL DEFAULT '',
    votes        INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
    created_at   TEXT    NOT NULL DEFAULT '',
    updated_at   TEXT    NOT NULL DEFAULT '',
    title        TEXT    NOT NULL DEFAULT '',
    episode_id   INTEGER,
    director     TEXT    NOT NULL DEFAULT '',
    producer     TEXT    NOT NULL DEFAULT '',
    release_date TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS starships (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id    INTEGER NOT NULL,
    url          TEXT    NOT NULL DEFAULT '',
    votes        INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
    created_at   TEXT    NOT NULL DEFAULT '',
    updated_at   TEXT    NOT NULL DEFAULT '',
    name         TEXT    NOT NULL DEFAULT '',
    model        TEXT    NOT NULL DEFAULT '',
    manufacturer TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS character_films (
    character_id INTEGER NOT NULL REFERENCES characters (id) ON DELETE CASCADE,
    film_id      INTEGER NOT NULL REFERENCES films (id)      ON DELETE CASCADE,
    PRIMARY KEY (character_id, film_id)
);

CREATE TABLE IF NOT EXISTS character_starships (
    character_id INTEGER NOT NULL REFERENCES characters (id) ON DELETE CASCADE,
    starship_id  INTEGER NOT NULL REFERENCES starships (id)  ON DELETE CASCADE,
    PRIMARY KEY (character_id, starship_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_characters_remote_id ON characters (remote_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_films_remote_id      ON films (remote_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_starships_remote_id  ON starships (remote_id);
CREATE INDEX        IF NOT EXISTS idx_character_films_film         ON character_films (film_id);
CREATE INDEX        IF NOT EXISTS idx_character_starships_starship ON character_starships (starship_id);
`

var (
	// ErrDuplicateRemoteID is returned by Create and Update when another
	// record of the same kind already holds the remote id.
	ErrDuplicateRemoteID = errors.New("remote_id already exists")

	// ErrRemoteIDImmutable is returned by Update when the caller tries to
	// change a record's remote id.
	ErrRemoteIDImmutable = errors.New("remote_id cannot be changed")

	// ErrUnknownLink is returned when a character is linked to a film or
	// starship id that does not exist.
	ErrUnknownLink = errors.New("linked record does not exist")
)

// Store is the SQLite-backed record repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default path for the database:
// ~/.local/share/holocron/holocron.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "holocron", "holocron.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL. This also serializes every
	// read-modify-write the store performs.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Counts returns the number of stored records per kind.
func (s *Store) Counts(ctx context.Context) (map[model.Kind]int, error) {
	counts := make(map[model.Kind]int, len(model.Kinds))
	for _, kind := range model.Kinds {
		t := tables[kind]
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.name).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan functions can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// querier matches both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// constraintError maps SQLite constraint violations to the package's
// sentinel errors. Other errors are returned unchanged.
func constraintError(err error) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return ErrDuplicateRemoteID
	case sqlite3.ErrConstraintForeignKey:
		return ErrUnknownLink
	}
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
