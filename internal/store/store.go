package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

const currentVersion = 1

type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := newWithDB(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

// newWithDB wraps an already opened handle without migrating it.
func newWithDB(db *sql.DB) *Store {
	return &Store{db: db, logger: log.New(io.Discard)}
}

// SetLogger routes warnings about unreadable rows to l.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

// migrateV1 creates the kitchen schema. The statements are idempotent so a
// database written by an earlier build of the app (same tables, no
// user_version) is adopted as is.
func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS cooks (
		pin   INTEGER PRIMARY KEY,
		name  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clock_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_name   TEXT NOT NULL,
		clock_in_time   TEXT NOT NULL,
		clock_out_time  TEXT,
		status          TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clock_logs_open ON clock_logs(employee_name, clock_out_time);

	CREATE TABLE IF NOT EXISTS tickets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		cook_pin    INTEGER NOT NULL REFERENCES cooks(pin),
		date        TEXT NOT NULL,
		time_taken  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_date ON tickets(date);
	CREATE INDEX IF NOT EXISTS idx_tickets_cook ON tickets(cook_pin, date);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// DefaultDBPath returns ~/.config/linecook/kitchen_tracker.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "linecook", "kitchen_tracker.db"), nil
}
