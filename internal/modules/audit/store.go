package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/aristath/alpha-trader/internal/modules/alpha"
)

// Store persists one immutable snapshot of the alpha model per strategy
// cycle. Snapshots are JSON with an explicit schema version, so stored
// cycles stay readable for historical analytics after code changes.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens the cycle snapshot database, creating it if needed
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	store := &Store{
		db:   db,
		path: dbPath,
		log:  log.With().Str("service", "audit").Logger(),
	}

	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			id TEXT PRIMARY KEY,
			cycle_at TIMESTAMP NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			schema_version INTEGER NOT NULL,
			model TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle_at
			ON cycle_snapshots (cycle_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the model of a completed cycle and returns the snapshot id
func (s *Store) Record(model *alpha.Model) (string, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("failed to serialise cycle model: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO cycle_snapshots (id, cycle_at, recorded_at, schema_version, model) VALUES (?, ?, ?, ?, ?)`,
		id,
		model.Timestamp.UTC(),
		time.Now().UTC(),
		alpha.SchemaVersion,
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store cycle snapshot: %w", err)
	}

	s.log.Debug().
		Str("snapshot_id", id).
		Time("cycle_at", model.Timestamp).
		Msg("Cycle snapshot recorded")

	return id, nil
}

// Snapshot loads one stored cycle model by snapshot id
func (s *Store) Snapshot(id string) (*alpha.Model, error) {
	var data string
	var version int
	err := s.db.QueryRow(
		`SELECT schema_version, model FROM cycle_snapshots WHERE id = ?`, id,
	).Scan(&version, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle snapshot %s: %w", id, err)
	}

	return decodeModel(data, version)
}

// Latest loads the most recent stored cycle model, or nil when the
// store is empty
func (s *Store) Latest() (*alpha.Model, error) {
	var data string
	var version int
	err := s.db.QueryRow(
		`SELECT schema_version, model FROM cycle_snapshots ORDER BY cycle_at DESC LIMIT 1`,
	).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest cycle snapshot: %w", err)
	}

	return decodeModel(data, version)
}

// Count returns the number of stored snapshots
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cycle_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cycle snapshots: %w", err)
	}
	return count, nil
}

func decodeModel(data string, version int) (*alpha.Model, error) {
	if version != alpha.SchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot schema version %d (current %d)", version, alpha.SchemaVersion)
	}
	var model alpha.Model
	if err := json.Unmarshal([]byte(data), &model); err != nil {
		return nil, fmt.Errorf("failed to decode cycle snapshot: %w", err)
	}
	return &model, nil
}
