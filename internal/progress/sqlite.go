package progress

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps drafts in a local SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

// OpenSQLite opens (or creates) the draft database at path and applies
// pending migrations. Pass ":memory:" for an in-memory database.
func OpenSQLite(path string, retention int) (*SQLiteStore, error) {
	if retention <= 0 {
		retention = DefaultSnapshots
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating draft directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening draft database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging draft database: %w", err)
	}

	// One connection avoids "database is locked" and keeps :memory: databases
	// shared between calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running draft migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := i + 1

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key Key, payload json.RawMessage) error {
	if err := ValidatePayload(payload); err != nil {
		return err
	}
	k := key.String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning draft save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO draft_snapshots (draft_key, payload, saved_at)
		 SELECT draft_key, payload, updated_at FROM drafts WHERE draft_key = ?`, k); err != nil {
		return fmt.Errorf("snapshotting draft %s: %w", k, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drafts (draft_key, environment, reviewer, assignment_id, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (draft_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		k, key.Environment, strings.ToLower(key.Reviewer), key.AssignmentID.String(), []byte(payload), now); err != nil {
		return fmt.Errorf("saving draft %s: %w", k, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM draft_snapshots WHERE draft_key = ? AND id NOT IN (
		   SELECT id FROM draft_snapshots WHERE draft_key = ? ORDER BY id DESC LIMIT ?)`,
		k, k, s.retention); err != nil {
		return fmt.Errorf("pruning snapshots of %s: %w", k, err)
	}
	return tx.Commit()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key Key) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM drafts WHERE draft_key = ?`, key.String()).Scan(&payload)
	if err == sql.ErrNoRows {
		return EmptyDraft, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading draft %s: %w", key, err)
	}
	return json.RawMessage(payload), nil
}

// Discard implements Store.
func (s *SQLiteStore) Discard(ctx context.Context, key Key) error {
	k := key.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning draft discard: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM draft_snapshots WHERE draft_key = ?`, k); err != nil {
		return fmt.Errorf("deleting snapshots of %s: %w", k, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE draft_key = ?`, k); err != nil {
		return fmt.Errorf("deleting draft %s: %w", k, err)
	}
	return tx.Commit()
}

// SnapshotCount returns how many previous saves are retained for key.
func (s *SQLiteStore) SnapshotCount(ctx context.Context, key Key) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM draft_snapshots WHERE draft_key = ?`, key.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots of %s: %w", key, err)
	}
	return n, nil
}
