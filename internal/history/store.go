// Package history keeps a local log of completed tool invocations, so a
// user can see what was run against their hardware and with which outcome.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"avrbridge/internal/domain"
)

// Store persists invocation records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invocations (
		id          TEXT PRIMARY KEY,
		tool_id     TEXT NOT NULL,
		command     TEXT NOT NULL,
		args        TEXT,
		exit_code   INTEGER DEFAULT 0,
		outcome     TEXT NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_invocations_time ON invocations(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one invocation. Failures are logged, never returned: a
// broken history database must not fail a hardware operation.
func (s *Store) Record(ctx context.Context, inv domain.Invocation) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	args, err := json.Marshal(inv.Args)
	if err != nil {
		s.logger.Warn("cannot encode invocation args", "err", err)
		args = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations (id, tool_id, command, args, exit_code, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ToolID, inv.Command, string(args), inv.ExitCode, inv.Outcome,
		inv.Duration.Milliseconds(), inv.CreatedAt,
	)
	if err != nil {
		s.logger.Warn("cannot record invocation", "tool", inv.ToolID, "err", err)
	}
}

// Recent returns the newest invocations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool_id, command, args, exit_code, outcome, duration_ms, created_at
		 FROM invocations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var result []domain.Invocation
	for rows.Next() {
		var inv domain.Invocation
		var args string
		var durationMS int64
		if err := rows.Scan(&inv.ID, &inv.ToolID, &inv.Command, &args,
			&inv.ExitCode, &inv.Outcome, &durationMS, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &inv.Args); err != nil {
			s.logger.Warn("cannot decode invocation args", "id", inv.ID, "err", err)
		}
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		result = append(result, inv)
	}
	return result, rows.Err()
}

// PruneOlderThan deletes records older than the given age and returns how
// many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	return res.RowsAffected()
}
