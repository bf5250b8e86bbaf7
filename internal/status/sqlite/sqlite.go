// Package sqlite implements status.Store on SQLite via the CGO-free
// modernc.org driver. DSN is a filesystem path; use ":memory:" for tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inkyu/botkeeper/internal/status"
	"github.com/inkyu/botkeeper/internal/worker"
)

type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_status(
			owner INTEGER PRIMARY KEY,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worker_config(
			owner INTEGER PRIMARY KEY,
			config TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) SetStatus(ctx context.Context, owner int64, st status.Status, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_status(owner, status, message, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			status=excluded.status,
			message=excluded.message,
			updated_at=excluded.updated_at;`,
		owner, string(st), message, time.Now().UTC())
	return err
}

func (s *DB) GetStatus(ctx context.Context, owner int64) (status.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner, status, message, updated_at FROM worker_status WHERE owner=?;`, owner)
	var rec status.Record
	var st string
	if err := row.Scan(&rec.Owner, &st, &rec.Message, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.Record{}, status.ErrNotFound
		}
		return status.Record{}, err
	}
	rec.Status = status.Status(st)
	return rec, nil
}

func (s *DB) List(ctx context.Context) ([]status.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, status, message, updated_at FROM worker_status ORDER BY owner;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []status.Record
	for rows.Next() {
		var rec status.Record
		var st string
		if err := rows.Scan(&rec.Owner, &st, &rec.Message, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = status.Status(st)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DB) SaveConfig(ctx context.Context, owner int64, cfg worker.Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_config(owner, config, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			config=excluded.config,
			updated_at=excluded.updated_at;`,
		owner, string(b), time.Now().UTC())
	return err
}

func (s *DB) GetConfig(ctx context.Context, owner int64) (worker.Config, error) {
	row := s.db.QueryRowContext(ctx, `SELECT config FROM worker_config WHERE owner=?;`, owner)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.Config{}, status.ErrNotFound
		}
		return worker.Config{}, err
	}
	var cfg worker.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return worker.Config{}, err
	}
	return cfg, nil
}

func (s *DB) DeleteConfig(ctx context.Context, owner int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM worker_config WHERE owner=?;`, owner)
	return err
}
