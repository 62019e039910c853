// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package sqlite stores hand-off requests in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// Store implements handoff.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ handoff.Store = (*Store)(nil)

// Open opens or creates the database at path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "ping").Wrap(err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, oops.Code(handoff.CodeStoreFailed).Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "open").Wrap(err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create implements handoff.Store.
func (s *Store) Create(ctx context.Context, req *handoff.Request) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoff_requests (id, kind, state, source_actor, target_actor, payload, revision, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID.String(),
		string(req.Kind),
		string(req.State),
		string(req.SourceActor),
		string(req.TargetActor),
		req.Payload,
		req.Revision,
		toMillis(req.CreatedAt),
		nullMillis(req.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(handoff.CodeDuplicate).In("handoff").With("id", req.ID.String()).Errorf("request already exists")
		}
		return oops.Code(handoff.CodeStoreFailed).With("operation", "create request").With("id", req.ID.String()).Wrap(err)
	}
	return nil
}

const selectColumns = `SELECT id, kind, state, source_actor, target_actor, payload, revision, created_at, resolved_at
	 FROM handoff_requests`

// Get implements handoff.Store.
func (s *Store) Get(ctx context.Context, id ulid.ULID) (*handoff.Request, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(handoff.CodeNotFound).In("handoff").With("id", id.String()).Errorf("request not found")
	}
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "get request").With("id", id.String()).Wrap(err)
	}
	return req, nil
}

// Update implements handoff.Store.
func (s *Store) Update(ctx context.Context, req *handoff.Request, expectedRevision int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE handoff_requests
		 SET state = ?, payload = ?, revision = ?, resolved_at = ?
		 WHERE id = ? AND revision = ?`,
		string(req.State),
		req.Payload,
		expectedRevision+1,
		nullMillis(req.ResolvedAt),
		req.ID.String(),
		expectedRevision,
	)
	if err != nil {
		return oops.Code(handoff.CodeStoreFailed).With("operation", "update request").With("id", req.ID.String()).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code(handoff.CodeStoreFailed).With("operation", "update request").With("id", req.ID.String()).Wrap(err)
	}
	if n == 0 {
		var current int
		err := s.db.QueryRowContext(ctx, `SELECT revision FROM handoff_requests WHERE id = ?`, req.ID.String()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return oops.Code(handoff.CodeNotFound).In("handoff").With("id", req.ID.String()).Errorf("request not found")
		}
		if err != nil {
			return oops.Code(handoff.CodeStoreFailed).With("operation", "check revision").With("id", req.ID.String()).Wrap(err)
		}
		return oops.Code(handoff.CodeConflict).
			In("handoff").
			With("id", req.ID.String()).
			With("expected", expectedRevision).
			With("actual", current).
			Errorf("request was modified concurrently")
	}
	req.Revision = expectedRevision + 1
	return nil
}

// ListPending implements handoff.Store.
func (s *Store) ListPending(ctx context.Context, target resolve.Actor) ([]*handoff.Request, error) {
	query := selectColumns + ` WHERE state = 'pending'`
	var args []any
	if target != "" {
		query += ` AND target_actor = ?`
		args = append(args, string(target))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "list pending").Wrap(err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*handoff.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "scan request row").Wrap(err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "iterate pending").Wrap(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*handoff.Request, error) {
	var (
		id, kind, state, source, target string
		created                         int64
		resolved                        sql.NullInt64
		req                             handoff.Request
	)
	if err := row.Scan(&id, &kind, &state, &source, &target, &req.Payload, &req.Revision, &created, &resolved); err != nil {
		return nil, err
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.With("id", id).Wrapf(err, "corrupt request id")
	}
	req.ID = parsed
	req.Kind = wire.Kind(kind)
	req.State = handoff.State(state)
	req.SourceActor = resolve.Actor(source)
	req.TargetActor = resolve.Actor(target)
	req.CreatedAt = fromMillis(created)
	if resolved.Valid {
		at := fromMillis(resolved.Int64)
		req.ResolvedAt = &at
	}
	return &req, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
