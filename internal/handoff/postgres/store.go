// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package postgres stores hand-off requests in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// poolIface is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements handoff.Store on PostgreSQL.
type Store struct {
	pool poolIface
}

var _ handoff.Store = (*Store)(nil)

// NewStore wraps an existing pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, retrying the initial ping with exponential backoff.
func Open(ctx context.Context, dsn string, retries uint64) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "create pool").Wrap(err)
	}
	s := NewStore(pool)
	if err := s.ping(ctx, retries, 200*time.Millisecond); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ping(ctx context.Context, retries uint64, base time.Duration) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code(handoff.CodeStoreFailed).
			With("operation", "ping").
			With("retries", retries).
			Hint("check that PostgreSQL is reachable at the configured DSN").
			Wrap(err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements handoff.Store.
func (s *Store) Create(ctx context.Context, req *handoff.Request) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO handoff_requests (id, kind, state, source_actor, target_actor, payload, revision, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID.String(),
		string(req.Kind),
		string(req.State),
		string(req.SourceActor),
		string(req.TargetActor),
		req.Payload,
		req.Revision,
		req.CreatedAt,
		req.ResolvedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
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
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id.String())
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(handoff.CodeNotFound).In("handoff").With("id", id.String()).Errorf("request not found")
	}
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "get request").With("id", id.String()).Wrap(err)
	}
	return req, nil
}

// Update implements handoff.Store.
func (s *Store) Update(ctx context.Context, req *handoff.Request, expectedRevision int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE handoff_requests
		 SET state = $2, payload = $3, revision = $4, resolved_at = $5
		 WHERE id = $1 AND revision = $6`,
		req.ID.String(),
		string(req.State),
		req.Payload,
		expectedRevision+1,
		req.ResolvedAt,
		expectedRevision,
	)
	if err != nil {
		return oops.Code(handoff.CodeStoreFailed).With("operation", "update request").With("id", req.ID.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := s.pool.QueryRow(ctx, `SELECT revision FROM handoff_requests WHERE id = $1`, req.ID.String()).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
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
	var (
		rows pgx.Rows
		err  error
	)
	if target == "" {
		rows, err = s.pool.Query(ctx, selectColumns+` WHERE state = 'pending' ORDER BY id`)
	} else {
		rows, err = s.pool.Query(ctx, selectColumns+` WHERE state = 'pending' AND target_actor = $1 ORDER BY id`, string(target))
	}
	if err != nil {
		return nil, oops.Code(handoff.CodeStoreFailed).With("operation", "list pending").Wrap(err)
	}
	defer rows.Close()

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

func scanRequest(row pgx.Row) (*handoff.Request, error) {
	var (
		id, kind, state, source, target string
		req                             handoff.Request
	)
	if err := row.Scan(&id, &kind, &state, &source, &target, &req.Payload, &req.Revision, &req.CreatedAt, &req.ResolvedAt); err != nil {
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
	return &req, nil
}
