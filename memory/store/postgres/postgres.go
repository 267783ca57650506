// Package postgres persists conversation turns and fact sheets in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Store implements memory.ConversationStore and memory.FactStore.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ memory.ConversationStore = (*Store)(nil)
	_ memory.FactStore         = (*Store)(nil)
)

// New connects to databaseURL and creates the schema if needed.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", memory.ErrBackendUnavailable, err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_thread
			ON conversation_turns (user_id, thread_id, created_at, id);`,
		`CREATE TABLE IF NOT EXISTS user_facts (
			user_id TEXT PRIMARY KEY,
			facts JSONB NOT NULL DEFAULT '{}'::jsonb,
			last_update TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append inserts turns in one transaction.
func (s *Store) Append(ctx context.Context, userID, threadID string, turns ...core.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range turns {
			at := t.Timestamp
			if at.IsZero() {
				at = time.Now().UTC()
			}
			batch.Queue(
				`INSERT INTO conversation_turns (user_id, thread_id, role, content, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				userID, threadID, string(t.Role), t.Content, at,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return wrapErr("append turns", err)
	}
	return nil
}

// QueryRecent returns up to limit turns, newest first.
func (s *Store) QueryRecent(ctx context.Context, userID, threadID string, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, created_at FROM conversation_turns
		 WHERE user_id=$1 AND thread_id=$2
		 ORDER BY created_at DESC, id DESC LIMIT $3`,
		userID, threadID, limit,
	)
	if err != nil {
		return nil, wrapErr("query recent turns", err)
	}
	return scanTurns(rows, limit)
}

// History returns turns oldest first.
func (s *Store) History(ctx context.Context, userID, threadID string, offset, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, created_at FROM conversation_turns
		 WHERE user_id=$1 AND thread_id=$2
		 ORDER BY created_at ASC, id ASC OFFSET $3 LIMIT $4`,
		userID, threadID, offset, limit,
	)
	if err != nil {
		return nil, wrapErr("query history", err)
	}
	return scanTurns(rows, limit)
}

func scanTurns(rows pgx.Rows, capacity int) ([]core.Turn, error) {
	defer rows.Close()

	turns := make([]core.Turn, 0, capacity)
	for rows.Next() {
		var (
			t    core.Turn
			role string
		)
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = core.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate turn rows", err)
	}
	return turns, nil
}

// Get returns the user's sheet, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID string) (*core.FactSheet, error) {
	var (
		raw   []byte
		sheet = core.FactSheet{UserID: userID}
	)
	err := s.pool.QueryRow(ctx,
		`SELECT facts, last_update FROM user_facts WHERE user_id=$1`, userID,
	).Scan(&raw, &sheet.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get facts", err)
	}
	if err := json.Unmarshal(raw, &sheet.Facts); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	if sheet.Facts == nil {
		sheet.Facts = map[string]string{}
	}
	return &sheet, nil
}

// Put upserts the user's facts.
func (s *Store) Put(ctx context.Context, userID string, facts map[string]string, updatedAt time.Time) error {
	raw, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("encode facts: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_facts (user_id, facts, last_update) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET facts = EXCLUDED.facts, last_update = EXCLUDED.last_update`,
		userID, raw, updatedAt,
	)
	if err != nil {
		return wrapErr("put facts", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %v", memory.ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// wrapErr adds op to err and marks lost connections as ErrBackendUnavailable.
func wrapErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, memory.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	return errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
