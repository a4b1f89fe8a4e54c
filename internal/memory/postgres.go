package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions, turns and facts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session_provider ON turns (session_id, provider_id, created_at, seq);`,
		`CREATE TABLE IF NOT EXISTS facts (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, provider_id, key)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context) (Session, error) {
	sess := Session{ID: uuid.NewString()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id) VALUES ($1) RETURNING created_at, updated_at`,
		sess.ID,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, updated_at FROM sessions WHERE id=$1`,
		sessionID,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.created_at, s.updated_at,
			COALESCE((SELECT t.content FROM turns t WHERE t.session_id = s.id
				ORDER BY t.created_at DESC, t.seq DESC LIMIT 1), ''),
			(SELECT count(*) FROM turns t WHERE t.session_id = s.id)
		 FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sm SessionSummary
		if err := rows.Scan(&sm.ID, &sm.CreatedAt, &sm.UpdatedAt, &sm.LastMessage, &sm.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) GetTurns(ctx context.Context, sessionID, providerID string) ([]Turn, error) {
	return s.queryTurns(ctx,
		`SELECT id, session_id, provider_id, role, content, created_at
		 FROM turns WHERE session_id=$1 AND provider_id=$2
		 ORDER BY created_at, seq`,
		sessionID, providerID)
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.queryTurns(ctx,
		`SELECT id, session_id, provider_id, role, content, created_at
		 FROM turns WHERE session_id=$1
		 ORDER BY created_at, seq`,
		sessionID)
}

func (s *PostgresStore) queryTurns(ctx context.Context, sql string, args ...any) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.ProviderID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetFacts(ctx context.Context, sessionID, providerID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM facts WHERE session_id=$1 AND provider_id=$2`,
		sessionID, providerID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, sessionID string) ([]Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, provider_id, key, value, created_at, updated_at
		 FROM facts WHERE session_id=$1 ORDER BY provider_id, key`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.SessionID, &f.ProviderID, &f.Key, &f.Value, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) AppendTurn(ctx context.Context, sessionID, providerID, role, content string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO turns (id, session_id, provider_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), sessionID, providerID, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (t *postgresTx) UpsertFact(ctx context.Context, sessionID, providerID, key, value string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO facts (session_id, provider_id, key, value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, provider_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		sessionID, providerID, key, value)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (t *postgresTx) TouchSession(ctx context.Context, sessionID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}
