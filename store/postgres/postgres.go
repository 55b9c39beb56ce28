// Package postgres implements roundtable.History using PostgreSQL, for
// deployments where discussion history is shared between machines.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jwkim/roundtable"
)

// Store implements roundtable.History backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ roundtable.History = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_query TEXT NOT NULL,
			task_type TEXT NOT NULL DEFAULT 'general',
			participating_ais JSONB,
			total_rounds INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'in_progress',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_created_at_idx ON sessions(created_at)`,
		`CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions(status)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			sender_type TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			round_num INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id)`,

		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			key_points JSONB,
			agreements JSONB,
			disagreements JSONB,
			recommendations JSONB,
			contributions JSONB,
			consensus_reached BOOLEAN NOT NULL DEFAULT FALSE,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0.0,
			total_rounds INTEGER NOT NULL DEFAULT 0,
			total_messages INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS results_session_idx ON results(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	return nil
}

// SaveSession upserts a session, its transcript, and its result in a
// single transaction.
func (s *Store) SaveSession(ctx context.Context, session *roundtable.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	aisJSON, _ := json.Marshal(session.ParticipatingAIs)
	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			user_query = EXCLUDED.user_query,
			task_type = EXCLUDED.task_type,
			participating_ais = EXCLUDED.participating_ais,
			total_rounds = EXCLUDED.total_rounds,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		session.ID, session.UserQuery, string(session.TaskType), aisJSON,
		session.TotalRounds, string(session.Status), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, m := range session.Messages {
		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, session_id, sender_type, sender_id, content, round_num, token_count, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
			 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`,
			m.ID, session.ID, string(m.SenderType), m.SenderID, m.Content, m.Round, m.TokenCount, m.Metadata, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if r := session.Result; r != nil {
		keyPoints, _ := json.Marshal(r.KeyPoints)
		agreements, _ := json.Marshal(r.Agreements)
		disagreements, _ := json.Marshal(r.Disagreements)
		recommendations, _ := json.Marshal(r.Recommendations)
		contributions, _ := json.Marshal(r.Contributions)
		_, err = tx.Exec(ctx,
			`INSERT INTO results (id, session_id, summary, key_points, agreements, disagreements, recommendations, contributions, consensus_reached, confidence, total_rounds, total_messages, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (session_id) DO UPDATE SET
				summary = EXCLUDED.summary,
				key_points = EXCLUDED.key_points,
				agreements = EXCLUDED.agreements,
				disagreements = EXCLUDED.disagreements,
				recommendations = EXCLUDED.recommendations,
				contributions = EXCLUDED.contributions,
				consensus_reached = EXCLUDED.consensus_reached,
				confidence = EXCLUDED.confidence,
				total_rounds = EXCLUDED.total_rounds,
				total_messages = EXCLUDED.total_messages`,
			session.ID+"-result", session.ID, r.Summary,
			keyPoints, agreements, disagreements, recommendations, contributions,
			r.ConsensusReached, r.Confidence, r.TotalRounds, r.TotalMessages, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetSession returns a session with its full transcript and result.
// Returns roundtable.ErrNotFound when no session has the given ID.
func (s *Store) GetSession(ctx context.Context, id string) (*roundtable.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at
		 FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, roundtable.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, sender_type, sender_id, content, round_num, token_count, COALESCE(metadata, ''), created_at
		 FROM messages WHERE session_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("get session messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m roundtable.Message
		var senderType string
		if err := rows.Scan(&m.ID, &m.SessionID, &senderType, &m.SenderID, &m.Content, &m.Round, &m.TokenCount, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = roundtable.SenderType(senderType)
		session.Messages = append(session.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	result, err := s.getResult(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Result = result
	return session, nil
}

// Recent returns sessions newest first, without transcripts.
func (s *Store) Recent(ctx context.Context, limit, offset int) ([]*roundtable.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Search matches the query against user queries, message content, and
// result summaries.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*roundtable.Session, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT s.id, s.user_query, s.task_type, s.participating_ais, s.total_rounds, s.status, s.created_at, s.updated_at
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.id
		 LEFT JOIN results r ON r.session_id = s.id
		 WHERE s.user_query ILIKE $1 OR m.content ILIKE $1 OR r.summary ILIKE $1
		 ORDER BY s.created_at DESC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Delete removes a session; messages and result cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Stats aggregates totals, per-status counts, and per-assistant usage.
func (s *Store) Stats(ctx context.Context) (*roundtable.Stats, error) {
	stats := &roundtable.Stats{
		ByStatus: make(map[string]int),
		AIUsage:  make(map[string]int),
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	aiRows, err := s.pool.Query(ctx,
		`SELECT ai, COUNT(*) FROM sessions, jsonb_array_elements_text(participating_ais) AS ai GROUP BY ai`)
	if err != nil {
		return nil, fmt.Errorf("ai usage: %w", err)
	}
	defer aiRows.Close()
	for aiRows.Next() {
		var name string
		var count int
		if err := aiRows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan ai usage: %w", err)
		}
		stats.AIUsage[name] = count
	}
	if err := aiRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ai usage: %w", err)
	}
	return stats, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

func (s *Store) getResult(ctx context.Context, sessionID string) (*roundtable.Synthesis, error) {
	var r roundtable.Synthesis
	var keyPoints, agreements, disagreements, recommendations, contributions []byte
	err := s.pool.QueryRow(ctx,
		`SELECT summary, key_points, agreements, disagreements, recommendations, contributions, consensus_reached, confidence, total_rounds, total_messages, created_at
		 FROM results WHERE session_id = $1`, sessionID,
	).Scan(&r.Summary, &keyPoints, &agreements, &disagreements, &recommendations, &contributions, &r.ConsensusReached, &r.Confidence, &r.TotalRounds, &r.TotalMessages, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	_ = json.Unmarshal(keyPoints, &r.KeyPoints)
	_ = json.Unmarshal(agreements, &r.Agreements)
	_ = json.Unmarshal(disagreements, &r.Disagreements)
	_ = json.Unmarshal(recommendations, &r.Recommendations)
	_ = json.Unmarshal(contributions, &r.Contributions)
	return &r, nil
}

func scanSession(row pgx.Row) (*roundtable.Session, error) {
	var sess roundtable.Session
	var taskType, status string
	var aisJSON []byte
	err := row.Scan(&sess.ID, &sess.UserQuery, &taskType, &aisJSON, &sess.TotalRounds, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.TaskType = roundtable.TaskType(taskType)
	sess.Status = roundtable.SessionStatus(status)
	_ = json.Unmarshal(aisJSON, &sess.ParticipatingAIs)
	return &sess, nil
}

func scanSessions(rows pgx.Rows) ([]*roundtable.Session, error) {
	var sessions []*roundtable.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
