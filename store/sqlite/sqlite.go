// Package sqlite implements roundtable.History using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwkim/roundtable"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements roundtable.History backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ roundtable.History = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_query TEXT NOT NULL,
			task_type TEXT DEFAULT 'general',
			participating_ais TEXT,
			total_rounds INTEGER DEFAULT 0,
			status TEXT DEFAULT 'in_progress',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			sender_type TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			round_num INTEGER DEFAULT 0,
			token_count INTEGER DEFAULT 0,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			key_points TEXT,
			agreements TEXT,
			disagreements TEXT,
			recommendations TEXT,
			contributions TEXT,
			consensus_reached INTEGER DEFAULT 0,
			confidence REAL DEFAULT 0.0,
			total_rounds INTEGER DEFAULT 0,
			total_messages INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_results_session_id ON results(session_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// SaveSession upserts a session, its transcript, and its result in a
// single transaction.
func (s *Store) SaveSession(ctx context.Context, session *roundtable.Session) error {
	start := time.Now()
	s.logger.Debug("sqlite: save session", "id", session.ID, "messages", len(session.Messages), "has_result", session.Result != nil)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var aisJSON *string
	if len(session.ParticipatingAIs) > 0 {
		data, _ := json.Marshal(session.ParticipatingAIs)
		v := string(data)
		aisJSON = &v
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserQuery, string(session.TaskType), aisJSON,
		session.TotalRounds, string(session.Status), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: insert session failed", "id", session.ID, "error", err)
		return fmt.Errorf("insert session: %w", err)
	}

	for _, m := range session.Messages {
		var metaJSON *string
		if m.Metadata != "" {
			metaJSON = &m.Metadata
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO messages (id, session_id, sender_type, sender_id, content, round_num, token_count, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, session.ID, string(m.SenderType), m.SenderID, m.Content, m.Round, m.TokenCount, metaJSON, m.CreatedAt,
		)
		if err != nil {
			s.logger.Error("sqlite: insert message failed", "message_id", m.ID, "session_id", session.ID, "error", err)
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if r := session.Result; r != nil {
		keyPoints, _ := json.Marshal(r.KeyPoints)
		agreements, _ := json.Marshal(r.Agreements)
		disagreements, _ := json.Marshal(r.Disagreements)
		recommendations, _ := json.Marshal(r.Recommendations)
		contributions, _ := json.Marshal(r.Contributions)
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO results (id, session_id, summary, key_points, agreements, disagreements, recommendations, contributions, consensus_reached, confidence, total_rounds, total_messages, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID+"-result", session.ID, r.Summary,
			string(keyPoints), string(agreements), string(disagreements), string(recommendations), string(contributions),
			boolToInt(r.ConsensusReached), r.Confidence, r.TotalRounds, r.TotalMessages, r.CreatedAt,
		)
		if err != nil {
			s.logger.Error("sqlite: insert result failed", "session_id", session.ID, "error", err)
			return fmt.Errorf("insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: save session commit failed", "id", session.ID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: save session ok", "id", session.ID, "duration", time.Since(start))
	return nil
}

// GetSession returns a session with its full transcript and result.
// Returns roundtable.ErrNotFound when no session has the given ID.
func (s *Store) GetSession(ctx context.Context, id string) (*roundtable.Session, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get session", "id", id)

	session, err := s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at
		 FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		s.logger.Debug("sqlite: get session not found", "id", id, "duration", time.Since(start))
		return nil, roundtable.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get session failed", "id", id, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender_type, sender_id, content, round_num, token_count, metadata, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("get session messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m roundtable.Message
		var senderType string
		var metaJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &senderType, &m.SenderID, &m.Content, &m.Round, &m.TokenCount, &metaJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = roundtable.SenderType(senderType)
		if metaJSON.Valid {
			m.Metadata = metaJSON.String
		}
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

	s.logger.Debug("sqlite: get session ok", "id", id, "messages", len(session.Messages), "duration", time.Since(start))
	return session, nil
}

// Recent returns sessions newest first, without transcripts.
func (s *Store) Recent(ctx context.Context, limit, offset int) ([]*roundtable.Session, error) {
	start := time.Now()
	s.logger.Debug("sqlite: recent sessions", "limit", limit, "offset", offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_query, task_type, participating_ais, total_rounds, status, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		s.logger.Error("sqlite: recent sessions failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: recent sessions ok", "count", len(sessions), "duration", time.Since(start))
	return sessions, nil
}

// Search matches the query against user queries, message content, and
// result summaries.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*roundtable.Session, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search sessions", "query", query, "limit", limit)

	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT s.id, s.user_query, s.task_type, s.participating_ais, s.total_rounds, s.status, s.created_at, s.updated_at
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.id
		 LEFT JOIN results r ON r.session_id = s.id
		 WHERE s.user_query LIKE ? OR m.content LIKE ? OR r.summary LIKE ?
		 ORDER BY s.created_at DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
	if err != nil {
		s.logger.Error("sqlite: search sessions failed", "query", query, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: search sessions ok", "query", query, "count", len(sessions), "duration", time.Since(start))
	return sessions, nil
}

// Delete removes a session and, through cascade, its messages and result.
func (s *Store) Delete(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete session", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Cascade manually as well; foreign_keys may be off on this connection.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete session commit failed", "id", id, "error", err)
		return err
	}
	s.logger.Debug("sqlite: delete session ok", "id", id, "duration", time.Since(start))
	return nil
}

// Stats aggregates totals, per-status counts, and per-assistant usage.
func (s *Store) Stats(ctx context.Context) (*roundtable.Stats, error) {
	start := time.Now()
	s.logger.Debug("sqlite: stats")

	stats := &roundtable.Stats{
		ByStatus: make(map[string]int),
		AIUsage:  make(map[string]int),
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sessions GROUP BY status`)
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

	aiRows, err := s.db.QueryContext(ctx, `SELECT participating_ais FROM sessions WHERE participating_ais IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("ai usage: %w", err)
	}
	defer aiRows.Close()
	for aiRows.Next() {
		var aisJSON string
		if err := aiRows.Scan(&aisJSON); err != nil {
			return nil, fmt.Errorf("scan ai usage: %w", err)
		}
		var ais []string
		if err := json.Unmarshal([]byte(aisJSON), &ais); err != nil {
			continue
		}
		for _, name := range ais {
			stats.AIUsage[name]++
		}
	}
	if err := aiRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ai usage: %w", err)
	}

	s.logger.Debug("sqlite: stats ok", "sessions", stats.TotalSessions, "messages", stats.TotalMessages, "duration", time.Since(start))
	return stats, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

func (s *Store) getResult(ctx context.Context, sessionID string) (*roundtable.Synthesis, error) {
	var r roundtable.Synthesis
	var keyPoints, agreements, disagreements, recommendations, contributions sql.NullString
	var consensus int
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, key_points, agreements, disagreements, recommendations, contributions, consensus_reached, confidence, total_rounds, total_messages, created_at
		 FROM results WHERE session_id = ?`, sessionID,
	).Scan(&r.Summary, &keyPoints, &agreements, &disagreements, &recommendations, &contributions, &consensus, &r.Confidence, &r.TotalRounds, &r.TotalMessages, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	r.ConsensusReached = consensus != 0
	if keyPoints.Valid {
		_ = json.Unmarshal([]byte(keyPoints.String), &r.KeyPoints)
	}
	if agreements.Valid {
		_ = json.Unmarshal([]byte(agreements.String), &r.Agreements)
	}
	if disagreements.Valid {
		_ = json.Unmarshal([]byte(disagreements.String), &r.Disagreements)
	}
	if recommendations.Valid {
		_ = json.Unmarshal([]byte(recommendations.String), &r.Recommendations)
	}
	if contributions.Valid {
		_ = json.Unmarshal([]byte(contributions.String), &r.Contributions)
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSession(row rowScanner) (*roundtable.Session, error) {
	var sess roundtable.Session
	var taskType, status string
	var aisJSON sql.NullString
	err := row.Scan(&sess.ID, &sess.UserQuery, &taskType, &aisJSON, &sess.TotalRounds, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.TaskType = roundtable.TaskType(taskType)
	sess.Status = roundtable.SessionStatus(status)
	if aisJSON.Valid {
		_ = json.Unmarshal([]byte(aisJSON.String), &sess.ParticipatingAIs)
	}
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]*roundtable.Session, error) {
	var sessions []*roundtable.Session
	for rows.Next() {
		var sess roundtable.Session
		var taskType, status string
		var aisJSON sql.NullString
		if err := rows.Scan(&sess.ID, &sess.UserQuery, &taskType, &aisJSON, &sess.TotalRounds, &status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.TaskType = roundtable.TaskType(taskType)
		sess.Status = roundtable.SessionStatus(status)
		if aisJSON.Valid {
			_ = json.Unmarshal([]byte(aisJSON.String), &sess.ParticipatingAIs)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
