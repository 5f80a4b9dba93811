package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists agent memory in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
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
		`CREATE TABLE IF NOT EXISTS user_memories (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			memory_key TEXT NOT NULL,
			memory_value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, memory_type, memory_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_updated ON user_memories (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			thread_id TEXT NOT NULL UNIQUE,
			summary TEXT NOT NULL,
			customer_ids TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_summaries_user_created ON conversation_summaries (user_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_thread_created ON conversation_turns (thread_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) StoreMemory(ctx context.Context, userID, memoryType, memoryKey, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_memories (user_id, memory_type, memory_key, memory_value, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, memory_type, memory_key)
		 DO UPDATE SET memory_value = EXCLUDED.memory_value, updated_at = now()`,
		userID, memoryType, memoryKey, value,
	)
	if err != nil {
		return storageErr("store_memory", err)
	}
	return nil
}

func (s *PostgresStore) Memories(ctx context.Context, userID, memoryType string) ([]MemoryRecord, error) {
	var (
		query string
		args  []any
	)
	if memoryType != "" {
		query = `SELECT user_id, memory_type, memory_key, memory_value, updated_at
			 FROM user_memories WHERE user_id=$1 AND memory_type=$2
			 ORDER BY updated_at DESC`
		args = []any{userID, memoryType}
	} else {
		query = `SELECT user_id, memory_type, memory_key, memory_value, updated_at
			 FROM user_memories WHERE user_id=$1
			 ORDER BY updated_at DESC LIMIT $2`
		args = []any{userID, DefaultMemoryLimit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get_memories", err)
	}
	defer rows.Close()

	var records []MemoryRecord
	for rows.Next() {
		var r MemoryRecord
		if err := rows.Scan(&r.UserID, &r.MemoryType, &r.MemoryKey, &r.Value, &r.UpdatedAt); err != nil {
			return nil, storageErr("scan_memory", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate_memories", err)
	}
	return records, nil
}

func (s *PostgresStore) StoreSummary(ctx context.Context, userID, threadID, summary string, customerIDs []string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_summaries (user_id, thread_id, summary, customer_ids)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (thread_id)
		 DO UPDATE SET summary = EXCLUDED.summary, customer_ids = EXCLUDED.customer_ids`,
		userID, threadID, summary, strings.Join(customerIDs, ","),
	)
	if err != nil {
		return storageErr("store_summary", err)
	}
	return nil
}

func (s *PostgresStore) RecentSummaries(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, thread_id, summary, customer_ids, created_at
		 FROM conversation_summaries WHERE user_id=$1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, storageErr("get_summaries", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var (
			sum ConversationSummary
			ids string
		)
		if err := rows.Scan(&sum.UserID, &sum.ThreadID, &sum.Summary, &ids, &sum.CreatedAt); err != nil {
			return nil, storageErr("scan_summary", err)
		}
		sum.CustomerIDs = splitCustomerIDs(ids)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate_summaries", err)
	}
	return summaries, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn TurnRecord) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, thread_id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, turn.ThreadID, turn.UserID, turn.Role, turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return storageErr("append_turn", err)
	}
	return nil
}

func (s *PostgresStore) ThreadTurns(ctx context.Context, threadID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, user_id, role, content, created_at
		 FROM conversation_turns WHERE thread_id=$1
		 ORDER BY created_at DESC LIMIT $2`,
		threadID, limit,
	)
	if err != nil {
		return nil, storageErr("get_turns", err)
	}
	defer rows.Close()

	turns := make([]TurnRecord, 0, limit)
	for rows.Next() {
		var t TurnRecord
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.UserID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, storageErr("scan_turn", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate_turns", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStore) ClearUserMemories(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("clear_begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_memories WHERE user_id=$1`, userID); err != nil {
		return storageErr("clear_memories", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversation_summaries WHERE user_id=$1`, userID); err != nil {
		return storageErr("clear_summaries", err)
	}
	// conversation_turns stays untouched: turn history is the audit trail.

	if err := tx.Commit(ctx); err != nil {
		return storageErr("clear_commit", err)
	}
	return nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, userID string, limit int) ([]ThreadInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (thread_id)
			thread_id,
			content,
			created_at,
			(SELECT COUNT(*) FROM conversation_turns t2 WHERE t2.thread_id = t1.thread_id) AS message_count
		 FROM conversation_turns t1
		 WHERE user_id=$1 AND role='user'
		 ORDER BY thread_id, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, storageErr("list_threads", err)
	}
	defer rows.Close()

	var threads []ThreadInfo
	for rows.Next() {
		var info ThreadInfo
		if err := rows.Scan(&info.ThreadID, &info.FirstMessage, &info.CreatedAt, &info.MessageCount); err != nil {
			return nil, storageErr("scan_thread", err)
		}
		info.FirstMessage = truncateMessage(info.FirstMessage, 100)
		threads = append(threads, info)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate_threads", err)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	if len(threads) > limit {
		threads = threads[:limit]
	}
	return threads, nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func splitCustomerIDs(ids string) []string {
	if ids == "" {
		return nil
	}
	return strings.Split(ids, ",")
}

func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max] + "..."
}
