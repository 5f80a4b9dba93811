package memory

import (
	"context"
	"fmt"
	"time"
)

// MemoryRecord is one durable long-term fact about a user. At most one
// record exists per (user_id, memory_type, memory_key); rewrites replace
// the value and bump UpdatedAt.
type MemoryRecord struct {
	UserID     string    `json:"user_id"`
	MemoryType string    `json:"memory_type"`
	MemoryKey  string    `json:"memory_key"`
	Value      string    `json:"memory_value"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversationSummary condenses one thread into a short digest. At most one
// summary exists per thread; re-summarizing overwrites it.
type ConversationSummary struct {
	UserID      string    `json:"user_id"`
	ThreadID    string    `json:"thread_id"`
	Summary     string    `json:"summary"`
	CustomerIDs []string  `json:"customer_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// TurnRecord stores a single user or assistant conversational turn.
// Turns are append-only and survive memory clears (audit trail).
type TurnRecord struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadInfo summarizes one conversation thread for listings.
type ThreadInfo struct {
	ThreadID     string    `json:"thread_id"`
	FirstMessage string    `json:"first_message"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMemoryLimit caps untyped memory reads so context never grows
// without bound.
const DefaultMemoryLimit = 50

// StorageError marks a failure of the durable backend. Callers decide
// fallback policy on it; it is never surfaced on the user-visible path.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// Store persists and retrieves both long-term memory and per-thread
// conversation state.
type Store interface {
	// StoreMemory upserts one (user, type, key) fact; last write wins at
	// the store's serialization point.
	StoreMemory(ctx context.Context, userID, memoryType, memoryKey, value string) error
	// Memories returns records most-recently-updated first. An empty
	// memoryType returns all types capped at DefaultMemoryLimit.
	Memories(ctx context.Context, userID, memoryType string) ([]MemoryRecord, error)
	// StoreSummary upserts the summary for a thread.
	StoreSummary(ctx context.Context, userID, threadID, summary string, customerIDs []string) error
	// RecentSummaries returns summaries most-recent-first.
	RecentSummaries(ctx context.Context, userID string, limit int) ([]ConversationSummary, error)
	// AppendTurn inserts one conversational turn. No update path exists.
	AppendTurn(ctx context.Context, turn TurnRecord) error
	// ThreadTurns returns the latest limit turns of a thread in
	// chronological order.
	ThreadTurns(ctx context.Context, threadID string, limit int) ([]TurnRecord, error)
	// ClearUserMemories removes all memories and summaries for a user.
	// Turn history is preserved.
	ClearUserMemories(ctx context.Context, userID string) error
	// ListThreads returns the user's threads, most recent first.
	ListThreads(ctx context.Context, userID string, limit int) ([]ThreadInfo, error)
	// Backend names the storage currently serving requests.
	Backend() string
	Close() error
}
