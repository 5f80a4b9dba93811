package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps agent memory in process maps. It is the volatile
// fallback when PostgreSQL is unavailable and the default for local dev;
// contents are lost on restart and never authoritative.
type InMemoryStore struct {
	mu        sync.RWMutex
	seq       uint64
	memories  map[string][]*memoryEntry          // user_id -> records
	summaries map[string][]*ConversationSummary  // user_id -> summaries
	threads   map[string]map[string][]TurnRecord // user_id -> thread_id -> turns
}

type memoryEntry struct {
	record MemoryRecord
	seq    uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memories:  make(map[string][]*memoryEntry),
		summaries: make(map[string][]*ConversationSummary),
		threads:   make(map[string]map[string][]TurnRecord),
	}
}

func (s *InMemoryStore) StoreMemory(_ context.Context, userID, memoryType, memoryKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	for _, e := range s.memories[userID] {
		if e.record.MemoryType == memoryType && e.record.MemoryKey == memoryKey {
			e.record.Value = value
			e.record.UpdatedAt = time.Now().UTC()
			e.seq = s.seq
			return nil
		}
	}
	s.memories[userID] = append(s.memories[userID], &memoryEntry{
		record: MemoryRecord{
			UserID:     userID,
			MemoryType: memoryType,
			MemoryKey:  memoryKey,
			Value:      value,
			UpdatedAt:  time.Now().UTC(),
		},
		seq: s.seq,
	})
	return nil
}

func (s *InMemoryStore) Memories(_ context.Context, userID, memoryType string) ([]MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*memoryEntry, 0, len(s.memories[userID]))
	for _, e := range s.memories[userID] {
		if memoryType != "" && e.record.MemoryType != memoryType {
			continue
		}
		entries = append(entries, e)
	}
	// Most recently updated first; seq breaks same-instant ties.
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	if memoryType == "" && len(entries) > DefaultMemoryLimit {
		entries = entries[:DefaultMemoryLimit]
	}

	records := make([]MemoryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.record)
	}
	return records, nil
}

func (s *InMemoryStore) StoreSummary(_ context.Context, userID, threadID, summary string, customerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]string(nil), customerIDs...)
	for _, existing := range s.summaries[userID] {
		if existing.ThreadID == threadID {
			existing.Summary = summary
			existing.CustomerIDs = ids
			return nil
		}
	}
	s.summaries[userID] = append(s.summaries[userID], &ConversationSummary{
		UserID:      userID,
		ThreadID:    threadID,
		Summary:     summary,
		CustomerIDs: ids,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) RecentSummaries(_ context.Context, userID string, limit int) ([]ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}
	all := s.summaries[userID]
	out := make([]ConversationSummary, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *all[i])
	}
	return out, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	byThread := s.threads[turn.UserID]
	if byThread == nil {
		byThread = make(map[string][]TurnRecord)
		s.threads[turn.UserID] = byThread
	}
	byThread[turn.ThreadID] = append(byThread[turn.ThreadID], turn)
	return nil
}

func (s *InMemoryStore) ThreadTurns(_ context.Context, threadID string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var turns []TurnRecord
	for _, byThread := range s.threads {
		if t, ok := byThread[threadID]; ok {
			turns = t
			break
		}
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]TurnRecord(nil), turns...), nil
}

func (s *InMemoryStore) ClearUserMemories(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memories, userID)
	delete(s.summaries, userID)
	// Turn history stays for audit, matching the durable store.
	return nil
}

func (s *InMemoryStore) ListThreads(_ context.Context, userID string, limit int) ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var threads []ThreadInfo
	for threadID, turns := range s.threads[userID] {
		info := ThreadInfo{ThreadID: threadID, MessageCount: len(turns)}
		for _, t := range turns {
			if t.Role == RoleUser {
				info.FirstMessage = truncateMessage(t.Content, 100)
				info.CreatedAt = t.CreatedAt
				break
			}
		}
		if info.FirstMessage == "" {
			continue
		}
		threads = append(threads, info)
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	if len(threads) > limit {
		threads = threads[:limit]
	}
	return threads, nil
}

func (s *InMemoryStore) Backend() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }
