package memory

import (
	"context"
	"log"
	"sync/atomic"
)

// FallbackStore serves every operation from the durable store and degrades
// to a volatile in-process store when the durable one errors. The volatile
// copy is best-effort only: as soon as the durable store answers again it
// is authoritative, so a degraded period loses at most its own writes.
type FallbackStore struct {
	durable  Store
	volatile *InMemoryStore
	degraded atomic.Bool

	// OnFallback, when set, observes each operation served by the
	// volatile store (metrics hook).
	OnFallback func(op string)
}

func NewFallbackStore(durable Store) *FallbackStore {
	return &FallbackStore{
		durable:  durable,
		volatile: NewInMemoryStore(),
	}
}

func (s *FallbackStore) fellBack(op string, err error) {
	s.degraded.Store(true)
	log.Printf("memory: durable store failed on %s, using volatile fallback: %v", op, err)
	if s.OnFallback != nil {
		s.OnFallback(op)
	}
}

func (s *FallbackStore) recovered() {
	if s.degraded.Swap(false) {
		log.Printf("memory: durable store reachable again")
	}
}

func (s *FallbackStore) StoreMemory(ctx context.Context, userID, memoryType, memoryKey, value string) error {
	if err := s.durable.StoreMemory(ctx, userID, memoryType, memoryKey, value); err != nil {
		s.fellBack("store_memory", err)
		return s.volatile.StoreMemory(ctx, userID, memoryType, memoryKey, value)
	}
	s.recovered()
	return nil
}

func (s *FallbackStore) Memories(ctx context.Context, userID, memoryType string) ([]MemoryRecord, error) {
	records, err := s.durable.Memories(ctx, userID, memoryType)
	if err != nil {
		s.fellBack("get_memories", err)
		return s.volatile.Memories(ctx, userID, memoryType)
	}
	s.recovered()
	return records, nil
}

func (s *FallbackStore) StoreSummary(ctx context.Context, userID, threadID, summary string, customerIDs []string) error {
	if err := s.durable.StoreSummary(ctx, userID, threadID, summary, customerIDs); err != nil {
		s.fellBack("store_summary", err)
		return s.volatile.StoreSummary(ctx, userID, threadID, summary, customerIDs)
	}
	s.recovered()
	return nil
}

func (s *FallbackStore) RecentSummaries(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	summaries, err := s.durable.RecentSummaries(ctx, userID, limit)
	if err != nil {
		s.fellBack("get_summaries", err)
		return s.volatile.RecentSummaries(ctx, userID, limit)
	}
	s.recovered()
	return summaries, nil
}

func (s *FallbackStore) AppendTurn(ctx context.Context, turn TurnRecord) error {
	if err := s.durable.AppendTurn(ctx, turn); err != nil {
		s.fellBack("append_turn", err)
		return s.volatile.AppendTurn(ctx, turn)
	}
	s.recovered()
	return nil
}

func (s *FallbackStore) ThreadTurns(ctx context.Context, threadID string, limit int) ([]TurnRecord, error) {
	turns, err := s.durable.ThreadTurns(ctx, threadID, limit)
	if err != nil {
		s.fellBack("get_turns", err)
		return s.volatile.ThreadTurns(ctx, threadID, limit)
	}
	s.recovered()
	return turns, nil
}

func (s *FallbackStore) ClearUserMemories(ctx context.Context, userID string) error {
	// Always clear the volatile copy so stale facts cannot resurface after
	// a degraded window.
	_ = s.volatile.ClearUserMemories(ctx, userID)
	if err := s.durable.ClearUserMemories(ctx, userID); err != nil {
		s.fellBack("clear_memories", err)
		return nil
	}
	s.recovered()
	return nil
}

func (s *FallbackStore) ListThreads(ctx context.Context, userID string, limit int) ([]ThreadInfo, error) {
	threads, err := s.durable.ListThreads(ctx, userID, limit)
	if err != nil {
		s.fellBack("list_threads", err)
		return s.volatile.ListThreads(ctx, userID, limit)
	}
	s.recovered()
	return threads, nil
}

func (s *FallbackStore) Backend() string {
	if s.degraded.Load() {
		return s.volatile.Backend()
	}
	return s.durable.Backend()
}

func (s *FallbackStore) Close() error {
	_ = s.volatile.Close()
	return s.durable.Close()
}
