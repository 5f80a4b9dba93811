package memory

import (
	"context"
	"log"
	"strings"
)

// NewStore creates a postgres-backed store with volatile fallback when
// configured, otherwise a purely in-memory store. A failed initial connect
// is not fatal: cross-session persistence is lost, the agent is not.
func NewStore(ctx context.Context, databaseURL string) Store {
	if strings.TrimSpace(databaseURL) == "" {
		log.Printf("memory: no DATABASE_URL, using volatile in-memory store")
		return NewInMemoryStore()
	}
	durable, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		log.Printf("memory: postgres unavailable, using volatile in-memory store: %v", err)
		return NewInMemoryStore()
	}
	return NewFallbackStore(durable)
}
