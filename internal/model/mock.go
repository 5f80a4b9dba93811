package model

import (
	"context"
	"fmt"
	"strings"
)

// MockClient produces deterministic local replies when no serving endpoint
// is configured. Good enough for UI wiring and smoke tests.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	var lastUser string
	var hasContext bool
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			lastUser = m.Content
		case RoleSystem:
			if strings.Contains(m.Content, "Previous Knowledge About This User") {
				hasContext = true
			}
		}
	}

	base := strings.TrimSpace(lastUser)
	if base == "" {
		return Response{Content: "How can I help with your credit-risk analysis?"}, nil
	}
	if hasContext {
		return Response{Content: fmt.Sprintf("Noted: %s. I also hold prior analysis context for you.", base)}, nil
	}
	return Response{Content: "Noted: " + base}, nil
}
