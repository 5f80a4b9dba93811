// Package model abstracts the remote chat-completion service. The serving
// endpoint is an opaque collaborator: ordered role-tagged messages plus
// optional tool specs in, an assistant message (possibly with tool-call
// requests) out. Retry policy belongs to the endpoint, not here.
package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role-tagged entry in the conversation sent to the model.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages that requested tools
	ToolCallID string     // set on role "tool" result messages
}

// ToolSpec describes one callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool execution requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Request is one chat-completion call.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// Response is the assistant's answer to a Request.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client completes chat requests against a model endpoint.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config controls client construction.
type Config struct {
	Mode    string // auto | openai | mock
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New builds a client for the configured mode. Auto prefers the real
// serving endpoint and degrades to the deterministic mock so the agent
// stays usable without credentials.
func New(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIClient(cfg), nil
		}
		log.Printf("model: no API key configured, using mock client")
		return NewMockClient(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("model API key is required for openai mode")
		}
		return NewOpenAIClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported model mode %q", cfg.Mode)
	}
}
