// Package tools implements the agent's tool-calling surface: a closed
// registry of named tools resolved at startup, executed by name when the
// model requests them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/irisfin/riskagent/internal/model"
)

// Tool is one capability the model may invoke.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON-schema-shaped description of the accepted
	// arguments, handed verbatim to the model.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry is a fixed name-to-tool table. It is built once at startup;
// there is no runtime registration.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := strings.TrimSpace(t.Name())
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Specs returns tool specifications in registration order.
func (r *Registry) Specs() []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// Len reports how many tools are registered.
func (r *Registry) Len() int { return len(r.order) }

// Execute runs the named tool with raw JSON arguments. Failures never
// propagate: unknown tools, bad arguments and execution errors all come
// back as a string result attributed to the call, so the conversation
// continues. The second return reports whether the call succeeded.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) (string, bool) {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", name), false
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Sprintf("Tool %s error: invalid arguments: %v", name, err), false
		}
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		return fmt.Sprintf("Tool %s error: %v", name, err), false
	}
	return result, true
}
