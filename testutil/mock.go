// Package testutil provides test helpers for gemini (MockTool, FakeGenerator, SSE bodies).
package testutil

import (
	"context"
	"encoding/json"

	"github.com/skosovsky/gemini"
)

// MockTool is a configurable Tool implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	InvokeFn  func(ctx context.Context, tc *gemini.ToolContext, args json.RawMessage) (json.RawMessage, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Parameters returns the parameters schema, or nil for a tool without arguments.
func (m *MockTool) Parameters() map[string]any {
	return m.ParamsVal
}

// Invoke runs InvokeFn if set, otherwise returns an empty object.
func (m *MockTool) Invoke(ctx context.Context, tc *gemini.ToolContext, args json.RawMessage) (json.RawMessage, error) {
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, tc, args)
	}
	return json.RawMessage(`{}`), nil
}

// Ensure MockTool implements Tool.
var _ gemini.Tool = (*MockTool)(nil)
