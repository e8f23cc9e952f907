package gemini

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is a function the model may call. Parameters returns the declared schema
// in the generation API subset, or nil when the tool takes no arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// Invoke decodes args, runs the handler and returns the JSON to send back as
	// the function response. Implementations report failures as *CallError.
	Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error)
}

// ToolMetadata is implemented by tools created with NewTool and NewDynamicTool.
// Registry uses Timeout() to override its default execution timeout when set.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
}

// InvocationSummary is passed to the after-invoke hook (WithOnAfterInvoke) once a
// call finishes, successfully or not. ID is unique per invocation; CallID echoes
// the id the model attached to the function call, if any.
type InvocationSummary struct {
	ID            string
	CallID        string
	ToolName      string
	Error         error
	Duration      time.Duration
	ResponseBytes int
}
