package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"time"
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]{0,63}$`)

// tool is the internal implementation of Tool built by NewTool or NewDynamicTool.
type tool struct {
	name        string
	description string
	schema      *toolSchema
	invoke      func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error)
	opts        toolOptions
}

// NewTool builds a Tool from a typed handler. The input schema is derived from T
// once, here; every call then runs schema validation, decodes T, calls fn and
// encodes R. A handler error becomes the message sent back to the model.
// Returns an error if the name is invalid or T cannot be described by a schema.
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, tc *ToolContext, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	if fn == nil {
		return nil, errors.New("gemini: tool handler must not be nil")
	}
	if err := validateToolName(name); err != nil {
		return nil, err
	}
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	s, err := deriveInputSchema(reflect.TypeFor[T](), o.strict)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	invoke := func(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
		in, err := decodeArgs[T](s.validator, args)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, tc, in)
		if err != nil {
			return nil, handlerError(err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			return nil, outputError(err)
		}
		return b, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      s,
		invoke:      invoke,
		opts:        o,
	}, nil
}

// MustTool is like NewTool but panics on error. Intended for package-level tool tables.
func MustTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, tc *ToolContext, args T) (R, error),
	opts ...ToolOption,
) Tool {
	t, err := NewTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a handler that
// receives validated JSON. Useful when the shape is only known at runtime.
// The schema is reduced to the supported subset; schemaMap is not mutated.
// The handler's output must be valid JSON.
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error),
	opts ...ToolOption,
) (Tool, error) {
	if fn == nil {
		return nil, errors.New("gemini: dynamic tool handler must not be nil")
	}
	if err := validateToolName(name); err != nil {
		return nil, err
	}
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	s, err := compileDynamicSchema(schemaMap, o.strict)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	invoke := func(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
		args = normalizeArgs(args)
		if err := validateArgs(s.validator, args); err != nil {
			return nil, err
		}
		out, err := fn(ctx, tc, args)
		if err != nil {
			return nil, handlerError(err)
		}
		if !json.Valid(out) {
			return nil, outputError(fmt.Errorf("handler returned invalid JSON: %q", out))
		}
		return out, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      s,
		invoke:      invoke,
		opts:        o,
	}, nil
}

func validateToolName(name string) error {
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}
	return nil
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the declared schema (top-level keys only),
// or nil when the input has no properties. Nested maps are shared; callers must not mutate them.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema.parameters()) }

func (t *tool) Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
	return t.invoke(ctx, tc, args)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
