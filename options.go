package gemini

import (
	"context"
	"time"
)

// toolOptions hold optional tool settings (timeout, strict, tags).
type toolOptions struct {
	strict  bool
	timeout time.Duration
	tags    []string
}

// ToolOption configures a tool (e.g. WithStrict, WithTimeout).
type ToolOption func(*toolOptions)

// WithStrict rejects arguments that carry properties the input schema does not
// declare. The declared schema is unchanged.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool timeout, overriding the registry default.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags sets tool tags (metadata for discovery and filtering).
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	toolContext    *ToolContext
	onBefore       func(context.Context, FunctionCall)
	onAfter        func(context.Context, FunctionCall, InvocationSummary)
}

// WithDefaultTimeout sets the default execution timeout for tools. Zero means none.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithMaxConcurrency limits concurrent tool invocations (semaphore).
// Pass 0 or negative to disable the semaphore (unlimited concurrency).
func WithMaxConcurrency(n int) RegistryOption {
	return func(o *registryOptions) {
		o.maxConcurrency = n
	}
}

// WithRecoverPanics enables panic recovery in Invoke. A recovered panic is
// reported to the model as a handler failure.
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithToolContext makes the registry pass tc to every handler instead of a fresh one.
func WithToolContext(tc *ToolContext) RegistryOption {
	return func(o *registryOptions) {
		o.toolContext = tc
	}
}

// WithOnBeforeInvoke sets a hook called before each tool invocation.
func WithOnBeforeInvoke(fn func(context.Context, FunctionCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterInvoke sets a hook called after each tool invocation, including
// failed lookups and decoding errors.
func WithOnAfterInvoke(fn func(context.Context, FunctionCall, InvocationSummary)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}
