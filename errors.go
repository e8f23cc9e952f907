package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Dispatch-level sentinels. A failed dispatch never escapes as an error: it is
// converted into a FunctionResponse payload so the model can react. Use errors.Is
// on a *CallError to find out which kind it was.
var (
	ErrToolNotFound         = errors.New("tool not found")
	ErrInputDeserialization = errors.New("input deserialization failed")
	ErrOutputSerialization  = errors.New("output serialization failed")
	ErrHandlerFailed        = errors.New("tool handler failed")
	ErrSchemaGeneration     = errors.New("schema generation failed")
	ErrInvalidToolName      = errors.New("invalid tool name")
	ErrTimeout              = errors.New("tool execution timeout")
	ErrShutdown             = errors.New("registry is shutting down")
)

// Caller-facing sentinels. These propagate out of GenerateContent,
// StreamGenerateContent and Conversation.Run; none are retried by this package.
var (
	ErrLoopExceeded     = errors.New("tool-calling loop exceeded maximum iterations")
	ErrInvalidEventData = errors.New("invalid event data")
	ErrTransport        = errors.New("transport failure")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrAPIRejected      = errors.New("request rejected by API")
)

// Request validation errors.
var (
	ErrMissingAPIKey = errors.New("API key not set")
	ErrMissingModel  = errors.New("model is required for GenerateContentRequest")
	ErrNoContents    = errors.New("content is required for GenerateContentRequest")
)

// CallError is a dispatch failure. Reason is the exact text placed under "error"
// in the FunctionResponse sent back to the model; Kind is one of the dispatch
// sentinels (ErrToolNotFound, ErrInputDeserialization, ...).
type CallError struct {
	Kind   error
	Reason string
	Cause  error
}

func (e *CallError) Error() string { return e.Reason }

// Unwrap exposes both the kind and the underlying cause to errors.Is/errors.As.
func (e *CallError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// IsCallError returns true if err is or wraps a CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

func toolNotFound(name string) *CallError {
	return &CallError{Kind: ErrToolNotFound, Reason: "Tool not found: " + name}
}

func inputError(err error) *CallError {
	return &CallError{Kind: ErrInputDeserialization, Reason: "input deserialization failed: " + err.Error(), Cause: err}
}

func outputError(err error) *CallError {
	return &CallError{Kind: ErrOutputSerialization, Reason: "output serialization failed: " + err.Error(), Cause: err}
}

// handlerError passes CallError through and wraps anything else as ErrHandlerFailed
// keeping the handler's own message.
func handlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsCallError(err) {
		return err
	}
	return &CallError{Kind: ErrHandlerFailed, Reason: err.Error(), Cause: err}
}

// APIError is a non-2xx answer from the generation endpoint. HTTPStatus 429
// unwraps to ErrRateLimited, everything else to ErrAPIRejected.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
	Status     string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (http=%d, code=%d, status=%s)", e.Message, e.HTTPStatus, e.Code, e.Status)
	}
	return fmt.Sprintf("gemini: %s (http=%d, code=%d)", e.Message, e.HTTPStatus, e.Code)
}

func (e *APIError) Unwrap() error {
	if e.HTTPStatus == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrAPIRejected
}

// IsAPIError returns true if err is or wraps an APIError.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// EventDataError reports a complete stream frame whose payload could not be
// decoded. Data holds the raw offending text.
type EventDataError struct {
	Data string
	Err  error
}

func (e *EventDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event data: %v: %q", e.Err, e.Data)
	}
	return fmt.Sprintf("invalid event data: %q", e.Data)
}

func (e *EventDataError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidEventData}
	}
	return []error{ErrInvalidEventData, e.Err}
}

// LoopExceededError is returned by Conversation when the model keeps requesting
// tools past the configured iteration bound.
type LoopExceededError struct {
	Limit int
}

func (e *LoopExceededError) Error() string {
	return fmt.Sprintf("gemini: tool-calling loop exceeded %d iterations", e.Limit)
}

func (e *LoopExceededError) Unwrap() error { return ErrLoopExceeded }

func newTransportError(op string, err error) error {
	return fmt.Errorf("gemini: %s: %w: %w", op, ErrTransport, err)
}

// panicError wraps a recovered panic value; used by Registry and WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
