package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Invoke dispatches one function call. It never fails: lookup, decoding, handler
// and encoding failures are all turned into a response of the form
// {"error": "<reason>"} so the model can see what went wrong. The response
// echoes the call's name and id.
func (r *Registry) Invoke(ctx context.Context, call FunctionCall) FunctionResponse {
	summary := InvocationSummary{ID: uuid.NewString(), CallID: call.ID, ToolName: call.Name}
	start := time.Now()

	out, err := r.invoke(ctx, call)
	if err != nil {
		out = errorPayload(err)
	}

	summary.Error = err
	summary.Duration = time.Since(start)
	summary.ResponseBytes = len(out)
	if r.opts.onAfter != nil {
		r.opts.onAfter(ctx, call, summary)
	}
	return FunctionResponse{ID: call.ID, Name: call.Name, Response: out}
}

// InvokeAll dispatches calls concurrently and returns their responses in call order.
func (r *Registry) InvokeAll(ctx context.Context, calls []FunctionCall) []FunctionResponse {
	out := make([]FunctionResponse, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			out[i] = r.Invoke(ctx, call)
		})
	}
	wg.Wait()
	return out
}

func (r *Registry) invoke(ctx context.Context, call FunctionCall) (out json.RawMessage, err error) {
	r.mu.RLock()
	select {
	case <-r.done:
		r.mu.RUnlock()
		return nil, &CallError{Kind: ErrShutdown, Reason: ErrShutdown.Error()}
	default:
	}
	t, ok := r.tools[call.Name]
	if !ok {
		r.mu.RUnlock()
		return nil, toolNotFound(call.Name)
	}
	r.running.Add(1)
	r.mu.RUnlock()
	defer r.running.Done()

	if err := r.acquireSemaphore(ctx); err != nil {
		return nil, handlerError(err)
	}
	defer r.releaseSemaphore()

	timeout := r.opts.timeout
	if tm, ok := t.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				out, err = nil, handlerError(&panicError{p: p})
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(callCtx, call)
	}

	out, err = t.Invoke(callCtx, r.tc, call.Args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &CallError{Kind: ErrTimeout, Reason: ErrTimeout.Error(), Cause: err}
		}
		return nil, handlerError(err)
	}
	if !json.Valid(out) {
		return nil, outputError(errors.New("tool returned invalid JSON"))
	}
	return out, nil
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// errorPayload renders the {"error": reason} object sent back for a failed call.
func errorPayload(err error) json.RawMessage {
	reason := err.Error()
	var ce *CallError
	if errors.As(err, &ce) {
		reason = ce.Reason
	}
	b, _ := json.Marshal(map[string]string{"error": reason})
	return b
}
