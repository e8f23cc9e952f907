package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	desc   string
	params map[string]any
	fn     func(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error)
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return s.desc }
func (s *stubTool) Parameters() map[string]any { return s.params }

func (s *stubTool) Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
	if s.fn == nil {
		return raw(`{}`), nil
	}
	return s.fn(ctx, tc, args)
}

func TestRegistry_InvokeEcho(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newEchoTool(t))

	resp := reg.Invoke(context.Background(), FunctionCall{ID: "c1", Name: "echo", Args: raw(`{"msg":"hi"}`)})
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "echo", resp.Name)
	assert.JSONEq(t, `{"echo":"hi"}`, string(resp.Response))

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"echo","response":{"echo":"hi"}}`, string(b))
}

func TestRegistry_InvokeToolNotFound(t *testing.T) {
	reg := NewRegistry()
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "missing"})
	assert.Equal(t, "missing", resp.Name)
	assert.JSONEq(t, `{"error":"Tool not found: missing"}`, string(resp.Response))
}

func TestRegistry_InvokeMalformedArgs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newEchoTool(t))
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "echo", Args: raw(`{"msg":`)})

	var payload map[string]string
	require.NoError(t, json.Unmarshal(resp.Response, &payload))
	require.Contains(t, payload, "error")
	assert.Regexp(t, `^input deserialization failed: `, payload["error"])
}

func TestRegistry_InvokeHandlerAndPanic(t *testing.T) {
	reg := NewRegistry(WithRecoverPanics(true))
	reg.Register(
		&stubTool{name: "fails", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
			return nil, fmt.Errorf("backend unavailable")
		}},
		&stubTool{name: "panics", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
			panic("oops")
		}},
		&stubTool{name: "garbage", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
			return raw(`{oops`), nil
		}},
	)
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "fails"})
	assert.JSONEq(t, `{"error":"backend unavailable"}`, string(resp.Response))

	resp = reg.Invoke(context.Background(), FunctionCall{Name: "panics"})
	assert.JSONEq(t, `{"error":"panic: oops"}`, string(resp.Response))

	resp = reg.Invoke(context.Background(), FunctionCall{Name: "garbage"})
	assert.JSONEq(t, `{"error":"output serialization failed: tool returned invalid JSON"}`, string(resp.Response))
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, reg.IsEmpty())
	reg.Register(&stubTool{name: "t", desc: "first", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
		return raw(`1`), nil
	}})
	reg.Register(&stubTool{name: "t", desc: "second", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
		return raw(`2`), nil
	}})
	require.Equal(t, 1, reg.Len())
	assert.False(t, reg.IsEmpty())

	decls := reg.Declarations()
	require.Len(t, decls, 1)
	require.Len(t, decls[0].FunctionDeclarations, 1)
	assert.Equal(t, "second", decls[0].FunctionDeclarations[0].Description)

	resp := reg.Invoke(context.Background(), FunctionCall{Name: "t"})
	assert.Equal(t, "2", string(resp.Response))
}

func TestRegistry_ToolsAndDeclarations(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Declarations())

	reg.Register(newEchoTool(t), &stubTool{name: "clock", desc: "Current time"})
	tools := reg.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "clock", tools[0].Name())
	assert.Equal(t, "echo", tools[1].Name())

	got, ok := reg.Tool("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name())
	_, ok = reg.Tool("missing")
	assert.False(t, ok)

	b, err := json.Marshal(reg.Declarations())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"functionDeclarations":[
		{"name":"clock","description":"Current time"},
		{"name":"echo","description":"Echo a message","parameters":{
			"type":"object","properties":{"msg":{"type":"string","description":"Text to echo"}},"required":["msg"]}}
	]}]`, string(b))
}

func TestRegistry_InvokeAllKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "sleep", fn: func(_ context.Context, _ *ToolContext, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Ms int `json:"ms"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(in.Ms) * time.Millisecond)
		return args, nil
	}})
	calls := []FunctionCall{
		{ID: "1", Name: "sleep", Args: raw(`{"ms":30}`)},
		{ID: "2", Name: "missing"},
		{ID: "3", Name: "sleep", Args: raw(`{"ms":1}`)},
	}
	resps := reg.InvokeAll(context.Background(), calls)
	require.Len(t, resps, 3)
	assert.Equal(t, "1", resps[0].ID)
	assert.JSONEq(t, `{"ms":30}`, string(resps[0].Response))
	assert.JSONEq(t, `{"error":"Tool not found: missing"}`, string(resps[1].Response))
	assert.Equal(t, "3", resps[2].ID)
	assert.Empty(t, reg.InvokeAll(context.Background(), nil))
}

func TestRegistry_ToolContextIsShared(t *testing.T) {
	type apiBase string
	tc := NewToolContext()
	SetResource(tc, apiBase("https://example.test"))
	reg := NewRegistry(WithToolContext(tc))
	require.Same(t, tc, reg.ToolContext())

	tool, err := NewTool("base", "d", func(_ context.Context, tc *ToolContext, _ struct{}) (string, error) {
		base, ok := Resource[apiBase](tc)
		if !ok {
			return "", fmt.Errorf("no base configured")
		}
		return string(base), nil
	})
	require.NoError(t, err)
	reg.Register(tool)
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "base"})
	assert.JSONEq(t, `"https://example.test"`, string(resp.Response))
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "nop"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	require.NoError(t, reg.Shutdown(ctx), "second shutdown is a no-op")
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "nop"})
	assert.JSONEq(t, `{"error":"registry is shutting down"}`, string(resp.Response))
}

func TestRegistry_Shutdown_InFlight(t *testing.T) {
	started := make(chan struct{})
	done := make(chan struct{})
	reg := NewRegistry()
	reg.Register(&stubTool{name: "slow", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(done)
		return raw(`{}`), nil
	}})
	var wg sync.WaitGroup
	wg.Go(func() { reg.Invoke(context.Background(), FunctionCall{Name: "slow"}) })
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	select {
	case <-done:
	default:
		t.Fatal("in-flight invocation should have completed before Shutdown returned")
	}
	wg.Wait()
}

func TestRegistry_Timeout(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(20 * time.Millisecond))
	reg.Register(&stubTool{name: "block", fn: func(ctx context.Context, _ *ToolContext, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	resp := reg.Invoke(context.Background(), FunctionCall{Name: "block"})
	assert.JSONEq(t, `{"error":"tool execution timeout"}`, string(resp.Response))
}

func TestRegistry_CancelledContext(t *testing.T) {
	reg := NewRegistry(WithMaxConcurrency(1))
	reg.Register(newEchoTool(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := reg.Invoke(ctx, FunctionCall{Name: "echo", Args: raw(`{"msg":"x"}`)})
	assert.JSONEq(t, `{"error":"context canceled"}`, string(resp.Response))
}

func TestRegistry_MaxConcurrency(t *testing.T) {
	var running, peak int32
	reg := NewRegistry(WithMaxConcurrency(2))
	reg.Register(&stubTool{name: "slow", fn: func(context.Context, *ToolContext, json.RawMessage) (json.RawMessage, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return raw(`{}`), nil
	}})
	calls := make([]FunctionCall, 6)
	for i := range calls {
		calls[i] = FunctionCall{Name: "slow"}
	}
	reg.InvokeAll(context.Background(), calls)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRegistry_Hooks(t *testing.T) {
	var mu sync.Mutex
	var before []string
	var after []InvocationSummary
	reg := NewRegistry(
		WithOnBeforeInvoke(func(_ context.Context, call FunctionCall) {
			mu.Lock()
			defer mu.Unlock()
			before = append(before, call.Name)
		}),
		WithOnAfterInvoke(func(_ context.Context, _ FunctionCall, s InvocationSummary) {
			mu.Lock()
			defer mu.Unlock()
			after = append(after, s)
		}),
	)
	reg.Register(newEchoTool(t))
	reg.Invoke(context.Background(), FunctionCall{ID: "a", Name: "echo", Args: raw(`{"msg":"x"}`)})
	reg.Invoke(context.Background(), FunctionCall{ID: "b", Name: "missing"})

	assert.Equal(t, []string{"echo"}, before, "before hook only runs for resolved tools")
	require.Len(t, after, 2)
	assert.Equal(t, "a", after[0].CallID)
	assert.NoError(t, after[0].Error)
	assert.NotEmpty(t, after[0].ID)
	assert.Positive(t, after[0].ResponseBytes)
	assert.Equal(t, "missing", after[1].ToolName)
	assert.ErrorIs(t, after[1].Error, ErrToolNotFound)
	assert.NotEqual(t, after[0].ID, after[1].ID)
}
