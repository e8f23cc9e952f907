package gemini

import (
	"context"
	"slices"
	"sync"
)

// Registry holds the tools offered to the model and dispatches the function
// calls it emits. Registering a tool under an existing name replaces it.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Invoke
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	sem         chan struct{}
	opts        registryOptions
	tc          *ToolContext
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options. By default tools have
// no timeout, at most 10 run at once and handler panics are recovered.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	tc := o.toolContext
	if tc == nil {
		tc = NewToolContext()
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		sem:      sem,
		opts:     o,
		tc:       tc,
		done:     make(chan struct{}),
	}
}

// Register adds tools. Stored middlewares (see Use) are applied before registration.
// A tool with the same name as an existing one replaces it. Safe for concurrent use with Invoke.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		name := t.Name()
		r.rawTools[name] = t
		r.tools[name] = r.wrap(t)
	}
}

func (r *Registry) wrap(t Tool) Tool {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	return t
}

// Tool returns the tool with the given name (after middlewares are applied), or (nil, false) if not found.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// IsEmpty reports whether no tool is registered.
func (r *Registry) IsEmpty() bool { return r.Len() == 0 }

// ToolContext returns the resource store passed to every handler.
func (r *Registry) ToolContext() *ToolContext { return r.tc }

// Declarations renders the registered tools in wire form, sorted by name.
// It returns nil for an empty registry so the request omits "tools".
func (r *Registry) Declarations() []ToolDeclaration {
	if r == nil {
		return nil
	}
	tools := r.Tools()
	if len(tools) == 0 {
		return nil
	}
	decls := make([]FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return []ToolDeclaration{{FunctionDeclarations: decls}}
}

// Use stores the given middlewares and reapplies them from scratch to all registered tools (onion order:
// first middleware is outermost). Tools registered after Use get them too.
// Calling Use again replaces the chain; tools are never wrapped twice.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = r.wrap(raw)
	}
}

// Shutdown closes the registry for new calls and waits for in-flight invocations or ctx to cancel.
// Calls dispatched after Shutdown are answered with a shutdown error payload.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
