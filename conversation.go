package gemini

import (
	"context"
	"iter"
	"log/slog"
	"time"
)

// DefaultMaxIterations bounds the tool-calling loop when WithMaxIterations is not given.
const DefaultMaxIterations = 10

// Generator is the part of Client a Conversation needs. Tests substitute a fake.
type Generator interface {
	GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error)
	StreamGenerateContent(ctx context.Context, req *GenerateContentRequest) iter.Seq2[*GenerateContentResponse, error]
}

// IterationEvent is reported after each round of tool dispatch.
type IterationEvent struct {
	Iteration int
	Calls     []FunctionCall
	Responses []FunctionResponse
	Duration  time.Duration
}

type conversationOptions struct {
	maxIterations int
	logger        *slog.Logger
	onIteration   func(context.Context, IterationEvent)
}

// ConversationOption configures a Conversation.
type ConversationOption func(*conversationOptions)

// WithMaxIterations sets how many rounds of tool dispatch are allowed before
// Run gives up with ErrLoopExceeded. Negative values are treated as zero.
func WithMaxIterations(n int) ConversationOption {
	return func(o *conversationOptions) {
		o.maxIterations = max(n, 0)
	}
}

// WithConversationLogger sets the logger for loop diagnostics.
func WithConversationLogger(logger *slog.Logger) ConversationOption {
	return func(o *conversationOptions) {
		o.logger = logger
	}
}

// WithOnIteration sets a hook called after each round of tool dispatch.
func WithOnIteration(fn func(context.Context, IterationEvent)) ConversationOption {
	return func(o *conversationOptions) {
		o.onIteration = fn
	}
}

// Conversation drives the tool-calling loop: send the request, run every
// function call in the first candidate, append the model turn and the tool
// results to the history, and repeat until the model answers without calls.
type Conversation struct {
	gen  Generator
	reg  *Registry
	opts conversationOptions
}

// NewConversation returns a Conversation that dispatches calls through reg.
// A nil reg behaves like an empty registry.
func NewConversation(gen Generator, reg *Registry, opts ...ConversationOption) *Conversation {
	o := conversationOptions{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Conversation{gen: gen, reg: reg, opts: o}
}

// Registry returns the registry calls are dispatched through.
func (c *Conversation) Registry() *Registry { return c.reg }

// Run executes the loop with unary requests and returns the final answer.
// req.Contents grows by two turns per round; on return it holds the full
// history except the final answer. If req.Tools is nil it is set to the
// conversation's registry.
func (c *Conversation) Run(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	return c.run(ctx, req, c.gen.GenerateContent)
}

// RunStream is Run over the streaming endpoint. Every fragment is passed to
// onFragment as it arrives; a turn's fragments are merged before its calls are
// dispatched. An error from onFragment stops the loop and is returned.
func (c *Conversation) RunStream(
	ctx context.Context,
	req *GenerateContentRequest,
	onFragment func(*GenerateContentResponse) error,
) (*GenerateContentResponse, error) {
	send := func(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
		var acc *GenerateContentResponse
		for frag, err := range c.gen.StreamGenerateContent(ctx, req) {
			if err != nil {
				return nil, err
			}
			if onFragment != nil {
				if err := onFragment(frag); err != nil {
					return nil, err
				}
			}
			acc = mergeFragment(acc, frag)
		}
		if acc == nil {
			acc = &GenerateContentResponse{}
		}
		return acc, nil
	}
	return c.run(ctx, req, send)
}

type conversationState int

const (
	stateAwaitingModel conversationState = iota
	stateHasFunctionCalls
	stateDispatching
	stateAppendingResults
	stateFinalAnswer
	stateLoopExceeded
)

type sendFunc func(context.Context, *GenerateContentRequest) (*GenerateContentResponse, error)

func (c *Conversation) run(ctx context.Context, req *GenerateContentRequest, send sendFunc) (*GenerateContentResponse, error) {
	if req.Tools == nil {
		req.Tools = c.reg
	}
	var (
		state     = stateAwaitingModel
		iteration int
		resp      *GenerateContentResponse
		calls     []FunctionCall
		results   []FunctionResponse
		started   time.Time
	)
	for {
		switch state {
		case stateAwaitingModel:
			r, err := send(ctx, req)
			if err != nil {
				return nil, err
			}
			resp = r
			state = stateHasFunctionCalls

		case stateHasFunctionCalls:
			calls = resp.FunctionCalls()
			if len(calls) == 0 {
				state = stateFinalAnswer
				continue
			}
			state = stateDispatching

		case stateDispatching:
			started = time.Now()
			c.opts.logger.DebugContext(ctx, "dispatching function calls", "iteration", iteration+1, "calls", len(calls))
			results = c.reg.InvokeAll(ctx, calls)
			state = stateAppendingResults

		case stateAppendingResults:
			parts := make([]Part, len(results))
			for i, r := range results {
				parts[i] = FunctionResponsePart(r)
			}
			req.AddContent(ModelContent(resp.Content().Parts()...), UserContent(parts...))
			iteration++
			if c.opts.onIteration != nil {
				c.opts.onIteration(ctx, IterationEvent{
					Iteration: iteration,
					Calls:     calls,
					Responses: results,
					Duration:  time.Since(started),
				})
			}
			if iteration > c.opts.maxIterations {
				state = stateLoopExceeded
				continue
			}
			state = stateAwaitingModel

		case stateFinalAnswer:
			return resp, nil

		case stateLoopExceeded:
			c.opts.logger.WarnContext(ctx, "tool-calling loop exceeded", "limit", c.opts.maxIterations)
			return nil, &LoopExceededError{Limit: c.opts.maxIterations}
		}
	}
}
