package testutil

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/skosovsky/gemini"
)

// ErrScriptExhausted is returned by FakeGenerator once every scripted turn was consumed
// and no Fallback is set.
var ErrScriptExhausted = errors.New("testutil: fake generator script exhausted")

// Turn is one scripted answer. Fragments, when set, are what the streaming
// endpoint yields; Response is what the unary endpoint returns. Err fails the turn.
type Turn struct {
	Response  *gemini.GenerateContentResponse
	Fragments []*gemini.GenerateContentResponse
	Err       error
}

// FakeGenerator replays scripted turns and records every request it receives.
// It implements gemini.Generator.
type FakeGenerator struct {
	Turns []Turn
	// Fallback, when set, answers every request past the end of Turns.
	Fallback func(req *gemini.GenerateContentRequest) Turn

	mu       sync.Mutex
	next     int
	requests []RecordedRequest
}

// RecordedRequest is a snapshot of a request at the time it was sent.
type RecordedRequest struct {
	Model        string
	Contents     []*gemini.Content
	Declarations []gemini.ToolDeclaration
}

func (g *FakeGenerator) take(req *gemini.GenerateContentRequest) Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	contents := make([]*gemini.Content, len(req.Contents))
	for i, c := range req.Contents {
		contents[i] = c.Clone()
	}
	g.requests = append(g.requests, RecordedRequest{
		Model:        req.Model,
		Contents:     contents,
		Declarations: req.Tools.Declarations(),
	})
	if g.next < len(g.Turns) {
		turn := g.Turns[g.next]
		g.next++
		return turn
	}
	if g.Fallback != nil {
		return g.Fallback(req)
	}
	return Turn{Err: ErrScriptExhausted}
}

// Requests returns the recorded requests in order.
func (g *FakeGenerator) Requests() []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RecordedRequest(nil), g.requests...)
}

// Calls returns how many requests were sent.
func (g *FakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// GenerateContent returns the next scripted response.
func (g *FakeGenerator) GenerateContent(ctx context.Context, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := g.take(req)
	if turn.Err != nil {
		return nil, turn.Err
	}
	if turn.Response == nil && len(turn.Fragments) > 0 {
		return turn.Fragments[len(turn.Fragments)-1], nil
	}
	return turn.Response, nil
}

// StreamGenerateContent yields the next scripted fragments, or the scripted
// response as a single fragment.
func (g *FakeGenerator) StreamGenerateContent(ctx context.Context, req *gemini.GenerateContentRequest) iter.Seq2[*gemini.GenerateContentResponse, error] {
	return func(yield func(*gemini.GenerateContentResponse, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		turn := g.take(req)
		if turn.Err != nil {
			yield(nil, turn.Err)
			return
		}
		frags := turn.Fragments
		if len(frags) == 0 && turn.Response != nil {
			frags = []*gemini.GenerateContentResponse{turn.Response}
		}
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// TextResponse builds a single-candidate model answer holding text.
func TextResponse(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{Candidates: []gemini.Candidate{{
		Content:      gemini.ModelContent(gemini.TextPart(text)),
		FinishReason: gemini.FinishReasonStop,
	}}}
}

// CallResponse builds a single-candidate model answer holding function calls.
func CallResponse(calls ...gemini.FunctionCall) *gemini.GenerateContentResponse {
	parts := make([]gemini.Part, len(calls))
	for i := range calls {
		parts[i] = gemini.Part{FunctionCall: &calls[i]}
	}
	return &gemini.GenerateContentResponse{Candidates: []gemini.Candidate{{
		Content:      gemini.ModelContent(parts...),
		FinishReason: gemini.FinishReasonStop,
	}}}
}

var _ gemini.Generator = (*FakeGenerator)(nil)
