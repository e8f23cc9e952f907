// Package gemini is a client for the Gemini generateContent API with typed
// function calling.
//
// # Overview
//
// The model answers a request either with text or with function calls. This
// package turns each call into a concrete Go function call: validate the
// arguments against the schema shown to the model, decode them, run the handler,
// and encode the result into a function response. Conversation repeats that
// until the model answers without calls.
//
// Pipeline: Go function + argument struct → NewTool (reflection + schema) → Tool →
// Registry → GenerateContentRequest.Tools (declarations) → model → FunctionCall →
// Registry.Invoke → FunctionResponse → next request.
//
// # Key concepts
//
//   - One schema: the struct that a handler accepts also produces its declaration
//     and validates incoming arguments.
//   - Failures go back to the model: a missing tool, bad arguments or a handler
//     error become {"error": "..."} responses, never Go errors.
//   - Shared resources: a ToolContext holds one value per type and hands copies to
//     every handler.
//   - Streaming: StreamGenerateContent yields fragments lazily from a server-sent
//     event stream; DecodeEvents and Decoder work on any reader.
//
// # Example
//
//	type Args struct {
//	    Msg string `json:"msg" description:"Text to echo"`
//	}
//	type Out struct {
//	    Echo string `json:"echo"`
//	}
//	echo, err := gemini.NewTool("echo", "Echo a message", func(_ context.Context, _ *gemini.ToolContext, a Args) (Out, error) {
//	    return Out{Echo: a.Msg}, nil
//	})
//	if err != nil { ... }
//	reg := gemini.NewRegistry()
//	reg.Register(echo)
//
//	client, err := gemini.NewFromEnv()
//	if err != nil { ... }
//	req := &gemini.GenerateContentRequest{
//	    Model:    "gemini-2.0-flash",
//	    Contents: []*gemini.Content{gemini.UserText("Echo hello")},
//	}
//	resp, err := gemini.NewConversation(client, reg).Run(ctx, req)
package gemini
