package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who produced a Content. It is fixed at construction.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Content is one conversational turn: a role and an ordered list of parts.
// The role cannot be changed after construction; parts may be appended.
type Content struct {
	role  Role
	parts []Part
}

// UserContent returns a user turn with the given parts.
func UserContent(parts ...Part) *Content {
	return &Content{role: RoleUser, parts: parts}
}

// ModelContent returns a model turn with the given parts.
func ModelContent(parts ...Part) *Content {
	return &Content{role: RoleModel, parts: parts}
}

// UserText is shorthand for a user turn holding a single text part.
func UserText(text string) *Content {
	return UserContent(TextPart(text))
}

// SystemInstruction returns a role-less content for GenerateContentRequest.SystemInstruction.
func SystemInstruction(text string) *Content {
	return &Content{parts: []Part{TextPart(text)}}
}

// Role returns the producer of the turn. It is empty for system instructions.
func (c *Content) Role() Role { return c.role }

// Parts returns a copy of the part list.
func (c *Content) Parts() []Part {
	return append([]Part(nil), c.parts...)
}

// Len returns the number of parts.
func (c *Content) Len() int { return len(c.parts) }

// AddParts appends parts and returns c for chaining.
func (c *Content) AddParts(parts ...Part) *Content {
	c.parts = append(c.parts, parts...)
	return c
}

// FunctionCalls returns the function calls carried by the turn, in order.
func (c *Content) FunctionCalls() []FunctionCall {
	if c == nil {
		return nil
	}
	var out []FunctionCall
	for _, p := range c.parts {
		if p.FunctionCall != nil {
			out = append(out, *p.FunctionCall)
		}
	}
	return out
}

// Text concatenates the text parts, skipping thoughts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.parts {
		if p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Clone returns a copy of c with its own part slice.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	return &Content{role: c.role, parts: c.Parts()}
}

type contentJSON struct {
	Role  Role   `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// MarshalJSON writes {"role", "parts"}; parts is never null.
func (c *Content) MarshalJSON() ([]byte, error) {
	parts := c.parts
	if parts == nil {
		parts = []Part{}
	}
	return json.Marshal(contentJSON{Role: c.role, Parts: parts})
}

// UnmarshalJSON accepts the user and model roles and an empty role.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw contentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Role {
	case "", RoleUser, RoleModel:
	default:
		return fmt.Errorf("gemini: unknown content role %q", raw.Role)
	}
	c.role = raw.Role
	c.parts = raw.Parts
	return nil
}

// Part is one element of a Content. Exactly one of the payload fields is expected to be set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part { return Part{Text: text} }

// BlobPart returns an inline binary part. data is base64-encoded on the wire.
func BlobPart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mimeType, Data: data}}
}

// FilePart references a previously uploaded file.
func FilePart(mimeType, uri string) Part {
	return Part{FileData: &FileData{MimeType: mimeType, FileURI: uri}}
}

// FunctionResponsePart wraps a function response for a user turn.
func FunctionResponsePart(resp FunctionResponse) Part {
	return Part{FunctionResponse: &resp}
}

// Blob is inline binary data.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// FileData references a file by URI.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

// FunctionCall is the model asking for a tool to run. Args is absent when the
// tool takes no arguments.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model. Response is the
// tool output, or {"error": "..."} for a failed call.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// FunctionCallBuilder assembles a FunctionCall, mostly for tests and replayed histories.
type FunctionCallBuilder struct {
	call FunctionCall
	err  error
}

// NewFunctionCall starts a FunctionCall for the named tool.
func NewFunctionCall(name string) *FunctionCallBuilder {
	return &FunctionCallBuilder{call: FunctionCall{Name: name}}
}

// ID sets the call id that the response will echo.
func (b *FunctionCallBuilder) ID(id string) *FunctionCallBuilder {
	b.call.ID = id
	return b
}

// Args sets the arguments from raw JSON. Blank input leaves Args absent.
func (b *FunctionCallBuilder) Args(args string) *FunctionCallBuilder {
	if strings.TrimSpace(args) == "" {
		b.call.Args = nil
		return b
	}
	if !json.Valid([]byte(args)) {
		b.err = fmt.Errorf("gemini: function call %q: invalid args JSON", b.call.Name)
		return b
	}
	b.call.Args = json.RawMessage(args)
	return b
}

// ArgsValue sets the arguments by encoding v.
func (b *FunctionCallBuilder) ArgsValue(v any) *FunctionCallBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("gemini: function call %q: %w", b.call.Name, err)
		return b
	}
	b.call.Args = data
	return b
}

// Build returns the assembled call or the first error recorded.
func (b *FunctionCallBuilder) Build() (FunctionCall, error) {
	if b.err != nil {
		return FunctionCall{}, b.err
	}
	if b.call.Name == "" {
		return FunctionCall{}, fmt.Errorf("gemini: function call name is required")
	}
	return b.call, nil
}
