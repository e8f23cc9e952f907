package gemini

import "encoding/json"

// FunctionDeclaration describes one tool to the model. Parameters is omitted
// for tools that take no arguments.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDeclaration groups function declarations the way the API expects them.
type ToolDeclaration struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionCallingMode controls whether the model may, must or must not call tools.
type FunctionCallingMode string

const (
	FunctionCallingAuto FunctionCallingMode = "AUTO"
	FunctionCallingAny  FunctionCallingMode = "ANY"
	FunctionCallingNone FunctionCallingMode = "NONE"
)

// ToolConfig constrains function calling for a request.
type ToolConfig struct {
	FunctionCallingConfig *FunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

// FunctionCallingConfig selects the mode and, for ANY, the allowed functions.
type FunctionCallingConfig struct {
	Mode                 FunctionCallingMode `json:"mode,omitempty"`
	AllowedFunctionNames []string            `json:"allowedFunctionNames,omitempty"`
}

// HarmCategory names a class of harmful content a SafetySetting applies to.
type HarmCategory string

// Harm categories accepted by the generation API.
const (
	HarmCategoryHarassment       HarmCategory = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       HarmCategory = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit HarmCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent HarmCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

// HarmBlockThreshold is the probability at and above which content is blocked.
type HarmBlockThreshold string

// Block thresholds, from most to least restrictive.
const (
	BlockLowAndAbove    HarmBlockThreshold = "BLOCK_LOW_AND_ABOVE"
	BlockMediumAndAbove HarmBlockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	BlockOnlyHigh       HarmBlockThreshold = "BLOCK_ONLY_HIGH"
	BlockNone           HarmBlockThreshold = "BLOCK_NONE"
)

// HarmProbability is the likelihood reported in a SafetyRating.
type HarmProbability string

// Probabilities reported by the API, lowest first.
const (
	HarmProbabilityNegligible HarmProbability = "NEGLIGIBLE"
	HarmProbabilityLow        HarmProbability = "LOW"
	HarmProbabilityMedium     HarmProbability = "MEDIUM"
	HarmProbabilityHigh       HarmProbability = "HIGH"
)

// SafetySetting sets the blocking threshold for one harm category.
type SafetySetting struct {
	Category  HarmCategory       `json:"category"`
	Threshold HarmBlockThreshold `json:"threshold"`
}

// SafetyRating is the model's assessment of one harm category.
type SafetyRating struct {
	Category    HarmCategory    `json:"category"`
	Probability HarmProbability `json:"probability"`
	Blocked     bool            `json:"blocked,omitempty"`
}

// GenerationConfig tunes sampling and output. Nil pointer fields are left to the API default.
type GenerationConfig struct {
	StopSequences    []string       `json:"stopSequences,omitempty"`
	CandidateCount   *int           `json:"candidateCount,omitempty"`
	MaxOutputTokens  *int           `json:"maxOutputTokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"topP,omitempty"`
	TopK             *int           `json:"topK,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

// GenerateContentRequest is one call to the generation endpoint. Contents is
// the conversation history; Conversation appends to it as tools run.
// Tools is rendered into declarations each time the request is sent.
type GenerateContentRequest struct {
	Model             string
	Contents          []*Content
	Tools             *Registry
	ToolConfig        *ToolConfig
	SafetySettings    []SafetySetting
	SystemInstruction *Content
	GenerationConfig  *GenerationConfig
}

// AddContent appends turns to the history.
func (r *GenerateContentRequest) AddContent(contents ...*Content) {
	r.Contents = append(r.Contents, contents...)
}

func (r *GenerateContentRequest) validate() error {
	if r.Model == "" {
		return ErrMissingModel
	}
	if len(r.Contents) == 0 {
		return ErrNoContents
	}
	return nil
}

type requestJSON struct {
	Contents          []*Content        `json:"contents"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	SafetySettings    []SafetySetting   `json:"safetySettings,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// MarshalJSON renders the request body. The model name travels in the URL.
func (r *GenerateContentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		Contents:          r.Contents,
		Tools:             r.Tools.Declarations(),
		ToolConfig:        r.ToolConfig,
		SafetySettings:    r.SafetySettings,
		SystemInstruction: r.SystemInstruction,
		GenerationConfig:  r.GenerationConfig,
	})
}

// FinishReason tells why a candidate stopped.
type FinishReason string

const (
	FinishReasonStop       FinishReason = "STOP"
	FinishReasonMaxTokens  FinishReason = "MAX_TOKENS"
	FinishReasonSafety     FinishReason = "SAFETY"
	FinishReasonRecitation FinishReason = "RECITATION"
	FinishReasonOther      FinishReason = "OTHER"
)

// Candidate is one alternative answer.
type Candidate struct {
	Content       *Content       `json:"content,omitempty"`
	FinishReason  FinishReason   `json:"finishReason,omitempty"`
	Index         int            `json:"index"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// PromptFeedback is set when the prompt itself was blocked.
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// UsageMetadata reports token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount,omitempty"`
}

// GenerateContentResponse is a full answer, or one fragment of a streamed one.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

// FirstCandidate returns the first candidate, or nil.
func (r *GenerateContentResponse) FirstCandidate() *Candidate {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// Content returns the first candidate's content, or nil.
func (r *GenerateContentResponse) Content() *Content {
	if c := r.FirstCandidate(); c != nil {
		return c.Content
	}
	return nil
}

// FunctionCalls returns the function calls of the first candidate.
func (r *GenerateContentResponse) FunctionCalls() []FunctionCall {
	return r.Content().FunctionCalls()
}

// Text returns the text of the first candidate.
func (r *GenerateContentResponse) Text() string {
	return r.Content().Text()
}

// mergeFragment folds a streamed fragment into acc. Candidates are matched by
// index; adjacent text parts are concatenated, other parts appended. Scalar
// fields take the latest non-empty value.
func mergeFragment(acc, frag *GenerateContentResponse) *GenerateContentResponse {
	if acc == nil {
		acc = &GenerateContentResponse{}
	}
	if frag == nil {
		return acc
	}
	for _, fc := range frag.Candidates {
		target := -1
		for i := range acc.Candidates {
			if acc.Candidates[i].Index == fc.Index {
				target = i
				break
			}
		}
		if target < 0 {
			acc.Candidates = append(acc.Candidates, Candidate{Index: fc.Index})
			target = len(acc.Candidates) - 1
		}
		cand := &acc.Candidates[target]
		if fc.Content != nil {
			if cand.Content == nil {
				cand.Content = &Content{role: fc.Content.role}
			}
			for _, p := range fc.Content.parts {
				appendMergedPart(cand.Content, p)
			}
		}
		if fc.FinishReason != "" {
			cand.FinishReason = fc.FinishReason
		}
		if fc.SafetyRatings != nil {
			cand.SafetyRatings = fc.SafetyRatings
		}
	}
	if frag.PromptFeedback != nil {
		acc.PromptFeedback = frag.PromptFeedback
	}
	if frag.UsageMetadata != nil {
		acc.UsageMetadata = frag.UsageMetadata
	}
	if frag.ModelVersion != "" {
		acc.ModelVersion = frag.ModelVersion
	}
	return acc
}

func appendMergedPart(c *Content, p Part) {
	if n := len(c.parts); n > 0 && isPlainText(c.parts[n-1]) && isPlainText(p) && c.parts[n-1].Thought == p.Thought {
		c.parts[n-1].Text += p.Text
		return
	}
	c.parts = append(c.parts, p)
}

func isPlainText(p Part) bool {
	return p.Text != "" && p.InlineData == nil && p.FileData == nil && p.FunctionCall == nil && p.FunctionResponse == nil
}
