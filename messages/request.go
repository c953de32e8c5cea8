package messages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CreateMessageRequest is the backend-agnostic "create message" request.
//
// Model, Messages and MaxTokens are mandatory. Every other field is optional
// and omitted from the wire form when unset.
type CreateMessageRequest struct {
	Model         string      `json:"model"`
	Messages      []Message   `json:"messages"`
	MaxTokens     int         `json:"max_tokens"`
	Metadata      *Metadata   `json:"metadata,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
	System        Content     `json:"system,omitzero"`
	Temperature   *float64    `json:"temperature,omitempty"`
	ToolChoice    *ToolChoice `json:"tool_choice,omitempty"`
	Tools         []Tool      `json:"tools,omitempty"`
	TopK          *int        `json:"top_k,omitempty"`
	TopP          *float64    `json:"top_p,omitempty"`
}

// WireRequest is the body handed to a Requester. The embedded request is
// flattened, so the canonical JSON is the request plus a "stream" flag.
type WireRequest struct {
	CreateMessageRequest
	Stream bool `json:"stream"`
}

type Metadata struct {
	UserID *string `json:"user_id,omitempty"`
}

type ToolChoiceType string

const (
	ToolChoiceAuto ToolChoiceType = "auto"
	ToolChoiceAny  ToolChoiceType = "any"
	ToolChoiceTool ToolChoiceType = "tool"
)

// ToolChoice constrains whether and which tool the model must call. Name is
// only meaningful for ToolChoiceTool.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

// AutoToolChoice lets the model decide whether to call a tool.
func AutoToolChoice() ToolChoice { return ToolChoice{Type: ToolChoiceAuto} }

// AnyToolChoice forces the model to call one of the tools.
func AnyToolChoice() ToolChoice { return ToolChoice{Type: ToolChoiceAny} }

// NamedToolChoice forces the model to call the named tool.
func NamedToolChoice(name string) ToolChoice {
	return ToolChoice{Type: ToolChoiceTool, Name: name}
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is the JSON-Schema object describing a tool's input.
// Properties is kept raw so callers can pass any schema document.
type InputSchema struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Required   []string        `json:"required,omitempty"`
}

// ObjectSchema returns an "object" schema with the given properties document.
func ObjectSchema(properties json.RawMessage, required ...string) InputSchema {
	return InputSchema{Type: "object", Properties: properties, Required: required}
}

// RequestOption mutates a CreateMessageRequest under construction.
type RequestOption func(*CreateMessageRequest)

// BuildRequest applies opts to an empty request and validates the result.
// Options never fail; finalization is the only fallible step.
func BuildRequest(opts ...RequestOption) (CreateMessageRequest, error) {
	var req CreateMessageRequest
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	if err := req.Validate(); err != nil {
		return CreateMessageRequest{}, err
	}
	return req, nil
}

// WithModel sets the model name.
func WithModel(model string) RequestOption {
	return func(r *CreateMessageRequest) { r.Model = model }
}

// WithMessages replaces the message list.
func WithMessages(msgs ...Message) RequestOption {
	return func(r *CreateMessageRequest) { r.Messages = append([]Message(nil), msgs...) }
}

// WithMessage appends one message.
func WithMessage(msg Message) RequestOption {
	return func(r *CreateMessageRequest) { r.Messages = append(r.Messages, msg) }
}

// WithMaxTokens sets the output token limit. It must be positive.
func WithMaxTokens(n int) RequestOption {
	return func(r *CreateMessageRequest) { r.MaxTokens = n }
}

// WithMetadata replaces the request metadata.
func WithMetadata(m Metadata) RequestOption {
	return func(r *CreateMessageRequest) { r.Metadata = &m }
}

// WithUserID sets metadata.user_id.
func WithUserID(id string) RequestOption {
	return func(r *CreateMessageRequest) { r.Metadata = &Metadata{UserID: &id} }
}

// WithStopSequences sets custom sequences that stop generation.
func WithStopSequences(seqs ...string) RequestOption {
	return func(r *CreateMessageRequest) {
		if len(seqs) == 0 {
			r.StopSequences = nil
			return
		}
		r.StopSequences = append([]string(nil), seqs...)
	}
}

// WithSystem sets the system prompt.
func WithSystem(c Content) RequestOption {
	return func(r *CreateMessageRequest) { r.System = c }
}

// WithSystemText sets a plain string system prompt.
func WithSystemText(text string) RequestOption {
	return func(r *CreateMessageRequest) { r.System = SingleContent(text) }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(v float64) RequestOption {
	return func(r *CreateMessageRequest) { r.Temperature = &v }
}

// WithToolChoice sets how the model may use the tools.
func WithToolChoice(tc ToolChoice) RequestOption {
	return func(r *CreateMessageRequest) { r.ToolChoice = &tc }
}

// WithTools replaces the tool list.
func WithTools(tools ...Tool) RequestOption {
	return func(r *CreateMessageRequest) { r.Tools = append([]Tool(nil), tools...) }
}

// WithTopK limits sampling to the k most likely tokens.
func WithTopK(k int) RequestOption {
	return func(r *CreateMessageRequest) { r.TopK = &k }
}

// WithTopP sets the nucleus sampling threshold.
func WithTopP(v float64) RequestOption {
	return func(r *CreateMessageRequest) { r.TopP = &v }
}

// Validate reports the first problem that would make the request invalid on
// any backend. Clients call it before touching the network.
func (r CreateMessageRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Reason: "is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "is required"}
	}
	switch {
	case r.MaxTokens == 0:
		return &ValidationError{Field: "max_tokens", Reason: "is required"}
	case r.MaxTokens < 0:
		return &ValidationError{Field: "max_tokens", Reason: fmt.Sprintf("must be positive, got %d", r.MaxTokens)}
	}
	for i, m := range r.Messages {
		if err := m.validate(fmt.Sprintf("messages[%d]", i)); err != nil {
			return err
		}
	}
	if !r.System.IsZero() {
		if err := r.System.checkRequest("system"); err != nil {
			return err
		}
		for i, p := range r.System.Parts() {
			if _, ok := p.(TextPart); !ok {
				return &ValidationError{Field: fmt.Sprintf("system[%d]", i), Reason: fmt.Sprintf("%s is not allowed in a system prompt", p.Type())}
			}
		}
	}
	if tc := r.ToolChoice; tc != nil {
		switch tc.Type {
		case ToolChoiceAuto, ToolChoiceAny:
		case ToolChoiceTool:
			if strings.TrimSpace(tc.Name) == "" {
				return &ValidationError{Field: "tool_choice.name", Reason: "is required when type is tool"}
			}
		default:
			return &ValidationError{Field: "tool_choice.type", Reason: fmt.Sprintf("unknown tool choice %q", tc.Type)}
		}
	}
	for i, t := range r.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("tools[%d].name", i), Reason: "is required"}
		}
	}
	return nil
}
