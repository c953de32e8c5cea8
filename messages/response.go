package messages

import (
	"bytes"
	"encoding/json"
	"errors"
)

type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopSequence  StopReason = "stop_sequence"
	StopToolUse   StopReason = "tool_use"
)

// Known reports whether r is one of the documented stop reasons. Other
// values reported by a backend are kept verbatim.
func (r StopReason) Known() bool {
	switch r {
	case StopEndTurn, StopMaxTokens, StopSequence, StopToolUse:
		return true
	}
	return false
}

// Usage is token accounting. InputTokens may be unknown mid-stream.
type Usage struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens int  `json:"output_tokens"`
}

// MessageResponse is a completed message, either decoded from a non-streaming
// response or rebuilt from a stream by Accumulator.
type MessageResponse struct {
	ID           string      `json:"id"`
	Model        string      `json:"model"`
	Role         Role        `json:"role"`
	Content      Parts       `json:"content"`
	StopReason   *StopReason `json:"stop_reason"`
	StopSequence *string     `json:"stop_sequence"`
	Usage        Usage       `json:"usage"`
}

func (m MessageResponse) MarshalJSON() ([]byte, error) {
	type wire MessageResponse
	return json.Marshal(struct {
		Type string `json:"type"`
		wire
	}{"message", wire(m)})
}

// Text returns the concatenated text blocks of the response.
func (m *MessageResponse) Text() string {
	if m == nil {
		return ""
	}
	return m.Content.Text()
}

// ToolUses returns the tool invocations of the response in order.
func (m *MessageResponse) ToolUses() []ToolUsePart {
	if m == nil {
		return nil
	}
	var out []ToolUsePart
	for _, p := range m.Content {
		if tu, ok := p.(ToolUsePart); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ErrorDetails is the "error" member of the error envelope.
type ErrorDetails struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type envelope struct {
	Type  string        `json:"type"`
	Error *ErrorDetails `json:"error"`
}

// DecodeResponse decodes a response body.
//
// A "message" body yields a MessageResponse. An error envelope
// ({"type":"error","error":{...}}) yields *APIError. Anything else yields
// *DecodeError carrying the raw body.
func DecodeResponse(body []byte) (*MessageResponse, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &DecodeError{Raw: bytes.Clone(body), Cause: err}
	}

	switch env.Type {
	case "message":
		var m MessageResponse
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, &DecodeError{Raw: bytes.Clone(body), Cause: err}
		}
		return &m, nil
	case "error":
		if env.Error == nil {
			return nil, &DecodeError{Raw: bytes.Clone(body), Cause: errors.New("error envelope without error details")}
		}
		return nil, &APIError{Type: env.Error.Type, Message: env.Error.Message, Raw: bytes.Clone(body)}
	default:
		return nil, &DecodeError{Raw: bytes.Clone(body), Cause: errors.New("unrecognized response shape")}
	}
}

// parseErrorEnvelope extracts error details from a non-2xx body, if the body
// is a well-formed error envelope.
func parseErrorEnvelope(body []byte) (ErrorDetails, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ErrorDetails{}, false
	}
	if env.Type != "error" || env.Error == nil {
		return ErrorDetails{}, false
	}
	return *env.Error, true
}
