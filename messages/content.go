package messages

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentText           ContentType = "text"
	ContentTextDelta      ContentType = "text_delta"
	ContentImage          ContentType = "image"
	ContentToolUse        ContentType = "tool_use"
	ContentToolResult     ContentType = "tool_result"
	ContentInputJSONDelta ContentType = "input_json_delta"
)

// ContentPart is one atomic piece of message content.
//
// The concrete types are TextPart, TextDeltaPart, ImagePart, ToolUsePart,
// ToolResultPart and InputJSONDeltaPart. The delta variants only ever appear
// inside a ContentBlockDeltaEvent.
type ContentPart interface {
	Type() ContentType
	isPart()
}

// TextPart is a block of plain text.
type TextPart struct {
	Text string
}

func (TextPart) Type() ContentType { return ContentText }
func (TextPart) isPart()           {}

func (p TextPart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

// TextDeltaPart is an incremental text fragment of a streamed text block.
type TextDeltaPart struct {
	Text string
}

func (TextDeltaPart) Type() ContentType { return ContentTextDelta }
func (TextDeltaPart) isPart()           {}

func (p TextDeltaPart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

// MediaType is the MIME type of an image payload.
type MediaType string

const (
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeGIF  MediaType = "image/gif"
	MediaTypeWebP MediaType = "image/webp"
)

func (m MediaType) valid() bool {
	switch m {
	case MediaTypeJPEG, MediaTypePNG, MediaTypeGIF, MediaTypeWebP:
		return true
	}
	return false
}

// ImageSource carries a base64-encoded image payload.
type ImageSource struct {
	Type      string    `json:"type"`
	MediaType MediaType `json:"media_type"`
	Data      string    `json:"data"`
}

// Bytes decodes the base64 payload.
func (s ImageSource) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// ImagePart is an image sent inline as base64. It is only valid in requests.
type ImagePart struct {
	Source ImageSource
}

// NewImagePart encodes raw image bytes into an ImagePart.
func NewImagePart(mediaType MediaType, data []byte) (ImagePart, error) {
	if !mediaType.valid() {
		return ImagePart{}, &ValidationError{Field: "source.media_type", Reason: fmt.Sprintf("unsupported media type %q", mediaType)}
	}
	return ImagePart{Source: ImageSource{
		Type:      "base64",
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}}, nil
}

func (ImagePart) Type() ContentType { return ContentImage }
func (ImagePart) isPart()           {}

func (p ImagePart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

// ToolUsePart is a tool invocation issued by the model. Input is an arbitrary
// JSON value; an empty Input is sent as {}.
type ToolUsePart struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolUsePart) Type() ContentType { return ContentToolUse }
func (ToolUsePart) isPart()           {}

func (p ToolUsePart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

// ToolResultPart answers the ToolUsePart whose ID equals ToolUseID.
type ToolResultPart struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (ToolResultPart) Type() ContentType { return ContentToolResult }
func (ToolResultPart) isPart()           {}

func (p ToolResultPart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

// InputJSONDeltaPart is a fragment of a streamed ToolUsePart.Input. The
// fragments of one block only form valid JSON once concatenated in order.
type InputJSONDeltaPart struct {
	PartialJSON string
}

func (InputJSONDeltaPart) Type() ContentType { return ContentInputJSONDelta }
func (InputJSONDeltaPart) isPart()           {}

func (p InputJSONDeltaPart) MarshalJSON() ([]byte, error) { return marshalPart(p) }

func isDelta(p ContentPart) bool {
	switch p.(type) {
	case TextDeltaPart, InputJSONDeltaPart:
		return true
	}
	return false
}

var emptyObject = json.RawMessage(`{}`)

func marshalPart(p ContentPart) ([]byte, error) {
	switch v := p.(type) {
	case TextPart:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{ContentText, v.Text})
	case TextDeltaPart:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{ContentTextDelta, v.Text})
	case ImagePart:
		return json.Marshal(struct {
			Type   ContentType `json:"type"`
			Source ImageSource `json:"source"`
		}{ContentImage, v.Source})
	case ToolUsePart:
		return json.Marshal(struct {
			Type  ContentType     `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{ContentToolUse, v.ID, v.Name, canonicalInput(v.Input)})
	case ToolResultPart:
		return json.Marshal(struct {
			Type      ContentType `json:"type"`
			ToolUseID string      `json:"tool_use_id"`
			Content   string      `json:"content"`
			IsError   bool        `json:"is_error,omitempty"`
		}{ContentToolResult, v.ToolUseID, v.Content, v.IsError})
	case InputJSONDeltaPart:
		return json.Marshal(struct {
			Type        ContentType `json:"type"`
			PartialJSON string      `json:"partial_json"`
		}{ContentInputJSONDelta, v.PartialJSON})
	case nil:
		return nil, errors.New("messages: nil content part")
	default:
		return nil, fmt.Errorf("messages: unsupported content part %T", p)
	}
}

type rawPart struct {
	Type        ContentType     `json:"type"`
	Text        string          `json:"text"`
	Source      *ImageSource    `json:"source"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	ToolUseID   string          `json:"tool_use_id"`
	Content     json.RawMessage `json:"content"`
	IsError     bool            `json:"is_error"`
	PartialJSON *string         `json:"partial_json"`
	Partial     *string         `json:"partial"`
}

func unmarshalPart(data []byte) (ContentPart, error) {
	var raw rawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case ContentText:
		return TextPart{Text: raw.Text}, nil
	case ContentTextDelta:
		return TextDeltaPart{Text: raw.Text}, nil
	case ContentImage:
		if raw.Source == nil {
			return nil, errors.New("image part without source")
		}
		if !raw.Source.MediaType.valid() {
			return nil, fmt.Errorf("image part with unsupported media type %q", raw.Source.MediaType)
		}
		return ImagePart{Source: *raw.Source}, nil
	case ContentToolUse:
		return ToolUsePart{ID: raw.ID, Name: raw.Name, Input: canonicalInput(raw.Input)}, nil
	case ContentToolResult:
		text, err := toolResultText(raw.Content)
		if err != nil {
			return nil, err
		}
		return ToolResultPart{ToolUseID: raw.ToolUseID, Content: text, IsError: raw.IsError}, nil
	case ContentInputJSONDelta:
		switch {
		case raw.PartialJSON != nil:
			return InputJSONDeltaPart{PartialJSON: *raw.PartialJSON}, nil
		case raw.Partial != nil:
			return InputJSONDeltaPart{PartialJSON: *raw.Partial}, nil
		}
		return InputJSONDeltaPart{}, nil
	case "":
		return nil, errors.New("content part without type")
	default:
		return nil, fmt.Errorf("unknown content part type %q", raw.Type)
	}
}

// toolResultText accepts both the string form and the array-of-text-blocks
// form of tool_result.content.
func toolResultText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var ps Parts
	if err := json.Unmarshal(raw, &ps); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range ps {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String(), nil
}

// Parts is an ordered list of content parts that (un)marshals by the "type"
// discriminator of each element.
type Parts []ContentPart

func (ps Parts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalPart(p)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (ps *Parts) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ps = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Parts, 0, len(raws))
	for i, r := range raws {
		p, err := unmarshalPart(r)
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	*ps = out
	return nil
}

// Text returns the concatenation of all TextPart values.
func (ps Parts) Text() string {
	var b strings.Builder
	for _, p := range ps {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// Content is either a single string or a list of parts. The wire format
// accepts both; Content always encodes the list form.
//
// The zero value is "absent": it is what an empty string, an empty list or
// null decode to, and optional fields holding it are omitted on encode.
type Content struct {
	text  string
	parts []ContentPart
	multi bool
}

func SingleContent(text string) Content {
	return Content{text: text}
}

func MultiContent(parts ...ContentPart) Content {
	if len(parts) == 0 {
		return Content{}
	}
	return Content{parts: append([]ContentPart(nil), parts...), multi: true}
}

func (c Content) IsZero() bool { return !c.multi && c.text == "" }

// IsSingle reports whether c holds the bare-string form.
func (c Content) IsSingle() bool { return !c.multi }

// Parts returns the list form of c. A single string becomes one TextPart.
func (c Content) Parts() []ContentPart {
	if c.multi {
		return append([]ContentPart(nil), c.parts...)
	}
	if c.text == "" {
		return nil
	}
	return []ContentPart{TextPart{Text: c.text}}
}

// Text returns the single string, or the concatenated text parts.
func (c Content) Text() string {
	if !c.multi {
		return c.text
	}
	return Parts(c.parts).Text()
}

// Equal reports whether c and o carry the same parts once normalized, so
// SingleContent("hi") equals MultiContent(TextPart{Text: "hi"}). Tool-use
// input is compared as compact JSON, with absent input equal to {}.
func (c Content) Equal(o Content) bool {
	return reflect.DeepEqual(normalizeParts(c.Parts()), normalizeParts(o.Parts()))
}

func normalizeParts(parts []ContentPart) []ContentPart {
	out := make([]ContentPart, len(parts))
	for i, p := range parts {
		if tu, ok := p.(ToolUsePart); ok {
			tu.Input = canonicalInput(tu.Input)
			p = tu
		}
		out[i] = p
	}
	return out
}

// canonicalInput returns tool input as compact JSON; empty or null input is {}.
func canonicalInput(input json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return append(json.RawMessage(nil), emptyObject...)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return append(json.RawMessage(nil), trimmed...)
	}
	return json.RawMessage(buf.Bytes())
}

func (c Content) MarshalJSON() ([]byte, error) {
	return Parts(c.Parts()).MarshalJSON()
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = SingleContent(s)
		return nil
	case '[':
		var ps Parts
		if err := json.Unmarshal(data, &ps); err != nil {
			return err
		}
		*c = MultiContent(ps...)
		return nil
	}
	return fmt.Errorf("messages: content must be a string or an array of parts, got %.32s", data)
}

// checkRequest rejects parts that may only appear in responses.
func (c Content) checkRequest(field string) error {
	if !c.multi {
		return nil
	}
	for i, p := range c.parts {
		if p == nil {
			return &ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "is nil"}
		}
		if isDelta(p) {
			return &ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: fmt.Sprintf("%s is only valid inside a streaming content block delta", p.Type())}
		}
		if img, ok := p.(ImagePart); ok && !img.Source.MediaType.valid() {
			return &ValidationError{Field: fmt.Sprintf("%s[%d].source.media_type", field, i), Reason: fmt.Sprintf("unsupported media type %q", img.Source.MediaType)}
		}
	}
	return nil
}

// Message is one conversational turn.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func UserMessage(parts ...ContentPart) Message {
	return Message{Role: RoleUser, Content: MultiContent(parts...)}
}

func AssistantMessage(parts ...ContentPart) Message {
	return Message{Role: RoleAssistant, Content: MultiContent(parts...)}
}

func UserText(text string) Message { return Message{Role: RoleUser, Content: SingleContent(text)} }

func (m Message) validate(field string) error {
	switch m.Role {
	case RoleUser, RoleAssistant:
	case "":
		return &ValidationError{Field: field + ".role", Reason: "is required"}
	default:
		return &ValidationError{Field: field + ".role", Reason: fmt.Sprintf("unknown role %q", m.Role)}
	}
	return m.Content.checkRequest(field + ".content")
}

// MarshalJSON fails fast on content that is not valid in a request.
func (m Message) MarshalJSON() ([]byte, error) {
	if err := m.validate("message"); err != nil {
		return nil, err
	}
	type wire Message
	return json.Marshal(wire(m))
}
