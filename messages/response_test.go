package messages

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeResponseMessage(t *testing.T) {
	body := `{"type":"message","id":"1","model":"m","role":"assistant","content":[{"type":"text","text":"Hello"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"output_tokens":3}}`

	got, err := DecodeResponse([]byte(body))
	if err != nil {
		t.Fatalf("DecodeResponse err=%v", err)
	}

	reason := StopEndTurn
	want := &MessageResponse{
		ID:         "1",
		Model:      "m",
		Role:       RoleAssistant,
		Content:    Parts{TextPart{Text: "Hello"}},
		StopReason: &reason,
		Usage:      Usage{OutputTokens: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if got.Text() != "Hello" {
		t.Fatalf("Text()=%q", got.Text())
	}
}

func TestDecodeResponseErrorEnvelope(t *testing.T) {
	body := `{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`

	_, err := DecodeResponse([]byte(body))
	ae, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("err=%T %v, want APIError", err, err)
	}
	if ae.Type != "invalid_request_error" || ae.Message != "bad model" {
		t.Fatalf("api error=%+v", ae)
	}
	if _, ok := AsDecodeError(err); ok {
		t.Fatalf("error envelope must not be a DecodeError")
	}
}

func TestDecodeResponseUnknownShape(t *testing.T) {
	for _, body := range []string{`{"foo":1}`, `not json`, `{"type":"error"}`, `{"type":"message","content":[{"type":"video"}]}`} {
		_, err := DecodeResponse([]byte(body))
		de, ok := AsDecodeError(err)
		if !ok {
			t.Fatalf("%s: err=%v, want DecodeError", body, err)
		}
		if string(de.Raw) != body {
			t.Fatalf("raw=%q, want %q", de.Raw, body)
		}
	}
}

func TestDecodeResponseUnknownStopReasonPreserved(t *testing.T) {
	got, err := DecodeResponse([]byte(`{"type":"message","id":"1","model":"m","role":"assistant","content":[],"stop_reason":"refusal","usage":{"output_tokens":0}}`))
	if err != nil {
		t.Fatalf("DecodeResponse err=%v", err)
	}
	if got.StopReason == nil || *got.StopReason != "refusal" || got.StopReason.Known() {
		t.Fatalf("stop_reason=%v", got.StopReason)
	}
}

func TestMessageResponseMarshal(t *testing.T) {
	in := 7
	m := MessageResponse{
		ID:      "id",
		Model:   "m",
		Role:    RoleAssistant,
		Content: Parts{ToolUsePart{ID: "t", Name: "n", Input: json.RawMessage(`{"a":1}`)}},
		Usage:   Usage{InputTokens: &in, OutputTokens: 2},
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal err=%v", err)
	}
	want := `{"type":"message","id":"id","model":"m","role":"assistant","content":[{"type":"tool_use","id":"t","name":"n","input":{"a":1}}],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":7,"output_tokens":2}}`
	if string(b) != want {
		t.Fatalf("json=%s\nwant=%s", b, want)
	}
	if tus := m.ToolUses(); len(tus) != 1 || tus[0].Name != "n" {
		t.Fatalf("ToolUses()=%v", tus)
	}
}
