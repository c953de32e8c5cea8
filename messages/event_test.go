package messages

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUnmarshalEventWireShapes(t *testing.T) {
	seq := "stop_sequence"
	in := 12

	tests := []struct {
		wire string
		want Event
	}{
		{`{"type":"ping"}`, PingEvent{}},
		{
			`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`,
			MessageStartEvent{Message: MessageResponse{ID: "msg_1", Model: "m", Role: RoleAssistant, Content: Parts{}, Usage: Usage{InputTokens: &in, OutputTokens: 1}}},
		},
		{`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`, ContentBlockStartEvent{Index: 0, ContentBlock: TextPart{}}},
		{`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t","name":"n","input":{}}}`, ContentBlockStartEvent{Index: 1, ContentBlock: ToolUsePart{ID: "t", Name: "n", Input: json.RawMessage(`{}`)}}},
		{`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`, ContentBlockDeltaEvent{Index: 0, Delta: TextDeltaPart{Text: "Hi"}}},
		{`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"a\":"}}`, ContentBlockDeltaEvent{Index: 1, Delta: InputJSONDeltaPart{PartialJSON: `{"a":`}}},
		{`{"type":"content_block_stop","index":1}`, ContentBlockStopEvent{Index: 1}},
		{`{"type":"message_delta","delta":{"stop_reason":"stop_sequence","stop_sequence":"stop_sequence"},"usage":{"output_tokens":15}}`, MessageDeltaEvent{Delta: MessageDelta{StopReason: StopSequence, StopSequence: &seq}, Usage: Usage{OutputTokens: 15}}},
		{`{"type":"message_stop"}`, MessageStopEvent{}},
		{`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, ErrorEvent{Error: ErrorDetails{Type: "overloaded_error", Message: "Overloaded"}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.want.EventType()), func(t *testing.T) {
			got, err := UnmarshalEvent([]byte(tt.wire))
			if err != nil {
				t.Fatalf("UnmarshalEvent err=%v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("event mismatch (-want +got):\n%s", diff)
			}

			b, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("Marshal err=%v", err)
			}
			again, err := UnmarshalEvent(b)
			if err != nil {
				t.Fatalf("UnmarshalEvent(%s) err=%v", b, err)
			}
			if diff := cmp.Diff(got, again); diff != "" {
				t.Fatalf("re-decoded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalEventRejects(t *testing.T) {
	for _, wire := range []string{
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"hologram"}}`,
		`{"type":"message_start"}`,
		`{"type":"surprise"}`,
		`{}`,
		`[`,
	} {
		if _, err := UnmarshalEvent([]byte(wire)); err == nil {
			t.Fatalf("UnmarshalEvent(%s) expected error", wire)
		}
	}
}

func TestMarshalEventShapes(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{ContentBlockStartEvent{Index: 2, ContentBlock: TextPart{}}, `{"type":"content_block_start","index":2,"content_block":{"type":"text","text":""}}`},
		{ContentBlockStopEvent{Index: 0}, `{"type":"content_block_stop","index":0}`},
		{MessageDeltaEvent{Delta: MessageDelta{StopReason: StopEndTurn}, Usage: Usage{OutputTokens: 2}}, `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`},
		{MessageStopEvent{}, `{"type":"message_stop"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.ev)
		if err != nil {
			t.Fatalf("Marshal err=%v", err)
		}
		if string(b) != tt.want {
			t.Fatalf("json=%s\nwant=%s", b, tt.want)
		}
	}
}
