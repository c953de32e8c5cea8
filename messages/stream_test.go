package messages

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

const sampleSSE = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}` + "\n\n" +
	"event: ping\n" +
	`data: {"type":"ping"}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":0}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":""}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\": \"Pa"}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"ris\"}"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":1}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":9}}` + "\n\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n\n"

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func TestEventStreamPassthrough(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(sampleSSE)}
	s := NewEventStream(body)

	var types []EventType
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err=%v", err)
		}
		types = append(types, ev.EventType())
	}

	if len(types) != 13 {
		t.Fatalf("events=%d %v", len(types), types)
	}
	if types[0] != EventMessageStart || types[len(types)-1] != EventMessageStop || types[len(types)-2] != EventMessageDelta {
		t.Fatalf("lifecycle=%v", types)
	}
	if body.closed != 1 {
		t.Fatalf("body closed %d times at EOF, want 1", body.closed)
	}

	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("Recv after EOF err=%v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Recv after Close err=%v", err)
	}
	if body.closed != 1 {
		t.Fatalf("body closed %d times, want 1", body.closed)
	}
}

func TestDrainStreamRebuildsMessage(t *testing.T) {
	got, err := DrainStream(NewEventStream(io.NopCloser(strings.NewReader(sampleSSE))))
	if err != nil {
		t.Fatalf("DrainStream err=%v", err)
	}
	if got.Text() != "Hello" {
		t.Fatalf("text=%q", got.Text())
	}
	tus := got.ToolUses()
	if len(tus) != 1 || string(tus[0].Input) != `{"city": "Paris"}` {
		t.Fatalf("tool uses=%+v", tus)
	}
	if got.StopReason == nil || *got.StopReason != StopToolUse {
		t.Fatalf("stop_reason=%v", got.StopReason)
	}
	if got.Usage.InputTokens == nil || *got.Usage.InputTokens != 5 || got.Usage.OutputTokens != 9 {
		t.Fatalf("usage=%+v", got.Usage)
	}
}

func TestEventStreamDecodeError(t *testing.T) {
	s := NewEventStream(io.NopCloser(strings.NewReader("event: x\ndata: {\"type\":\"nope\"}\n\n")))
	defer s.Close()

	_, err := s.Recv()
	de, ok := AsDecodeError(err)
	if !ok {
		t.Fatalf("err=%v, want DecodeError", err)
	}
	if string(de.Raw) != `{"type":"nope"}` {
		t.Fatalf("raw=%s", de.Raw)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("Recv after failure err=%v", err)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestEventStreamTransportError(t *testing.T) {
	s := NewEventStream(io.NopCloser(failingReader{context.Canceled}))
	defer s.Close()

	_, err := s.Recv()
	if _, ok := AsTransportError(err); !ok {
		t.Fatalf("err=%v, want TransportError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("errors.Is(err, context.Canceled)=false for %v", err)
	}
}

func TestEventStreamSkipsEmptyFrames(t *testing.T) {
	s := NewEventStream(io.NopCloser(strings.NewReader("event: open\n\n: comment\n\ndata: {\"type\":\"ping\"}\n\n")))
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv err=%v", err)
	}
	if _, ok := ev.(PingEvent); !ok {
		t.Fatalf("event=%T", ev)
	}
}

func TestEventsIteratorClosesOnBreak(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(sampleSSE)}
	n := 0
	for ev, err := range Events(NewEventStream(body)) {
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		n++
		if ev.EventType() == EventContentBlockStart {
			break
		}
	}
	if n != 3 {
		t.Fatalf("n=%d, want 3", n)
	}
	if body.closed != 1 {
		t.Fatalf("body closed %d times, want 1", body.closed)
	}
}
