package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Accumulator rebuilds a MessageResponse from canonical events and checks
// the event lifecycle on the way.
//
// The zero value is ready to use. Apply returns a *ProtocolViolationError
// for out-of-order events, and *APIError for an ErrorEvent.
type Accumulator struct {
	msg     MessageResponse
	started bool

	blocks   map[int]*blockState
	gotDelta bool
	stopped  bool
}

type blockState struct {
	pos    int
	closed bool
	json   strings.Builder
}

func (a *Accumulator) violation(ev Event, reason error, format string, args ...any) error {
	if format != "" {
		reason = fmt.Errorf("%w: "+format, append([]any{reason}, args...)...)
	}
	return &ProtocolViolationError{Event: string(ev.EventType()), Reason: reason}
}

func (a *Accumulator) Apply(ev Event) error {
	if ev == nil {
		return errors.New("messages: nil event")
	}
	if _, ok := ev.(PingEvent); ok {
		return nil
	}
	if e, ok := ev.(ErrorEvent); ok {
		return &APIError{Type: e.Error.Type, Message: e.Error.Message}
	}
	if a.stopped {
		return a.violation(ev, ErrEventOrder, "after message_stop")
	}

	if start, ok := ev.(MessageStartEvent); ok {
		if a.started {
			return a.violation(ev, ErrEventOrder, "duplicate message_start")
		}
		a.started = true
		a.msg = start.Message
		a.msg.Content = append(Parts(nil), start.Message.Content...)
		if a.msg.Role == "" {
			a.msg.Role = RoleAssistant
		}
		a.blocks = make(map[int]*blockState)
		return nil
	}
	if !a.started {
		return a.violation(ev, ErrEventOrder, "first event must be message_start")
	}
	if a.gotDelta {
		if _, ok := ev.(MessageStopEvent); !ok {
			return a.violation(ev, ErrEventOrder, "message_delta must be followed by message_stop")
		}
	}

	switch e := ev.(type) {
	case ContentBlockStartEvent:
		if _, dup := a.blocks[e.Index]; dup {
			return a.violation(ev, ErrEventOrder, "block %d already started", e.Index)
		}
		if e.ContentBlock == nil || isDelta(e.ContentBlock) {
			return a.violation(ev, ErrEventOrder, "block %d starts with %v", e.Index, e.ContentBlock)
		}
		a.blocks[e.Index] = &blockState{pos: len(a.msg.Content)}
		a.msg.Content = append(a.msg.Content, e.ContentBlock)

	case ContentBlockDeltaEvent:
		b, err := a.open(ev, e.Index)
		if err != nil {
			return err
		}
		switch d := e.Delta.(type) {
		case TextDeltaPart:
			t, ok := a.msg.Content[b.pos].(TextPart)
			if !ok {
				return a.violation(ev, ErrEventOrder, "text delta for %s block %d", a.msg.Content[b.pos].Type(), e.Index)
			}
			t.Text += d.Text
			a.msg.Content[b.pos] = t
		case InputJSONDeltaPart:
			if _, ok := a.msg.Content[b.pos].(ToolUsePart); !ok {
				return a.violation(ev, ErrEventOrder, "input json delta for %s block %d", a.msg.Content[b.pos].Type(), e.Index)
			}
			b.json.WriteString(d.PartialJSON)
		default:
			return a.violation(ev, ErrUnknownEvent, "delta %T", e.Delta)
		}

	case ContentBlockStopEvent:
		b, err := a.open(ev, e.Index)
		if err != nil {
			return err
		}
		b.closed = true
		if tu, ok := a.msg.Content[b.pos].(ToolUsePart); ok && b.json.Len() > 0 {
			raw := json.RawMessage(b.json.String())
			if !json.Valid(raw) {
				return a.violation(ev, ErrInvalidToolInput, "block %d: %q", e.Index, raw)
			}
			tu.Input = raw
			a.msg.Content[b.pos] = tu
		}

	case MessageDeltaEvent:
		a.gotDelta = true
		reason := e.Delta.StopReason
		a.msg.StopReason = &reason
		a.msg.StopSequence = e.Delta.StopSequence
		if e.Usage.InputTokens != nil {
			a.msg.Usage.InputTokens = e.Usage.InputTokens
		}
		a.msg.Usage.OutputTokens = e.Usage.OutputTokens

	case MessageStopEvent:
		if !a.gotDelta {
			return a.violation(ev, ErrMissingStopReason, "")
		}
		a.stopped = true

	default:
		return a.violation(ev, ErrUnknownEvent, "%T", ev)
	}
	return nil
}

func (a *Accumulator) open(ev Event, index int) (*blockState, error) {
	b, ok := a.blocks[index]
	if !ok {
		return nil, a.violation(ev, ErrEventOrder, "block %d not started", index)
	}
	if b.closed {
		return nil, a.violation(ev, ErrEventOrder, "block %d already stopped", index)
	}
	return b, nil
}

// Done reports whether message_stop has been applied.
func (a *Accumulator) Done() bool { return a.stopped }

// Message returns the rebuilt response. It fails with ErrTruncatedStream if
// message_stop has not been applied yet.
func (a *Accumulator) Message() (*MessageResponse, error) {
	if !a.stopped {
		return nil, &ProtocolViolationError{Reason: ErrTruncatedStream}
	}
	out := a.msg
	out.Content = append(Parts(nil), a.msg.Content...)
	return &out, nil
}

// DrainStream reads s to the end and returns the rebuilt response. s is
// closed before returning.
func DrainStream(s Stream) (*MessageResponse, error) {
	defer s.Close()

	var acc Accumulator
	for {
		ev, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if err := acc.Apply(ev); err != nil {
			return nil, err
		}
	}
	return acc.Message()
}
