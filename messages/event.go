package messages

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventPing              EventType = "ping"
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
	EventError             EventType = "error"
)

// Event is one canonical streaming event. Every backend produces the same
// vocabulary:
//
//	MessageStart
//	(ContentBlockStart ContentBlockDelta* ContentBlockStop)*
//	MessageDelta
//	MessageStop
//
// with Ping allowed anywhere.
type Event interface {
	EventType() EventType
	isEvent()
}

type PingEvent struct{}

type MessageStartEvent struct {
	Message MessageResponse
}

type ContentBlockStartEvent struct {
	Index        int
	ContentBlock ContentPart
}

type ContentBlockDeltaEvent struct {
	Index int
	Delta ContentPart
}

type ContentBlockStopEvent struct {
	Index int
}

// MessageDelta carries the terminal stop information of a stream.
type MessageDelta struct {
	StopReason   StopReason `json:"stop_reason"`
	StopSequence *string    `json:"stop_sequence,omitempty"`
}

type MessageDeltaEvent struct {
	Delta MessageDelta
	Usage Usage
}

type MessageStopEvent struct{}

type ErrorEvent struct {
	Error ErrorDetails
}

func (PingEvent) EventType() EventType              { return EventPing }
func (MessageStartEvent) EventType() EventType      { return EventMessageStart }
func (ContentBlockStartEvent) EventType() EventType { return EventContentBlockStart }
func (ContentBlockDeltaEvent) EventType() EventType { return EventContentBlockDelta }
func (ContentBlockStopEvent) EventType() EventType  { return EventContentBlockStop }
func (MessageDeltaEvent) EventType() EventType      { return EventMessageDelta }
func (MessageStopEvent) EventType() EventType       { return EventMessageStop }
func (ErrorEvent) EventType() EventType             { return EventError }

func (PingEvent) isEvent()              {}
func (MessageStartEvent) isEvent()      {}
func (ContentBlockStartEvent) isEvent() {}
func (ContentBlockDeltaEvent) isEvent() {}
func (ContentBlockStopEvent) isEvent()  {}
func (MessageDeltaEvent) isEvent()      {}
func (MessageStopEvent) isEvent()       {}
func (ErrorEvent) isEvent()             {}

type typeOnly struct {
	Type EventType `json:"type"`
}

func (e PingEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeOnly{EventPing})
}

func (e MessageStartEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType       `json:"type"`
		Message MessageResponse `json:"message"`
	}{EventMessageStart, e.Message})
}

func (e ContentBlockStartEvent) MarshalJSON() ([]byte, error) {
	block, err := marshalPart(e.ContentBlock)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type         EventType       `json:"type"`
		Index        int             `json:"index"`
		ContentBlock json.RawMessage `json:"content_block"`
	}{EventContentBlockStart, e.Index, block})
}

func (e ContentBlockDeltaEvent) MarshalJSON() ([]byte, error) {
	delta, err := marshalPart(e.Delta)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type  EventType       `json:"type"`
		Index int             `json:"index"`
		Delta json.RawMessage `json:"delta"`
	}{EventContentBlockDelta, e.Index, delta})
}

func (e ContentBlockStopEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType `json:"type"`
		Index int       `json:"index"`
	}{EventContentBlockStop, e.Index})
}

func (e MessageDeltaEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType    `json:"type"`
		Delta MessageDelta `json:"delta"`
		Usage Usage        `json:"usage"`
	}{EventMessageDelta, e.Delta, e.Usage})
}

func (e MessageStopEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeOnly{EventMessageStop})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType    `json:"type"`
		Error ErrorDetails `json:"error"`
	}{EventError, e.Error})
}

type rawEvent struct {
	Type         EventType        `json:"type"`
	Message      *MessageResponse `json:"message"`
	Index        *int             `json:"index"`
	ContentBlock json.RawMessage  `json:"content_block"`
	Delta        json.RawMessage  `json:"delta"`
	Usage        *Usage           `json:"usage"`
	Error        *ErrorDetails    `json:"error"`
}

// UnmarshalEvent decodes one canonical event by its "type" field.
func UnmarshalEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	index := func() (int, error) {
		if raw.Index == nil {
			return 0, fmt.Errorf("%s event without index", raw.Type)
		}
		return *raw.Index, nil
	}

	switch raw.Type {
	case EventPing:
		return PingEvent{}, nil
	case EventMessageStart:
		if raw.Message == nil {
			return nil, fmt.Errorf("%s event without message", raw.Type)
		}
		return MessageStartEvent{Message: *raw.Message}, nil
	case EventContentBlockStart:
		i, err := index()
		if err != nil {
			return nil, err
		}
		block, err := unmarshalPart(raw.ContentBlock)
		if err != nil {
			return nil, fmt.Errorf("content_block: %w", err)
		}
		return ContentBlockStartEvent{Index: i, ContentBlock: block}, nil
	case EventContentBlockDelta:
		i, err := index()
		if err != nil {
			return nil, err
		}
		delta, err := unmarshalPart(raw.Delta)
		if err != nil {
			return nil, fmt.Errorf("delta: %w", err)
		}
		return ContentBlockDeltaEvent{Index: i, Delta: delta}, nil
	case EventContentBlockStop:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return ContentBlockStopEvent{Index: i}, nil
	case EventMessageDelta:
		var ev MessageDeltaEvent
		if len(raw.Delta) > 0 {
			if err := json.Unmarshal(raw.Delta, &ev.Delta); err != nil {
				return nil, fmt.Errorf("delta: %w", err)
			}
		}
		if raw.Usage != nil {
			ev.Usage = *raw.Usage
		}
		return ev, nil
	case EventMessageStop:
		return MessageStopEvent{}, nil
	case EventError:
		if raw.Error == nil {
			return nil, fmt.Errorf("%s event without details", raw.Type)
		}
		return ErrorEvent{Error: *raw.Error}, nil
	case "":
		return nil, fmt.Errorf("event without type")
	default:
		return nil, fmt.Errorf("unknown event type %q", raw.Type)
	}
}
