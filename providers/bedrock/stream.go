package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lgc202/anthropic-kit/messages"
)

// EventSource is the native ConverseStream event channel.
// *bedrockruntime.ConverseStreamEventStream satisfies it.
type EventSource interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// stream rebuilds the canonical event sequence from the coarser native one:
//
//   - MessageStart is synthesized before any native event is read.
//   - A delta for an index never announced is preceded by a synthesized
//     ContentBlockStart with an empty text block.
//   - The native message stop is staged until the usage metadata arrives,
//     then both are emitted as MessageDelta followed by MessageStop.
//
// All bookkeeping belongs to one stream; nothing is shared.
type stream struct {
	provider string
	src      EventSource
	logger   *slog.Logger

	pending   []messages.Event
	announced map[int]struct{}
	staged    *messages.MessageDelta
	stopSeen  bool
	finished  bool

	done      bool
	closed    bool
	srcClosed bool
}

// StreamOption configures a stream built by NewStream.
type StreamOption func(*stream)

// WithStreamProvider sets the provider name stamped on stream errors.
func WithStreamProvider(name string) StreamOption {
	return func(s *stream) { s.provider = name }
}

// WithStreamLogger sets the logger for dropped or unknown native events. A nil
// logger is ignored.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStream adapts a native event source. id and model fill the synthesized
// MessageStart; id is usually the AWS request id.
func NewStream(src EventSource, id, model string, opts ...StreamOption) messages.Stream {
	s := &stream{
		provider:  "bedrock",
		src:       src,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		announced: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pending = append(s.pending, messages.MessageStartEvent{Message: messages.MessageResponse{
		ID:      id,
		Model:   model,
		Role:    messages.RoleAssistant,
		Content: messages.Parts{},
	}})
	return s
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return s.closeSource()
}

func (s *stream) closeSource() error {
	if s.srcClosed {
		return nil
	}
	s.srcClosed = true
	return s.src.Close()
}

func (s *stream) Recv() (messages.Event, error) {
	if s.closed {
		return nil, messages.ErrStreamClosed
	}

	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		native, ok := <-s.src.Events()
		if !ok {
			s.done = true
			err := s.src.Err()
			_ = s.closeSource()
			if err != nil {
				return nil, &messages.TransportError{Provider: s.provider, Cause: err}
			}
			if !s.finished {
				return nil, s.violation("end of stream", messages.ErrTruncatedStream)
			}
			return nil, io.EOF
		}

		if err := s.translate(native); err != nil {
			s.done = true
			s.pending = nil
			_ = s.closeSource()
			return nil, err
		}
	}
}

func (s *stream) violation(event string, reason error) error {
	s.logger.Debug("bedrock stream protocol violation", "event", event, "reason", reason)
	return &messages.ProtocolViolationError{Provider: s.provider, Event: event, Reason: reason}
}

func (s *stream) emit(ev messages.Event) {
	s.pending = append(s.pending, ev)
}

func (s *stream) announce(index int, block messages.ContentPart) {
	s.announced[index] = struct{}{}
	s.emit(messages.ContentBlockStartEvent{Index: index, ContentBlock: block})
}

func (s *stream) translate(native types.ConverseStreamOutput) error {
	switch v := native.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		// Already synthesized.
		return nil

	case *types.ConverseStreamOutputMemberContentBlockStart:
		if s.finished {
			return s.violation("contentBlockStart", messages.ErrEventOrder)
		}
		index := int(aws.ToInt32(v.Value.ContentBlockIndex))
		var block messages.ContentPart = messages.TextPart{}
		if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			block = messages.ToolUsePart{
				ID:    aws.ToString(tu.Value.ToolUseId),
				Name:  aws.ToString(tu.Value.Name),
				Input: json.RawMessage(`{}`),
			}
		}
		s.announce(index, block)
		return nil

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		if s.finished {
			return s.violation("contentBlockDelta", messages.ErrEventOrder)
		}
		index := int(aws.ToInt32(v.Value.ContentBlockIndex))
		var delta messages.ContentPart
		switch d := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			delta = messages.TextDeltaPart{Text: d.Value}
		case *types.ContentBlockDeltaMemberToolUse:
			delta = messages.InputJSONDeltaPart{PartialJSON: aws.ToString(d.Value.Input)}
		default:
			return s.violation(fmt.Sprintf("contentBlockDelta(%T)", v.Value.Delta), messages.ErrUnknownEvent)
		}
		if _, ok := s.announced[index]; !ok {
			s.logger.Debug("bedrock stream synthesized block start", "index", index)
			s.announce(index, messages.TextPart{})
		}
		s.emit(messages.ContentBlockDeltaEvent{Index: index, Delta: delta})
		return nil

	case *types.ConverseStreamOutputMemberContentBlockStop:
		if s.finished {
			return s.violation("contentBlockStop", messages.ErrEventOrder)
		}
		s.emit(messages.ContentBlockStopEvent{Index: int(aws.ToInt32(v.Value.ContentBlockIndex))})
		return nil

	case *types.ConverseStreamOutputMemberMessageStop:
		if s.stopSeen {
			return s.violation("messageStop", messages.ErrDuplicatedStop)
		}
		s.stopSeen = true
		s.staged = &messages.MessageDelta{
			StopReason:   messages.StopReason(v.Value.StopReason),
			StopSequence: stopSequence(v.Value.AdditionalModelResponseFields),
		}
		return nil

	case *types.ConverseStreamOutputMemberMetadata:
		if s.staged == nil {
			return s.violation("metadata", messages.ErrMissingStopReason)
		}
		s.emit(messages.MessageDeltaEvent{Delta: *s.staged, Usage: usage(v.Value.Usage)})
		s.emit(messages.MessageStopEvent{})
		s.staged = nil
		s.finished = true
		return nil

	case *types.UnknownUnionMember:
		return s.violation(v.Tag, messages.ErrUnknownEvent)
	}

	if native == nil {
		return s.violation("<nil>", messages.ErrUnknownEvent)
	}
	return s.violation(fmt.Sprintf("%T", native), messages.ErrUnknownEvent)
}

var errNoStream = errors.New("converse stream output has no event stream")
