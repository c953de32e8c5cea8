package messages

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/lgc202/anthropic-kit/messages/internal/sse"
)

// eventStream is the passthrough adapter: each SSE frame already carries a
// canonical event.
type eventStream struct {
	provider string
	body     io.ReadCloser
	dec      *sse.Decoder
	logger   *slog.Logger

	closed bool
	done   bool
}

// NewEventStream wraps an SSE body whose frames are canonical events. The
// stream owns body.
func NewEventStream(body io.ReadCloser) Stream {
	return newEventStream("", body, nil)
}

func newEventStream(provider string, body io.ReadCloser, logger *slog.Logger) *eventStream {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &eventStream{
		provider: provider,
		body:     body,
		dec:      sse.NewDecoder(body),
		logger:   logger,
	}
}

func (s *eventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}

func (s *eventStream) release() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

func (s *eventStream) Recv() (Event, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		frame, err := s.dec.Next()
		if err != nil {
			s.done = true
			_ = s.release()
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &TransportError{Provider: s.provider, Cause: err}
		}

		data := bytes.TrimSpace(frame.Data)
		if len(data) == 0 {
			// Open signals and keep-alives.
			continue
		}

		ev, err := UnmarshalEvent(data)
		if err != nil {
			s.done = true
			_ = s.release()
			return nil, &DecodeError{Provider: s.provider, Raw: append([]byte(nil), data...), Cause: err}
		}
		s.logger.Debug("messages stream event", "provider", s.provider, "type", ev.EventType())
		return ev, nil
	}
}
