package messages

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
)

// Requester is one HTTP backend.
//
// EndpointURL may depend on req.Stream: some backends use a different path
// for streaming. Prepare attaches authentication and serializes the body in
// the backend's shape; a credential failure must be returned as *AuthError.
type Requester interface {
	BaseURL() string
	EndpointURL(req WireRequest) string
	Prepare(ctx context.Context, url string, req WireRequest) (*http.Request, error)
}

// Namer is implemented by backends that report a name for error values.
type Namer interface {
	Name() string
}

// Messenger sends create-message requests. *Client and backends with a
// native SDK implement it; callers never branch on the backend.
type Messenger interface {
	Messages(ctx context.Context, req CreateMessageRequest) (*MessageResponse, error)
	MessagesStream(ctx context.Context, req CreateMessageRequest) (Stream, error)
}

// Stream yields canonical events until io.EOF.
//
// A stream has a single consumer. Close releases the underlying source and
// may be called at any time; Recv after Close returns ErrStreamClosed.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Events adapts s to a range-over-func sequence. The sequence ends after
// io.EOF or the first error, and s is closed when iteration stops.
//
//	for ev, err := range messages.Events(s) {
//		if err != nil { ... }
//	}
func Events(s Stream) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer s.Close()
		for {
			ev, err := s.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
