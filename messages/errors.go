package messages

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrStreamClosed is returned by Stream.Recv after Close.
	ErrStreamClosed = errors.New("messages: stream closed")

	// ErrDuplicatedStop: a second terminal signal arrived on one stream.
	ErrDuplicatedStop = errors.New("duplicated terminal signal")
	// ErrMissingStopReason: usage metadata arrived before the stop reason.
	ErrMissingStopReason = errors.New("missing stop reason")
	// ErrUnknownEvent: the backend sent an event with no canonical form.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrTruncatedStream: the source ended before the terminal events.
	ErrTruncatedStream = errors.New("stream ended before message_stop")
	// ErrEventOrder: canonical events arrived out of lifecycle order.
	ErrEventOrder = errors.New("event out of order")
	// ErrInvalidToolInput: concatenated input_json_delta fragments are not valid JSON.
	ErrInvalidToolInput = errors.New("invalid tool input json")
)

// ValidationError reports a request that must not be sent. It never
// originates from the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "messages: invalid request: " + e.Reason
	}
	return fmt.Sprintf("messages: invalid request: %s %s", e.Field, e.Reason)
}

// AuthError reports a failure to acquire credentials for a backend.
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	msg := "credentials unavailable"
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	return prefixed(e.Provider, "auth: "+msg)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// TransportError is a network or HTTP-layer failure. StatusCode and Body are
// set for non-2xx responses whose body is not an error envelope.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       []byte
	Cause      error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport")
	if e.StatusCode != 0 {
		b.WriteString(fmt.Sprintf(": http %d", e.StatusCode))
		if len(e.Body) > 0 {
			b.WriteString(": ")
			b.WriteString(truncate(strings.TrimSpace(string(e.Body)), 256))
		}
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return prefixed(e.Provider, b.String())
}

func (e *TransportError) Unwrap() error { return e.Cause }

// DecodeError reports a payload matching no known shape. Raw holds the
// payload for diagnostics.
type DecodeError struct {
	Provider string
	Raw      []byte
	Cause    error
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if len(e.Raw) > 0 {
		msg += fmt.Sprintf(" (body=%q)", truncate(string(e.Raw), 128))
	}
	return prefixed(e.Provider, msg)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// APIError is a well-formed error reported by the backend.
type APIError struct {
	Provider   string
	StatusCode int

	// Type is the backend error kind, e.g. "invalid_request_error".
	Type    string
	Message string

	RequestID string

	// Raw is the original error body, when there was one.
	Raw []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	if e.StatusCode != 0 {
		b.WriteString(fmt.Sprintf("http %d", e.StatusCode))
	} else {
		b.WriteString("api error")
	}

	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if t := strings.TrimSpace(e.Type); t != "" {
		b.WriteString(" (")
		b.WriteString(t)
		b.WriteString(")")
	}
	if id := strings.TrimSpace(e.RequestID); id != "" {
		b.WriteString(" request_id=")
		b.WriteString(id)
	}
	return prefixed(e.Provider, b.String())
}

// ProtocolViolationError reports a stream that broke the canonical event
// lifecycle. Reason is one of the Err* sentinels above, so errors.Is works.
type ProtocolViolationError struct {
	Provider string
	// Event names the offending event.
	Event  string
	Reason error
}

func (e *ProtocolViolationError) Error() string {
	msg := "protocol violation"
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	if e.Event != "" {
		msg += " (event=" + e.Event + ")"
	}
	return prefixed(e.Provider, msg)
}

func (e *ProtocolViolationError) Unwrap() error { return e.Reason }

func prefixed(provider, msg string) string {
	if strings.TrimSpace(provider) != "" {
		return "messages " + provider + ": " + msg
	}
	return "messages: " + msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func AsValidationError(err error) (*ValidationError, bool) {
	var e *ValidationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func AsAuthError(err error) (*AuthError, bool) {
	var e *AuthError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func AsTransportError(err error) (*TransportError, bool) {
	var e *TransportError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func AsDecodeError(err error) (*DecodeError, bool) {
	var e *DecodeError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsAPIError 判断错误是否为 APIError
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func AsProtocolViolation(err error) (*ProtocolViolationError, bool) {
	var e *ProtocolViolationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTemporary reports whether err is an API or transport error whose status
// suggests the same request may succeed later (408, 429, 5xx). The package
// itself never retries; this is for callers with their own policy.
func IsTemporary(err error) bool {
	status := 0
	if ae, ok := AsAPIError(err); ok {
		status = ae.StatusCode
	} else if te, ok := AsTransportError(err); ok {
		status = te.StatusCode
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	// Anthropic reports overload with a non-standard status.
	return status == 529
}

// IsRateLimit 判断是否为限流错误
func IsRateLimit(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return ae.StatusCode == http.StatusTooManyRequests || ae.Type == "rate_limit_error"
}

// WithProvider stamps provider on err if it is one of the typed errors of
// this package and carries no provider yet. Backends call it on the way out.
func WithProvider(provider string, err error) error {
	if err == nil || provider == "" {
		return err
	}
	switch e := err.(type) {
	case *AuthError:
		if e.Provider == "" {
			e.Provider = provider
		}
	case *TransportError:
		if e.Provider == "" {
			e.Provider = provider
		}
	case *DecodeError:
		if e.Provider == "" {
			e.Provider = provider
		}
	case *APIError:
		if e.Provider == "" {
			e.Provider = provider
		}
	case *ProtocolViolationError:
		if e.Provider == "" {
			e.Provider = provider
		}
	}
	return err
}
