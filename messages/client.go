package messages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lgc202/anthropic-kit/messages/internal/transport"
)

// Client drives any Requester over HTTP. It is safe for concurrent use.
type Client struct {
	requester Requester
	name      string
	tr        *transport.Client
	logger    *slog.Logger
}

// ClientOption configures a Client in NewClient.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying *http.Client (timeouts, proxies, TLS).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.tr.HTTPClient = hc
		}
	}
}

// WithLogger sets the logger used for request and retry debug output.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
			c.tr.Logger = l
		}
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.tr.UserAgent = ua }
}

// WithHeader adds a header to every request unless the Requester set it.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.tr.DefaultHeaders.Add(key, value) }
}

// WithRetry enables retries of non-streaming requests on 408/429/5xx and
// network errors. maxAttempts <= 1 disables retries, which is the default.
func WithRetry(maxAttempts int) ClientOption {
	return func(c *Client) {
		r := transport.DefaultRetry()
		r.MaxAttempts = maxAttempts
		c.tr.Retry = r
	}
}

// WithProviderName sets the name stamped on returned errors.
func WithProviderName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// NewClient returns a Client sending requests built by r. Without options it
// uses a 10 minute http.Client timeout and no retries.
func NewClient(r Requester, opts ...ClientOption) *Client {
	c := &Client{
		requester: r,
		tr:        transport.New(nil),
	}
	c.logger = c.tr.Logger
	if n, ok := r.(Namer); ok {
		c.name = n.Name()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Requester() Requester { return c.requester }

// Messages sends req and waits for the complete response.
func (c *Client) Messages(ctx context.Context, req CreateMessageRequest) (*MessageResponse, error) {
	httpReq, err := c.prepare(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.tr.DoBody(httpReq)
	if err != nil {
		return nil, c.mapError(err)
	}

	out, err := DecodeResponse(raw)
	if err != nil {
		if ae, ok := AsAPIError(err); ok {
			ae.StatusCode = resp.StatusCode
			ae.RequestID = requestID(resp.Header)
		}
		return nil, WithProvider(c.name, err)
	}
	return out, nil
}

// MessagesStream sends req with streaming enabled and returns the canonical
// event stream. The caller must Close it.
func (c *Client) MessagesStream(ctx context.Context, req CreateMessageRequest) (Stream, error) {
	httpReq, err := c.prepare(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.tr.Do(httpReq)
	if err != nil {
		return nil, c.mapError(err)
	}
	return newEventStream(c.name, resp.Body, c.logger), nil
}

func (c *Client) prepare(ctx context.Context, req CreateMessageRequest, stream bool) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w := WireRequest{CreateMessageRequest: req, Stream: stream}
	url := c.requester.BaseURL() + c.requester.EndpointURL(w)
	httpReq, err := c.requester.Prepare(ctx, url, w)
	if err != nil {
		// Marshal failures wrap the content model's *ValidationError.
		if ve, ok := AsValidationError(err); ok {
			return nil, ve
		}
		if _, ok := AsAuthError(err); ok {
			return nil, WithProvider(c.name, err)
		}
		return nil, &TransportError{Provider: c.name, Cause: err}
	}
	return httpReq, nil
}

func (c *Client) mapError(err error) error {
	var se *transport.HTTPStatusError
	if !errors.As(err, &se) {
		return &TransportError{Provider: c.name, Cause: err}
	}
	if details, ok := parseErrorEnvelope(se.Body); ok {
		return &APIError{
			Provider:   c.name,
			StatusCode: se.StatusCode,
			Type:       details.Type,
			Message:    details.Message,
			RequestID:  requestID(se.Header),
			Raw:        se.Body,
		}
	}
	return &TransportError{Provider: c.name, StatusCode: se.StatusCode, Body: se.Body}
}

func requestID(h http.Header) string {
	for _, k := range []string{"request-id", "x-request-id"} {
		if v := strings.TrimSpace(h.Get(k)); v != "" {
			return v
		}
	}
	return ""
}
