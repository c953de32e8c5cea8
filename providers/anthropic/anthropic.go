// Package anthropic implements the direct Anthropic API backend.
//
//	r, err := anthropic.New(anthropic.WithAPIKey(key))
//	client := messages.NewClient(r)
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/lgc202/anthropic-kit/messages"
	"github.com/lgc202/anthropic-kit/version"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	MessagesPath   = "/v1/messages"

	// APIKeyEnv is read when no key is passed with WithAPIKey.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// Requester is the direct backend. It is immutable after New and safe for
// concurrent use.
type Requester struct {
	name       string
	apiKey     string
	baseURL    string
	apiVersion string
	betas      []string
}

type Option func(*Requester) error

func New(opts ...Option) (*Requester, error) {
	r := &Requester{
		name:       "anthropic",
		baseURL:    DefaultBaseURL,
		apiVersion: version.AnthropicAPIVersion,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.apiKey == "" {
		r.apiKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	if r.apiKey == "" {
		return nil, &messages.AuthError{Provider: r.name, Cause: errors.New("no API key: set " + APIKeyEnv + " or use WithAPIKey")}
	}
	return r, nil
}

func WithAPIKey(key string) Option {
	return func(r *Requester) error {
		r.apiKey = strings.TrimSpace(key)
		return nil
	}
}

func WithBaseURL(baseURL string) Option {
	return func(r *Requester) error {
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if baseURL == "" {
			return errors.New("anthropic: empty base url")
		}
		r.baseURL = baseURL
		return nil
	}
}

// WithAPIVersion overrides the anthropic-version header.
func WithAPIVersion(v string) Option {
	return func(r *Requester) error {
		r.apiVersion = v
		return nil
	}
}

// WithBeta enables beta features through the anthropic-beta header.
func WithBeta(betas ...string) Option {
	return func(r *Requester) error {
		for _, b := range betas {
			if b = strings.TrimSpace(b); b != "" {
				r.betas = append(r.betas, b)
			}
		}
		return nil
	}
}

func WithProviderName(name string) Option {
	return func(r *Requester) error {
		r.name = name
		return nil
	}
}

func (r *Requester) Name() string    { return r.name }
func (r *Requester) BaseURL() string { return r.baseURL }

func (r *Requester) EndpointURL(messages.WireRequest) string { return MessagesPath }

// Prepare sends the canonical body unchanged.
func (r *Requester) Prepare(ctx context.Context, url string, req messages.WireRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", r.apiKey)
	httpReq.Header.Set("anthropic-version", r.apiVersion)
	httpReq.Header.Set("content-type", "application/json")
	if len(r.betas) > 0 {
		httpReq.Header.Set("anthropic-beta", strings.Join(r.betas, ","))
	}
	if req.Stream {
		httpReq.Header.Set("accept", "text/event-stream")
		httpReq.Header.Set("x-stainless-helper-method", "stream")
	} else {
		httpReq.Header.Set("accept", "application/json")
	}
	return httpReq, nil
}

// NewClient is a shorthand for New followed by messages.NewClient.
func NewClient(opts []Option, clientOpts ...messages.ClientOption) (*messages.Client, error) {
	r, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return messages.NewClient(r, clientOpts...), nil
}
