// Package vertexai implements the Google Vertex AI backend for Anthropic
// models.
//
// The body is the canonical request without "model" (the model is part of
// the URL) plus "anthropic_version" and "stream". Requests carry a Google
// OAuth2 bearer token.
package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lgc202/anthropic-kit/messages"
	"github.com/lgc202/anthropic-kit/version"
)

// CloudPlatformScope is requested by the default token source.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type Requester struct {
	name       string
	project    string
	region     string
	baseURL    string
	apiVersion string
	ts         oauth2.TokenSource
}

type Option func(*Requester) error

// WithTokenSource sets the credential provider. Token caching and refresh are
// the token source's concern; wrap it with oauth2.ReuseTokenSource if needed.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(r *Requester) error {
		if ts == nil {
			return errors.New("vertexai: nil token source")
		}
		r.ts = ts
		return nil
	}
}

// WithBaseURL overrides the regional endpoint, e.g. for a private service
// connect address.
func WithBaseURL(baseURL string) Option {
	return func(r *Requester) error {
		r.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		return nil
	}
}

func WithAPIVersion(v string) Option {
	return func(r *Requester) error {
		r.apiVersion = v
		return nil
	}
}

func WithProviderName(name string) Option {
	return func(r *Requester) error {
		r.name = name
		return nil
	}
}

// New creates a Requester for project and region. Without WithTokenSource it
// uses Application Default Credentials; failing to find them is an AuthError.
func New(ctx context.Context, project, region string, opts ...Option) (*Requester, error) {
	project, region = strings.TrimSpace(project), strings.TrimSpace(region)
	if project == "" {
		return nil, errors.New("vertexai: project is required")
	}
	if region == "" {
		return nil, errors.New("vertexai: region is required")
	}

	r := &Requester{
		name:       "vertexai",
		project:    project,
		region:     region,
		apiVersion: version.VertexAPIVersion,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.baseURL == "" {
		r.baseURL = defaultBaseURL(project, region)
	}
	if r.ts == nil {
		ts, err := google.DefaultTokenSource(ctx, CloudPlatformScope)
		if err != nil {
			return nil, &messages.AuthError{Provider: r.name, Cause: err}
		}
		r.ts = ts
	}
	return r, nil
}

func defaultBaseURL(project, region string) string {
	host := region + "-aiplatform.googleapis.com"
	if region == "global" {
		host = "aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/publishers/anthropic", host, project, region)
}

func (r *Requester) Name() string    { return r.name }
func (r *Requester) BaseURL() string { return r.baseURL }

func (r *Requester) EndpointURL(req messages.WireRequest) string {
	method := "rawPredict"
	if req.Stream {
		method = "streamRawPredict"
	}
	return "/models/" + req.Model + ":" + method
}

// vertexRequest is the Vertex body: the canonical request minus "model".
type vertexRequest struct {
	AnthropicVersion string               `json:"anthropic_version"`
	Messages         []messages.Message   `json:"messages"`
	MaxTokens        int                  `json:"max_tokens"`
	Metadata         *messages.Metadata   `json:"metadata,omitempty"`
	StopSequences    []string             `json:"stop_sequences,omitempty"`
	System           messages.Content     `json:"system,omitzero"`
	Temperature      *float64             `json:"temperature,omitempty"`
	ToolChoice       *messages.ToolChoice `json:"tool_choice,omitempty"`
	Tools            []messages.Tool      `json:"tools,omitempty"`
	TopK             *int                 `json:"top_k,omitempty"`
	TopP             *float64             `json:"top_p,omitempty"`
	Stream           bool                 `json:"stream"`
}

func (r *Requester) body(req messages.WireRequest) vertexRequest {
	return vertexRequest{
		AnthropicVersion: r.apiVersion,
		Messages:         req.Messages,
		MaxTokens:        req.MaxTokens,
		Metadata:         req.Metadata,
		StopSequences:    req.StopSequences,
		System:           req.System,
		Temperature:      req.Temperature,
		ToolChoice:       req.ToolChoice,
		Tools:            req.Tools,
		TopK:             req.TopK,
		TopP:             req.TopP,
		Stream:           req.Stream,
	}
}

// Prepare fetches a token (which may hit the network) and builds the request.
func (r *Requester) Prepare(ctx context.Context, url string, req messages.WireRequest) (*http.Request, error) {
	body, err := json.Marshal(r.body(req))
	if err != nil {
		return nil, err
	}

	tok, err := r.ts.Token()
	if err != nil {
		return nil, &messages.AuthError{Provider: r.name, Cause: err}
	}
	if !tok.Valid() {
		return nil, &messages.AuthError{Provider: r.name, Cause: errors.New("token source returned an invalid token")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(httpReq)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-user-project", r.project)
	if req.Stream {
		httpReq.Header.Set("accept", "text/event-stream")
	}
	return httpReq, nil
}

// NewClient is a shorthand for New followed by messages.NewClient.
func NewClient(ctx context.Context, project, region string, opts []Option, clientOpts ...messages.ClientOption) (*messages.Client, error) {
	r, err := New(ctx, project, region, opts...)
	if err != nil {
		return nil, err
	}
	return messages.NewClient(r, clientOpts...), nil
}
