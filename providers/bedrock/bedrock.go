// Package bedrock implements the AWS Bedrock backend on top of the
// bedrockruntime Converse and ConverseStream operations.
//
// Bedrock does not speak the canonical wire format, so Client implements
// messages.Messenger directly: requests are mapped to the SDK's typed input
// and the native stream is rebuilt into canonical events (see NewStream).
package bedrock

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/lgc202/anthropic-kit/messages"
)

// ConverseAPI is the subset of *bedrockruntime.Client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client is safe for concurrent use.
type Client struct {
	name    string
	region  string
	profile string

	api         ConverseAPI
	credentials aws.CredentialsProvider
	logger      *slog.Logger
}

var _ messages.Messenger = (*Client)(nil)

// Option configures a Client in New.
type Option func(*Client) error

// WithRegion overrides the AWS region from the environment.
func WithRegion(region string) Option {
	return func(c *Client) error {
		c.region = region
		return nil
	}
}

// WithProfile selects a shared config profile (~/.aws/config).
func WithProfile(profile string) Option {
	return func(c *Client) error {
		c.profile = profile
		return nil
	}
}

// WithAPI injects a ConverseAPI, typically a preconfigured
// *bedrockruntime.Client. Default config loading is skipped.
func WithAPI(api ConverseAPI) Option {
	return func(c *Client) error {
		if api == nil {
			return errors.New("bedrock: nil api")
		}
		c.api = api
		return nil
	}
}

// WithCredentials sets the provider checked before every call.
func WithCredentials(p aws.CredentialsProvider) Option {
	return func(c *Client) error {
		c.credentials = p
		return nil
	}
}

// WithLogger sets the client logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithProviderName sets the name stamped on returned errors.
func WithProviderName(name string) Option {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// New builds a Client. Without WithAPI the AWS default config chain is
// loaded; a failure there is reported as *messages.AuthError.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		name:   "bedrock",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.api != nil {
		return c, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if c.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(c.region))
	}
	if c.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(c.profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &messages.AuthError{Provider: c.name, Cause: err}
	}
	c.api = bedrockruntime.NewFromConfig(cfg)
	if c.credentials == nil {
		c.credentials = cfg.Credentials
	}
	return c, nil
}

func (c *Client) Name() string { return c.name }

// Messages calls Converse and maps the result to a MessageResponse.
func (c *Client) Messages(ctx context.Context, req messages.CreateMessageRequest) (*messages.MessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	in, err := converseInput(req)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("bedrock converse", "model", req.Model)
	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return nil, c.mapError(err)
	}
	id, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	resp, err := messageResponse(out, id, req.Model)
	if err != nil {
		return nil, messages.WithProvider(c.name, err)
	}
	return resp, nil
}

// MessagesStream calls ConverseStream and returns the reconstructed
// canonical stream.
func (c *Client) MessagesStream(ctx context.Context, req messages.CreateMessageRequest) (messages.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	in, err := converseInput(req)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("bedrock converse stream", "model", req.Model)
	out, err := c.api.ConverseStream(ctx, streamInput(in))
	if err != nil {
		return nil, c.mapError(err)
	}
	src := out.GetStream()
	if src == nil {
		return nil, &messages.TransportError{Provider: c.name, Cause: errNoStream}
	}
	id, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return NewStream(src, id, req.Model, WithStreamProvider(c.name), WithStreamLogger(c.logger)), nil
}

func (c *Client) authenticate(ctx context.Context) error {
	if c.credentials == nil {
		return nil
	}
	if _, err := c.credentials.Retrieve(ctx); err != nil {
		return &messages.AuthError{Provider: c.name, Cause: err}
	}
	return nil
}

func (c *Client) mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &messages.TransportError{Provider: c.name, Cause: err}
	}

	status, requestID := 0, ""
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		status, requestID = re.HTTPStatusCode(), re.ServiceRequestID()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &messages.APIError{
			Provider:   c.name,
			StatusCode: status,
			Type:       apiErr.ErrorCode(),
			Message:    apiErr.ErrorMessage(),
			RequestID:  requestID,
		}
	}
	return &messages.TransportError{Provider: c.name, StatusCode: status, Cause: err}
}
