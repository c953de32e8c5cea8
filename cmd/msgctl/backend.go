package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lgc202/anthropic-kit/config"
	"github.com/lgc202/anthropic-kit/messages"
	"github.com/lgc202/anthropic-kit/providers/anthropic"
	"github.com/lgc202/anthropic-kit/providers/bedrock"
	"github.com/lgc202/anthropic-kit/providers/vertexai"
)

// newMessenger builds the backend selected by s.Backend.
func newMessenger(ctx context.Context, s config.Settings, logger *slog.Logger) (messages.Messenger, error) {
	clientOpts := []messages.ClientOption{
		messages.WithHTTPClient(&http.Client{Timeout: s.HTTP.Timeout}),
		messages.WithLogger(logger),
		messages.WithRetry(s.HTTP.MaxAttempts),
	}

	switch s.Backend {
	case config.BackendAnthropic:
		var opts []anthropic.Option
		if s.Anthropic.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(s.Anthropic.APIKey))
		}
		if s.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(s.Anthropic.BaseURL))
		}
		if len(s.Anthropic.Betas) > 0 {
			opts = append(opts, anthropic.WithBeta(s.Anthropic.Betas...))
		}
		c, err := anthropic.NewClient(opts, clientOpts...)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.BackendVertex:
		c, err := vertexai.NewClient(ctx, s.Vertex.Project, s.Vertex.Region, nil, clientOpts...)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.BackendBedrock:
		c, err := bedrock.New(ctx,
			bedrock.WithRegion(s.Bedrock.Region),
			bedrock.WithProfile(s.Bedrock.Profile),
			bedrock.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend %q", s.Backend)
}
