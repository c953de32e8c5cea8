package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithymiddleware "github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/go-cmp/cmp"

	"github.com/lgc202/anthropic-kit/messages"
)

type fakeAPI struct {
	converseIn  *bedrockruntime.ConverseInput
	streamIn    *bedrockruntime.ConverseStreamInput
	converseOut *bedrockruntime.ConverseOutput
	streamOut   *bedrockruntime.ConverseStreamOutput
	err         error
	calls       int
}

func (f *fakeAPI) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.calls++
	f.converseIn = in
	return f.converseOut, f.err
}

func (f *fakeAPI) ConverseStream(_ context.Context, in *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	f.calls++
	f.streamIn = in
	return f.streamOut, f.err
}

func staticCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret", Source: "test"}, nil
	})
}

func newTestClient(t *testing.T, api ConverseAPI, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithAPI(api), WithCredentials(staticCredentials())}, opts...)
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return c
}

func basicRequest() messages.CreateMessageRequest {
	return messages.CreateMessageRequest{
		Model:     "anthropic.claude-3-haiku-20240307-v1:0",
		MaxTokens: 64,
		Messages:  []messages.Message{messages.UserText("Hello")},
	}
}

func TestMessagesMapsConverseOutput(t *testing.T) {
	var md smithymiddleware.Metadata
	awsmiddleware.SetRequestIDMetadata(&md, "req-9")

	api := &fakeAPI{converseOut: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Checking."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String("tooluse_1"),
					Name:      aws.String("lookup"),
					Input:     document.NewLazyDocument(map[string]any{"q": "x"}),
				}},
			},
		}},
		StopReason:     types.StopReasonToolUse,
		Usage:          &types.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(7), TotalTokens: aws.Int32(12)},
		ResultMetadata: md,
	}}
	c := newTestClient(t, api)

	resp, err := c.Messages(context.Background(), basicRequest())
	if err != nil {
		t.Fatalf("Messages err=%v", err)
	}

	reason := messages.StopToolUse
	want := &messages.MessageResponse{
		ID:    "req-9",
		Model: "anthropic.claude-3-haiku-20240307-v1:0",
		Role:  messages.RoleAssistant,
		Content: messages.Parts{
			messages.TextPart{Text: "Checking."},
			messages.ToolUsePart{ID: "tooluse_1", Name: "lookup", Input: json.RawMessage(`{"q":"x"}`)},
		},
		StopReason: &reason,
		Usage:      messages.Usage{InputTokens: intPtr(5), OutputTokens: 7},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if aws.ToString(api.converseIn.ModelId) != want.Model {
		t.Fatalf("model id=%q", aws.ToString(api.converseIn.ModelId))
	}
}

func TestMessagesRejectsUnexpectedOutput(t *testing.T) {
	api := &fakeAPI{converseOut: &bedrockruntime.ConverseOutput{Output: &types.UnknownUnionMember{Tag: "future"}}}
	c := newTestClient(t, api)

	_, err := c.Messages(context.Background(), basicRequest())
	de, ok := messages.AsDecodeError(err)
	if !ok {
		t.Fatalf("err=%v, want DecodeError", err)
	}
	if de.Provider != "bedrock" {
		t.Fatalf("provider=%q", de.Provider)
	}
}

func TestMessagesValidatesBeforeCall(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	req := basicRequest()
	req.MaxTokens = 0
	_, err := c.Messages(context.Background(), req)
	if _, ok := messages.AsValidationError(err); !ok {
		t.Fatalf("err=%v, want ValidationError", err)
	}

	req = basicRequest()
	choice := messages.AnyToolChoice()
	req.ToolChoice = &choice
	_, err = c.MessagesStream(context.Background(), req)
	ve, ok := messages.AsValidationError(err)
	if !ok || ve.Field != "tool_choice" {
		t.Fatalf("err=%v, want tool_choice ValidationError", err)
	}
	if api.calls != 0 {
		t.Fatalf("api called %d times", api.calls)
	}
}

func TestMessagesAuthFailure(t *testing.T) {
	api := &fakeAPI{}
	noCreds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no credentials in chain")
	})
	c := newTestClient(t, api, WithCredentials(noCreds))

	_, err := c.Messages(context.Background(), basicRequest())
	ae, ok := messages.AsAuthError(err)
	if !ok || ae.Provider != "bedrock" {
		t.Fatalf("err=%v, want bedrock AuthError", err)
	}
	if _, err := c.MessagesStream(context.Background(), basicRequest()); err == nil {
		t.Fatalf("MessagesStream err=nil")
	}
	if api.calls != 0 {
		t.Fatalf("api called %d times", api.calls)
	}
}

func TestMessagesMapsServiceErrors(t *testing.T) {
	throttled := &smithy.OperationError{
		ServiceID:     "Bedrock Runtime",
		OperationName: "Converse",
		Err: &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusTooManyRequests}},
				Err:      &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			},
			RequestID: "rid-1",
		},
	}

	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "throttling",
			err:  throttled,
			check: func(t *testing.T, err error) {
				ae, ok := messages.AsAPIError(err)
				if !ok {
					t.Fatalf("err=%v, want APIError", err)
				}
				if ae.StatusCode != 429 || ae.Type != "ThrottlingException" || ae.Message != "slow down" || ae.RequestID != "rid-1" {
					t.Fatalf("api error=%+v", ae)
				}
				if !messages.IsRateLimit(err) || !messages.IsTemporary(err) {
					t.Fatalf("rate limit not recognized")
				}
			},
		},
		{
			name: "bare api error",
			err:  &smithy.GenericAPIError{Code: "ValidationException", Message: "bad model"},
			check: func(t *testing.T, err error) {
				ae, ok := messages.AsAPIError(err)
				if !ok || ae.Type != "ValidationException" || ae.Provider != "bedrock" {
					t.Fatalf("err=%v", err)
				}
			},
		},
		{
			name: "canceled",
			err:  context.Canceled,
			check: func(t *testing.T, err error) {
				if _, ok := messages.AsTransportError(err); !ok || !errors.Is(err, context.Canceled) {
					t.Fatalf("err=%v, want TransportError wrapping context.Canceled", err)
				}
			},
		},
		{
			name: "network",
			err:  errors.New("dial tcp: no route to host"),
			check: func(t *testing.T, err error) {
				if _, ok := messages.AsTransportError(err); !ok {
					t.Fatalf("err=%v, want TransportError", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeAPI{err: tt.err})
			_, err := c.Messages(context.Background(), basicRequest())
			tt.check(t, err)

			_, err = c.MessagesStream(context.Background(), basicRequest())
			tt.check(t, err)
		})
	}
}

func TestMessagesStreamWithoutEventStream(t *testing.T) {
	api := &fakeAPI{streamOut: &bedrockruntime.ConverseStreamOutput{}}
	c := newTestClient(t, api)

	_, err := c.MessagesStream(context.Background(), basicRequest())
	if _, ok := messages.AsTransportError(err); !ok {
		t.Fatalf("err=%v, want TransportError", err)
	}
	if aws.ToString(api.streamIn.ModelId) != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Fatalf("stream model id=%q", aws.ToString(api.streamIn.ModelId))
	}
	if api.streamIn.InferenceConfig == nil || aws.ToInt32(api.streamIn.InferenceConfig.MaxTokens) != 64 {
		t.Fatalf("stream inference config=%+v", api.streamIn.InferenceConfig)
	}
}

func TestNewRejectsNilAPI(t *testing.T) {
	if _, err := New(context.Background(), WithAPI(nil)); err == nil {
		t.Fatalf("New(WithAPI(nil)) err=nil")
	}
}

func TestProviderName(t *testing.T) {
	c := newTestClient(t, &fakeAPI{err: errors.New("boom")}, WithProviderName("bedrock-eu"))
	if c.Name() != "bedrock-eu" {
		t.Fatalf("Name()=%q", c.Name())
	}
	_, err := c.Messages(context.Background(), basicRequest())
	te, ok := messages.AsTransportError(err)
	if !ok || te.Provider != "bedrock-eu" {
		t.Fatalf("err=%v", err)
	}
}
