package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lgc202/anthropic-kit/messages"
)

func messageResponse(out *bedrockruntime.ConverseOutput, id, model string) (*messages.MessageResponse, error) {
	member, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, &messages.DecodeError{Cause: fmt.Errorf("unexpected converse output %T", out.Output)}
	}

	resp := &messages.MessageResponse{
		ID:      id,
		Model:   model,
		Role:    messages.RoleAssistant,
		Content: messages.Parts{},
		Usage:   usage(out.Usage),
	}
	for i, block := range member.Value.Content {
		part, err := responsePart(block)
		if err != nil {
			return nil, &messages.DecodeError{Cause: fmt.Errorf("content[%d]: %w", i, err)}
		}
		resp.Content = append(resp.Content, part)
	}

	if out.StopReason != "" {
		reason := messages.StopReason(out.StopReason)
		resp.StopReason = &reason
	}
	resp.StopSequence = stopSequence(out.AdditionalModelResponseFields)
	return resp, nil
}

func responsePart(block types.ContentBlock) (messages.ContentPart, error) {
	switch v := block.(type) {
	case *types.ContentBlockMemberText:
		return messages.TextPart{Text: v.Value}, nil
	case *types.ContentBlockMemberToolUse:
		input, err := documentJSON(v.Value.Input)
		if err != nil {
			return nil, err
		}
		return messages.ToolUsePart{
			ID:    aws.ToString(v.Value.ToolUseId),
			Name:  aws.ToString(v.Value.Name),
			Input: input,
		}, nil
	case *types.UnknownUnionMember:
		return nil, fmt.Errorf("unknown content block %q", v.Tag)
	}
	return nil, fmt.Errorf("unsupported content block %T", block)
}

func usage(u *types.TokenUsage) messages.Usage {
	var out messages.Usage
	if u == nil {
		return out
	}
	if u.InputTokens != nil {
		n := int(*u.InputTokens)
		out.InputTokens = &n
	}
	out.OutputTokens = int(aws.ToInt32(u.OutputTokens))
	return out
}

// documentJSON renders a document as JSON. A nil document is {}.
func documentJSON(doc document.Interface) (json.RawMessage, error) {
	if doc == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, errors.New("document is not valid json")
	}
	return json.RawMessage(b), nil
}

// stopSequence reads "stop_sequence" from the additional response fields.
func stopSequence(doc document.Interface) *string {
	if doc == nil {
		return nil
	}
	b, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil
	}
	var fields struct {
		StopSequence *string `json:"stop_sequence"`
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	return fields.StopSequence
}
