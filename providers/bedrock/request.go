package bedrock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lgc202/anthropic-kit/messages"
)

// stopSequencePath asks Bedrock to return the matched stop sequence of
// Anthropic models in AdditionalModelResponseFields.
const stopSequencePath = "/stop_sequence"

// converseInput maps a validated request to the Converse input. Metadata has
// no Bedrock counterpart and is not sent.
func converseInput(req messages.CreateMessageRequest) (*bedrockruntime.ConverseInput, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId:                           aws.String(req.Model),
		AdditionalModelResponseFieldPaths: []string{stopSequencePath},
	}

	for i, m := range req.Messages {
		msg, err := mapMessage(m)
		if err != nil {
			return nil, withField(err, fmt.Sprintf("messages[%d]", i))
		}
		in.Messages = append(in.Messages, msg)
	}

	for _, p := range req.System.Parts() {
		if t, ok := p.(messages.TextPart); ok {
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: t.Text})
		}
	}

	if req.MaxTokens > math.MaxInt32 {
		return nil, &messages.ValidationError{Field: "max_tokens", Reason: fmt.Sprintf("must not exceed %d on bedrock", math.MaxInt32)}
	}
	cfg := &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = append([]string(nil), req.StopSequences...)
	}
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = aws.Float32(float32(*req.TopP))
	}
	in.InferenceConfig = cfg

	if req.TopK != nil {
		in.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{"top_k": *req.TopK})
	}

	tc, err := toolConfig(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, err
	}
	in.ToolConfig = tc
	return in, nil
}

func streamInput(in *bedrockruntime.ConverseInput) *bedrockruntime.ConverseStreamInput {
	return &bedrockruntime.ConverseStreamInput{
		ModelId:                           in.ModelId,
		Messages:                          in.Messages,
		System:                            in.System,
		InferenceConfig:                   in.InferenceConfig,
		ToolConfig:                        in.ToolConfig,
		AdditionalModelRequestFields:      in.AdditionalModelRequestFields,
		AdditionalModelResponseFieldPaths: in.AdditionalModelResponseFieldPaths,
	}
}

func mapMessage(m messages.Message) (types.Message, error) {
	out := types.Message{Role: types.ConversationRoleUser}
	if m.Role == messages.RoleAssistant {
		out.Role = types.ConversationRoleAssistant
	}

	for i, p := range m.Content.Parts() {
		block, err := mapPart(p)
		if err != nil {
			return types.Message{}, withField(err, fmt.Sprintf("content[%d]", i))
		}
		out.Content = append(out.Content, block)
	}
	return out, nil
}

func mapPart(p messages.ContentPart) (types.ContentBlock, error) {
	switch v := p.(type) {
	case messages.TextPart:
		return &types.ContentBlockMemberText{Value: v.Text}, nil

	case messages.ImagePart:
		data, err := base64.StdEncoding.DecodeString(v.Source.Data)
		if err != nil {
			return nil, &messages.ValidationError{Field: "source.data", Reason: "is not valid base64"}
		}
		format, ok := imageFormats[v.Source.MediaType]
		if !ok {
			return nil, &messages.ValidationError{Field: "source.media_type", Reason: fmt.Sprintf("unsupported media type %q", v.Source.MediaType)}
		}
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: data},
		}}, nil

	case messages.ToolUsePart:
		input, err := jsonDocument(v.Input)
		if err != nil {
			return nil, &messages.ValidationError{Field: "input", Reason: err.Error()}
		}
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(v.ID),
			Name:      aws.String(v.Name),
			Input:     input,
		}}, nil

	case messages.ToolResultPart:
		status := types.ToolResultStatusSuccess
		if v.IsError {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(v.ToolUseID),
			Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: v.Content}},
			Status:    status,
		}}, nil
	}
	return nil, &messages.ValidationError{Reason: fmt.Sprintf("%s is not valid in a request", p.Type())}
}

var imageFormats = map[messages.MediaType]types.ImageFormat{
	messages.MediaTypeJPEG: types.ImageFormatJpeg,
	messages.MediaTypePNG:  types.ImageFormatPng,
	messages.MediaTypeGIF:  types.ImageFormatGif,
	messages.MediaTypeWebP: types.ImageFormatWebp,
}

func toolConfig(tools []messages.Tool, choice *messages.ToolChoice) (*types.ToolConfiguration, error) {
	if len(tools) == 0 {
		if choice != nil {
			return nil, &messages.ValidationError{Field: "tool_choice", Reason: "requires at least one tool on bedrock"}
		}
		return nil, nil
	}

	cfg := &types.ToolConfiguration{}
	for i, t := range tools {
		schema, err := schemaDocument(t.InputSchema)
		if err != nil {
			return nil, &messages.ValidationError{Field: fmt.Sprintf("tools[%d].input_schema", i), Reason: err.Error()}
		}
		spec := types.ToolSpecification{
			Name:        aws.String(t.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: schema},
		}
		if t.Description != "" {
			spec.Description = aws.String(t.Description)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: spec})
	}

	if choice != nil {
		switch choice.Type {
		case messages.ToolChoiceAuto:
			cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		case messages.ToolChoiceAny:
			cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		case messages.ToolChoiceTool:
			cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice.Name)}}
		}
	}
	return cfg, nil
}

func schemaDocument(s messages.InputSchema) (document.Interface, error) {
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	schema := map[string]any{"type": typ}
	if len(s.Properties) > 0 {
		var props any
		if err := json.Unmarshal(s.Properties, &props); err != nil {
			return nil, err
		}
		schema["properties"] = props
	}
	if len(s.Required) > 0 {
		schema["required"] = append([]string(nil), s.Required...)
	}
	return document.NewLazyDocument(schema), nil
}

// jsonDocument converts raw JSON into a document. Documents encode Go values,
// so the JSON is decoded first rather than passed as bytes.
func jsonDocument(raw json.RawMessage) (document.Interface, error) {
	var v any = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	return document.NewLazyDocument(v), nil
}

func withField(err error, prefix string) error {
	if ve, ok := messages.AsValidationError(err); ok {
		field := prefix
		if ve.Field != "" {
			field += "." + ve.Field
		}
		return &messages.ValidationError{Field: field, Reason: ve.Reason}
	}
	return err
}
