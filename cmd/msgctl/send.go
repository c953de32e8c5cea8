package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lgc202/anthropic-kit/messages"
)

type sendOptions struct {
	backend     string
	model       string
	maxTokens   int
	system      string
	temperature float64
	stream      bool
	asJSON      bool
}

func newSendCommand(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}

	sendCmd := &cobra.Command{
		Use:   "send [prompt]",
		Short: "发送一条用户消息并打印回复",
		Long:  "发送一条用户消息并打印回复。prompt 为空或为 - 时从标准输入读取。",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.load(cmd); err != nil {
				return err
			}
			return runSend(cmd, root, opts, args)
		},
	}

	f := sendCmd.Flags()
	f.StringVarP(&opts.backend, "backend", "b", "", "后端 (anthropic, vertex, bedrock)")
	f.StringVarP(&opts.model, "model", "m", "", "模型名称")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "最大输出 token 数")
	f.StringVarP(&opts.system, "system", "s", "", "系统提示词")
	f.Float64VarP(&opts.temperature, "temperature", "t", 0, "采样温度")
	f.BoolVar(&opts.stream, "stream", false, "流式输出")
	f.BoolVar(&opts.asJSON, "json", false, "以 JSON 输出完整回复")
	return sendCmd
}

func runSend(cmd *cobra.Command, root *rootOptions, opts *sendOptions, args []string) error {
	s := root.settings
	flags := cmd.Flags()
	if flags.Changed("backend") {
		s.Backend = opts.backend
	}
	if flags.Changed("model") {
		s.Model = opts.model
	}
	if flags.Changed("max-tokens") {
		s.MaxTokens = opts.maxTokens
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	reqOpts := []messages.RequestOption{
		messages.WithModel(s.Model),
		messages.WithMaxTokens(s.MaxTokens),
		messages.WithMessage(messages.UserText(prompt)),
	}
	if opts.system != "" {
		reqOpts = append(reqOpts, messages.WithSystemText(opts.system))
	}
	if flags.Changed("temperature") {
		reqOpts = append(reqOpts, messages.WithTemperature(opts.temperature))
	}
	req, err := messages.BuildRequest(reqOpts...)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	m, err := newMessenger(ctx, s, root.logger)
	if err != nil {
		return err
	}
	root.logger.Debug("sending message", "backend", s.Backend, "model", s.Model, "stream", opts.stream)

	var resp *messages.MessageResponse
	out := cmd.OutOrStdout()
	if opts.stream {
		resp, err = streamMessage(ctx, m, req, out, !opts.asJSON)
	} else {
		resp, err = m.Messages(ctx, req)
	}
	if err != nil {
		return err
	}

	root.logger.Debug("message complete",
		"id", resp.ID,
		"stop_reason", stopReason(resp),
		"output_tokens", resp.Usage.OutputTokens,
	)
	return printResponse(out, resp, opts.asJSON, opts.stream)
}

// streamMessage prints text deltas as they arrive when echo is set and
// returns the rebuilt message.
func streamMessage(ctx context.Context, m messages.Messenger, req messages.CreateMessageRequest, out io.Writer, echo bool) (*messages.MessageResponse, error) {
	s, err := m.MessagesStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var acc messages.Accumulator
	for ev, err := range messages.Events(s) {
		if err != nil {
			return nil, err
		}
		if err := acc.Apply(ev); err != nil {
			return nil, err
		}
		if !echo {
			continue
		}
		if d, ok := ev.(messages.ContentBlockDeltaEvent); ok {
			if t, ok := d.Delta.(messages.TextDeltaPart); ok {
				fmt.Fprint(out, t.Text)
			}
		}
	}
	return acc.Message()
}

func printResponse(out io.Writer, resp *messages.MessageResponse, asJSON, streamed bool) error {
	if asJSON {
		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}

	if streamed {
		fmt.Fprintln(out)
	} else if text := resp.Text(); text != "" {
		fmt.Fprintln(out, text)
	}
	for _, tu := range resp.ToolUses() {
		fmt.Fprintf(out, "[tool_use %s %s] %s\n", tu.ID, tu.Name, tu.Input)
	}
	return nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

func stopReason(resp *messages.MessageResponse) string {
	if resp.StopReason == nil {
		return ""
	}
	return string(*resp.StopReason)
}
