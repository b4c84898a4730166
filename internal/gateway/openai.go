package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/logger"
)

// OpenAIProvider drives any OpenAI-compatible chat completions API
// (OpenAI, Together, Groq, DeepSeek, local gateways) with tool
// definitions and token streaming.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIConfig holds configuration for an OpenAI-compatible provider
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(req.Greeting),
	})
	for _, t := range req.History {
		messages = append(messages, openAIMessageFromTurn(t))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Tools:       openAITools(),
		Temperature: 0,
		MaxTokens:   1024,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	// Read until the model commits to either prose or a tool call.
	var first string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			stream.Close()
			return &Completion{Stream: staticStream("")}, nil
		}
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("openai stream error: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			call, err := p.drainToolCall(stream, delta.ToolCalls[0])
			stream.Close()
			if err != nil {
				return nil, err
			}
			return &Completion{ToolCall: call}, nil
		}
		if delta.Content != "" {
			first = delta.Content
			break
		}
	}

	out, push, finish := NewTextStream(ctx)
	go func() {
		defer stream.Close()
		if !push(first) {
			finish(ctx.Err())
			return
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				finish(nil)
				return
			}
			if err != nil {
				finish(fmt.Errorf("openai stream error: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !push(resp.Choices[0].Delta.Content) {
				finish(ctx.Err())
				return
			}
		}
	}()
	return &Completion{Stream: out}, nil
}

// drainToolCall consumes the rest of the stream, accumulating the
// argument fragments of the first tool call. At most one tool fires
// per user turn; extra calls are logged and dropped.
func (p *OpenAIProvider) drainToolCall(stream *openai.ChatCompletionStream, head openai.ToolCall) (*ToolCall, error) {
	name := head.Function.Name
	args := head.Function.Arguments

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("openai stream error: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		for _, tc := range resp.Choices[0].Delta.ToolCalls {
			if tc.Index != nil && *tc.Index > 0 {
				logger.Warn("[Gateway] Model requested more than one tool, dropping extra call %q", tc.Function.Name)
				continue
			}
			name += tc.Function.Name
			args += tc.Function.Arguments
		}
	}
	if args == "" {
		args = "{}"
	}
	return &ToolCall{ID: head.ID, Name: name, Args: json.RawMessage(args)}, nil
}

func openAIMessageFromTurn(t convo.Turn) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if t.Role == convo.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}
	return openai.ChatCompletionMessage{
		Role:    role,
		Name:    t.Name,
		Content: t.Content,
	}
}

func openAITools() []openai.Tool {
	tools := Tools()
	converted := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params map[string]any
		if err := json.Unmarshal(tool.InputSchema, &params); err != nil {
			params = map[string]any{"type": "object"}
		}
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return converted
}
