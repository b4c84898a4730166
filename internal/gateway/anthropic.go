package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/plura-ai/onboard/internal/convo"
)

const anthropicDefaultModel = "claude-3-5-haiku-latest"

// AnthropicProvider implements the Provider interface for Claude
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// AnthropicConfig holds Anthropic provider configuration
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]anthropic.Message, 0, len(req.History))
	for _, t := range req.History {
		if t.Role == convo.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantTextMessage(t.Content))
		} else {
			messages = append(messages, anthropic.NewUserTextMessage(t.Content))
		}
	}

	temp := float32(0)
	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		System:      SystemPrompt(req.Greeting),
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: &temp,
		Tools:       anthropicTools(),
	}

	out, push, finish := NewTextStream(ctx)
	started := make(chan struct{})
	var once sync.Once

	type result struct {
		resp anthropic.MessagesResponse
		err  error
	}
	resc := make(chan result, 1)

	go func() {
		resp, err := p.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: msgReq,
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text == nil {
					return
				}
				once.Do(func() { close(started) })
				push(*data.Delta.Text)
			},
		})
		resc <- result{resp, err}
	}()

	select {
	case <-started:
		// Prose turn: hand the stream to the caller and settle it
		// once the API call finishes.
		go func() {
			r := <-resc
			if r.err != nil {
				finish(fmt.Errorf("anthropic stream error: %w", r.err))
				return
			}
			finish(nil)
		}()
		return &Completion{Stream: out}, nil

	case r := <-resc:
		if r.err != nil {
			return nil, fmt.Errorf("anthropic API error: %w", r.err)
		}
		if call := anthropicToolUse(r.resp); call != nil {
			return &Completion{ToolCall: call}, nil
		}
		finish(nil)
		return &Completion{Stream: out}, nil
	}
}

// anthropicToolUse extracts the first tool-use block, if any. At most
// one tool fires per user turn.
func anthropicToolUse(resp anthropic.MessagesResponse) *ToolCall {
	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeToolUse && c.MessageContentToolUse != nil {
			return &ToolCall{
				ID:   c.MessageContentToolUse.ID,
				Name: c.MessageContentToolUse.Name,
				Args: c.MessageContentToolUse.Input,
			}
		}
	}
	return nil
}

func anthropicTools() []anthropic.ToolDefinition {
	tools := Tools()
	converted := make([]anthropic.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		converted = append(converted, anthropic.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return converted
}
