package gateway

import (
	"fmt"

	"github.com/plura-ai/onboard/internal/logger"
)

// NewProvider builds the configured provider. An empty name, or any
// setup with no API key, falls back to the deterministic rule
// provider so the assistant keeps working offline.
func NewProvider(name, apiKey, baseURL, model string) (Provider, error) {
	switch name {
	case "", "rules":
		return NewRuleProvider(), nil
	case "openai", "together", "openai-compat":
		if apiKey == "" {
			logger.Warn("[Gateway] No API key for provider %q, falling back to rules", name)
			return NewRuleProvider(), nil
		}
		return NewOpenAIProvider(OpenAIConfig{APIKey: apiKey, BaseURL: baseURL, Model: model})
	case "anthropic":
		if apiKey == "" {
			logger.Warn("[Gateway] No API key for provider %q, falling back to rules", name)
			return NewRuleProvider(), nil
		}
		return NewAnthropicProvider(AnthropicConfig{APIKey: apiKey, BaseURL: baseURL, Model: model})
	default:
		return nil, fmt.Errorf("unknown AI provider: %q", name)
	}
}
