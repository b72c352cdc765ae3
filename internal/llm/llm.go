// Package llm routes chat completions to a provider selected by a
// "provider/model" spec string.
package llm

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Credentials carries the per-provider API keys. Only the key for the
// selected provider needs to be set.
type Credentials struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// ParseModel splits a "provider/model_name" spec.
func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

// NewForModel builds the client for a "provider/model" spec, picking the
// matching key out of creds.
func NewForModel(spec string, creds Credentials, opts ...Option) (Client, error) {
	provider, modelName, err := ParseModel(spec)
	if err != nil {
		return nil, err
	}

	var apiKey string
	switch provider {
	case "openai":
		apiKey = creds.OpenAI
	case "anthropic":
		apiKey = creds.Anthropic
	case "gemini":
		apiKey = creds.Gemini
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", provider)
	}

	return NewClient(provider, apiKey, modelName, opts...)
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
