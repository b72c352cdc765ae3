package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openaiClient talks to the OpenAI chat completions API, or any
// API-compatible endpoint when a base URL override is set.
type openaiClient struct {
	api   *openai.Client
	model string
}

func newOpenAIClient(apiKey, model string, opts *clientOptions) (*openaiClient, error) {
	cfg := openai.DefaultConfig(apiKey)
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	return &openaiClient{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (c *openaiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{Model: c.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: empty completion text")
	}
	return text, nil
}
