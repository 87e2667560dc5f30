package classify

import (
	"context"
	"fmt"

	"autoreply_worker/pkg/httputil"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

// Client wraps the OpenAI chat completion API for classification calls.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// ClientConfig holds OpenAI client configuration.
type ClientConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string // override for tests
}

// NewClient creates a new OpenAI-backed client.
func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3 // low temperature keeps classifications consistent
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httputil.NewClient(httputil.OpenAIClientConfig())
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// CompleteJSON requests a JSON-object completion and returns the
// content along with total tokens consumed by the call.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", 0, err
	}

	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, fmt.Errorf("no response from LLM")
	}

	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}
