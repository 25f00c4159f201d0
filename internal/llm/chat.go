package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// ChatConfig configures an OpenAI-compatible chat completions backend such as
// Ollama, vLLM or a hosted gateway.
type ChatConfig struct {
	Model       string
	BaseURL     string
	APIKey      string
	APIKeyEnv   string
	Timeout     time.Duration
	Temperature float64
}

// ChatClient completes prompts through the chat completions endpoint.
type ChatClient struct {
	client      *goopenai.Client
	model       string
	temperature float64
}

// NewChatClient constructs a chat completions client. An API key is optional
// when BaseURL points at a local server.
func NewChatClient(cfg ChatConfig, httpClient *http.Client) (*ChatClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("chat model is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	apiKey, err := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv, defaultOpenAIAPIKeyEnv)
	if err != nil {
		if baseURL == "" {
			return nil, fmt.Errorf("chat: %w", err)
		}
		apiKey = "unused"
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clientCfg.HTTPClient = httpClient

	return &ChatClient{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends the prompt as a system and a user message.
func (c *ChatClient) Complete(ctx context.Context, p Prompt) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: p.User})

	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if t, ok := temperature(p, c.temperature); ok {
		req.Temperature = float32(t)
	}
	if p.MaxTokens > 0 {
		req.MaxCompletionTokens = p.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", ErrEmptyOutput)
	}
	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", fmt.Errorf("chat completion: %w", ErrEmptyOutput)
	}
	return output, nil
}
