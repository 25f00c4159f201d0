package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultOpenAIAPIKeyEnv = "OPENAI_API_KEY"
	defaultTimeout         = 60 * time.Second
)

// OpenAIConfig configures the Responses API backend.
type OpenAIConfig struct {
	Model       string
	BaseURL     string
	APIKey      string
	APIKeyEnv   string
	Timeout     time.Duration
	Temperature float64
}

// OpenAIClient completes prompts through the OpenAI Responses API.
type OpenAIClient struct {
	model       string
	temperature float64
	client      openai.Client
}

// NewOpenAIClient constructs a Responses API client.
func NewOpenAIClient(cfg OpenAIConfig, httpClient *http.Client) (*OpenAIClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	apiKey, err := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv, defaultOpenAIAPIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
		// retries are owned by Retrying
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIClient{
		model:       model,
		temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
	}, nil
}

// Complete executes a single Responses API request.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(p.System),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(p.User),
		},
	}
	if t, ok := temperature(p, c.temperature); ok {
		params.Temperature = openai.Float(t)
	}
	if p.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(p.MaxTokens))
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses.create: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", fmt.Errorf("openai response failed: %s", msg)
	}

	output := strings.TrimSpace(resp.OutputText())
	if output == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyOutput)
	}
	return output, nil
}

// temperature picks the prompt override, then a non-zero backend default.
// Reasoning models reject the parameter, so zero means unset.
func temperature(p Prompt, fallback float64) (float64, bool) {
	if p.Temperature != nil {
		return *p.Temperature, true
	}
	return fallback, fallback > 0
}

func resolveAPIKey(key, env, defaultEnv string) (string, error) {
	if k := strings.TrimSpace(key); k != "" {
		return k, nil
	}
	envKey := strings.TrimSpace(env)
	if envKey == "" {
		envKey = defaultEnv
	}
	if k := strings.TrimSpace(os.Getenv(envKey)); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("api key is required (set api_key or %s)", envKey)
}
