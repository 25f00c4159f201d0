package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiAPIKeyEnv = "GEMINI_API_KEY"

// GeminiConfig configures the Gemini API backend.
type GeminiConfig struct {
	Model       string
	BaseURL     string
	APIKey      string
	APIKeyEnv   string
	Timeout     time.Duration
	Temperature float64
}

// GeminiClient completes prompts through the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGeminiClient constructs a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, httpClient *http.Client) (*GeminiClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	apiKey, err := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv, defaultGeminiAPIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clientCfg.HTTPClient = httpClient

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, temperature: cfg.Temperature}, nil
}

// Complete issues a single GenerateContent call.
func (c *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	genCfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(p.System) != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if t, ok := temperature(p, c.temperature); ok {
		genCfg.Temperature = genai.Ptr(float32(t))
	}
	if p.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(p.User, genai.RoleUser)}, genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	output := strings.TrimSpace(resp.Text())
	if output == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyOutput)
	}
	return output, nil
}
