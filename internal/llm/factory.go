package llm

import (
	"context"
	"fmt"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/rs/zerolog"
)

// NewBackend constructs the completion backend selected by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	c, err := newBackend(ctx, cfg)
	if err != nil {
		// constructors return typed pointers; keep a failed lookup an untyped nil
		return nil, err
	}
	return c, nil
}

func newBackend(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			APIKeyEnv:   cfg.APIKeyEnv,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, nil)
	case config.ProviderOpenAIChat:
		return NewChatClient(ChatConfig{
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			APIKeyEnv:   cfg.APIKeyEnv,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, nil)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			APIKeyEnv:   cfg.APIKeyEnv,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, nil)
	case config.ProviderExec:
		useTTY := false
		if cfg.UseTTY != nil {
			useTTY = *cfg.UseTTY
		}
		return NewExecClient(ExecConfig{Cmd: cfg.Cmd, UseTTY: useTTY})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// New constructs the configured backend wrapped in retries.
func New(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (Completer, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("completion backend ready")
	return NewRetrying(backend, RetryConfig{MaxRetries: cfg.MaxRetries}, logger), nil
}
