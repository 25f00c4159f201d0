package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Defaults returns the default settings keyed by their dotted config path.
func Defaults() map[string]any {
	return map[string]any{
		"llm.provider":    ProviderOpenAI,
		"llm.model":       "gpt-4o-mini",
		"llm.timeout":     "60s",
		"llm.max_retries": 2,
		"llm.temperature": 0.0,

		"search.provider":    SearchDuckDuckGo,
		"search.max_results": 5,
		"search.rate_limit":  1.0,
		"search.timeout":     "15s",
		"search.depth":       "basic",

		"vector.enabled":       false,
		"vector.class":         "Document",
		"vector.top_k":         2,
		"vector.vectorizer":    "text2vec-transformers",
		"vector.chunk_size":    1000,
		"vector.chunk_overlap": 100,

		"research.max_steps":                 3,
		"research.evolution_frequency":       3,
		"research.candidate_count":           2,
		"research.context_window_limit":      5,
		"research.denoise_batch_size":        3,
		"research.snippet_truncation_length": 300,
		"research.seed_draft":                true,
	}
}

// SetDefaults registers Defaults on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
}

// Decode validates the settings held by v and decodes them into a Config.
func Decode(v *viper.Viper) (Config, error) {
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check enforces constraints the schema cannot express.
func (c Config) Check() error {
	if c.Research.MaxSteps <= 0 {
		return fmt.Errorf("research.max_steps must be > 0")
	}
	if c.Research.EvolutionFrequency <= 0 {
		return fmt.Errorf("research.evolution_frequency must be > 0")
	}
	if c.Research.CandidateCount <= 0 {
		return fmt.Errorf("research.candidate_count must be > 0")
	}
	if c.LLM.Provider == ProviderExec && len(c.LLM.Cmd) == 0 {
		return fmt.Errorf("llm.cmd is required for the %s provider", ProviderExec)
	}
	if c.Vector.Enabled && c.Vector.URL == "" {
		return fmt.Errorf("vector.url is required when the vector store is enabled")
	}
	if c.LLM.Timeout < 0 || c.Search.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Example returns a complete config document suitable for `ttdr init`.
func Example() map[string]any {
	return map[string]any{
		"llm": map[string]any{
			"provider":    ProviderOpenAI,
			"model":       "gpt-4o-mini",
			"api_key_env": "OPENAI_API_KEY",
			"timeout":     (60 * time.Second).String(),
			"max_retries": 2,
			"temperature": 0.0,
		},
		"search": map[string]any{
			"provider":    SearchDuckDuckGo,
			"max_results": 5,
			"rate_limit":  1.0,
		},
		"vector": map[string]any{
			"enabled": false,
			"url":     "http://localhost:8080",
			"class":   "Document",
			"top_k":   2,
		},
		"research": map[string]any{
			"max_steps":                 3,
			"evolution_frequency":       3,
			"candidate_count":           2,
			"context_window_limit":      5,
			"denoise_batch_size":        3,
			"snippet_truncation_length": 300,
			"seed_draft":                true,
		},
		"retention": map[string]any{
			"keep_last": 20,
		},
	}
}
