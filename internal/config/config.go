// Package config provides configuration loading and management for ttdr.
package config

import "time"

// Completion providers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenAIChat = "openai_chat"
	ProviderGemini     = "gemini"
	ProviderExec       = "exec"
)

// Search providers.
const (
	SearchDuckDuckGo = "duckduckgo"
	SearchTavily     = "tavily"
	SearchNone       = "none"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `json:"llm"       mapstructure:"llm"`
	Search    SearchConfig    `json:"search"    mapstructure:"search"`
	Vector    VectorConfig    `json:"vector"    mapstructure:"vector"`
	Research  ResearchConfig  `json:"research"  mapstructure:"research"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
}

// LLMConfig describes the completion backend.
type LLMConfig struct {
	Provider    string        `json:"provider"              mapstructure:"provider"`
	Model       string        `json:"model,omitempty"       mapstructure:"model"`
	BaseURL     string        `json:"base_url,omitempty"    mapstructure:"base_url"`
	APIKey      string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv   string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout     time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries"           mapstructure:"max_retries"`
	Temperature float64       `json:"temperature"           mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"  mapstructure:"max_tokens"`
	Cmd         []string      `json:"cmd,omitempty"         mapstructure:"cmd"`
	UseTTY      *bool         `json:"use_tty,omitempty"     mapstructure:"use_tty"`
}

// SearchConfig describes the web search provider.
type SearchConfig struct {
	Provider   string        `json:"provider"              mapstructure:"provider"`
	MaxResults int           `json:"max_results"           mapstructure:"max_results"`
	APIKey     string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv  string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Depth      string        `json:"depth,omitempty"       mapstructure:"depth"`
	RateLimit  float64       `json:"rate_limit"            mapstructure:"rate_limit"`
	Timeout    time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
}

// VectorConfig describes the optional vector knowledge store.
type VectorConfig struct {
	Enabled    bool   `json:"enabled"               mapstructure:"enabled"`
	URL        string `json:"url,omitempty"         mapstructure:"url"`
	Class      string `json:"class,omitempty"       mapstructure:"class"`
	TopK       int    `json:"top_k"                 mapstructure:"top_k"`
	APIKeyEnv  string `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Vectorizer string `json:"vectorizer,omitempty"  mapstructure:"vectorizer"`
	ChunkSize  int    `json:"chunk_size,omitempty"  mapstructure:"chunk_size"`
	Overlap    int    `json:"chunk_overlap"         mapstructure:"chunk_overlap"`
}

// ResearchConfig holds the loop parameters.
type ResearchConfig struct {
	MaxSteps                int  `json:"max_steps"                 mapstructure:"max_steps"`
	EvolutionFrequency      int  `json:"evolution_frequency"       mapstructure:"evolution_frequency"`
	CandidateCount          int  `json:"candidate_count"           mapstructure:"candidate_count"`
	ContextWindowLimit      int  `json:"context_window_limit"      mapstructure:"context_window_limit"`
	DenoiseBatchSize        int  `json:"denoise_batch_size"        mapstructure:"denoise_batch_size"`
	SnippetTruncationLength int  `json:"snippet_truncation_length" mapstructure:"snippet_truncation_length"`
	SeedDraft               bool `json:"seed_draft"                mapstructure:"seed_draft"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}
