package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/spf13/viper"
)

func writeTestFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestLoadConfig_MissingDefaultUsesDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := loadConfig(v, t.TempDir())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Research.MaxSteps != 3 {
		t.Fatalf("max_steps = %d, want 3", cfg.Research.MaxSteps)
	}
	if cfg.Search.Provider != config.SearchDuckDuckGo {
		t.Fatalf("search provider = %q, want %q", cfg.Search.Provider, config.SearchDuckDuckGo)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	workDir := t.TempDir()
	if err := writeTestFile(filepath.Join(workDir, defaultStateDir, "config.json"), `{
  "llm": {"provider": "openai_chat", "model": "local", "base_url": "http://localhost:11434/v1"},
  "research": {"max_steps": 7}
}`); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := viper.New()
	cfg, err := loadConfig(v, workDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LLM.Provider != config.ProviderOpenAIChat {
		t.Fatalf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Research.MaxSteps != 7 {
		t.Fatalf("max_steps = %d, want 7", cfg.Research.MaxSteps)
	}
	if cfg.Research.CandidateCount != 2 {
		t.Fatalf("candidate_count = %d, want default 2", cfg.Research.CandidateCount)
	}
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	v := viper.New()
	v.Set("config", "custom.json")
	if _, err := loadConfig(v, t.TempDir()); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadConfig_InvalidValueFails(t *testing.T) {
	workDir := t.TempDir()
	if err := writeTestFile(filepath.Join(workDir, defaultStateDir, "config.json"), `{"research": {"max_steps": 0}}`); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(viper.New(), workDir); err == nil {
		t.Fatal("expected error for max_steps 0")
	}
}
