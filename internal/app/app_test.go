package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/search"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		LLM: config.LLMConfig{
			Provider: config.ProviderOpenAI,
			Model:    "gpt-4o-mini",
			APIKey:   "test-key",
		},
		Search: config.SearchConfig{Provider: config.SearchNone},
		Research: config.ResearchConfig{
			MaxSteps:                2,
			EvolutionFrequency:      3,
			CandidateCount:          2,
			ContextWindowLimit:      5,
			DenoiseBatchSize:        3,
			SnippetTruncationLength: 300,
		},
	}
}

func TestNewStorage_OpensOnlyDatabase(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStorage(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NotNil(t, a.DB)
	require.NotNil(t, a.Store)
	assert.Nil(t, a.Runner)
	assert.Nil(t, a.LLM)

	_, err = os.Stat(filepath.Join(dir, DBFile))
	require.NoError(t, err)

	runs, err := a.Store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNew_WiresRunner(t *testing.T) {
	a, err := New(context.Background(), testConfig(), t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.NotNil(t, a.Runner)
	assert.NotNil(t, a.LLM)
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Vector)
	assert.IsType(t, search.Disabled{}, a.Search)
}

func TestNew_UnknownProviderFails(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "carrier-pigeon"
	_, err := New(context.Background(), cfg, t.TempDir(), zerolog.Nop())
	require.Error(t, err)
}

func TestNewVector_DisabledFails(t *testing.T) {
	_, err := NewVector(context.Background(), testConfig(), zerolog.Nop())
	require.Error(t, err)
}

func TestClose_NilApp(t *testing.T) {
	var a *App
	assert.NoError(t, a.Close(context.Background()))
}
