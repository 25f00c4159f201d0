package llm

import (
	"context"
	"testing"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_FailureReturnsUntypedNil(t *testing.T) {
	t.Setenv("TTDR_FACTORY_TEST_KEY", "")

	tests := map[string]config.LLMConfig{
		"unknown provider": {Provider: "carrier-pigeon"},
		"exec without cmd": {Provider: config.ProviderExec},
		"openai without key": {
			Provider:  config.ProviderOpenAI,
			Model:     "gpt-test",
			APIKeyEnv: "TTDR_FACTORY_TEST_KEY",
		},
	}
	for name, cfg := range tests {
		c, err := NewBackend(context.Background(), cfg)
		require.Error(t, err, name)
		assert.True(t, c == nil, "%s: completer must be an untyped nil", name)
	}
}
