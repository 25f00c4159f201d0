package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatClientComplete_SendsSystemAndUserMessages(t *testing.T) {
	t.Parallel()

	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var got struct {
		Model       string    `json:"model"`
		Messages    []message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " Flood zone X. "}, "finish_reason": "stop"}]
		}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewChatClient(ChatConfig{
		Model:   "llama3",
		BaseURL: srv.URL + "/v1",
	}, srv.Client())
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), Prompt{
		System:      "Be terse.",
		User:        "Flood zone?",
		Temperature: Float(0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "Flood zone X.", out)
	assert.Equal(t, "llama3", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Be terse.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
}

func TestChatClientComplete_NoChoicesIsEmptyOutput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewChatClient(ChatConfig{Model: "llama3", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Prompt{User: "hi"})
	require.ErrorIs(t, err, ErrEmptyOutput)
}

func TestNewChatClient_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Setenv("TTDR_CHAT_MISSING_KEY", "")

	_, err := NewChatClient(ChatConfig{Model: "gpt-4o-mini", APIKeyEnv: "TTDR_CHAT_MISSING_KEY"}, nil)
	require.Error(t, err)
}
