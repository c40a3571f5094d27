package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrejsstepanovs/supadiag/config"
	"github.com/andrejsstepanovs/supadiag/models"
)

func newTestAI(t *testing.T, provider string, handler http.HandlerFunc) *AI {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAI(config.AIConfig{
		Provider:       provider,
		BaseURL:        server.URL,
		APIKey:         "sk-test",
		EmbeddingModel: "embed-model",
		ChatModel:      "chat-model",
		Timeout:        5 * time.Second,
	})
}

func TestEmbeddings(t *testing.T) {
	testCases := []struct {
		name     string
		provider string
		path     string
		response string
	}{
		{
			name:     "openai",
			provider: "openai",
			path:     "/v1/embeddings",
			response: `{"object":"list","data":[{"object":"embedding","embedding":[0.1,0.2,0.3],"index":0}],"model":"embed-model"}`,
		},
		{
			name:     "ollama",
			provider: "ollama",
			path:     "/api/embed",
			response: `{"model":"embed-model","embeddings":[[0.1,0.2,0.3]]}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ai := newTestAI(t, tc.provider, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tc.path, r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

				var req models.EmbeddingRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "embed-model", req.Model)
				assert.Equal(t, "hello", req.Input)

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.response))
			})

			res, err := ai.Embeddings(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.GetEmbeddings().Float32())
		})
	}
}

func TestEmbeddings_Errors(t *testing.T) {
	ai := newTestAI(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	})

	_, err := ai.Embeddings(context.Background(), "")
	assert.Error(t, err)

	_, err = ai.Embeddings(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestEmbeddings_EmptyResponse(t *testing.T) {
	ai := newTestAI(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})

	_, err := ai.Embeddings(context.Background(), "hello")
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	ai := newTestAI(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req models.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chat-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
			assert.Equal(t, "list tasks", req.Messages[1].Content)
		}

		_, _ = w.Write([]byte(`{"id":"c1","model":"chat-model","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`))
	})

	res, err := ai.Chat(context.Background(), "be brief", "list tasks")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Content())
	assert.Equal(t, "stop", res.Choices[0].FinishReason)

	_, err = ai.Chat(context.Background(), "", "")
	assert.Error(t, err)
}
