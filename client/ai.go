package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/andrejsstepanovs/supadiag/config"
	"github.com/andrejsstepanovs/supadiag/models"
)

// AI talks to an OpenAI-compatible (or Ollama) embeddings and chat API.
type AI struct {
	provider       string
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	timeout        time.Duration
	retry          bool
}

// NewAI builds a client from configuration. Call config.RequireAI first.
func NewAI(cfg config.AIConfig) *AI {
	return &AI{
		provider:       cfg.Provider,
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		timeout:        cfg.Timeout,
		retry:          cfg.Retry,
	}
}

func (a *AI) client() fastshot.ClientHttpMethods {
	c := fastshot.NewClient(a.baseURL)
	if a.apiKey != "" {
		c.Auth().BearerToken(a.apiKey)
	}

	timeout := a.timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return c.Config().SetTimeout(timeout).
		Config().SetFollowRedirects(true).
		Header().Add("Content-Type", "application/json").
		Build()
}

// EmbeddingModel is the model used by Embeddings.
func (a *AI) EmbeddingModel() string {
	return a.embeddingModel
}

// Embeddings retrieves a text embedding for inputText.
func (a *AI) Embeddings(ctx context.Context, inputText string) (models.EmbeddingResponse, error) {
	if inputText == "" {
		return models.EmbeddingResponse{}, fmt.Errorf("inputText cannot be empty")
	}

	req := models.EmbeddingRequest{
		Model: a.embeddingModel,
		Input: inputText,
	}

	var path string
	switch a.provider {
	case "openai", "litellm":
		path = "/v1/embeddings"
	case "ollama":
		path = "/api/embed"
	default:
		return models.EmbeddingResponse{}, fmt.Errorf("unsupported provider: %s", a.provider)
	}

	var res models.EmbeddingResponse
	if err := a.post(ctx, path, req, &res); err != nil {
		return models.EmbeddingResponse{}, err
	}
	if res.GetEmbeddings() == nil {
		return models.EmbeddingResponse{}, errors.New("response contained no embedding")
	}

	return res, nil
}

// Chat sends a single-turn chat completion. system may be empty.
func (a *AI) Chat(ctx context.Context, system, prompt string) (models.ChatResponse, error) {
	if prompt == "" {
		return models.ChatResponse{}, fmt.Errorf("prompt cannot be empty")
	}

	req := models.ChatRequest{Model: a.chatModel}
	if system != "" {
		req.Messages = append(req.Messages, models.ChatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, models.ChatMessage{Role: "user", Content: prompt})

	var res models.ChatResponse
	if err := a.post(ctx, "/v1/chat/completions", req, &res); err != nil {
		return models.ChatResponse{}, err
	}

	return res, nil
}

func (a *AI) post(ctx context.Context, path string, body any, result any) error {
	builder := a.client().
		POST(path).
		Context().Set(ctx).
		Header().Add("Accept", "application/json")
	if a.retry {
		builder = builder.Retry().SetExponentialBackoff(time.Second*2, 3, 2.0)
	}

	resp, err := builder.Body().AsJSON(body).Send()
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body().Close()

	return parseHTTPResponse(*resp, result)
}

func parseHTTPResponse[T any](resp fastshot.Response, result T) error {
	if resp.Status().IsError() {
		msg, err := resp.Body().AsString()
		if err != nil {
			return fmt.Errorf("failed to read error response: %w", err)
		}
		return errors.New(msg)
	}

	err := resp.Body().AsJSON(result)
	if err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
