package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Embedding []float64

// UnmarshalJSON accepts a JSON array or a string holding one. pgvector columns
// come back from the REST layer as "[0.1,0.2,...]".
func (e *Embedding) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*e = nil
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode vector string: %w", err)
		}
		trimmed = raw
	}

	var values []float64
	if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
		return fmt.Errorf("failed to decode vector: %w", err)
	}
	*e = values
	return nil
}

type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding Embedding `json:"embedding"`
	Index     int       `json:"index"`
}

type EmbeddingResponse struct {
	Object     string          `json:"object"`
	Embeddings []Embedding     `json:"embeddings"` // ollama response
	Data       []EmbeddingData `json:"data"`       // openai / litellm response
	Model      string          `json:"model"`
	Usage      EmbeddingUsage  `json:"usage"`
}

func (er EmbeddingResponse) GetEmbeddings() *Embedding {
	if len(er.Embeddings) > 0 {
		return &er.Embeddings[0]
	}
	if len(er.Data) > 0 {
		return &er.Data[0].Embedding
	}
	return nil
}

func (e *Embedding) Float32() []float32 {
	if e == nil {
		return nil
	}
	float32s := make([]float32, len(*e))
	for i, v := range *e {
		float32s[i] = float32(v)
	}
	return float32s
}

type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}
