package model

import (
	"context"
	"fmt"
	"math"
	"os"
)

// Embedder turns text into a dense vector. Implementations stamp the
// collection with Name() so queries embedded with a different model are
// rejected instead of producing silently meaningless distances.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
	Dimensions() int
}

// NewEmbedderFromEnv picks the embedding provider from EMBEDDING_PROVIDER
// ("ollama" or "gemini", defaulting to ollama).
func NewEmbedderFromEnv() (Embedder, error) {
	provider := os.Getenv("EMBEDDING_PROVIDER")
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "ollama":
		url := os.Getenv("OLLAMA_EMBEDDING_URL")
		model := os.Getenv("OLLAMA_EMBEDDING_MODEL")
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(url, model), nil
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini embedding provider")
		}
		model := os.Getenv("GEMINI_EMBEDDING_MODEL")
		if model == "" {
			model = "text-embedding-004"
		}
		return NewGeminiEmbedder(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// Normalize scales vec to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
