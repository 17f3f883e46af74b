package out

import (
	"context"
	"time"
)

// AIProvider is an OpenAI-compatible embeddings and completion endpoint.
type AIProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Complete returns the assistant text for a system and user prompt.
	Complete(ctx context.Context, system, user string) (string, error)
}

// EmbeddingStore is a shared cache for category embeddings.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}
