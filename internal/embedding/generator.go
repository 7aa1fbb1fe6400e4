// Package embedding provides text embedding generation backed by a local
// Ollama instance, with circuit breaker protection and request rate limiting.
package embedding

import "context"

// Generator converts text into a dense embedding vector.
type Generator interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}
