// Package embeddings turns atom and source text into vectors. Providers are
// selected by environment so the rest of the pipeline never knows which
// backend is in play; a nil provider means embedding is disabled and every
// write stays CMS-only.
package embeddings

import (
	"context"
	"os"
	"strings"
)

// Provider is an embeddings backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name returns the provider name (e.g. "openai", "voyageai").
	Name() string
	// Dimensions returns the embedding dimensionality this provider produces.
	Dimensions() int
	// Embed returns one embedding per input string, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NewFromEnv constructs a provider from EMBEDDINGS_PROVIDER: "openai",
// "voyageai", "ollama", or empty/unknown for disabled (nil).
func NewFromEnv() Provider {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("EMBEDDINGS_PROVIDER"))) {
	case "openai":
		return newOpenAIFromEnv()
	case "voyageai", "voyage":
		return newVoyageFromEnv()
	case "ollama":
		return newOllamaFromEnv()
	default:
		return nil
	}
}
