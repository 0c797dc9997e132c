// Package embeddings defines the core's boundary with an external
// embedding model. The model itself is out of scope (§1 Non-goals): the
// core treats it as an opaque text-to-vector function behind this
// interface.
package embeddings

import "context"

// Service generates vector embeddings for chunk and query text.
type Service interface {
	// Generate creates an embedding for a single text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch creates embeddings for multiple texts efficiently.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in embeddings produced
	// by this service.
	Dimensions() int
}
