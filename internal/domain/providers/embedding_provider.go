package providers

import "context"

// EmbeddingProvider turns text into fixed-dimension vectors. The same provider
// (same Model) must be used to build the index and to embed queries.
type EmbeddingProvider interface {
	// Model identifies the embedding model; it is part of the index cache key
	Model() string

	// Dimension is the length of every returned vector
	Dimension() int

	// Embed returns one L2-normalised vector per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
