// Package embedding wraps the embedding capability behind a narrow interface
// so the engine can be exercised without network access. A nil Embedder means
// no capability is configured and callers fall back to weight-based retrieval.
package embedding

import "context"

// Embedder defines the interface contract for embedding generation services.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	EmbedBatch(ctx context.Context, contents []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}
