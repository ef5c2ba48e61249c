// Package embedcap defines the embedding capability the engine consumes
// (spec.md §6.2): a narrow interface mapping text to a unit-norm vector
// plus a model tag, synchronous and batch-capable. Third-party embedding
// providers are out of scope (spec.md §1); this package supplies only the
// interface, a retry helper for implementations to use, and the
// deterministic fake provider required for tests.
package embedcap

import (
	"context"
)

// Result is one embedding: a vector and the model tag that produced it.
type Result struct {
	Vector []float32
	Model  string
}

// Provider maps text to embeddings. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) (Result, error)
	// EmbedBatch embeds multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)
	// ModelTag reports the model identifier this provider stamps on results.
	ModelTag() string
	// Dimensions reports the vector width this provider produces.
	Dimensions() int
}
