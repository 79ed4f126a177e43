// Package embedding turns text into comparable dense vectors. Providers are
// swappable: a deterministic local provider for tests and offline use, and a
// networked OpenAI-compatible client for production. All vectors produced by
// one provider configuration are comparable; nothing here assumes a fixed
// dimensionality beyond that.
package embedding

import "context"

// Provider converts text into a fixed-length vector. Implementations may
// perform I/O and must honor the context deadline; callers treat failures as
// a degradation signal, not a fatal error.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}
