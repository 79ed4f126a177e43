package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultHashDimensions = 384

// HashProvider derives a deterministic pseudo-random unit vector from the
// FNV-1a hash of the input. Identical text always embeds to the identical
// vector, which is what tests and offline mode need; it carries no real
// semantic signal.
type HashProvider struct {
	dims int
}

// NewHashProvider returns a deterministic provider. A non-positive dims
// falls back to 384.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashProvider{dims: dims}
}

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(vec), nil
}

func (p *HashProvider) Dimensions() int { return p.dims }

func (p *HashProvider) Name() string { return "hash" }
