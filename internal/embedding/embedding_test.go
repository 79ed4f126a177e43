package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps canned behavior so cache tests can observe misses.
type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}
func (p *countingProvider) Dimensions() int { return 3 }
func (p *countingProvider) Name() string    { return "counting" }

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	first, err := p.Embed(ctx, "the same text")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := p.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	assert.Len(t, first, 64)
	assert.Equal(t, 64, p.Dimensions())

	// Vectors come back unit length.
	var norm float64
	for _, x := range first {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashProviderDefaultsDimensions(t *testing.T) {
	p := NewHashProvider(0)
	assert.Equal(t, 384, p.Dimensions())

	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestHashProviderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashProvider(8).Embed(ctx, "text")
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Length mismatches and zero norms read as no similarity.
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(out[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(out[1]), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
	assert.Empty(t, Normalize(nil))
}

func TestCacheServesRepeats(t *testing.T) {
	base := &countingProvider{}
	c, err := NewCache(base, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "repeated text")
	require.NoError(t, err)
	c.Wait() // cache writes are buffered

	second, err := c.Embed(ctx, "repeated text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.calls) // the repeat came from cache

	_, err = c.Embed(ctx, "fresh text")
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestCacheNeverCachesErrors(t *testing.T) {
	base := &countingProvider{err: errors.New("transient")}
	c, err := NewCache(base, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Embed(ctx, "flaky text")
	assert.Error(t, err)
	c.Wait()

	base.err = nil
	vec, err := c.Embed(ctx, "flaky text")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 2, base.calls) // the failure never became a cache entry
}

func TestCacheRequiresProvider(t *testing.T) {
	_, err := NewCache(nil, 0)
	assert.Error(t, err)
}

func TestCacheDelegatesIdentity(t *testing.T) {
	c, err := NewCache(&countingProvider{}, 0)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 3, c.Dimensions())
	assert.Equal(t, "counting+cache", c.Name())
}
