package semantic

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverage/strata/internal/memory"
)

// stubProvider returns canned vectors keyed by input text. Unknown texts get
// a fixed default vector; errOn makes one specific text fail.
type stubProvider struct {
	vectors map[string][]float32
	errOn   string
	err     error
	calls   int
}

func (s *stubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.errOn != "" && text == s.errOn {
		return nil, errors.New("embed refused")
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}
func (s *stubProvider) Dimensions() int { return 3 }
func (s *stubProvider) Name() string    { return "stub" }

func newMemEngine(t *testing.T) *memory.Engine {
	t.Helper()
	eng, err := memory.NewEngine(memory.Options{
		WorkingMemoryLimit:             10,
		EpisodicRetentionDays:          30,
		SemanticConsolidationThreshold: 0.8,
		ProceduralMinExecutions:        3,
		PromotionThreshold:             3,
	}, nil, nil, nil)
	require.NoError(t, err)
	return eng
}

func TestSearchRanksByCosine(t *testing.T) {
	eng := newMemEngine(t)

	catID, err := eng.Store(memory.NewSemantic("the cat sat on the mat", "animals", 0.5, nil))
	require.NoError(t, err)
	taxID, err := eng.Store(memory.NewSemantic("tax law changed in april", "finance", 0.5, nil))
	require.NoError(t, err)

	provider := &stubProvider{vectors: map[string][]float32{
		"feline friend":            {1, 0, 0},
		"the cat sat on the mat":   {0.9, 0.1, 0},
		"tax law changed in april": {0, 1, 0},
	}}
	s := NewEngine(eng, provider, 0, nil)

	resp, err := s.Search(context.Background(), "feline friend", memory.Semantic, 10)
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, catID, resp.Results[0].Item.ID)
	assert.Equal(t, taxID, resp.Results[1].Item.ID)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestSearchEmptyQuery(t *testing.T) {
	provider := &stubProvider{}
	s := NewEngine(newMemEngine(t), provider, 0, nil)

	resp, err := s.Search(context.Background(), "", memory.Semantic, 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 0, provider.calls) // nothing to embed
}

func TestSearchRejectsUnknownTier(t *testing.T) {
	s := NewEngine(newMemEngine(t), &stubProvider{}, 0, nil)

	_, err := s.Search(context.Background(), "anything", memory.Tier("bogus"), 5)
	assert.Error(t, err)
}

func TestSearchDegradesOnProviderError(t *testing.T) {
	eng := newMemEngine(t)
	_, err := eng.Store(memory.NewSemantic("kafka consumer lag", "ops", 0.5, nil))
	require.NoError(t, err)
	_, err = eng.Store(memory.NewSemantic("dns ttl too low", "ops", 0.5, nil))
	require.NoError(t, err)

	s := NewEngine(eng, &stubProvider{err: errors.New("rate limited")}, 0, nil)

	resp, err := s.Search(context.Background(), "kafka", memory.Semantic, 5)
	require.NoError(t, err) // degradation is a diagnostic, never an error
	assert.True(t, resp.Degraded)
	assert.ErrorIs(t, resp.Reason, ErrProviderDegraded)
	require.Len(t, resp.Results, 1) // lexical fallback still matches on content
	assert.Equal(t, "kafka consumer lag", resp.Results[0].Item.Content)
}

func TestSearchDegradesMidPass(t *testing.T) {
	eng := newMemEngine(t)
	_, err := eng.Store(memory.NewSemantic("first release fact", "releases", 0.5, nil))
	require.NoError(t, err)
	_, err = eng.Store(memory.NewSemantic("second fact about releases", "releases", 0.5, nil))
	require.NoError(t, err)

	// The query and the first item embed fine; the second item fails, which
	// abandons the whole semantic pass rather than mixing score kinds.
	s := NewEngine(eng, &stubProvider{errOn: "second fact about releases"}, 0, nil)

	resp, err := s.Search(context.Background(), "release", memory.Semantic, 5)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.ErrorIs(t, resp.Reason, ErrProviderDegraded)
	assert.Len(t, resp.Results, 2)
}

func TestSearchNilProviderFallsBack(t *testing.T) {
	eng := newMemEngine(t)
	_, err := eng.Store(memory.NewSemantic("kafka consumer lag", "ops", 0.5, nil))
	require.NoError(t, err)

	s := NewEngine(eng, nil, 0, nil)

	resp, err := s.Search(context.Background(), "kafka", memory.Semantic, 5)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.ErrorIs(t, resp.Reason, ErrProviderDegraded)
	require.Len(t, resp.Results, 1)
}

func TestSearchLimitAndTies(t *testing.T) {
	eng := newMemEngine(t)
	var ids []string
	for i := 0; i < 4; i++ {
		id, err := eng.Store(memory.NewSemantic(fmt.Sprintf("note %d", i), "notes", 0.5, nil))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Every text embeds to the stub's default vector, so all scores tie at 1
	// and ordering falls to timestamp, newest first.
	s := NewEngine(eng, &stubProvider{}, 0, nil)

	resp, err := s.Search(context.Background(), "note", memory.Semantic, 2)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.Equal(t, ids[3], resp.Results[0].Item.ID)
	assert.Equal(t, ids[2], resp.Results[1].Item.ID)
}
