// Package semantic ranks memories by embedding similarity. A provider
// failure or timeout degrades the call to lexical relevance instead of
// failing it; callers see that only through the response diagnostic.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
)

// ErrProviderDegraded tags the diagnostic carried on degraded responses.
// Search never returns it as an error; inspect Response.Reason.
var ErrProviderDegraded = errors.New("embedding provider degraded")

// Engine performs similarity search over one memory engine. Embeddings are
// computed against a snapshot, never while the memory engine's lock is held.
type Engine struct {
	mem      *memory.Engine
	provider embedding.Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewEngine creates a semantic search engine. A zero timeout disables the
// per-call deadline; a nil provider makes every call take the lexical path.
func NewEngine(mem *memory.Engine, provider embedding.Provider, timeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{mem: mem, provider: provider, timeout: timeout, logger: logger}
}

// Result pairs an item with its similarity to the query.
type Result struct {
	Item  *memory.Item
	Score float64
}

// Response carries ranked results plus the degradation diagnostic. Degraded
// means the scores came from lexical overlap, not embeddings; Reason then
// wraps ErrProviderDegraded with the underlying cause.
type Response struct {
	Results  []Result
	Degraded bool
	Reason   error
}

// Search embeds the query and ranks the tier's items by cosine similarity,
// descending, returning at most limit results. Ties order by timestamp
// descending. An empty query returns an empty response.
func (s *Engine) Search(ctx context.Context, query string, tier memory.Tier, limit int) (*Response, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("semantic search: unknown tier %q", tier)
	}
	if query == "" {
		return &Response{Results: []Result{}}, nil
	}

	items := s.mem.GetAllByTier(tier)
	if s.provider == nil {
		return s.fallback(items, query, limit, errors.New("no provider configured")), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return s.fallback(items, query, limit, err), nil
	}

	results := make([]Result, 0, len(items))
	for _, it := range items {
		vec, err := s.provider.Embed(ctx, it.Content)
		if err != nil {
			// One miss abandons the semantic pass; mixing embedding and
			// lexical scores in a single ranking would not be comparable.
			return s.fallback(items, query, limit, err), nil
		}
		results = append(results, Result{Item: it, Score: embedding.Cosine(queryVec, vec)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Item.Timestamp.Equal(results[j].Item.Timestamp) {
			return results[i].Item.Timestamp.After(results[j].Item.Timestamp)
		}
		return results[i].Item.ID < results[j].Item.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return &Response{Results: results}, nil
}

func (s *Engine) fallback(items []*memory.Item, query string, limit int, cause error) *Response {
	s.logger.Warn("semantic search degraded to lexical",
		zap.Error(cause),
		zap.String("query", query),
	)
	scored := recall.RankByRelevance(items, query, limit)
	results := make([]Result, 0, len(scored))
	for _, sc := range scored {
		results = append(results, Result{Item: sc.Item, Score: sc.Score})
	}
	return &Response{
		Results:  results,
		Degraded: true,
		Reason:   fmt.Errorf("%w: %v", ErrProviderDegraded, cause),
	}
}
