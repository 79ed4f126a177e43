package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/events"
)

// PromotedEventType tags episodic items minted by promotion.
const PromotedEventType = "promoted"

// MetaPromotedFrom records the working-item ID a promoted episodic item came
// from. MetaMergedFrom records the two semantic IDs a merged item replaced.
const (
	MetaPromotedFrom = "promotedFrom"
	MetaMergedFrom   = "mergedFrom"
	MetaParticipants = "participants"
)

// mergeSemanticWeight balances embedding similarity against lexical overlap
// when both are available: score = (1−w)·jaccard + w·cosine.
const mergeSemanticWeight = 0.5

// ConsolidateResult reports what one maintenance pass did.
type ConsolidateResult struct {
	Promoted int
	Expired  int
}

// Consolidate runs one maintenance pass: episodic items past the retention
// window age out, then every working item reinforced at least
// PromotionThreshold times moves to the episodic tier. Each promotion is
// atomic; no item is ever observable in both tiers.
func (e *Engine) Consolidate() ConsolidateResult {
	now := time.Now()
	var res ConsolidateResult
	var evs []events.Event

	e.mu.Lock()
	if e.opts.EpisodicRetentionDays > 0 {
		cutoff := now.Add(-time.Duration(e.opts.EpisodicRetentionDays) * 24 * time.Hour)
		for _, it := range e.store.byTier(Episodic) {
			if it.Timestamp.Before(cutoff) {
				e.store.remove(it.ID)
				res.Expired++
				evs = append(evs, itemEvent(events.KindExpire, it, fmt.Sprintf("older than %dd", e.opts.EpisodicRetentionDays)))
			}
		}
	}

	for _, it := range e.store.byTier(Working) {
		if it.ReinforcementCount() < e.opts.PromotionThreshold {
			continue
		}
		promoted := e.promoteLocked(it)
		e.store.insert(promoted)
		e.store.remove(it.ID)
		res.Promoted++
		evs = append(evs, itemEvent(events.KindPromote, promoted, "from "+it.ID))
	}
	e.mu.Unlock()

	e.emit(evs)
	e.logger.Info("consolidation pass",
		zap.Int("promoted", res.Promoted),
		zap.Int("expired", res.Expired),
	)
	return res
}

// promoteLocked rewrites a reinforced working item as a fresh episodic item.
// Importance carries the attention the item ended with; participants carry
// over only when the working item collected them in metadata. Caller holds
// the write lock.
func (e *Engine) promoteLocked(it *Item) *Item {
	meta := make(map[string]any, len(it.Metadata)+1)
	for k, v := range it.Metadata {
		meta[k] = v
	}
	meta[MetaPromotedFrom] = it.ID

	importance := 0.0
	if it.Working != nil {
		importance = clamp01(it.Working.Attention)
	}
	return &Item{
		ID:        mintID(Episodic),
		Timestamp: e.nextTimestampLocked(),
		Tier:      Episodic,
		Source:    it.Source,
		Content:   it.Content,
		Metadata:  meta,
		Episodic: &EpisodicFields{
			EventType:    PromotedEventType,
			Participants: stringSlice(it.Metadata[MetaParticipants]),
			Importance:   importance,
		},
	}
}

// MergeRelatedSemantics merges semantic items within one category whose
// combined similarity reaches the configured cutoff. Similarity is Jaccard
// overlap of content tokens, blended with embedding cosine when a provider
// is wired; provider failure silently reverts to the lexical score alone.
// Embeddings are computed before the write lock is taken. Returns the number
// of merges performed; zero is a normal outcome.
func (e *Engine) MergeRelatedSemantics(ctx context.Context, category string) int {
	e.mu.RLock()
	var pool []*Item
	for _, it := range e.store.byTier(Semantic) {
		if it.Semantic != nil && it.Semantic.Category == category {
			pool = append(pool, it.Clone())
		}
	}
	e.mu.RUnlock()

	if len(pool) < 2 {
		return 0
	}
	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].Timestamp.Equal(pool[j].Timestamp) {
			return pool[i].Timestamp.Before(pool[j].Timestamp)
		}
		return pool[i].ID < pool[j].ID
	})

	vecs := e.embedPool(ctx, pool)

	cutoff := e.opts.SemanticConsolidationThreshold
	type mergeStep struct {
		a, b   *Item
		merged *Item
	}
	var plan []mergeStep
	for {
		bestI, bestJ := -1, -1
		bestScore := cutoff
		for i := 0; i < len(pool); i++ {
			for j := i + 1; j < len(pool); j++ {
				s := pairScore(pool[i], pool[j], vecs)
				if s >= bestScore && (bestI < 0 || s > bestScore) {
					bestI, bestJ, bestScore = i, j, s
				}
			}
		}
		if bestI < 0 {
			break
		}
		merged := mergeSemanticPair(pool[bestI], pool[bestJ])
		plan = append(plan, mergeStep{a: pool[bestI], b: pool[bestJ], merged: merged})
		next := make([]*Item, 0, len(pool)-1)
		for idx, it := range pool {
			if idx == bestI || idx == bestJ {
				continue
			}
			next = append(next, it)
		}
		pool = append(next, merged)
	}
	if len(plan) == 0 {
		return 0
	}

	// Apply under one short critical section. A step only lands when both
	// originals still exist; anything that changed since the snapshot is
	// skipped rather than guessed at.
	merged := 0
	var evs []events.Event
	e.mu.Lock()
	for _, step := range plan {
		if _, ok := e.store.get(step.a.ID); !ok {
			continue
		}
		if _, ok := e.store.get(step.b.ID); !ok {
			continue
		}
		e.store.remove(step.a.ID)
		e.store.remove(step.b.ID)
		e.store.insert(step.merged)
		merged++
		evs = append(evs, itemEvent(events.KindMerge, step.merged, fmt.Sprintf("replaced %s and %s", step.a.ID, step.b.ID)))
	}
	e.mu.Unlock()

	e.emit(evs)
	e.logger.Info("semantic merge pass",
		zap.String("category", category),
		zap.Int("merged", merged),
		zap.Float64("cutoff", cutoff),
	)
	return merged
}

// embedPool computes one embedding per distinct content, keyed by content so
// planned merge results resolve to a vector too. On the first provider
// failure it stops and returns what it has; scoring then degrades to the
// lexical component for the missing pairs.
func (e *Engine) embedPool(ctx context.Context, pool []*Item) map[string][]float32 {
	if e.provider == nil {
		return nil
	}
	vecs := make(map[string][]float32, len(pool))
	for _, it := range pool {
		if _, ok := vecs[it.Content]; ok {
			continue
		}
		vec, err := e.provider.Embed(ctx, it.Content)
		if err != nil {
			e.logger.Warn("merge embedding degraded to lexical scoring", zap.Error(err))
			break
		}
		vecs[it.Content] = vec
	}
	return vecs
}

func pairScore(a, b *Item, vecs map[string][]float32) float64 {
	lex := jaccard(tokenSet(a.Content), tokenSet(b.Content))
	va, okA := vecs[a.Content]
	vb, okB := vecs[b.Content]
	if okA && okB {
		cos := embedding.Cosine(va, vb)
		if cos < 0 {
			cos = 0
		}
		return (1-mergeSemanticWeight)*lex + mergeSemanticWeight*cos
	}
	return lex
}

// mergeSemanticPair folds two same-category items into one: relations are
// the set union, confidence the max, and the higher-confidence item supplies
// the surviving content. Merge implies corroboration, so nothing is dropped.
func mergeSemanticPair(a, b *Item) *Item {
	winner, other := a, b
	if b.Semantic.Confidence > a.Semantic.Confidence ||
		(b.Semantic.Confidence == a.Semantic.Confidence && len(b.Content) > len(a.Content)) {
		winner, other = b, a
	}

	relations := append([]Relation(nil), winner.Semantic.Relations...)
	seen := make(map[Relation]struct{}, len(relations))
	for _, r := range relations {
		seen[r] = struct{}{}
	}
	for _, r := range other.Semantic.Relations {
		if _, ok := seen[r]; !ok {
			relations = append(relations, r)
			seen[r] = struct{}{}
		}
	}

	meta := make(map[string]any, len(winner.Metadata)+1)
	for k, v := range winner.Metadata {
		meta[k] = v
	}
	for k, v := range other.Metadata {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	meta[MetaMergedFrom] = []string{a.ID, b.ID}

	ts := a.Timestamp
	if b.Timestamp.Before(ts) {
		ts = b.Timestamp
	}
	confidence := a.Semantic.Confidence
	if b.Semantic.Confidence > confidence {
		confidence = b.Semantic.Confidence
	}

	return &Item{
		ID:        mintID(Semantic),
		Timestamp: ts,
		Tier:      Semantic,
		Source:    winner.Source,
		Content:   winner.Content,
		Metadata:  meta,
		Semantic: &SemanticFields{
			Category:   winner.Semantic.Category,
			Confidence: confidence,
			Relations:  relations,
		},
	}
}

// tokenSet lowercases and splits on non-alphanumeric runes.
func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
