// Package recall implements the read-side retrieval operations: structured
// filters over a single tier and lexical search with per-tier sort keys.
package recall

import (
	"fmt"
	"sort"
	"strings"

	"github.com/daverage/strata/internal/memory"
)

// metaTags is the conventional metadata key for free-form item tags.
const metaTags = "tags"

// SortKey names the field Search ranks by. Keys that do not apply to an
// item's tier read as zero.
type SortKey string

const (
	SortByAttention      SortKey = "attention"
	SortByImportance     SortKey = "importance"
	SortByConfidence     SortKey = "confidence"
	SortBySuccessRate    SortKey = "successRate"
	SortByExecutionCount SortKey = "executionCount"
	SortByTimestamp      SortKey = "timestamp"
)

// defaultSortKeys maps each tier to its native salience field.
var defaultSortKeys = map[memory.Tier]SortKey{
	memory.Working:    SortByAttention,
	memory.Episodic:   SortByImportance,
	memory.Semantic:   SortByConfidence,
	memory.Procedural: SortBySuccessRate,
}

// Engine answers retrieval queries against one memory engine. It holds no
// state of its own; every call reads a fresh snapshot.
type Engine struct {
	mem *memory.Engine
}

// NewEngine creates a retrieval engine over the given memory engine.
func NewEngine(mem *memory.Engine) *Engine {
	return &Engine{mem: mem}
}

// Options specifies one Search call.
type Options struct {
	Tier    memory.Tier
	Query   string
	Limit   int // 0 means unlimited
	SortKey SortKey
}

// Search returns up to Limit items from the tier, ordered descending by the
// sort key. A non-empty query first narrows the tier to items whose content
// or tags contain every query word. Ties order by timestamp descending, then
// ID, so results are stable across calls.
func (e *Engine) Search(opts Options) ([]*memory.Item, error) {
	if !opts.Tier.IsValid() {
		return nil, fmt.Errorf("search: unknown tier %q", opts.Tier)
	}
	key := opts.SortKey
	if key == "" {
		key = defaultSortKeys[opts.Tier]
	}
	switch key {
	case SortByAttention, SortByImportance, SortByConfidence,
		SortBySuccessRate, SortByExecutionCount, SortByTimestamp:
	default:
		return nil, fmt.Errorf("search: unknown sort key %q", key)
	}

	items := e.mem.GetAllByTier(opts.Tier)
	if query := strings.TrimSpace(opts.Query); query != "" {
		words := strings.Fields(strings.ToLower(query))
		filtered := make([]*memory.Item, 0, len(items))
		for _, it := range items {
			if containsAll(searchText(it), words) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	sortItems(items, key)
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// ByParticipant returns episodic items that list the participant exactly.
func (e *Engine) ByParticipant(participant string) []*memory.Item {
	out := make([]*memory.Item, 0)
	for _, it := range e.mem.GetAllByTier(memory.Episodic) {
		if it.Episodic == nil {
			continue
		}
		for _, p := range it.Episodic.Participants {
			if p == participant {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// ByCategory returns semantic items in the category.
func (e *Engine) ByCategory(category string) []*memory.Item {
	out := make([]*memory.Item, 0)
	for _, it := range e.mem.GetAllByTier(memory.Semantic) {
		if it.Semantic != nil && it.Semantic.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// ByPrerequisite returns procedural items that require the named skill.
func (e *Engine) ByPrerequisite(skillName string) []*memory.Item {
	out := make([]*memory.Item, 0)
	for _, it := range e.mem.GetAllByTier(memory.Procedural) {
		if it.Procedural == nil {
			continue
		}
		for _, p := range it.Procedural.Prerequisites {
			if p == skillName {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// Scored pairs an item with its relevance to a query.
type Scored struct {
	Item  *memory.Item
	Score float64
}

// RankByRelevance orders items by lexical overlap with the query: content
// hits weigh double tag hits, normalized by query length so long queries do
// not inflate scores. Items with no overlap are dropped. This is the
// degraded path semantic search falls back to when embeddings are
// unavailable.
func RankByRelevance(items []*memory.Item, query string, limit int) []Scored {
	words := strings.Fields(strings.ToLower(query))
	scored := make([]Scored, 0, len(items))
	for _, it := range items {
		if s := relevanceScore(it, words); s > 0 {
			scored = append(scored, Scored{Item: it, Score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Item.Timestamp.Equal(scored[j].Item.Timestamp) {
			return scored[i].Item.Timestamp.After(scored[j].Item.Timestamp)
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func relevanceScore(it *memory.Item, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	content := strings.ToLower(it.Content)
	tags := strings.ToLower(strings.Join(itemTags(it), " "))

	score := 0.0
	for _, word := range words {
		if strings.Contains(content, word) {
			score += 2.0
		}
		if tags != "" && strings.Contains(tags, word) {
			score += 1.0
		}
	}
	return score / float64(len(words))
}

func sortItems(items []*memory.Item, key SortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		if key != SortByTimestamp {
			vi, vj := sortValue(items[i], key), sortValue(items[j], key)
			if vi != vj {
				return vi > vj
			}
		}
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
}

func sortValue(it *memory.Item, key SortKey) float64 {
	switch key {
	case SortByAttention:
		if it.Working != nil {
			return it.Working.Attention
		}
	case SortByImportance:
		if it.Episodic != nil {
			return it.Episodic.Importance
		}
	case SortByConfidence:
		if it.Semantic != nil {
			return it.Semantic.Confidence
		}
	case SortBySuccessRate:
		if it.Procedural != nil {
			return it.Procedural.SuccessRate
		}
	case SortByExecutionCount:
		if it.Procedural != nil {
			return float64(it.Procedural.ExecutionCount)
		}
	}
	return 0
}

func searchText(it *memory.Item) string {
	parts := []string{strings.ToLower(it.Content)}
	if tags := itemTags(it); len(tags) > 0 {
		parts = append(parts, strings.ToLower(strings.Join(tags, " ")))
	}
	return strings.Join(parts, " ")
}

func containsAll(text string, words []string) bool {
	for _, word := range words {
		if !strings.Contains(text, word) {
			return false
		}
	}
	return true
}

func itemTags(it *memory.Item) []string {
	switch tags := it.Metadata[metaTags].(type) {
	case []string:
		return tags
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{tags}
	default:
		return nil
	}
}
