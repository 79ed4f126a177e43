// Package analytics summarizes engine state for operators.
package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/daverage/strata/internal/memory"
)

// Reporter computes statistics over one memory engine.
type Reporter struct {
	mem *memory.Engine
}

// NewReporter creates a stats reporter for the engine.
func NewReporter(mem *memory.Engine) *Reporter {
	return &Reporter{mem: mem}
}

// Stats is a point-in-time summary across all tiers.
type Stats struct {
	Total       int             `json:"total"`
	Working     WorkingStats    `json:"working"`
	Episodic    EpisodicStats   `json:"episodic"`
	Semantic    SemanticStats   `json:"semantic"`
	Procedural  ProceduralStats `json:"procedural"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// WorkingStats aggregates the working tier.
type WorkingStats struct {
	Count           int     `json:"count"`
	Capacity        int     `json:"capacity"`
	AvgAttention    float64 `json:"avgAttention"`
	ReinforcedItems int     `json:"reinforcedItems"`
}

// EpisodicStats aggregates the episodic tier.
type EpisodicStats struct {
	Count         int     `json:"count"`
	AvgImportance float64 `json:"avgImportance"`
	Promoted      int     `json:"promoted"`
}

// SemanticStats aggregates the semantic tier.
type SemanticStats struct {
	Count         int            `json:"count"`
	AvgConfidence float64        `json:"avgConfidence"`
	Categories    map[string]int `json:"categories"`
}

// ProceduralStats aggregates the procedural tier. TopSkill names the
// highest-success-rate skill, ties broken by execution count.
type ProceduralStats struct {
	Count           int     `json:"count"`
	TotalExecutions int     `json:"totalExecutions"`
	AvgSuccessRate  float64 `json:"avgSuccessRate"`
	TopSkill        string  `json:"topSkill,omitempty"`
}

// Snapshot walks every tier once and returns the aggregates.
func (r *Reporter) Snapshot() *Stats {
	stats := &Stats{
		GeneratedAt: time.Now().UTC(),
	}
	stats.Working.Capacity = r.mem.Options().WorkingMemoryLimit
	stats.Semantic.Categories = make(map[string]int)

	for _, it := range r.mem.GetAllByTier(memory.Working) {
		stats.Working.Count++
		if it.Working != nil {
			stats.Working.AvgAttention += it.Working.Attention
		}
		if it.ReinforcementCount() > 0 {
			stats.Working.ReinforcedItems++
		}
	}
	if stats.Working.Count > 0 {
		stats.Working.AvgAttention /= float64(stats.Working.Count)
	}

	for _, it := range r.mem.GetAllByTier(memory.Episodic) {
		stats.Episodic.Count++
		if it.Episodic != nil {
			stats.Episodic.AvgImportance += it.Episodic.Importance
			if it.Episodic.EventType == memory.PromotedEventType {
				stats.Episodic.Promoted++
			}
		}
	}
	if stats.Episodic.Count > 0 {
		stats.Episodic.AvgImportance /= float64(stats.Episodic.Count)
	}

	for _, it := range r.mem.GetAllByTier(memory.Semantic) {
		stats.Semantic.Count++
		if it.Semantic != nil {
			stats.Semantic.AvgConfidence += it.Semantic.Confidence
			stats.Semantic.Categories[it.Semantic.Category]++
		}
	}
	if stats.Semantic.Count > 0 {
		stats.Semantic.AvgConfidence /= float64(stats.Semantic.Count)
	}

	var bestRate float64
	var bestRuns int
	for _, it := range r.mem.GetAllByTier(memory.Procedural) {
		stats.Procedural.Count++
		if it.Procedural == nil {
			continue
		}
		f := it.Procedural
		stats.Procedural.TotalExecutions += f.ExecutionCount
		stats.Procedural.AvgSuccessRate += f.SuccessRate
		if stats.Procedural.TopSkill == "" || f.SuccessRate > bestRate ||
			(f.SuccessRate == bestRate && f.ExecutionCount > bestRuns) {
			stats.Procedural.TopSkill = f.SkillName
			bestRate = f.SuccessRate
			bestRuns = f.ExecutionCount
		}
	}
	if stats.Procedural.Count > 0 {
		stats.Procedural.AvgSuccessRate /= float64(stats.Procedural.Count)
	}

	stats.Total = stats.Working.Count + stats.Episodic.Count +
		stats.Semantic.Count + stats.Procedural.Count
	return stats
}

// VisualizeTiers renders one text bar per tier, scaled against the largest
// tier, for terminal display.
func (s *Stats) VisualizeTiers(width int) []string {
	counts := []struct {
		name  string
		count int
	}{
		{string(memory.Working), s.Working.Count},
		{string(memory.Episodic), s.Episodic.Count},
		{string(memory.Semantic), s.Semantic.Count},
		{string(memory.Procedural), s.Procedural.Count},
	}

	most := 0
	for _, c := range counts {
		if c.count > most {
			most = c.count
		}
	}

	lines := make([]string, 0, len(counts))
	for _, c := range counts {
		filled := 0
		if most > 0 {
			filled = int(float64(c.count) / float64(most) * float64(width))
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%-12s [", c.name))
		for i := 0; i < filled; i++ {
			sb.WriteString("█")
		}
		for i := filled; i < width; i++ {
			sb.WriteString("░")
		}
		sb.WriteString(fmt.Sprintf("] %d", c.count))
		lines = append(lines, sb.String())
	}
	return lines
}
