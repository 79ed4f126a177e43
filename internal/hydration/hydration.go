// Package hydration assembles per-query context from the memory tiers and
// renders it into prompt text.
package hydration

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/semantic"
	"github.com/daverage/strata/internal/tokens"
)

// DefaultFactLimit bounds how many semantic facts one context pulls in.
const DefaultFactLimit = 5

// Assembler builds prompt context for an agent turn.
type Assembler struct {
	mem       *memory.Engine
	recall    *recall.Engine
	semantic  *semantic.Engine
	factLimit int
	logger    *zap.Logger
}

// NewAssembler wires an assembler over the three engines. factLimit bounds
// the relevant-facts section; values below 1 fall back to DefaultFactLimit.
func NewAssembler(mem *memory.Engine, rec *recall.Engine, sem *semantic.Engine, factLimit int, logger *zap.Logger) *Assembler {
	if factLimit < 1 {
		factLimit = DefaultFactLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{mem: mem, recall: rec, semantic: sem, factLimit: factLimit, logger: logger}
}

// Context is the structured context handed to prompt assembly.
type Context struct {
	Query           string         `json:"query"`
	WorkingContext  []*memory.Item `json:"workingContext"`
	RelevantFacts   []*memory.Item `json:"relevantFacts"`
	AvailableSkills []*memory.Item `json:"availableSkills"`
	Degraded        bool           `json:"degraded,omitempty"`
}

// Assemble gathers the three context sections: every working item by
// attention descending, the semantically closest facts, and the skills the
// agent can currently rely on. Degraded reports that fact ranking fell back
// to lexical matching.
func (a *Assembler) Assemble(ctx context.Context, query string) (*Context, error) {
	working, err := a.recall.Search(recall.Options{
		Tier:    memory.Working,
		SortKey: recall.SortByAttention,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble working context: %w", err)
	}

	resp, err := a.semantic.Search(ctx, query, memory.Semantic, a.factLimit)
	if err != nil {
		return nil, fmt.Errorf("assemble relevant facts: %w", err)
	}
	facts := make([]*memory.Item, 0, len(resp.Results))
	for _, r := range resp.Results {
		facts = append(facts, r.Item)
	}
	if resp.Degraded {
		a.logger.Debug("context facts degraded", zap.Error(resp.Reason))
	}

	return &Context{
		Query:           query,
		WorkingContext:  working,
		RelevantFacts:   facts,
		AvailableSkills: a.availableSkills(),
		Degraded:        resp.Degraded,
	}, nil
}

// availableSkills returns procedural items the agent can rely on: practiced
// at least the configured number of times, or resting entirely on practiced
// prerequisites. Skills with no prerequisites qualify only through practice.
// Ranked by success rate descending.
func (a *Assembler) availableSkills() []*memory.Item {
	all := a.mem.GetAllByTier(memory.Procedural)
	minExec := a.mem.Options().ProceduralMinExecutions

	practiced := make(map[string]bool, len(all))
	for _, it := range all {
		if it.Procedural != nil && it.Procedural.ExecutionCount >= minExec {
			practiced[it.Procedural.SkillName] = true
		}
	}

	available := make([]*memory.Item, 0, len(all))
	for _, it := range all {
		if it.Procedural == nil {
			continue
		}
		if it.Procedural.ExecutionCount >= minExec {
			available = append(available, it)
			continue
		}
		if len(it.Procedural.Prerequisites) == 0 {
			continue
		}
		ok := true
		for _, pre := range it.Procedural.Prerequisites {
			if !practiced[pre] {
				ok = false
				break
			}
		}
		if ok {
			available = append(available, it)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		ri, rj := available[i].Procedural.SuccessRate, available[j].Procedural.SuccessRate
		if ri != rj {
			return ri > rj
		}
		if !available[i].Timestamp.Equal(available[j].Timestamp) {
			return available[i].Timestamp.After(available[j].Timestamp)
		}
		return available[i].ID < available[j].ID
	})
	return available
}

// Format renders the context as deterministic prompt text: fixed section
// order, every populated field spelled out, nothing omitted.
func Format(c *Context) string {
	return FormatBudget(c, 0)
}

// FormatBudget renders like Format but stops adding item blocks once the
// estimated token budget is spent, noting how many were left out. A budget
// of 0 means unlimited.
func FormatBudget(c *Context, maxTokens int) string {
	var sb strings.Builder
	sb.Grow(1024)

	sb.WriteString("[MEMORY CONTEXT]\nQuery: ")
	sb.WriteString(c.Query)
	sb.WriteString("\n\n")
	used := tokens.Count(sb.String())

	used = writeSection(&sb, "WORKING CONTEXT", "", c.WorkingContext, maxTokens, used)

	factNote := ""
	if c.Degraded {
		factNote = "ranking degraded to lexical match"
	}
	used = writeSection(&sb, "RELEVANT FACTS", factNote, c.RelevantFacts, maxTokens, used)
	writeSection(&sb, "AVAILABLE SKILLS", "", c.AvailableSkills, maxTokens, used)

	sb.WriteString("[END MEMORY CONTEXT]\n")
	return sb.String()
}

func writeSection(sb *strings.Builder, name, note string, items []*memory.Item, maxTokens, used int) int {
	sb.WriteString("[" + name + "]\n")
	if note != "" {
		sb.WriteString("Note: " + note + "\n")
	}
	if len(items) == 0 {
		sb.WriteString("(none)\n")
	}
	omitted := 0
	for _, it := range items {
		block := renderItem(it)
		cost := tokens.Count(block)
		if maxTokens > 0 && used+cost > maxTokens {
			omitted++
			continue
		}
		sb.WriteString(block)
		used += cost
	}
	if omitted > 0 {
		sb.WriteString(fmt.Sprintf("(%d items omitted to fit the token budget)\n", omitted))
	}
	sb.WriteString("[END " + name + "]\n\n")
	return used
}

// renderItem spells out every populated field of one item, one line each.
// Field order is fixed and metadata keys are sorted so output is stable.
func renderItem(it *memory.Item) string {
	var sb strings.Builder
	sb.WriteString("- ID: " + it.ID + "\n")
	sb.WriteString("  Time: " + it.Timestamp.UTC().Format(time.RFC3339Nano) + "\n")
	if it.Source != "" {
		sb.WriteString("  Source: " + it.Source + "\n")
	}
	sb.WriteString("  Content: " + it.Content + "\n")

	switch {
	case it.Working != nil:
		sb.WriteString("  Attention: " + formatFloat(it.Working.Attention) + "\n")
		sb.WriteString("  Decay: " + formatFloat(it.Working.Decay) + "\n")
	case it.Episodic != nil:
		sb.WriteString("  Event: " + it.Episodic.EventType + "\n")
		if len(it.Episodic.Participants) > 0 {
			sb.WriteString("  Participants: " + strings.Join(it.Episodic.Participants, ", ") + "\n")
		}
		sb.WriteString("  Valence: " + formatFloat(it.Episodic.EmotionalValence) + "\n")
		sb.WriteString("  Importance: " + formatFloat(it.Episodic.Importance) + "\n")
	case it.Semantic != nil:
		sb.WriteString("  Category: " + it.Semantic.Category + "\n")
		sb.WriteString("  Confidence: " + formatFloat(it.Semantic.Confidence) + "\n")
		if len(it.Semantic.Relations) > 0 {
			parts := make([]string, 0, len(it.Semantic.Relations))
			for _, r := range it.Semantic.Relations {
				parts = append(parts, r.Type+":"+r.Target)
			}
			sb.WriteString("  Relations: " + strings.Join(parts, ", ") + "\n")
		}
	case it.Procedural != nil:
		sb.WriteString("  Skill: " + it.Procedural.SkillName + "\n")
		if len(it.Procedural.Steps) > 0 {
			sb.WriteString("  Steps: " + strings.Join(it.Procedural.Steps, "; ") + "\n")
		}
		if len(it.Procedural.Prerequisites) > 0 {
			sb.WriteString("  Prerequisites: " + strings.Join(it.Procedural.Prerequisites, ", ") + "\n")
		}
		sb.WriteString("  Executions: " + strconv.Itoa(it.Procedural.ExecutionCount) + "\n")
		sb.WriteString("  SuccessRate: " + formatFloat(it.Procedural.SuccessRate) + "\n")
		sb.WriteString("  AvgTimeMs: " + formatFloat(it.Procedural.AverageExecutionTime) + "\n")
	}

	if len(it.Metadata) > 0 {
		keys := make([]string, 0, len(it.Metadata))
		for k := range it.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, it.Metadata[k]))
		}
		sb.WriteString("  Metadata: " + strings.Join(parts, "; ") + "\n")
	}
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
