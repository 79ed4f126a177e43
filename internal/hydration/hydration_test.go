package hydration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/semantic"
)

func newTestStack(t *testing.T, minExec int, provider embedding.Provider) (*memory.Engine, *Assembler) {
	t.Helper()
	eng, err := memory.NewEngine(memory.Options{
		WorkingMemoryLimit:             10,
		EpisodicRetentionDays:          30,
		SemanticConsolidationThreshold: 0.8,
		ProceduralMinExecutions:        minExec,
		PromotionThreshold:             3,
	}, provider, nil, nil)
	require.NoError(t, err)
	rec := recall.NewEngine(eng)
	sem := semantic.NewEngine(eng, provider, 0, nil)
	return eng, NewAssembler(eng, rec, sem, 5, nil)
}

func TestAssembleOrdersWorkingByAttention(t *testing.T) {
	eng, asm := newTestStack(t, 3, nil)

	low, err := eng.Store(memory.NewWorking("background hum", 0.2, 0))
	require.NoError(t, err)
	high, err := eng.Store(memory.NewWorking("active incident", 0.9, 0))
	require.NoError(t, err)

	c, err := asm.Assemble(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, "status", c.Query)
	require.Len(t, c.WorkingContext, 2)
	assert.Equal(t, high, c.WorkingContext[0].ID)
	assert.Equal(t, low, c.WorkingContext[1].ID)
}

func TestAssembleBoundsFacts(t *testing.T) {
	eng, asm := newTestStack(t, 3, embedding.NewHashProvider(64))

	for i := 0; i < 8; i++ {
		_, err := eng.Store(memory.NewSemantic(fmt.Sprintf("fact number %d", i), "facts", 0.5, nil))
		require.NoError(t, err)
	}

	c, err := asm.Assemble(context.Background(), "fact number")
	require.NoError(t, err)
	assert.Len(t, c.RelevantFacts, 5) // fact limit
	assert.False(t, c.Degraded)
}

func TestAssembleDegradesWithoutProvider(t *testing.T) {
	eng, asm := newTestStack(t, 3, nil)

	_, err := eng.Store(memory.NewSemantic("kafka consumer lag", "ops", 0.5, nil))
	require.NoError(t, err)

	c, err := asm.Assemble(context.Background(), "kafka")
	require.NoError(t, err)
	assert.True(t, c.Degraded)
	require.Len(t, c.RelevantFacts, 1)
}

func TestAvailableSkillsGating(t *testing.T) {
	eng, asm := newTestStack(t, 3, nil)

	deploy, err := eng.Store(memory.NewProcedural("deploy to production", "deploy", nil, nil))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, eng.RecordExecution(deploy, true, 900))
	}

	// Unpracticed with no prerequisites: not available.
	_, err = eng.Store(memory.NewProcedural("rollback a release", "rollback", nil, nil))
	require.NoError(t, err)

	// Unpracticed but resting entirely on a practiced prerequisite: available.
	canary, err := eng.Store(memory.NewProcedural("canary rollout", "canary", nil, []string{"deploy"}))
	require.NoError(t, err)

	// One unpracticed prerequisite blocks the skill.
	_, err = eng.Store(memory.NewProcedural("full region migration", "migrate", nil, []string{"deploy", "rollback"}))
	require.NoError(t, err)

	c, err := asm.Assemble(context.Background(), "what can I rely on")
	require.NoError(t, err)
	require.Len(t, c.AvailableSkills, 2)
	assert.Equal(t, deploy, c.AvailableSkills[0].ID) // ranked by success rate
	assert.Equal(t, canary, c.AvailableSkills[1].ID)
}

func TestAvailableSkillsZeroMinimum(t *testing.T) {
	eng, asm := newTestStack(t, 0, nil)

	_, err := eng.Store(memory.NewProcedural("anything at all", "anything", nil, nil))
	require.NoError(t, err)

	c, err := asm.Assemble(context.Background(), "skills")
	require.NoError(t, err)
	assert.Len(t, c.AvailableSkills, 1) // zero executions meet a zero minimum
}

func TestFormatSpellsOutEveryField(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := &Context{
		Query: "release readiness",
		WorkingContext: []*memory.Item{{
			ID:        "wm_1",
			Timestamp: ts,
			Tier:      memory.Working,
			Source:    "agent",
			Content:   "ship the release notes",
			Metadata:  map[string]any{"b": "two", "a": 1},
			Working:   &memory.WorkingFields{Attention: 0.8, Decay: 0.1},
		}},
		RelevantFacts: []*memory.Item{{
			ID:        "sm_1",
			Timestamp: ts,
			Tier:      memory.Semantic,
			Content:   "the release train leaves fridays",
			Semantic: &memory.SemanticFields{
				Category:   "process",
				Confidence: 0.9,
				Relations:  []memory.Relation{{Type: "supports", Target: "sm_2"}},
			},
		}},
		AvailableSkills: []*memory.Item{{
			ID:        "pm_1",
			Timestamp: ts,
			Tier:      memory.Procedural,
			Content:   "cut a release",
			Procedural: &memory.ProceduralFields{
				SkillName:            "release",
				Steps:                []string{"tag", "build"},
				Prerequisites:        []string{"tests-green"},
				ExecutionCount:       4,
				SuccessRate:          0.75,
				AverageExecutionTime: 1200,
			},
		}},
	}

	out := Format(c)
	assert.Equal(t, out, Format(c)) // rendering is deterministic

	assert.True(t, strings.HasPrefix(out, "[MEMORY CONTEXT]\nQuery: release readiness\n"))
	assert.True(t, strings.HasSuffix(out, "[END MEMORY CONTEXT]\n"))
	assert.Less(t, strings.Index(out, "[WORKING CONTEXT]"), strings.Index(out, "[RELEVANT FACTS]"))
	assert.Less(t, strings.Index(out, "[RELEVANT FACTS]"), strings.Index(out, "[AVAILABLE SKILLS]"))

	for _, want := range []string{
		"- ID: wm_1",
		"Time: 2026-01-15T10:00:00Z",
		"Source: agent",
		"Content: ship the release notes",
		"Attention: 0.800",
		"Decay: 0.100",
		"Metadata: a=1; b=two", // keys sorted
		"Category: process",
		"Confidence: 0.900",
		"Relations: supports:sm_2",
		"Skill: release",
		"Steps: tag; build",
		"Prerequisites: tests-green",
		"Executions: 4",
		"SuccessRate: 0.750",
		"AvgTimeMs: 1200.000",
	} {
		assert.Contains(t, out, want)
	}
}

func TestFormatEmptySectionsAndNotes(t *testing.T) {
	c := &Context{Query: "anything"}

	out := Format(c)
	assert.Equal(t, 3, strings.Count(out, "(none)"))
	assert.NotContains(t, out, "Note:")

	c.Degraded = true
	out = Format(c)
	assert.Contains(t, out, "Note: ranking degraded to lexical match")
}

func TestFormatBudgetOmitsOverflow(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	item := func(id string) *memory.Item {
		return &memory.Item{
			ID:        id,
			Timestamp: ts,
			Tier:      memory.Working,
			Content:   "a reasonably long working note",
			Working:   &memory.WorkingFields{Attention: 0.5},
		}
	}
	c := &Context{Query: "q", WorkingContext: []*memory.Item{item("wm_1"), item("wm_2")}}

	out := FormatBudget(c, 10)
	assert.Contains(t, out, "(2 items omitted to fit the token budget)")
	assert.NotContains(t, out, "- ID: wm_1")

	// A zero budget means unlimited.
	out = FormatBudget(c, 0)
	assert.Contains(t, out, "- ID: wm_1")
	assert.Contains(t, out, "- ID: wm_2")
	assert.NotContains(t, out, "omitted")
}
