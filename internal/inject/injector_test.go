package inject

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverage/strata/internal/hydration"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/semantic"
)

func newTestInjector(t *testing.T, maxTokens int) (*memory.Engine, *Injector) {
	t.Helper()
	eng, err := memory.NewEngine(memory.Options{
		WorkingMemoryLimit:             10,
		EpisodicRetentionDays:          30,
		SemanticConsolidationThreshold: 0.8,
		ProceduralMinExecutions:        3,
		PromotionThreshold:             3,
	}, nil, nil, nil)
	require.NoError(t, err)
	rec := recall.NewEngine(eng)
	sem := semantic.NewEngine(eng, nil, 0, nil)
	asm := hydration.NewAssembler(eng, rec, sem, 5, nil)
	return eng, NewInjector(asm, maxTokens)
}

func TestInjectEmptyMemoryLeavesPromptAlone(t *testing.T) {
	_, inj := newTestInjector(t, 0)

	out, err := inj.Inject(context.Background(), "plan my day")
	require.NoError(t, err)
	assert.Equal(t, "plan my day", out)
}

func TestInjectPrependsContext(t *testing.T) {
	eng, inj := newTestInjector(t, 0)

	_, err := eng.Store(memory.NewWorking("deadline moved to thursday", 0.9, 0))
	require.NoError(t, err)

	out, err := inj.Inject(context.Background(), "plan my day")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\nplan my day"))
	assert.Contains(t, out, "[MEMORY CONTEXT]")
	assert.Contains(t, out, "deadline moved to thursday")
}

func TestInjectHonorsTokenBudget(t *testing.T) {
	eng, inj := newTestInjector(t, 12)

	_, err := eng.Store(memory.NewWorking("an item far larger than the tiny budget allows for", 0.9, 0))
	require.NoError(t, err)

	out, err := inj.Inject(context.Background(), "plan my day")
	require.NoError(t, err)
	assert.Contains(t, out, "omitted to fit the token budget")
	assert.True(t, strings.HasSuffix(out, "\nplan my day"))
}
