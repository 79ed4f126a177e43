package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverage/strata/internal/events"
)

func testOptions() Options {
	return Options{
		WorkingMemoryLimit:             10,
		EpisodicRetentionDays:          30,
		SemanticConsolidationThreshold: 0.8,
		ProceduralMinExecutions:        3,
		PromotionThreshold:             3,
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	eng, err := NewEngine(opts, nil, nil, nil)
	require.NoError(t, err)
	return eng
}

func TestNewEngineValidatesOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero working limit", func(o *Options) { o.WorkingMemoryLimit = 0 }},
		{"negative retention", func(o *Options) { o.EpisodicRetentionDays = -1 }},
		{"threshold below zero", func(o *Options) { o.SemanticConsolidationThreshold = -0.1 }},
		{"threshold above one", func(o *Options) { o.SemanticConsolidationThreshold = 1.1 }},
		{"negative min executions", func(o *Options) { o.ProceduralMinExecutions = -1 }},
		{"zero promotion threshold", func(o *Options) { o.PromotionThreshold = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions()
			tc.mutate(&opts)
			_, err := NewEngine(opts, nil, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewEngine(testOptions(), nil, nil, nil)
	assert.NoError(t, err)
}

func TestStoreAssignsIDAndTimestamp(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	it := NewWorking("the build is green", 0.8, 0.1)
	id, err := eng.Store(it)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "wm_"), "id %q should carry the tier prefix", id)
	assert.Empty(t, it.ID) // the caller's item is never mutated

	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, Working, got.Tier)
}

func TestStoreKeepsCallerIdentity(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	it := NewSemantic("water boils at 100C at sea level", "physics", 0.95, nil)
	it.ID = "sm_preseeded"
	it.Timestamp = ts

	id, err := eng.Store(it)
	require.NoError(t, err)
	assert.Equal(t, "sm_preseeded", id)

	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestStoreRejectsBadInput(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	_, err := eng.Store(nil)
	assert.Error(t, err)

	_, err = eng.Store(&Item{Tier: Tier("imaginary"), Content: "x"})
	assert.Error(t, err)
}

func TestStoreTimestampsStrictlyIncrease(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	var last time.Time
	for i := 0; i < 25; i++ {
		id, err := eng.Store(NewSemantic(fmt.Sprintf("fact %d", i), "ordering", 0.5, nil))
		require.NoError(t, err)
		got, err := eng.Retrieve(id)
		require.NoError(t, err)
		assert.True(t, got.Timestamp.After(last), "store %d must advance the clock", i)
		last = got.Timestamp
	}
}

func TestStoreNormalizesPayload(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	// Out-of-range fields clamp, payloads from other tiers drop.
	id, err := eng.Store(&Item{
		Tier:     Working,
		Content:  "overdriven",
		Working:  &WorkingFields{Attention: 1.7, Decay: -0.2},
		Semantic: &SemanticFields{Category: "leftover"},
	})
	require.NoError(t, err)
	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Working.Attention)
	assert.Equal(t, 0.0, got.Working.Decay)
	assert.Nil(t, got.Semantic)

	// A missing payload struct is created rather than rejected.
	id, err = eng.Store(&Item{Tier: Episodic, Content: "bare event"})
	require.NoError(t, err)
	got, err = eng.Retrieve(id)
	require.NoError(t, err)
	require.NotNil(t, got.Episodic)

	// Valence clamps into [-1, 1].
	id, err = eng.Store(&Item{
		Tier:     Episodic,
		Content:  "rough day",
		Episodic: &EpisodicFields{EventType: "incident", EmotionalValence: -3},
	})
	require.NoError(t, err)
	got, err = eng.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, -1.0, got.Episodic.EmotionalValence)
}

func TestWorkingEvictionDropsLowestAttention(t *testing.T) {
	opts := testOptions()
	opts.WorkingMemoryLimit = 3
	eng := newTestEngine(t, opts)

	var ids []string
	for i, attention := range []float64{0.1, 0.9, 0.3, 0.7, 0.5} {
		id, err := eng.Store(NewWorking(fmt.Sprintf("task %d", i), attention, 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, 3, eng.Count(Working))
	for _, id := range []string{ids[0], ids[2]} { // 0.1 and 0.3 were the weakest
		_, err := eng.Retrieve(id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	for _, id := range []string{ids[1], ids[3], ids[4]} {
		_, err := eng.Retrieve(id)
		assert.NoError(t, err)
	}
}

func TestWorkingEvictionTieGoesToOldest(t *testing.T) {
	opts := testOptions()
	opts.WorkingMemoryLimit = 2
	eng := newTestEngine(t, opts)

	first, err := eng.Store(NewWorking("first in", 0.5, 0))
	require.NoError(t, err)
	second, err := eng.Store(NewWorking("second in", 0.5, 0))
	require.NoError(t, err)
	third, err := eng.Store(NewWorking("third in", 0.5, 0))
	require.NoError(t, err)

	_, err = eng.Retrieve(first)
	assert.ErrorIs(t, err, ErrNotFound) // equal attention, the oldest goes
	_, err = eng.Retrieve(second)
	assert.NoError(t, err)
	_, err = eng.Retrieve(third)
	assert.NoError(t, err)
}

func TestRetrieveReturnsIsolatedCopy(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	id, err := eng.Store(NewSemantic("postgres uses mvcc", "databases", 0.9,
		[]Relation{{Type: "relates_to", Target: "sm_wal"}}))
	require.NoError(t, err)

	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	got.Content = "tampered"
	got.Semantic.Confidence = 0
	got.Semantic.Relations[0].Target = "elsewhere"

	again, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, "postgres uses mvcc", again.Content)
	assert.Equal(t, 0.9, again.Semantic.Confidence)
	assert.Equal(t, "sm_wal", again.Semantic.Relations[0].Target)

	_, err = eng.Retrieve("wm_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAllByTierOldestFirst(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := eng.Store(NewEpisodic(fmt.Sprintf("standup %d", i), "meeting", nil, 0, 0.5))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all := eng.GetAllByTier(Episodic)
	require.Len(t, all, 3)
	for i, it := range all {
		assert.Equal(t, ids[i], it.ID)
	}

	all[0].Content = "tampered"
	fresh := eng.GetAllByTier(Episodic)
	assert.Equal(t, "standup 0", fresh[0].Content) // snapshots never alias engine state

	assert.Empty(t, eng.GetAllByTier(Procedural))
}

func TestRecentByTier(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := eng.Store(NewEpisodic(fmt.Sprintf("event %d", i), "meeting", nil, 0, 0.5))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recent := eng.RecentByTier(Episodic, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[4], recent[0].ID) // newest first
	assert.Equal(t, ids[3], recent[1].ID)
}

func TestClearEmptiesEveryTier(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	_, err := eng.Store(NewWorking("scratch note", 0.5, 0))
	require.NoError(t, err)
	_, err = eng.Store(NewSemantic("a fact", "facts", 0.5, nil))
	require.NoError(t, err)

	eng.Clear()
	for _, tier := range Tiers {
		assert.Equal(t, 0, eng.Count(tier))
	}
}

func TestTickAppliesDecay(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	fading, err := eng.Store(NewWorking("fading thought", 1.0, 0.5))
	require.NoError(t, err)
	durable, err := eng.Store(NewWorking("durable thought", 0.8, 0.0))
	require.NoError(t, err)

	eng.Tick(1)
	got, err := eng.Retrieve(fading)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Working.Attention, 1e-9)
	got, err = eng.Retrieve(durable)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Working.Attention, 1e-9) // zero decay never fades

	eng.Tick(2) // compound: 0.5 * 0.5^2
	got, err = eng.Retrieve(fading)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, got.Working.Attention, 1e-9)

	eng.Tick(0)
	eng.Tick(-4)
	got, err = eng.Retrieve(fading)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, got.Working.Attention, 1e-9) // non-positive steps change nothing
}

func TestReinforce(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	id, err := eng.Store(NewWorking("remember the rollout window", 0.2, 0.1))
	require.NoError(t, err)

	require.NoError(t, eng.Reinforce(id))
	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Working.Attention, 1e-9) // halfway toward 1

	require.NoError(t, eng.Reinforce(id))
	require.NoError(t, eng.Reinforce(id))
	got, err = eng.Retrieve(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Working.Attention, 1e-9)
	assert.Equal(t, 3, got.ReinforcementCount())

	// Attention saturates at 1 and stays there.
	full, err := eng.Store(NewWorking("already saturated", 1.0, 0))
	require.NoError(t, err)
	require.NoError(t, eng.Reinforce(full))
	fgot, err := eng.Retrieve(full)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fgot.Working.Attention)

	// Reinforcing other tiers counts the touch but leaves the payload alone.
	sid, err := eng.Store(NewSemantic("the api is rate limited", "ops", 0.9, nil))
	require.NoError(t, err)
	require.NoError(t, eng.Reinforce(sid))
	sgot, err := eng.Retrieve(sid)
	require.NoError(t, err)
	assert.Equal(t, 1, sgot.ReinforcementCount())
	assert.Equal(t, 0.9, sgot.Semantic.Confidence)

	assert.ErrorIs(t, eng.Reinforce("wm_missing"), ErrNotFound)
}

func TestRecordExecution(t *testing.T) {
	eng := newTestEngine(t, testOptions())

	id, err := eng.Store(NewProcedural("ship a release", "deploy", []string{"build", "push", "rollout"}, nil))
	require.NoError(t, err)

	require.NoError(t, eng.RecordExecution(id, true, 5000))
	require.NoError(t, eng.RecordExecution(id, true, 3000))
	require.NoError(t, eng.RecordExecution(id, false, 8000))

	got, err := eng.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Procedural.ExecutionCount)
	assert.InDelta(t, 2.0/3.0, got.Procedural.SuccessRate, 1e-9)
	assert.InDelta(t, 16000.0/3.0, got.Procedural.AverageExecutionTime, 1e-9)

	// Only procedural items carry execution counters.
	wid, err := eng.Store(NewWorking("not a skill", 0.5, 0))
	require.NoError(t, err)
	assert.ErrorIs(t, eng.RecordExecution(wid, true, 100), ErrNotFound)
	assert.ErrorIs(t, eng.RecordExecution("pm_missing", true, 100), ErrNotFound)
}

func TestExportImportRoundtrip(t *testing.T) {
	src := newTestEngine(t, testOptions())

	wID, err := src.Store(NewWorking("active task", 0.5, 0.1))
	require.NoError(t, err)
	eID, err := src.Store(NewEpisodic("kickoff call", "meeting", []string{"ana"}, 0.2, 0.6))
	require.NoError(t, err)
	sID, err := src.Store(NewSemantic("service speaks grpc", "architecture", 0.8, nil))
	require.NoError(t, err)
	pID, err := src.Store(NewProcedural("rotate credentials", "rotate-creds", nil, nil))
	require.NoError(t, err)

	exported := src.Export()
	require.Len(t, exported, 4)

	dst := newTestEngine(t, testOptions())
	kept, err := dst.Import(exported)
	require.NoError(t, err)
	assert.Equal(t, 4, kept)

	for _, id := range []string{wID, eID, sID, pID} {
		_, err := dst.Retrieve(id)
		assert.NoError(t, err, "item %s should survive the roundtrip", id)
	}

	// Import replaces, never appends.
	kept, err = dst.Import(exported[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	_, err = dst.Retrieve(sID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportTrimsWorkingOverflow(t *testing.T) {
	opts := testOptions()
	opts.WorkingMemoryLimit = 2
	eng := newTestEngine(t, opts)

	kept, err := eng.Import([]*Item{
		NewWorking("strong", 0.9, 0),
		NewWorking("weak", 0.1, 0),
		NewWorking("middle", 0.7, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, kept)

	var contents []string
	for _, it := range eng.GetAllByTier(Working) {
		contents = append(contents, it.Content)
	}
	assert.ElementsMatch(t, []string{"strong", "middle"}, contents)
}

func TestImportRejectsBadItems(t *testing.T) {
	eng := newTestEngine(t, testOptions())
	_, err := eng.Store(NewWorking("survivor", 0.5, 0))
	require.NoError(t, err)

	_, err = eng.Import([]*Item{nil})
	assert.Error(t, err)
	_, err = eng.Import([]*Item{{Tier: Tier("bogus"), Content: "x"}})
	assert.Error(t, err)

	assert.Equal(t, 1, eng.Count(Working)) // a rejected import leaves state alone
}

func TestEngineNotifiesEvents(t *testing.T) {
	var kinds []events.Kind
	recorder := events.NotifierFunc(func(ev events.Event) {
		kinds = append(kinds, ev.Kind)
	})

	opts := testOptions()
	opts.WorkingMemoryLimit = 1
	eng, err := NewEngine(opts, nil, recorder, nil)
	require.NoError(t, err)

	id, err := eng.Store(NewWorking("keeper", 0.9, 0))
	require.NoError(t, err)
	_, err = eng.Store(NewWorking("crowded out", 0.1, 0))
	require.NoError(t, err)
	require.NoError(t, eng.Reinforce(id))
	eng.Clear()

	assert.Equal(t, []events.Kind{
		events.KindStore,
		events.KindStore,
		events.KindEvict,
		events.KindReinforce,
		events.KindClear,
	}, kinds)
}
