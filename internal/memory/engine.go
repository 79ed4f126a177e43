package memory

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/events"
)

// reinforceGain is the fraction of the remaining headroom a single
// reinforcement closes: attention ← attention + (1 − attention) × gain.
const reinforceGain = 0.5

// Options are the construction parameters for one agent's engine. They are
// validated once, at construction; a running engine never re-checks them.
type Options struct {
	// WorkingMemoryLimit caps the working tier. Must be positive.
	WorkingMemoryLimit int
	// EpisodicRetentionDays ages episodic items out during Consolidate.
	// Zero disables age-based expiry.
	EpisodicRetentionDays int
	// SemanticConsolidationThreshold is the merge cutoff in [0,1]: pairs
	// scoring at or above it merge.
	SemanticConsolidationThreshold float64
	// ProceduralMinExecutions gates skill availability during context
	// assembly. Must be >= 0.
	ProceduralMinExecutions int
	// PromotionThreshold is the reinforcement count at which Consolidate
	// promotes a working item to episodic. Must be >= 1.
	PromotionThreshold int
}

// Validate reports the first out-of-range parameter wrapped in
// ErrInvalidConfig.
func (o Options) Validate() error {
	if o.WorkingMemoryLimit <= 0 {
		return fmt.Errorf("%w: working memory limit must be positive, got %d", ErrInvalidConfig, o.WorkingMemoryLimit)
	}
	if o.EpisodicRetentionDays < 0 {
		return fmt.Errorf("%w: episodic retention days must be >= 0, got %d", ErrInvalidConfig, o.EpisodicRetentionDays)
	}
	if o.SemanticConsolidationThreshold < 0 || o.SemanticConsolidationThreshold > 1 {
		return fmt.Errorf("%w: semantic consolidation threshold must be between 0 and 1, got %g", ErrInvalidConfig, o.SemanticConsolidationThreshold)
	}
	if o.ProceduralMinExecutions < 0 {
		return fmt.Errorf("%w: procedural min executions must be >= 0, got %d", ErrInvalidConfig, o.ProceduralMinExecutions)
	}
	if o.PromotionThreshold < 1 {
		return fmt.Errorf("%w: promotion threshold must be >= 1, got %d", ErrInvalidConfig, o.PromotionThreshold)
	}
	return nil
}

// Engine owns one agent's memory across all four tiers. Reads may run
// concurrently; writes serialize on the engine mutex. Embedding calls never
// run under the lock.
type Engine struct {
	mu     sync.RWMutex
	store  *tierStore
	opts   Options
	lastTS time.Time

	provider embedding.Provider
	notifier events.Notifier
	logger   *zap.Logger
}

// NewEngine validates opts and builds an engine. provider may be nil
// (semantic merge then scores lexically only); notifier and logger may be
// nil.
func NewEngine(opts Options, provider embedding.Provider, notifier events.Notifier, logger *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    newTierStore(),
		opts:     opts,
		provider: provider,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Options returns the engine's construction parameters.
func (e *Engine) Options() Options {
	return e.opts
}

// Store inserts an item, assigning ID and Timestamp when absent, and
// synchronously enforces the tier capacity policy before returning. It only
// fails for malformed input (nil item, unknown tier).
func (e *Engine) Store(it *Item) (string, error) {
	if it == nil {
		return "", fmt.Errorf("store: nil item")
	}
	if !it.Tier.IsValid() {
		return "", fmt.Errorf("store: invalid tier %q", it.Tier)
	}

	stored := it.Clone()
	normalizePayload(stored)

	var evs []events.Event
	e.mu.Lock()
	if stored.ID == "" {
		stored.ID = mintID(stored.Tier)
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = e.nextTimestampLocked()
	} else if stored.Timestamp.After(e.lastTS) {
		e.lastTS = stored.Timestamp
	}
	e.store.insert(stored)
	evs = append(evs, itemEvent(events.KindStore, stored, ""))

	if stored.Tier == Working {
		for _, victim := range e.enforceWorkingLimitLocked() {
			evs = append(evs, itemEvent(events.KindEvict, victim, "working tier over capacity"))
		}
	}
	id := stored.ID
	e.mu.Unlock()

	e.emit(evs)
	return id, nil
}

// Retrieve looks an item up by ID. Reading never advances decay. Unknown
// IDs report ErrNotFound.
func (e *Engine) Retrieve(id string) (*Item, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	it, ok := e.store.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return it.Clone(), nil
}

// GetAllByTier returns a snapshot copy of one tier ordered by creation time
// (oldest first, ID as the final tiebreak).
func (e *Engine) GetAllByTier(tier Tier) []*Item {
	e.mu.RLock()
	live := e.store.byTier(tier)
	out := make([]*Item, 0, len(live))
	for _, it := range live {
		out = append(out, it.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RecentByTier returns up to n items from a tier, newest first.
func (e *Engine) RecentByTier(tier Tier, n int) []*Item {
	all := e.GetAllByTier(tier)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Count reports the current population of one tier.
func (e *Engine) Count(tier Tier) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.count(tier)
}

// Clear empties every tier.
func (e *Engine) Clear() {
	e.mu.Lock()
	n := e.store.total()
	e.store.clear()
	e.mu.Unlock()

	e.logger.Info("memory cleared", zap.Int("items", n))
	e.emit([]events.Event{{Kind: events.KindClear, At: time.Now(), Note: fmt.Sprintf("%d items dropped", n)}})
}

// Tick advances working-memory decay by n steps:
// attention ← clamp(attention × (1 − decay)^n). Non-positive n is a no-op.
func (e *Engine) Tick(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	ticked := 0
	for _, it := range e.store.byTier(Working) {
		w := it.Working
		if w == nil {
			continue
		}
		factor := math.Pow(1-clamp01(w.Decay), float64(n))
		w.Attention = clamp01(w.Attention * factor)
		ticked++
	}
	e.mu.Unlock()

	e.logger.Debug("tick applied", zap.Int("steps", n), zap.Int("items", ticked))
}

// Reinforce bumps an item's reinforcement counter and, for working items,
// raises attention halfway toward 1. Unknown IDs report ErrNotFound.
func (e *Engine) Reinforce(id string) error {
	e.mu.Lock()
	it, ok := e.store.get(id)
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	it.setReinforcementCount(it.ReinforcementCount() + 1)
	if it.Tier == Working && it.Working != nil {
		it.Working.Attention = clamp01(it.Working.Attention + (1-it.Working.Attention)*reinforceGain)
	}
	ev := itemEvent(events.KindReinforce, it, fmt.Sprintf("count=%d", it.ReinforcementCount()))
	e.mu.Unlock()

	e.emit([]events.Event{ev})
	return nil
}

// RecordExecution folds one execution outcome into a skill's derived
// counters using running averages. IDs that do not name a procedural item
// report ErrNotFound and change nothing.
func (e *Engine) RecordExecution(id string, success bool, durationMs float64) error {
	e.mu.Lock()
	it, ok := e.store.get(id)
	if !ok || it.Tier != Procedural || it.Procedural == nil {
		e.mu.Unlock()
		return ErrNotFound
	}
	p := it.Procedural
	n := p.ExecutionCount + 1
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.SuccessRate = (p.SuccessRate*float64(n-1) + outcome) / float64(n)
	p.AverageExecutionTime = (p.AverageExecutionTime*float64(n-1) + durationMs) / float64(n)
	p.ExecutionCount = n
	ev := itemEvent(events.KindRecord, it, fmt.Sprintf("success=%t duration_ms=%g", success, durationMs))
	e.mu.Unlock()

	e.emit([]events.Event{ev})
	return nil
}

// Export returns a snapshot of every tier, ordered by creation time, for
// persistence by a durable collaborator.
func (e *Engine) Export() []*Item {
	e.mu.RLock()
	out := make([]*Item, 0, e.store.total())
	for _, tier := range Tiers {
		for _, it := range e.store.byTier(tier) {
			out = append(out, it.Clone())
		}
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Import replaces the engine's state with the given items, preserving their
// IDs and timestamps. Tier policies still apply, so an over-limit working
// set is trimmed on the way in. Returns the number of items retained.
func (e *Engine) Import(items []*Item) (int, error) {
	for _, it := range items {
		if it == nil {
			return 0, fmt.Errorf("import: nil item")
		}
		if !it.Tier.IsValid() {
			return 0, fmt.Errorf("import: invalid tier %q", it.Tier)
		}
	}

	e.mu.Lock()
	e.store.clear()
	for _, it := range items {
		stored := it.Clone()
		normalizePayload(stored)
		if stored.ID == "" {
			stored.ID = mintID(stored.Tier)
		}
		if stored.Timestamp.IsZero() {
			stored.Timestamp = e.nextTimestampLocked()
		} else if stored.Timestamp.After(e.lastTS) {
			e.lastTS = stored.Timestamp
		}
		e.store.insert(stored)
	}
	e.enforceWorkingLimitLocked()
	kept := e.store.total()
	e.mu.Unlock()

	e.logger.Info("memory state restored", zap.Int("items", kept))
	e.emit([]events.Event{{Kind: events.KindRestore, At: time.Now(), Note: fmt.Sprintf("%d items restored", kept)}})
	return kept, nil
}

// enforceWorkingLimitLocked drops lowest-attention working items until the
// tier fits its limit. Ties fall to the oldest timestamp, then smallest ID.
// Caller holds the write lock.
func (e *Engine) enforceWorkingLimitLocked() []*Item {
	var evicted []*Item
	for e.store.count(Working) > e.opts.WorkingMemoryLimit {
		victim := lowestAttention(e.store.byTier(Working))
		if victim == nil {
			break
		}
		e.store.remove(victim.ID)
		evicted = append(evicted, victim)
	}
	if len(evicted) > 0 {
		e.logger.Debug("working memory evicted", zap.Int("count", len(evicted)))
	}
	return evicted
}

func lowestAttention(items []*Item) *Item {
	var victim *Item
	for _, it := range items {
		if it.Working == nil {
			continue
		}
		if victim == nil {
			victim = it
			continue
		}
		switch {
		case it.Working.Attention < victim.Working.Attention:
			victim = it
		case it.Working.Attention == victim.Working.Attention:
			if it.Timestamp.Before(victim.Timestamp) ||
				(it.Timestamp.Equal(victim.Timestamp) && it.ID < victim.ID) {
				victim = it
			}
		}
	}
	return victim
}

// nextTimestampLocked hands out strictly increasing creation instants so
// stores are totally ordered even within one clock tick. Caller holds the
// write lock.
func (e *Engine) nextTimestampLocked() time.Time {
	now := time.Now()
	if !now.After(e.lastTS) {
		now = e.lastTS.Add(time.Nanosecond)
	}
	e.lastTS = now
	return now
}

func (e *Engine) emit(evs []events.Event) {
	for _, ev := range evs {
		e.notifier.Notify(ev)
	}
}

func itemEvent(kind events.Kind, it *Item, note string) events.Event {
	return events.Event{
		Kind: kind,
		ID:   it.ID,
		Tier: string(it.Tier),
		At:   time.Now(),
		Note: note,
		Item: it.Clone(),
	}
}

func mintID(tier Tier) string {
	return tier.Prefix() + "_" + uuid.New().String()
}

// normalizePayload guarantees the payload matching the tier exists and its
// bounded fields sit inside their ranges, and drops payloads from other
// tiers. Capacity and range policies are self-healing; they never error.
func normalizePayload(it *Item) {
	switch it.Tier {
	case Working:
		if it.Working == nil {
			it.Working = &WorkingFields{}
		}
		it.Working.Attention = clamp01(it.Working.Attention)
		it.Working.Decay = clamp01(it.Working.Decay)
		it.Episodic, it.Semantic, it.Procedural = nil, nil, nil
	case Episodic:
		if it.Episodic == nil {
			it.Episodic = &EpisodicFields{}
		}
		it.Episodic.EmotionalValence = clampRange(it.Episodic.EmotionalValence, -1, 1)
		it.Episodic.Importance = clamp01(it.Episodic.Importance)
		it.Working, it.Semantic, it.Procedural = nil, nil, nil
	case Semantic:
		if it.Semantic == nil {
			it.Semantic = &SemanticFields{}
		}
		it.Semantic.Confidence = clamp01(it.Semantic.Confidence)
		it.Working, it.Episodic, it.Procedural = nil, nil, nil
	case Procedural:
		if it.Procedural == nil {
			it.Procedural = &ProceduralFields{}
		}
		if it.Procedural.ExecutionCount < 0 {
			it.Procedural.ExecutionCount = 0
		}
		it.Procedural.SuccessRate = clamp01(it.Procedural.SuccessRate)
		if it.Procedural.AverageExecutionTime < 0 {
			it.Procedural.AverageExecutionTime = 0
		}
		it.Working, it.Episodic, it.Semantic = nil, nil, nil
	}
}
