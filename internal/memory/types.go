package memory

import (
	"time"
)

// Tier identifies which memory stratum an item lives in.
type Tier string

const (
	Working    Tier = "working"
	Episodic   Tier = "episodic"
	Semantic   Tier = "semantic"
	Procedural Tier = "procedural"
)

// Tiers lists every tier in canonical order.
var Tiers = []Tier{Working, Episodic, Semantic, Procedural}

func (t Tier) IsValid() bool {
	switch t {
	case Working, Episodic, Semantic, Procedural:
		return true
	default:
		return false
	}
}

// Prefix returns the short tag used when minting item IDs.
func (t Tier) Prefix() string {
	switch t {
	case Working:
		return "wm"
	case Episodic:
		return "ep"
	case Semantic:
		return "sm"
	case Procedural:
		return "pm"
	default:
		return "mem"
	}
}

// Relation links a semantic item to another identifier. Duplicates are
// allowed and carry no direction beyond the Type tag.
type Relation struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// WorkingFields carries the working-tier payload. Attention and Decay both
// stay within [0,1]; the engine clamps them on every mutation.
type WorkingFields struct {
	Attention float64 `json:"attention"`
	Decay     float64 `json:"decay"`
}

// EpisodicFields carries the episodic-tier payload.
type EpisodicFields struct {
	EventType        string   `json:"eventType"`
	Participants     []string `json:"participants,omitempty"`
	EmotionalValence float64  `json:"emotionalValence"`
	Importance       float64  `json:"importance"`
}

// SemanticFields carries the semantic-tier payload.
type SemanticFields struct {
	Category   string     `json:"category"`
	Confidence float64    `json:"confidence"`
	Relations  []Relation `json:"relations,omitempty"`
}

// ProceduralFields carries the procedural-tier payload. ExecutionCount,
// SuccessRate and AverageExecutionTime are derived counters: RecordExecution
// is the only mutation path.
type ProceduralFields struct {
	SkillName            string   `json:"skillName"`
	Steps                []string `json:"steps,omitempty"`
	Prerequisites        []string `json:"prerequisites,omitempty"`
	ExecutionCount       int      `json:"executionCount"`
	SuccessRate          float64  `json:"successRate"`
	AverageExecutionTime float64  `json:"averageExecutionTime"`
}

// Item is the unit of storage across all tiers: one base shape with a Tier
// discriminant and exactly one tier payload set. Code that needs
// tier-specific behavior switches on Tier and reads the matching pointer.
type Item struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Tier      Tier           `json:"tier"`
	Source    string         `json:"source,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Working    *WorkingFields    `json:"working,omitempty"`
	Episodic   *EpisodicFields   `json:"episodic,omitempty"`
	Semantic   *SemanticFields   `json:"semantic,omitempty"`
	Procedural *ProceduralFields `json:"procedural,omitempty"`
}

// MetaReinforcementCount is the metadata key tracking how often an item has
// been reinforced since creation.
const MetaReinforcementCount = "reinforcementCount"

// NewWorking builds an unsaved working-tier item. The engine assigns ID and
// Timestamp on Store.
func NewWorking(content string, attention, decay float64) *Item {
	return &Item{
		Tier:    Working,
		Content: content,
		Working: &WorkingFields{
			Attention: clamp01(attention),
			Decay:     clamp01(decay),
		},
	}
}

// NewEpisodic builds an unsaved episodic-tier item.
func NewEpisodic(content, eventType string, participants []string, valence, importance float64) *Item {
	return &Item{
		Tier:    Episodic,
		Content: content,
		Episodic: &EpisodicFields{
			EventType:        eventType,
			Participants:     append([]string(nil), participants...),
			EmotionalValence: clampRange(valence, -1, 1),
			Importance:       clamp01(importance),
		},
	}
}

// NewSemantic builds an unsaved semantic-tier item.
func NewSemantic(content, category string, confidence float64, relations []Relation) *Item {
	return &Item{
		Tier:    Semantic,
		Content: content,
		Semantic: &SemanticFields{
			Category:   category,
			Confidence: clamp01(confidence),
			Relations:  append([]Relation(nil), relations...),
		},
	}
}

// NewProcedural builds an unsaved procedural-tier item.
func NewProcedural(content, skillName string, steps, prerequisites []string) *Item {
	return &Item{
		Tier:    Procedural,
		Content: content,
		Procedural: &ProceduralFields{
			SkillName:     skillName,
			Steps:         append([]string(nil), steps...),
			Prerequisites: append([]string(nil), prerequisites...),
		},
	}
}

// Clone returns a deep copy. Read paths hand out clones so callers can never
// mutate engine state without going through the engine.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	if it.Working != nil {
		w := *it.Working
		cp.Working = &w
	}
	if it.Episodic != nil {
		e := *it.Episodic
		e.Participants = append([]string(nil), it.Episodic.Participants...)
		cp.Episodic = &e
	}
	if it.Semantic != nil {
		s := *it.Semantic
		s.Relations = append([]Relation(nil), it.Semantic.Relations...)
		cp.Semantic = &s
	}
	if it.Procedural != nil {
		p := *it.Procedural
		p.Steps = append([]string(nil), it.Procedural.Steps...)
		p.Prerequisites = append([]string(nil), it.Procedural.Prerequisites...)
		cp.Procedural = &p
	}
	return &cp
}

// ReinforcementCount reads the reinforcement counter out of Metadata,
// tolerating the numeric types a JSON round trip produces.
func (it *Item) ReinforcementCount() int {
	if it.Metadata == nil {
		return 0
	}
	switch v := it.Metadata[MetaReinforcementCount].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (it *Item) setReinforcementCount(n int) {
	if it.Metadata == nil {
		it.Metadata = make(map[string]any, 1)
	}
	it.Metadata[MetaReinforcementCount] = n
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
