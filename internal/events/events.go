package events

import (
	"time"

	"go.uber.org/zap"
)

// Kind labels the engine operation an event describes.
type Kind string

const (
	KindStore     Kind = "store"
	KindEvict     Kind = "evict"
	KindExpire    Kind = "expire"
	KindReinforce Kind = "reinforce"
	KindPromote   Kind = "promote"
	KindMerge     Kind = "merge"
	KindRecord    Kind = "record"
	KindClear     Kind = "clear"
	KindRestore   Kind = "restore"
)

// Event describes one completed memory operation. Item, when set, is a
// snapshot of the affected memory taken after the operation; sinks may
// serialize it but must not assume a concrete type beyond json-marshalable.
type Event struct {
	Kind Kind      `json:"kind"`
	ID   string    `json:"id,omitempty"`
	Tier string    `json:"tier,omitempty"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
	Item any       `json:"item,omitempty"`
}

// Notifier receives events after engine state changes. Implementations must
// return quickly and must never fail the caller; the engine fires and
// forgets.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Nop discards all events.
type Nop struct{}

func (Nop) Notify(Event) {}

// ZapNotifier logs events at debug level.
type ZapNotifier struct {
	logger *zap.Logger
}

func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapNotifier{logger: logger}
}

func (z *ZapNotifier) Notify(ev Event) {
	z.logger.Debug("memory event",
		zap.String("kind", string(ev.Kind)),
		zap.String("id", ev.ID),
		zap.String("tier", ev.Tier),
		zap.String("note", ev.Note),
	)
}

// Fanout forwards each event to every wrapped notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ev Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ev)
		}
	}
}
