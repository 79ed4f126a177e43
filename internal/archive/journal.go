package archive

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/events"
	"github.com/daverage/strata/internal/memory"
)

const journalBufferSize = 100

// JournalSink writes engine events to the archive asynchronously. It
// implements events.Notifier; Notify never blocks a memory operation, a
// full buffer drops the event instead.
type JournalSink struct {
	db        *DB
	logger    *zap.Logger
	queue     chan events.Event
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewJournalSink starts the background writer. Pass nil for db to disable
// journaling.
func NewJournalSink(db *DB, logger *zap.Logger) *JournalSink {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &JournalSink{
		db:     db,
		logger: logger,
		queue:  make(chan events.Event, journalBufferSize),
		done:   make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

// Notify queues an event for async writing. Non-blocking; drops when full.
func (j *JournalSink) Notify(ev events.Event) {
	if j == nil || j.closed.Load() {
		return
	}

	select {
	case j.queue <- ev:
	default:
		j.logger.Debug("journal buffer full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.ID),
		)
	}
}

// Close shuts the sink down, flushing queued events first.
func (j *JournalSink) Close() {
	if j == nil {
		return
	}

	j.closeOnce.Do(func() {
		j.closed.Store(true)
		close(j.done)
	})
	j.wg.Wait()
}

func (j *JournalSink) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case ev := <-j.queue:
			j.writeEvent(ev)
		case <-j.done:
			for {
				select {
				case ev := <-j.queue:
					j.writeEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (j *JournalSink) writeEvent(ev events.Event) {
	var itemJSON []byte
	if ev.Item != nil {
		var err error
		itemJSON, err = json.Marshal(ev.Item)
		if err != nil {
			j.logger.Error("failed to serialize journal item", zap.Error(err))
			itemJSON = nil
		}
	}

	_, err := j.db.conn.Exec(`
		INSERT INTO journal (kind, item_id, tier, at, note, item)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		string(ev.Kind),
		ev.ID,
		ev.Tier,
		ev.At.UTC(),
		ev.Note,
		nullableString(itemJSON),
	)
	if err != nil {
		j.logger.Error("failed to write journal event",
			zap.Error(err),
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.ID),
		)
	}

	// Items the engine dropped keep a queryable copy in archived_memories.
	if ev.Kind != events.KindEvict && ev.Kind != events.KindExpire {
		return
	}
	if it, ok := ev.Item.(*memory.Item); ok {
		if err := j.db.ArchiveItem(it, string(ev.Kind)); err != nil {
			j.logger.Error("failed to archive dropped item",
				zap.Error(err),
				zap.String("id", it.ID),
			)
		}
	}
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// JournalEntry is one persisted engine event.
type JournalEntry struct {
	Seq  int64       `json:"seq"`
	Kind events.Kind `json:"kind"`
	ID   string      `json:"id,omitempty"`
	Tier string      `json:"tier,omitempty"`
	At   time.Time   `json:"at"`
	Note string      `json:"note,omitempty"`
}

// RecentEvents returns the newest journal entries, most recent first.
func (db *DB) RecentEvents(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, kind, COALESCE(item_id, ''), COALESCE(tier, ''), at, COALESCE(note, '')
		FROM journal
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			entry JournalEntry
			kind  string
		)
		if err := rows.Scan(&entry.Seq, &kind, &entry.ID, &entry.Tier, &entry.At, &entry.Note); err != nil {
			return nil, err
		}
		entry.Kind = events.Kind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
