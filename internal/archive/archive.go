package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/daverage/strata/internal/memory"
)

// ArchivedItem is a memory that left the engine but stays queryable: the
// full payload plus the reason it was archived.
type ArchivedItem struct {
	Seq        int64        `json:"seq"`
	Reason     string       `json:"reason"`
	ArchivedAt time.Time    `json:"archivedAt"`
	Item       *memory.Item `json:"item"`
}

// ArchiveItem stores a copy of an item in the archive. Category and skill
// are lifted into their own columns so archived facts and skills can be
// filtered without decoding payloads.
func (db *DB) ArchiveItem(it *memory.Item, reason string) error {
	if it == nil {
		return nil
	}

	payload, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("encode archived item %s: %w", it.ID, err)
	}

	var category, skill string
	if it.Semantic != nil {
		category = it.Semantic.Category
	}
	if it.Procedural != nil {
		skill = it.Procedural.SkillName
	}

	_, err = db.conn.Exec(`
		INSERT INTO archived_memories (item_id, tier, category, skill, reason, archived_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, it.ID, string(it.Tier), category, skill, reason, time.Now().UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("archive item %s: %w", it.ID, err)
	}
	return nil
}

// ArchivedItems returns archived memories, newest first. An empty tier
// matches every tier.
func (db *DB) ArchivedItems(tier string, limit int) ([]ArchivedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, reason, archived_at, payload
		FROM archived_memories
		WHERE ? = '' OR tier = ?
		ORDER BY id DESC
		LIMIT ?
	`, tier, tier, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived items: %w", err)
	}
	defer rows.Close()

	var archived []ArchivedItem
	for rows.Next() {
		var (
			entry   ArchivedItem
			payload string
		)
		if err := rows.Scan(&entry.Seq, &entry.Reason, &entry.ArchivedAt, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &entry.Item); err != nil {
			return nil, fmt.Errorf("decode archived item %d: %w", entry.Seq, err)
		}
		archived = append(archived, entry)
	}
	return archived, rows.Err()
}
