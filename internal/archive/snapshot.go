package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daverage/strata/internal/memory"
)

// ErrNoSnapshot reports that no snapshot exists for the agent.
var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotInfo describes one stored snapshot without its payload.
type SnapshotInfo struct {
	ID      int64     `json:"id"`
	Agent   string    `json:"agent"`
	TakenAt time.Time `json:"takenAt"`
	Items   int       `json:"items"`
}

// SaveSnapshot stores the full item set for an agent and returns the new
// snapshot's ID.
func (db *DB) SaveSnapshot(agent string, items []*memory.Item) (int64, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}

	res, err := db.conn.Exec(`
		INSERT INTO snapshots (agent, taken_at, items, payload)
		VALUES (?, ?, ?, ?)
	`, agent, time.Now().UTC(), len(items), string(payload))
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LoadLatestSnapshot returns the newest snapshot's items for the agent, or
// ErrNoSnapshot when the agent has none.
func (db *DB) LoadLatestSnapshot(agent string) ([]*memory.Item, *SnapshotInfo, error) {
	var (
		info    SnapshotInfo
		payload string
	)
	err := db.conn.QueryRow(`
		SELECT id, agent, taken_at, items, payload
		FROM snapshots
		WHERE agent = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`, agent).Scan(&info.ID, &info.Agent, &info.TakenAt, &info.Items, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNoSnapshot
		}
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}

	var items []*memory.Item
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %d: %w", info.ID, err)
	}
	return items, &info, nil
}

// ListSnapshots returns snapshot descriptors for the agent, newest first.
func (db *DB) ListSnapshots(agent string, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, agent, taken_at, items
		FROM snapshots
		WHERE agent = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT ?
	`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Agent, &info.TakenAt, &info.Items); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
