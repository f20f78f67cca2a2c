/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"shotlint/internal/domain"
	"shotlint/internal/script"
)

// ErrSnapshotNotFound is returned by LoadSnapshot for an unknown id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// tsLayout is fixed width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(script, ts, reason, size, blob) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT id, ts, reason, size FROM snapshots WHERE script = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const selectSnapshotSQL = `SELECT ts, reason, size, blob FROM snapshots WHERE script = ? AND id = ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE script = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE script = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// Snapshot describes one stored version of a script. Size is the
// uncompressed JSON size in bytes.
type Snapshot struct {
	ID     int64     `json:"id"`
	TS     time.Time `json:"ts"`
	Reason string    `json:"reason"`
	Size   int       `json:"size"`
}

func formatTS(ts time.Time) string { return ts.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	ts, _ := time.Parse(tsLayout, s)
	return ts
}

// SaveSnapshot stores the workspace document, zstd-compressed, with the
// reason for the change ("fix", "stabilize", "patch").
func SaveSnapshot(ctx context.Context, ws *Workspace, reason string, ts time.Time) (int64, error) {
	if ws == nil {
		return 0, errors.New("nil Workspace")
	}
	data, err := script.Encode(ws.Doc, script.FormatJSON)
	if err != nil {
		return 0, err
	}
	blob, err := compress(data)
	if err != nil {
		return 0, err
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, insertSnapshotSQL, filepath.Base(ws.ScriptPath), formatTS(ts), reason, len(data), blob)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// ListSnapshots returns up to limit most recent snapshots of the workspace script.
func ListSnapshots(ctx context.Context, ws *Workspace, limit int) ([]Snapshot, error) {
	if ws == nil {
		return nil, errors.New("nil Workspace")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSnapshotsSQL, filepath.Base(ws.ScriptPath), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var tsStr string
		if err := rows.Scan(&s.ID, &tsStr, &s.Reason, &s.Size); err != nil {
			return nil, err
		}
		s.TS = parseTS(tsStr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadSnapshot decodes the stored document with the given id.
func LoadSnapshot(ctx context.Context, ws *Workspace, id int64) (*domain.Document, Snapshot, error) {
	if ws == nil {
		return nil, Snapshot{}, errors.New("nil Workspace")
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return nil, Snapshot{}, err
	}
	defer func() { _ = db.Close() }()
	s := Snapshot{ID: id}
	var tsStr string
	var blob []byte
	err = db.QueryRowContext(ctx, selectSnapshotSQL, filepath.Base(ws.ScriptPath), id).Scan(&tsStr, &s.Reason, &s.Size, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, Snapshot{}, err
	}
	s.TS = parseTS(tsStr)
	data, err := decompress(blob)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("snapshot %d: %w", id, err)
	}
	doc, err := script.Parse(data)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("snapshot %d: %w", id, err)
	}
	return doc, s, nil
}

// GetLatestSnapshot returns the newest stored document, or nil if none.
func GetLatestSnapshot(ctx context.Context, ws *Workspace) (*domain.Document, Snapshot, error) {
	list, err := ListSnapshots(ctx, ws, 1)
	if err != nil || len(list) == 0 {
		return nil, Snapshot{}, err
	}
	return LoadSnapshot(ctx, ws, list[0].ID)
}

// PruneOldSnapshots keeps at most keepLast snapshots for the script and deletes older ones.
func PruneOldSnapshots(ctx context.Context, ws *Workspace, keepLast int) (int64, error) {
	if ws == nil {
		return 0, errors.New("nil Workspace")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	name := filepath.Base(ws.ScriptPath)
	res, err := db.ExecContext(ctx, pruneOldSnapshotsSQL, name, name, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
