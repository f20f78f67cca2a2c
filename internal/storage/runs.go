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
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"shotlint/internal/domain"
)

// ErrRunNotFound is returned by LoadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// language=SQL
// dialect=SQLite
const insertRunSQL = `INSERT INTO runs(id, script, ts, total, ready, critical, warnings, report) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listRunsSQL = `SELECT id, script, ts, total, ready, critical, warnings FROM runs ORDER BY ts DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const selectRunSQL = `SELECT script, ts, total, ready, critical, warnings, report FROM runs WHERE id = ?`

// Run is the summary of one recorded analysis.
type Run struct {
	ID     string       `json:"id"`
	Script string       `json:"script"`
	TS     time.Time    `json:"ts"`
	Stats  domain.Stats `json:"stats"`
}

// RecordRun stores res for the script at scriptPath in the index under root
// and returns the new run.
func RecordRun(ctx context.Context, root, scriptPath string, res domain.AnalysisResult, ts time.Time) (Run, error) {
	data, err := domain.Marshal(res)
	if err != nil {
		return Run{}, fmt.Errorf("encode report: %w", err)
	}
	blob, err := compress(data)
	if err != nil {
		return Run{}, err
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return Run{}, err
	}
	defer func() { _ = db.Close() }()
	r := Run{ID: uuid.NewString(), Script: filepath.Base(scriptPath), TS: ts.UTC(), Stats: res.Stats}
	st := res.Stats
	if _, err := db.ExecContext(ctx, insertRunSQL, r.ID, r.Script, formatTS(ts), st.TotalShots, st.Veo3Ready, st.CriticalIssues, st.Warnings, blob); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit most recent runs.
func ListRuns(ctx context.Context, root string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		var r Run
		var tsStr string
		if err := rows.Scan(&r.ID, &r.Script, &tsStr, &r.Stats.TotalShots, &r.Stats.Veo3Ready, &r.Stats.CriticalIssues, &r.Stats.Warnings); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.TS = parseTS(tsStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRun returns a recorded run with its full report.
func LoadRun(ctx context.Context, root, id string) (Run, domain.AnalysisResult, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return Run{}, domain.AnalysisResult{}, err
	}
	defer func() { _ = db.Close() }()
	r := Run{ID: id}
	var tsStr string
	var blob []byte
	err = db.QueryRowContext(ctx, selectRunSQL, id).Scan(&r.Script, &tsStr, &r.Stats.TotalShots, &r.Stats.Veo3Ready, &r.Stats.CriticalIssues, &r.Stats.Warnings, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, domain.AnalysisResult{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, domain.AnalysisResult{}, fmt.Errorf("load run: %w", err)
	}
	r.TS = parseTS(tsStr)
	data, err := decompress(blob)
	if err != nil {
		return Run{}, domain.AnalysisResult{}, fmt.Errorf("run %s: %w", id, err)
	}
	var res domain.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Run{}, domain.AnalysisResult{}, fmt.Errorf("run %s: decode report: %w", id, err)
	}
	return r, res, nil
}
