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
	"strings"

	"shotlint/internal/domain"
)

// SearchQuery describes a prompt search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Character restricts to shots defining that character id; Location to shots at that location id.
// SceneFrom/To are 1-based and inclusive; 0 means unset.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text      string
	Character string
	Location  string
	SceneFrom int
	SceneTo   int
	Limit     int
	Offset    int
}

// SearchResult is a single matching shot.
// Snippet is a highlighted excerpt using [ ] markers when Text is set.
type SearchResult struct {
	DocID    int64  `json:"-"`
	ShotID   string `json:"shotId"`
	Scene    int    `json:"scene"`
	Position int    `json:"position"`
	Snippet  string `json:"snippet,omitempty"`
}

// ShotRow is the searchable projection of one shot. Scene and Position are
// 1-based; Position counts shots across the whole document. Characters is a
// space separated id list.
type ShotRow struct {
	ShotID     string
	Scene      int
	Position   int
	Location   string
	Characters string
	Prompt     string
}

// ShotRows flattens doc into index rows in script order.
func ShotRows(doc *domain.Document) []ShotRow {
	if doc == nil {
		return nil
	}
	var out []ShotRow
	pos := 0
	for si, sc := range doc.Script {
		if sc == nil {
			continue
		}
		for _, sh := range sc.VisualPlan {
			if sh == nil {
				continue
			}
			pos++
			r := ShotRow{ShotID: sh.ShotID, Scene: si + 1, Position: pos, Prompt: sh.CompositionPrompt}
			if sh.Location != nil {
				r.Location = sh.Location.ID
			}
			ids := make([]string, 0, len(sh.CharacterDefinitions))
			for _, cd := range sh.CharacterDefinitions {
				if cd != nil && cd.ID != "" {
					ids = append(ids, cd.ID)
				}
			}
			r.Characters = strings.Join(ids, " ")
			out = append(out, r)
		}
	}
	return out
}

// Search performs full-text search over shot prompts with optional filters.
// When q.Text is empty, it falls back to a plain scan with the filters applied.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT s.doc_id, s.shot_id, s.scene, s.position, snippet(fts_shots, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_shots JOIN shots s ON fts_shots.rowid = s.doc_id\n")
		sb.WriteString("WHERE fts_shots MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT s.doc_id, s.shot_id, s.scene, s.position, ''\n")
		sb.WriteString("FROM shots s\nWHERE 1=1\n")
	}
	if c := strings.TrimSpace(q.Character); c != "" {
		// characters is a space separated id list
		sb.WriteString(" AND (' ' || s.characters || ' ') LIKE ?\n")
		args = append(args, likeContains(" "+c+" "))
	}
	if l := strings.TrimSpace(q.Location); l != "" {
		sb.WriteString(" AND lower(s.location) = ?\n")
		args = append(args, strings.ToLower(l))
	}
	switch {
	case q.SceneFrom > 0 && q.SceneTo > 0 && q.SceneTo >= q.SceneFrom:
		sb.WriteString(" AND s.scene BETWEEN ? AND ?\n")
		args = append(args, q.SceneFrom, q.SceneTo)
	case q.SceneFrom > 0:
		sb.WriteString(" AND s.scene >= ?\n")
		args = append(args, q.SceneFrom)
	case q.SceneTo > 0:
		sb.WriteString(" AND s.scene <= ?\n")
		args = append(args, q.SceneTo)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(q.Offset, 0)
	sb.WriteString("ORDER BY s.position\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.ShotID, &r.Scene, &r.Position, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }
