/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Archive stores analysis runs in Postgres so that reports outlive the
// sessions that produced them.
type Archive struct {
	db *sql.DB
}

// OpenArchive connects to the database at url and applies pending migrations.
func OpenArchive(ctx context.Context, url string) (*Archive, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

// SaveRun stores res together with the searchable shots of doc.
func (a *Archive) SaveRun(ctx context.Context, scriptName string, doc *domain.Document, res domain.AnalysisResult, ts time.Time) (storage.Run, error) {
	report, err := domain.Marshal(res)
	if err != nil {
		return storage.Run{}, fmt.Errorf("encode report: %w", err)
	}
	run := storage.Run{ID: uuid.NewString(), Script: scriptName, TS: ts.UTC(), Stats: res.Stats}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Run{}, fmt.Errorf("begin tx: %w", err)
	}
	st := res.Stats
	// language=PostgreSQL
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id, script, created_at, total, ready, critical, warnings, report) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID, run.Script, run.TS, st.TotalShots, st.Veo3Ready, st.CriticalIssues, st.Warnings, string(report)); err != nil {
		_ = tx.Rollback()
		return storage.Run{}, fmt.Errorf("insert run: %w", err)
	}
	for _, r := range storage.ShotRows(doc) {
		var loc sql.NullString
		if r.Location != "" {
			loc = sql.NullString{String: r.Location, Valid: true}
		}
		// language=PostgreSQL
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_shots(run_id, shot_id, scene, position, location, characters, prompt) VALUES($1,$2,$3,$4,$5,$6,$7)`,
			run.ID, r.ShotID, r.Scene, r.Position, loc, r.Characters, r.Prompt); err != nil {
			_ = tx.Rollback()
			return storage.Run{}, fmt.Errorf("insert shot %s: %w", r.ShotID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storage.Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit most recent runs.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `SELECT id, script, created_at, total, ready, critical, warnings FROM runs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.Run
	for rows.Next() {
		var r storage.Run
		if err := rows.Scan(&r.ID, &r.Script, &r.TS, &r.Stats.TotalShots, &r.Stats.Veo3Ready, &r.Stats.CriticalIssues, &r.Stats.Warnings); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.TS = r.TS.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRun returns one archived run with its full report.
func (a *Archive) LoadRun(ctx context.Context, id string) (storage.Run, domain.AnalysisResult, error) {
	r := storage.Run{ID: id}
	var report []byte
	err := a.db.QueryRowContext(ctx, `SELECT script, created_at, total, ready, critical, warnings, report FROM runs WHERE id = $1`, id).
		Scan(&r.Script, &r.TS, &r.Stats.TotalShots, &r.Stats.Veo3Ready, &r.Stats.CriticalIssues, &r.Stats.Warnings, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Run{}, domain.AnalysisResult{}, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	if err != nil {
		return storage.Run{}, domain.AnalysisResult{}, fmt.Errorf("load run: %w", err)
	}
	r.TS = r.TS.UTC()
	var res domain.AnalysisResult
	if err := json.Unmarshal(report, &res); err != nil {
		return storage.Run{}, domain.AnalysisResult{}, fmt.Errorf("run %s: decode report: %w", id, err)
	}
	return r, res, nil
}

// SearchShots searches the prompts of one archived run with the same filter
// semantics as the local workspace index. Text is matched with
// plainto_tsquery; snippets use [ ] markers.
func (a *Archive) SearchShots(ctx context.Context, runID string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if strings.TrimSpace(q.Text) != "" {
		tq := place(q.Text)
		b.WriteString("SELECT s.id, s.shot_id, s.scene, s.position, ")
		b.WriteString("COALESCE(ts_headline('simple', s.prompt, plainto_tsquery('simple', " + tq + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM run_shots s WHERE s.run_id = " + place(runID) + " AND s.search_vector @@ plainto_tsquery('simple', " + tq + ") ")
	} else {
		b.WriteString("SELECT s.id, s.shot_id, s.scene, s.position, '' FROM run_shots s WHERE s.run_id = " + place(runID) + " ")
	}
	if c := strings.TrimSpace(q.Character); c != "" {
		b.WriteString(" AND (' ' || s.characters || ' ') LIKE " + place("% "+c+" %") + " ")
	}
	if l := strings.TrimSpace(q.Location); l != "" {
		b.WriteString(" AND lower(s.location) = " + place(strings.ToLower(l)) + " ")
	}
	switch {
	case q.SceneFrom > 0 && q.SceneTo > 0 && q.SceneTo >= q.SceneFrom:
		b.WriteString(" AND s.scene BETWEEN " + place(q.SceneFrom) + " AND " + place(q.SceneTo) + " ")
	case q.SceneFrom > 0:
		b.WriteString(" AND s.scene >= " + place(q.SceneFrom) + " ")
	case q.SceneTo > 0:
		b.WriteString(" AND s.scene <= " + place(q.SceneTo) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	b.WriteString(" ORDER BY s.position LIMIT " + place(limit) + " OFFSET " + place(max(q.Offset, 0)))

	rows, err := a.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.DocID, &r.ShotID, &r.Scene, &r.Position, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// applyMigrations applies embedded SQL migrations in filename order, each in
// its own transaction together with its schema_migrations row.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithComponent("archive")
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if strings.TrimSpace(string(b)) != "" {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply %s: %w", fname, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
