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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the workspace's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, WorkDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the workspace SQLite index exists at .shotlint/index.sqlite,
// opens the database, enables WAL mode, and ensures the meta/version tables exist.
// The returned *sql.DB is ready for use. Callers close it when no longer needed.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, WorkDirName), 0o755); err != nil {
		l.Error("create work dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create %s dir: %w", WorkDirName, err)
	}

	path := IndexPath(root)
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Fresh DB starts at the current schema
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Lookup indexes for history listings
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(ts);`,
				`CREATE INDEX IF NOT EXISTS idx_snapshots_script_ts ON snapshots(script, ts);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best-effort FTS optimize
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_shots(fts_shots) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the shot index, FTS, snapshot and run tables if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per shot in reading order
		`CREATE TABLE IF NOT EXISTS shots (
			doc_id     INTEGER PRIMARY KEY,
			shot_id    TEXT    NOT NULL,
			scene      INTEGER NOT NULL,
			position   INTEGER NOT NULL,
			location   TEXT,
			characters TEXT,
			prompt     TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shots_shot_id ON shots(shot_id);`,

		// External-content FTS5 index over shots.prompt, synchronized by triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_shots USING fts5(
			prompt,
			content='shots',
			content_rowid='doc_id',
			tokenize = 'unicode61'
		);`,

		// Compressed script versions
		`CREATE TABLE IF NOT EXISTS snapshots (
			id      INTEGER PRIMARY KEY,
			script  TEXT    NOT NULL,
			ts      TEXT    NOT NULL,
			reason  TEXT    NOT NULL,
			size    INTEGER NOT NULL,
			blob    BLOB    NOT NULL
		);`,

		// Recorded analysis runs; report is the zstd-compressed result JSON
		`CREATE TABLE IF NOT EXISTS runs (
			id        TEXT    PRIMARY KEY,
			script    TEXT    NOT NULL,
			ts        TEXT    NOT NULL,
			total     INTEGER NOT NULL,
			ready     INTEGER NOT NULL,
			critical  INTEGER NOT NULL,
			warnings  INTEGER NOT NULL,
			report    BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_script_ts ON snapshots(script, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	// Triggers keeping fts_shots in step with shots.prompt
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS shots_ai AFTER INSERT ON shots BEGIN
			INSERT INTO fts_shots(rowid, prompt) VALUES (new.doc_id, new.prompt);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS shots_ad AFTER DELETE ON shots BEGIN
			INSERT INTO fts_shots(fts_shots, rowid, prompt) VALUES ('delete', old.doc_id, old.prompt);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS shots_au AFTER UPDATE OF prompt ON shots BEGIN
			INSERT INTO fts_shots(fts_shots, rowid, prompt) VALUES ('delete', old.doc_id, old.prompt);
			INSERT INTO fts_shots(rowid, prompt) VALUES (new.doc_id, new.prompt);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index if needed.
// It returns true when a rebuild was performed. A rebuilt index starts with empty history.
func DetectAndRebuildIndex(ctx context.Context, root string, doc *domain.Document) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if rbErr := RebuildIndex(ctx, root, doc); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM shots LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if err := RebuildIndex(ctx, root, doc); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .shotlint/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, p := range []string{indexPath, indexPath + "-wal", indexPath + "-shm"} {
		_ = os.Remove(p)
	}
}

// BuildIndexIfEmpty populates the shot index from doc when it has no rows yet.
func BuildIndexIfEmpty(ctx context.Context, root string, doc *domain.Document) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shots;").Scan(&cnt); err != nil {
		return fmt.Errorf("check shots count: %w", err)
	}
	if cnt > 0 {
		return nil
	}
	return rebuildShotsFromDocument(ctx, db, doc)
}

// UpdateIndex replaces the shot index content from doc.
func UpdateIndex(ctx context.Context, root string, doc *domain.Document) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return rebuildShotsFromDocument(ctx, db, doc)
}

// RebuildIndex drops and recreates the shot index and FTS tables and fills
// them from doc. Snapshots and runs are kept.
func RebuildIndex(ctx context.Context, root string, doc *domain.Document) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS shots_ai;",
		"DROP TRIGGER IF EXISTS shots_ad;",
		"DROP TRIGGER IF EXISTS shots_au;",
		"DROP TABLE IF EXISTS shots;",
		"DROP TABLE IF EXISTS fts_shots;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return rebuildShotsFromDocument(ctx, db, doc)
}

// rebuildShotsFromDocument replaces the shots table content with the shots of doc.
func rebuildShotsFromDocument(ctx context.Context, db *sql.DB, doc *domain.Document) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM shots;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear shots: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO shots(shot_id, scene, position, location, characters, prompt) VALUES(?,?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range ShotRows(doc) {
		var loc sql.NullString
		if r.Location != "" {
			loc = sql.NullString{String: r.Location, Valid: true}
		}
		if _, err := ins.ExecContext(ctx, r.ShotID, r.Scene, r.Position, loc, r.Characters, r.Prompt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert shot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
