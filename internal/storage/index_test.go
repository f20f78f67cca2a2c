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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestInitOrOpenIndex(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()
	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode;`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if strings.ToLower(mode) != "wal" {
		t.Fatalf("expected WAL, got %s", mode)
	}
	var schema int
	if err := db.QueryRow(`SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("expected schema %d, got %d", schemaVersion, schema)
	}
	if _, err := InitOrOpenIndex("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

// TestMigrations_UpgradeV1ToV2 ensures that an older DB (schema=1) is migrated and the history indexes exist.
func TestMigrations_UpgradeV1ToV2(t *testing.T) {
	root := t.TempDir()
	idx := IndexPath(root)
	if err := os.MkdirAll(filepath.Dir(idx), 0o755); err != nil {
		t.Fatalf("mk work dir: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(idx))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
		`CREATE TABLE IF NOT EXISTS runs (id TEXT PRIMARY KEY, script TEXT NOT NULL, ts TEXT NOT NULL, total INTEGER NOT NULL, ready INTEGER NOT NULL, critical INTEGER NOT NULL, warnings INTEGER NOT NULL, report BLOB NOT NULL);`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	mdb, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer mdb.Close()
	var schema int
	if err := mdb.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != 2 {
		t.Fatalf("expected schema 2 after migration, got %d", schema)
	}
	var cnt int
	if err := mdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name in ('idx_runs_ts','idx_snapshots_script_ts')`).Scan(&cnt); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected history indexes after migration, got %d", cnt)
	}
}

func TestDetectAndRebuildIndex_OnCorruption(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := BuildIndexIfEmpty(ctx, root, testDoc()); err != nil {
		t.Fatalf("BuildIndexIfEmpty: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root, testDoc())
	if err != nil || rebuilt {
		t.Fatalf("healthy index should not be rebuilt: %v %v", rebuilt, err)
	}

	idx := IndexPath(root)
	removeIndexFiles(idx)
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	rebuilt, err = DetectAndRebuildIndex(ctx, root, testDoc())
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	res, err := Search(ctx, root, SearchQuery{Text: "moon"})
	if err != nil || len(res) != 1 || res[0].ShotID != "s3" {
		t.Fatalf("rebuilt index should be searchable: %+v %v", res, err)
	}
	bdir := filepath.Join(root, WorkDirName, BackupsDirName)
	entries, _ := os.ReadDir(bdir)
	if len(entries) == 0 {
		t.Fatalf("expected backup file in %s", bdir)
	}
}

func TestSearch(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	if err := UpdateIndex(ctx, root, testDoc()); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}

	res, err := Search(ctx, root, SearchQuery{Text: "barn"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].ShotID != "s2" || res[0].Scene != 1 || res[0].Position != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[barn]") {
		t.Fatalf("expected highlighted snippet, got %q", res[0].Snippet)
	}

	res, err = Search(ctx, root, SearchQuery{Character: "char_fox"})
	if err != nil || len(res) != 2 || res[0].ShotID != "s1" || res[1].ShotID != "s3" {
		t.Fatalf("character filter: %+v %v", res, err)
	}
	// char_fo must not match char_fox
	res, _ = Search(ctx, root, SearchQuery{Character: "char_fo"})
	if len(res) != 0 {
		t.Fatalf("character filter should match whole ids: %+v", res)
	}

	res, _ = Search(ctx, root, SearchQuery{Location: "BARN", SceneFrom: 2})
	if len(res) != 1 || res[0].ShotID != "s3" {
		t.Fatalf("location+scene filter: %+v", res)
	}
	res, _ = Search(ctx, root, SearchQuery{Limit: 1, Offset: 1})
	if len(res) != 1 || res[0].ShotID != "s2" {
		t.Fatalf("pagination: %+v", res)
	}

	// Reindex after an edit replaces the content
	doc := testDoc()
	doc.FindShot("s2").CompositionPrompt = "The owl lands on the fence"
	if err := UpdateIndex(ctx, root, doc); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	res, _ = Search(ctx, root, SearchQuery{Text: "roof"})
	if len(res) != 0 {
		t.Fatalf("stale prompt still indexed: %+v", res)
	}
	res, _ = Search(ctx, root, SearchQuery{Text: "fence"})
	if len(res) != 1 {
		t.Fatalf("new prompt not indexed: %+v", res)
	}
}
