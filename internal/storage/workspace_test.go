/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shotlint/internal/domain"
	"shotlint/internal/script"
)

func testDoc() *domain.Document {
	return &domain.Document{Script: []*domain.Scene{
		{Timeline: "0:00 - 0:05", VisualPlan: []*domain.Shot{
			{ShotID: "s1", CompositionPrompt: "{char_fox} runs through the grass", Location: &domain.Location{ID: "meadow"},
				CharacterDefinitions: []*domain.CharacterDefinition{{ID: "char_fox"}}},
			{ShotID: "s2", CompositionPrompt: "The owl lands on the barn roof", Location: &domain.Location{ID: "barn"},
				CharacterDefinitions: []*domain.CharacterDefinition{{ID: "char_owl"}}},
		}},
		{Timeline: "0:05 - 0:10", VisualPlan: []*domain.Shot{
			{ShotID: "s3", CompositionPrompt: "{char_fox} and {char_owl} watch the moon", Location: &domain.Location{ID: "barn"},
				CharacterDefinitions: []*domain.CharacterDefinition{{ID: "char_fox"}, {ID: "char_owl"}}},
		}},
	}}
}

func TestNewWorkspaceAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ep1", "script.json")
	ws, err := NewWorkspace(path, testDoc())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if ws.Format != script.FormatJSON {
		t.Fatalf("expected json format, got %s", ws.Format)
	}
	// First save has nothing to back up
	if b, _ := Backups(ws); len(b) != 0 {
		t.Fatalf("expected no backups yet, got %v", b)
	}

	ws.Doc.FindShot("s1").CompositionPrompt = "{char_fox} sleeps"
	if err := Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := Backups(ws)
	if err != nil || len(b) != 1 {
		t.Fatalf("expected 1 backup, got %v (%v)", b, err)
	}

	re, err := OpenWorkspace(path)
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	if got := re.Doc.FindShot("s1").CompositionPrompt; got != "{char_fox} sleeps" {
		t.Fatalf("unexpected prompt after reopen: %q", got)
	}
	// no temp files left behind
	ents, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range ents {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpenFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	ws, err := NewWorkspace(path, testDoc())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(path, []byte("{ not json"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	re, err := OpenWorkspace(path)
	if err != nil {
		t.Fatalf("OpenWorkspace should use backup: %v", err)
	}
	if len(re.Doc.Shots()) != 3 {
		t.Fatalf("expected 3 shots from backup, got %d", len(re.Doc.Shots()))
	}

	if _, err := OpenWorkspace(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error for missing script without backups")
	}
}

func TestSaveAsSwitchesFormat(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(dir, "script.json"), testDoc())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	out := filepath.Join(dir, "yaml", "script.yaml")
	if err := SaveAs(ws, out); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if ws.Format != script.FormatYAML || ws.Root != filepath.Dir(out) {
		t.Fatalf("workspace not updated: %+v", ws)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "shotId: s1") {
		t.Fatalf("expected yaml output:\n%s", data)
	}
	re, err := OpenWorkspace(out)
	if err != nil || len(re.Doc.Shots()) != 3 {
		t.Fatalf("reopen yaml: %v", err)
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	ws, err := NewWorkspace(filepath.Join(t.TempDir(), "script.yaml"), testDoc())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	ws.Doc.FindShot("s2").CompositionPrompt = "unsaved edit"
	path, err := AutosaveCrashSnapshot(ws)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot: %v", err)
	}
	doc, err := script.Load(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got := doc.FindShot("s2").CompositionPrompt; got != "unsaved edit" {
		t.Fatalf("snapshot content mismatch: %q", got)
	}
	// crash snapshots are not mistaken for backups
	if b, _ := Backups(ws); len(b) != 0 {
		t.Fatalf("unexpected backups: %v", b)
	}
	if _, err := AutosaveCrashSnapshot(nil); err == nil {
		t.Fatalf("expected error for nil workspace")
	}
}
