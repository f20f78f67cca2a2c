/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shotlint/internal/domain"
	"shotlint/internal/storage"
)

func testWorkspace(t *testing.T) *storage.Workspace {
	t.Helper()
	doc := &domain.Document{Script: []*domain.Scene{{Timeline: "0:00 - 0:04", VisualPlan: []*domain.Shot{
		{ShotID: "s1", CompositionPrompt: "A fox crosses the field"},
	}}}}
	ws, err := storage.NewWorkspace(filepath.Join(t.TempDir(), "script.json"), doc)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "shotlint crash report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportCreatesFileInWorkspaceBackups(t *testing.T) {
	ws := testWorkspace(t)
	path, err := writeReport(ws, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != ws.BackupsDir() {
		t.Fatalf("expected crash report under backups dir, got %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Scenes: 1 Shots: 1") {
		t.Fatalf("document summary missing: %s", b)
	}
}
