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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
)

func TestSnapshotsRoundTripAndPrune(t *testing.T) {
	ctx := context.Background()
	ws, err := NewWorkspace(filepath.Join(t.TempDir(), "script.json"), testDoc())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	if doc, _, err := GetLatestSnapshot(ctx, ws); err != nil || doc != nil {
		t.Fatalf("expected no snapshot yet: %v %v", doc, err)
	}

	id1, err := SaveSnapshot(ctx, ws, "fix", base)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	ws.Doc.FindShot("s1").CompositionPrompt = "changed"
	if _, err := SaveSnapshot(ctx, ws, "patch", base.Add(time.Second)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := SaveSnapshot(ctx, ws, "stabilize", base.Add(2*time.Second)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	list, err := ListSnapshots(ctx, ws, 0)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListSnapshots: %v %v", list, err)
	}
	if list[0].Reason != "stabilize" || !list[0].TS.Equal(base.Add(2*time.Second)) || list[0].Size == 0 {
		t.Fatalf("unexpected newest snapshot: %+v", list[0])
	}

	doc, meta, err := LoadSnapshot(ctx, ws, id1)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if meta.Reason != "fix" || doc.FindShot("s1").CompositionPrompt != "{char_fox} runs through the grass" {
		t.Fatalf("unexpected first snapshot: %+v", meta)
	}
	latest, _, err := GetLatestSnapshot(ctx, ws)
	if err != nil || latest.FindShot("s1").CompositionPrompt != "changed" {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}

	n, err := PruneOldSnapshots(ctx, ws, 1)
	if err != nil || n != 2 {
		t.Fatalf("PruneOldSnapshots: %d %v", n, err)
	}
	if _, _, err := LoadSnapshot(ctx, ws, id1); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestRecordAndLoadRuns(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	res := analysis.Analyze(testDoc())
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	r1, err := RecordRun(ctx, root, filepath.Join(root, "script.json"), res, base)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if r1.ID == "" || r1.Script != "script.json" {
		t.Fatalf("unexpected run: %+v", r1)
	}
	r2, err := RecordRun(ctx, root, "other.json", domain.EmptyResult(), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := ListRuns(ctx, root, 10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns: %v %v", runs, err)
	}
	if runs[0].ID != r2.ID || runs[1].ID != r1.ID {
		t.Fatalf("runs not newest first: %+v", runs)
	}
	if runs[1].Stats != res.Stats {
		t.Fatalf("stats mismatch: %+v vs %+v", runs[1].Stats, res.Stats)
	}

	got, back, err := LoadRun(ctx, root, r1.ID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if !got.TS.Equal(base) {
		t.Fatalf("unexpected ts %v", got.TS)
	}
	want, _ := domain.Marshal(res)
	have, _ := domain.Marshal(back)
	if diff := cmp.Diff(string(want), string(have)); diff != "" {
		t.Fatalf("report round trip (-want +got):\n%s", diff)
	}

	if _, _, err := LoadRun(ctx, root, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
