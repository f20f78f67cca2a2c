/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const oneShot = `{"script":[{"visualPlan":[{"shotId":"s1","compositionPrompt":"a fox rests"}]}]}`

const twoShots = `{"script":[{"visualPlan":[
	{"shotId":"s1","compositionPrompt":"a fox rests"},
	{"shotId":"s2","compositionPrompt":"a fox wakes"}
]}]}`

func next(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for an analysis pass")
		return Result{}
	}
}

func TestWatchReanalyzesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.json")
	if err := os.WriteFile(path, []byte(oneShot), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	results := make(chan Result, 16)
	w, err := New([]string{path}, Options{Debounce: 50 * time.Millisecond, OnResult: func(r Result) { results <- r }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	first := next(t, results)
	if first.Err != nil || first.Result.Stats.TotalShots != 1 {
		t.Fatalf("initial pass: %+v", first)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(path, []byte(twoShots), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := next(t, results)
	if second.Err != nil || second.Result.Stats.TotalShots != 2 || second.Doc.FindShot("s2") == nil {
		t.Fatalf("second pass: %+v", second)
	}

	if err := os.WriteFile(path, []byte(`{"script":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	broken := next(t, results)
	if broken.Err == nil || broken.Result.Stats.TotalShots != 0 || broken.Result.IssueCounts == nil {
		t.Fatalf("broken pass: %+v", broken)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	st := w.Stats()
	if st.Passes != 3 || st.Errors != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNewRequiresFiles(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected an error without files")
	}
}

func TestRunFailsForMissingDirectory(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "nope", "script.json")}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}
