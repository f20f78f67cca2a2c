/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultKeywordGroupsFirstAppearanceOrder(t *testing.T) {
	r := Default()
	if r != Default() {
		t.Fatalf("Default must return the same instance")
	}
	if got := r.KeywordGroups[0].Keyword; got != "whip pan" {
		t.Fatalf("first keyword group = %q", got)
	}
	var chases *KeywordGroup
	for i := range r.KeywordGroups {
		if r.KeywordGroups[i].Keyword == "chases" {
			chases = &r.KeywordGroups[i]
		}
	}
	if chases == nil || len(chases.Rules) != 3 {
		t.Fatalf("chases group should carry grass, wood and default rules: %+v", chases)
	}
	if chases.Rules[2].Context != nil {
		t.Fatalf("last chases rule should be the context-free default")
	}
	if !chases.Matches("the kitten chases a moth") || chases.Matches("the kitten chasesx") {
		t.Fatalf("keyword must match on word boundaries only")
	}
}

func TestDefaultCompiledPatterns(t *testing.T) {
	r := Default()
	if !r.FlightRe.MatchString("a bird soars") || r.FlightRe.MatchString("a bird sits") {
		t.Fatalf("flight pattern mismatch")
	}
	if r.FixFlightRe.MatchString("it hovers") {
		t.Fatalf("hovers must not be rewritten by the fixer")
	}
	m := r.ObjectRe.FindStringSubmatch("she lifts the blue crystal")
	if len(m) != 2 || m[1] != "blue crystal" {
		t.Fatalf("object pattern: %v", m)
	}
	if !r.PositionRe.MatchString("Standing NEXT TO the tree") {
		t.Fatalf("positions are case-insensitive")
	}
	if !r.LowQuality("sfx_rustle") || r.LowQuality("sfx_light_impact_rock") {
		t.Fatalf("low quality set mismatch")
	}
}

func TestLoadOverrideAndErrors(t *testing.T) {
	if r, err := Load(""); err != nil || r != Default() {
		t.Fatalf("empty path should yield the embedded set: %v", err)
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.yaml")
	custom := "sfx:\n  - keywords: [purrs]\n    sfx: sfx_purr\nphysics:\n  flight: [glides]\n  fix_flight: [glides]\n"
	if err := os.WriteFile(p, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.KeywordGroups) != 1 || r.KeywordGroups[0].Rules[0].SFX != "sfx_purr" {
		t.Fatalf("custom sfx not loaded: %+v", r.KeywordGroups)
	}
	if r.PositionRe.MatchString("left") {
		t.Fatalf("empty position list must never match")
	}

	if err := os.WriteFile(p, []byte("physics: {flight: []}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for empty flight list")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
