/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDoc = `{
  "title": "Garden",
  "script": [
    {
      "timeline": "0:00 - 0:05",
      "hostDialogue": "hello",
      "visualPlan": [
        {
          "shotId": "s1",
          "compositionPrompt": "{char_a} <walks> & sniffs",
          "character_definitions": [{"id": "char_a", "appearance": {"fur_color": "brown"}, "mood": "calm"}],
          "sync": {"duration": "5s", "audio": {"sfx": "sfx_rustle"}, "camera": {"lens": {"focal_length": 35}}},
          "state_persistence": [],
          "parallax_lock": false,
          "custom_flag": {"a": 1}
        },
        null
      ]
    }
  ]
}`

func TestDocumentRoundTripKeepsUnknownKeys(t *testing.T) {
	var d Document
	if err := json.Unmarshal([]byte(sampleDoc), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	shots := d.Shots()
	if len(shots) != 1 {
		t.Fatalf("expected nil shot entries to be skipped, got %d shots", len(shots))
	}
	s := shots[0]
	if got := s.SFXList(); len(got) != 1 || got[0] != "sfx_rustle" {
		t.Fatalf("single-string sfx not normalized: %v", got)
	}
	if s.StatePersistence == nil {
		t.Fatalf("empty state_persistence must stay present")
	}
	if s.ParallaxLock == nil || *s.ParallaxLock {
		t.Fatalf("explicit false parallax_lock lost: %v", s.ParallaxLock)
	}

	out, err := Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	str := string(out)
	for _, want := range []string{`"title":"Garden"`, `"custom_flag":{"a":1}`, `"mood":"calm"`, `"state_persistence":[]`, `<walks> & sniffs`} {
		if !strings.Contains(str, want) {
			t.Fatalf("output missing %s: %s", want, str)
		}
	}
	if strings.Contains(str, `"location"`) {
		t.Fatalf("absent location must not be emitted: %s", str)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	var d Document
	if err := json.Unmarshal([]byte(sampleDoc), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	before, _ := Marshal(d)
	c := d.Clone()
	cs := c.Shots()[0]
	cs.CompositionPrompt = "changed"
	cs.CharacterDefinitions[0].Appearance["fur_color"] = "white"
	cs.Sync.Camera["lens"].(map[string]any)["focal_length"] = 85.0
	cs.Sync.Audio.SFX = append(cs.Sync.Audio.SFX, "sfx_x")
	*cs.ParallaxLock = true
	after, _ := Marshal(d)
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Fatalf("mutating the clone changed the original (-before +after):\n%s", diff)
	}
}

func TestObjectKeepsOrder(t *testing.T) {
	o := NewObject().Set("z", 1).Set("a", NewObject().Set("y", true).Set("b", "x")).Set("m", []any{"p"})
	o.Set("z", 2)
	b, err := Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"z":2,"a":{"y":true,"b":"x"},"m":["p"]}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
	var back Object
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "a", "m"}, back.Keys()); diff != "" {
		t.Fatalf("key order lost: %s", diff)
	}
	nested, _ := back.Get("a")
	if got := nested.(*Object).Keys(); got[0] != "y" {
		t.Fatalf("nested order lost: %v", got)
	}
	back.Delete("a")
	if back.Len() != 2 {
		t.Fatalf("delete failed: %v", back.Keys())
	}
}

func TestObjectMergeOneLevel(t *testing.T) {
	dst := NewObject().
		Set("technical", NewObject().Set("seed", 7).Set("fps", 24)).
		Set("props_reference", []any{"prop_a"})
	p := NewObject().
		Set("technical", NewObject().Set("seed", 3001).Set("no_LUT", true)).
		Set("props_reference", []any{"prop_b"}).
		Set("continuity", NewObject().Set("reference_scene", "prev"))
	dst.Merge(p).Merge(nil)

	b, err := Marshal(dst)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"technical":{"seed":3001,"fps":24,"no_LUT":true},"props_reference":["prop_b"],"continuity":{"reference_scene":"prev"}}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}

	// values are copied out of p
	c, _ := p.Get("continuity")
	c.(*Object).Set("reference_scene", "s1")
	got, _ := dst.Get("continuity")
	if v, _ := got.(*Object).Get("reference_scene"); v != "prev" {
		t.Fatalf("merge shares nested objects with the patch: %v", v)
	}
}

func TestEmptyResultZeroFilled(t *testing.T) {
	r := EmptyResult()
	if len(r.IssueCounts) != len(IssueTypes) {
		t.Fatalf("expected %d categories, got %d", len(IssueTypes), len(r.IssueCounts))
	}
	for _, it := range IssueTypes {
		if v, ok := r.IssueCounts[it]; !ok || v != 0 {
			t.Fatalf("category %s not zero-filled", it)
		}
	}
}
