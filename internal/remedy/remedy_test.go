/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remedy

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
)

func mustDoc(t *testing.T, raw string) *domain.Document {
	t.Helper()
	var d domain.Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	return &d
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := domain.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func ofType(issues []domain.Issue, typ domain.IssueType) []domain.Issue {
	var out []domain.Issue
	for _, is := range issues {
		if is.Type == typ {
			out = append(out, is)
		}
	}
	return out
}

func TestAutoFixTimelineGap(t *testing.T) {
	doc := mustDoc(t, `{"script":[
		{"timeline":"0:00 - 0:05","visualPlan":[{"shotId":"s1","compositionPrompt":"a path"}]},
		{"timeline":"0:10 - 0:15","visualPlan":[{"shotId":"s2","compositionPrompt":"a path"}]},
		{"timeline":"0:15 - 0:20","visualPlan":[{"shotId":"s3","compositionPrompt":"a path"}]}
	]}`)
	before := mustJSON(t, doc)
	res := analysis.Analyze(doc)
	fixed, n := AutoFix(doc, ofType(res.Issues, domain.IssueTimeline))
	if n != 1 {
		t.Fatalf("expected 1 fix, got %d", n)
	}
	if got := fixed.Script[1].Timeline; got != "0:05 - 0:10" {
		t.Fatalf("scene 2 timeline = %q", got)
	}
	if got := fixed.Script[2].Timeline; got != "0:15 - 0:20" {
		t.Fatalf("scene 3 must keep its own window, got %q", got)
	}
	if mustJSON(t, doc) != before {
		t.Fatalf("AutoFix mutated its input")
	}
	if left := ofType(analysis.Analyze(fixed).Issues, domain.IssueTimeline); len(left) != 1 {
		// scene 3 now starts 5s after scene 2 ends
		t.Fatalf("expected the shifted gap to surface on re-analysis, got %+v", left)
	}
}

func TestAutoFixCharacterLock(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"char_a walks","character_definitions":[{"id":"char_a"}]},
		{"shotId":"s2","compositionPrompt":"Mia waves","character_definitions":[{"id":"char_mia_02"}]}
	]}]}`)
	locks := ofType(analysis.Analyze(doc).Issues, domain.IssueCharacterLock)
	fixed, n := AutoFix(doc, locks)
	if n != 2 {
		t.Fatalf("expected 2 fixes, got %d", n)
	}
	if p := fixed.Script[0].VisualPlan[0].CompositionPrompt; p != "{char_a} char_a walks" {
		t.Fatalf("unexpected prompt %q", p)
	}
	if p := fixed.Script[0].VisualPlan[1].CompositionPrompt; p != "{char_mia_02} Mia waves" {
		t.Fatalf("unexpected prompt %q", p)
	}
	if again := ofType(analysis.Analyze(fixed).Issues, domain.IssueCharacterLock); len(again) != 0 {
		t.Fatalf("lock issues remain: %+v", again)
	}
	if _, n := AutoFix(fixed, locks); n != 0 {
		t.Fatalf("second fix must be a no-op, got %d", n)
	}
}

func TestAutoFixFlightAndSfx(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"The owl Flies over the barn"},
		{"shotId":"s2","compositionPrompt":"the kitten chases a moth on the floor","sync":{"audio":{"sfx":"sfx_rustle"}}}
	]}]}`)
	res := analysis.Analyze(doc)
	var picked []domain.Issue
	picked = append(picked, ofType(res.Issues, domain.IssuePhysics)...)
	picked = append(picked, ofType(res.Issues, domain.IssueSfx)...)
	picked = append(picked, domain.Issue{Type: domain.IssueLocation, ShotID: "s1"})
	fixed, n := AutoFix(doc, picked)
	if p := fixed.Script[0].VisualPlan[0].CompositionPrompt; p != "The owl jumps and Flies over the barn" {
		t.Fatalf("unexpected prompt %q", p)
	}
	got := fixed.Script[0].VisualPlan[1].SFXList()
	want := []string{"sfx_light_scamper_wood"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sfx mismatch (-want +got):\n%s", diff)
	}
	// flight, wing flutter, scamper added, low-quality rustle replaced
	if n != 4 {
		t.Fatalf("expected 4 fixes, got %d", n)
	}
}

func TestAutoFixSkipsUnknownShots(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[{"shotId":"s1","compositionPrompt":"x"}]}]}`)
	_, n := AutoFix(doc, []domain.Issue{{Type: domain.IssueCharacterLock, ShotID: "nope", Details: map[string]any{domain.DetailCharacterID: "a"}}})
	if n != 0 {
		t.Fatalf("expected no fixes, got %d", n)
	}
	if out, n := AutoFix(nil, nil); out != nil || n != 0 {
		t.Fatalf("nil document must yield nil, 0")
	}
}

func TestStabilizeShotDefaults(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[{
		"shotId":"s1",
		"compositionPrompt":"{char_a} sniffs prop_ball_01 near prop_apple. Photographic digital capture, old tail",
		"character_definitions":[{"id":"char_a"},{"id":"char_b","seed":7}],
		"props":[{"id":"prop_ball_01","type":"toy"}],
		"props_reference":["prop_zed"],
		"camera_axis_lock":false,
		"exposure_lock":false,
		"contrast_match":"hard",
		"sync":{"lighting":{"white_balance":"3200K","style":"moody"}},
		"technical":{"negative_prompts":["blurry","text"]},
		"continuity":{"scene_anchor":"custom anchor"}
	}]}]}`)
	orig := doc.Script[0].VisualPlan[0]
	before := mustJSON(t, orig)
	s, err := StabilizeShot(orig)
	if err != nil {
		t.Fatalf("StabilizeShot: %v", err)
	}
	if mustJSON(t, orig) != before {
		t.Fatalf("StabilizeShot mutated its input")
	}

	if want := "{char_a} sniffs prop_ball_01 near prop_apple. " + CaptureClause; s.CompositionPrompt != want {
		t.Fatalf("prompt = %q", s.CompositionPrompt)
	}
	if s.Sync.Camera["camera_axis_lock"] != false || s.Sync.Camera["lens.match_previous"] != true || s.Sync.Camera["stabilization"] != "strong" {
		t.Fatalf("camera = %v", s.Sync.Camera)
	}
	l := s.Sync.Lighting
	if l["style"] != "moody" || l["white_balance"] != "5600K" || l["exposure_lock"] != false || l["contrast_match"] != "hard" || l["light_direction_lock"] != "southwest" {
		t.Fatalf("lighting = %v", l)
	}
	if s.CameraAxisLock != nil || s.ExposureLock != nil {
		t.Fatalf("top-level locks must be folded away")
	}
	if *s.CharacterDefinitions[0].Scale != 1 || s.CharacterDefinitions[1].Scale != nil {
		t.Fatalf("only the first character gets a default scale")
	}
	if *s.CharacterDefinitions[0].Seed != 1001 || *s.CharacterDefinitions[1].Seed != 7 {
		t.Fatalf("unexpected character seeds")
	}
	if s.Props[0].Continuity != domain.PropPersistent || *s.Props[0].Seed != 2001 {
		t.Fatalf("prop = %+v", s.Props[0])
	}
	if diff := cmp.Diff([]string{"prop_apple", "prop_ball_01", "prop_zed"}, s.PropsReference); diff != "" {
		t.Fatalf("props_reference mismatch: %s", diff)
	}
	neg, _ := s.Technical["negative_prompts"].([]any)
	if len(neg) != 8 || neg[0] != "blurry" || neg[1] != "text" {
		t.Fatalf("negative prompts = %v", neg)
	}
	if s.Technical["seed"] != float64(3001) || s.Technical["color_space"] != "Rec709" {
		t.Fatalf("technical = %v", s.Technical)
	}
	c := s.Continuity
	if c.SceneAnchor != "custom anchor" || c.ReferenceScene != "prev" || !*c.EnvironmentInherit {
		t.Fatalf("continuity = %+v", c)
	}
	if diff := cmp.Diff([]string{"char_a", "char_b"}, c.CharacterStateInherit); diff != "" {
		t.Fatalf("character_state_inherit: %s", diff)
	}
	if s.Environment["inherit"] != true || s.Environment["modifications"] != "minor only (≤10%)" {
		t.Fatalf("environment = %v", s.Environment)
	}
	if len(s.StatePersistence) != 3 || s.Anchors == nil || !*s.PhysicsGravityLock {
		t.Fatalf("remaining defaults missing: %+v", s)
	}
}

func TestStabilizeIsIdempotent(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[{
		"shotId":"s1","compositionPrompt":"a fox","camera_axis_lock":false,
		"animation":{"motion_constraints":["no random zooms or reframing","slow"]}
	}]}]}`)
	once, err := StabilizeShot(doc.Script[0].VisualPlan[0])
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := StabilizeShot(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if diff := cmp.Diff(mustJSON(t, once), mustJSON(t, twice)); diff != "" {
		t.Fatalf("stabilize is not idempotent:\n%s", diff)
	}
	if once.Sync.Camera["camera_axis_lock"] != false {
		t.Fatalf("an explicit false axis lock must survive")
	}
	if mc, _ := once.Animation["motion_constraints"].([]any); len(mc) != 5 {
		t.Fatalf("motion constraints = %v", mc)
	}
}

func TestStabilizeEmptyPropsReferenceDropped(t *testing.T) {
	s, err := StabilizeShot(&domain.Shot{ShotID: "s", CompositionPrompt: "calm", PropsReference: []string{}})
	if err != nil {
		t.Fatalf("StabilizeShot: %v", err)
	}
	if s.PropsReference != nil {
		t.Fatalf("empty props_reference must be removed, got %v", s.PropsReference)
	}
	if _, err := StabilizeShot(nil); err == nil {
		t.Fatalf("nil shot must fail")
	}
}

func TestStabilizeFixesPropPersistence(t *testing.T) {
	// both shots carry every other lock so the prop issue is reported alone
	const locks = `"technical":{"seed":3001,"color_space":"Rec709","no_LUT":true},"screen_direction":"lock_left_to_right","parallax_lock":true,"continuity":{"scene_anchor":"inherit from previous shot"}`
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"a",`+locks+`,"props_reference":["prop_cup"],"props":[{"id":"prop_cup","continuity":"persistent"}]},
		{"shotId":"s2","compositionPrompt":"b",`+locks+`,"props_reference":["prop_cup"],"props":[{"id":"prop_cup"}]}
	]}]}`)
	got := ofType(analysis.Analyze(doc).Issues, domain.IssueProp)
	if len(got) != 1 || got[0].ID != "s2-prop-persistent-prop_cup" {
		t.Fatalf("expected the prop persistence issue before stabilization, got %+v", got)
	}
	out, rep := StabilizeDocument(doc)
	if rep.Stabilized != 2 || len(rep.Failed) != 0 || !rep.Changed() {
		t.Fatalf("report = %+v", rep)
	}
	if c := out.FindShot("s2").Props[0].Continuity; c != domain.PropPersistent {
		t.Fatalf("continuity = %q", c)
	}
	for _, is := range analysis.Analyze(out).Issues {
		if strings.Contains(is.ID, "prop-persistent") {
			t.Fatalf("prop persistence issue remains: %+v", is)
		}
	}
}

func TestMergedContinuityPatchFixesProp(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"a","props_reference":["prop_cup"],"props":[{"id":"prop_cup","continuity":"persistent"}]},
		{"shotId":"s2","compositionPrompt":"b","props_reference":["prop_cup"],"props":[{"id":"prop_cup","type":"mug"}]}
	]}]}`)
	var merged *domain.Issue
	for _, is := range analysis.Analyze(doc).Issues {
		is := is
		if is.ID == "s2-continuity-patch" {
			merged = &is
		}
	}
	if merged == nil {
		t.Fatalf("expected s2 issues to merge into a continuity patch")
	}
	out, err := ApplyPatch(doc, "s2", merged.Patch)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	p := out.FindShot("s2").Props[0]
	if p.Continuity != domain.PropPersistent || p.Type != "mug" {
		t.Fatalf("prop after patch = %+v", p)
	}
	for _, is := range analysis.Analyze(out).Issues {
		if strings.Contains(is.ID, "s2-prop-persistent") || is.ID == "s2-continuity-patch" {
			t.Fatalf("issue remains after applying the merged patch: %+v", is)
		}
	}
}

func TestConsolidateCharacters(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"a","character_definitions":[{"id":"char_a","appearance":{"fur_color":"brown"}}]},
		{"shotId":"s2","compositionPrompt":"b","character_definitions":[{"id":"char_a","appearance":{"fur_color":"white"}},{"id":"char_b"}]},
		{"shotId":"s3","compositionPrompt":"c","character_definitions":[{"id":"char_a","appearance":{"fur_color":"brown"}}]}
	]}]}`)
	out, n := ConsolidateCharacters(doc)
	if n != 1 {
		t.Fatalf("expected 1 changed shot, got %d", n)
	}
	if got := out.FindShot("s2").CharacterDefinitions[0].Appearance["fur_color"]; got != "brown" {
		t.Fatalf("master not enforced: %v", got)
	}
	if doc.FindShot("s2").CharacterDefinitions[0].Appearance["fur_color"] != "white" {
		t.Fatalf("input mutated")
	}
	out2, n2 := ConsolidateCharacters(out)
	if n2 != 0 {
		t.Fatalf("second consolidation changed %d shots", n2)
	}
	if diff := cmp.Diff(mustJSON(t, out), mustJSON(t, out2)); diff != "" {
		t.Fatalf("consolidation is not idempotent:\n%s", diff)
	}
	out.FindShot("s1").CharacterDefinitions[0].Appearance["fur_color"] = "grey"
	if out.FindShot("s3").CharacterDefinitions[0].Appearance["fur_color"] != "brown" {
		t.Fatalf("consolidated definitions must not share state")
	}
}

func TestApplySuggestion(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[{"shotId":"s1","compositionPrompt":"  two cats sit  "}]}]}`)
	out, err := ApplySuggestion(doc, "s1", " In the foreground, {a} is on the left.")
	if err != nil {
		t.Fatalf("ApplySuggestion: %v", err)
	}
	if p := out.FindShot("s1").CompositionPrompt; p != "two cats sit In the foreground, {a} is on the left." {
		t.Fatalf("prompt = %q", p)
	}
	if _, err := ApplySuggestion(doc, "zz", "x"); !errors.Is(err, ErrShotNotFound) {
		t.Fatalf("expected ErrShotNotFound, got %v", err)
	}
}

func TestApplyJSONPatch(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[{"shotId":"s1","compositionPrompt":"a",
		"technical":{"seed":5,"fps":30},"props_reference":["prop_a"],"mood":"calm"}]}]}`)
	before := mustJSON(t, doc)

	out, err := ApplyJSONPatch(doc, "s1", `{"continuity_patch":{"technical":{"color_space":"Rec709"},"props_reference":["prop_b"],"parallax_lock":true}}`)
	if err != nil {
		t.Fatalf("ApplyJSONPatch: %v", err)
	}
	sh := out.FindShot("s1")
	want := domain.Record{"seed": 5.0, "fps": 30.0, "color_space": "Rec709"}
	if diff := cmp.Diff(want, sh.Technical); diff != "" {
		t.Fatalf("technical mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"prop_b"}, sh.PropsReference); diff != "" {
		t.Fatalf("arrays are replaced, not merged: %s", diff)
	}
	if sh.ParallaxLock == nil || !*sh.ParallaxLock {
		t.Fatalf("parallax_lock not applied")
	}
	if !strings.Contains(mustJSON(t, sh), `"mood":"calm"`) {
		t.Fatalf("unknown keys must survive a patch")
	}

	for _, bad := range []string{`{not json`, `[1,2]`, `{"parallax_lock":"yes"}`} {
		if _, err := ApplyJSONPatch(doc, "s1", bad); !errors.Is(err, ErrInvalidPatch) {
			t.Fatalf("%s: expected ErrInvalidPatch, got %v", bad, err)
		}
	}
	if _, err := ApplyJSONPatch(doc, "missing", `{}`); !errors.Is(err, ErrShotNotFound) {
		t.Fatalf("expected ErrShotNotFound, got %v", err)
	}
	if mustJSON(t, doc) != before {
		t.Fatalf("patching mutated its input")
	}
}

func TestApplyMergedContinuityPatch(t *testing.T) {
	doc := mustDoc(t, `{"script":[{"visualPlan":[
		{"shotId":"s1","compositionPrompt":"a quiet path","technical":{"seed":3001,"color_space":"Rec709","no_LUT":true},"screen_direction":"lock_left_to_right","parallax_lock":true},
		{"shotId":"s2","compositionPrompt":"a quiet path"}
	]}]}`)
	res := analysis.Analyze(doc)
	var merged *domain.Issue
	for i := range res.Issues {
		if res.Issues[i].ID == "s2-continuity-patch" {
			merged = &res.Issues[i]
		}
	}
	if merged == nil {
		t.Fatalf("expected a merged patch: %+v", res.Issues)
	}
	out, err := ApplyJSONPatch(doc, "s2", merged.Suggestion)
	if err != nil {
		t.Fatalf("apply merged patch: %v", err)
	}
	if left := analysis.Analyze(out).IssuesFor("s2"); len(left) != 0 {
		t.Fatalf("merged patch must resolve the cluster, left: %+v", left)
	}
}
