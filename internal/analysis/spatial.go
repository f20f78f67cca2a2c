/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

// wetness is the per-character state of the wet/dry tracker.
type wetness struct {
	wet, dry bool
}

// spatialTemporal covers mirrored anchors between consecutive shots, the
// wet/dry state machine per character and missing reaction shots.
func (a *Analyzer) spatialTemporal(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	states := map[string]*wetness{}
	for i, cur := range shots {
		curPrompt := strings.ToLower(cur.CompositionPrompt)

		if i > 0 {
			if is, ok := mirrored(shots[i-1], cur); ok {
				out = append(out, is)
			}
		}

		for _, cd := range cur.CharacterDefinitions {
			if cd == nil {
				continue
			}
			st := states[cd.ID]
			if st == nil {
				st = &wetness{}
				states[cd.ID] = st
			}
			if rules.ContainsAny(curPrompt, a.rules.Temporal.Wet) {
				// Any state_persistence, even empty, means the author owns
				// the transition.
				if st.dry && cur.StatePersistence == nil {
					out = append(out, withPatch(domain.Issue{
						ID:       cur.ShotID + "-temporal-state-" + cd.ID,
						Type:     domain.IssueTimeline,
						Severity: domain.SeverityCritical,
						ShotID:   cur.ShotID,
						Message:  fmt.Sprintf("Character '%s' changes state illogically (dry, then wet again).", cd.ID),
					}, fields(
						"state_persistence", []any{"wet_fur", "mud_stains"},
						"state_decay_rate", "linear")))
				}
				st.wet, st.dry = true, false
			}
			if rules.ContainsAny(curPrompt, a.rules.Temporal.Dry) && st.wet {
				st.wet, st.dry = false, true
			}
		}

		if i > 0 {
			prevPrompt := strings.ToLower(shots[i-1].CompositionPrompt)
			if rules.ContainsAny(prevPrompt, a.rules.Narrative.Alarms) && !rules.ContainsAny(curPrompt, a.rules.Narrative.Reactions) {
				out = append(out, domain.Issue{
					ID:         cur.ShotID + "-narrative-reaction",
					Type:       domain.IssueNarrative,
					Severity:   domain.SeverityWarning,
					ShotID:     cur.ShotID,
					Message:    "A reaction shot is missing after a significant event.",
					Suggestion: "Insert a shot showing the character reacting to the previous event to keep the story flowing.",
				})
			}
		}
	}
	return out
}

// mirrored compares the lexicographically first anchor of prev with the same
// anchor in cur. A negated x coordinate suggests a flipped layout; x=0 counts
// as its own negation.
func mirrored(prev, cur *domain.Shot) (domain.Issue, bool) {
	if prev.Anchors == nil || cur.Anchors == nil || strings.Contains(cur.ScreenDirection, "lock") || len(prev.Anchors) == 0 {
		return domain.Issue{}, false
	}
	keys := make([]string, 0, len(prev.Anchors))
	for k := range prev.Anchors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := keys[0]
	pa := prev.Anchors[key]
	ca, ok := cur.Anchors[key]
	if !ok || len(pa.XY) == 0 || len(ca.XY) == 0 {
		return domain.Issue{}, false
	}
	if pa.XY[0] != -ca.XY[0] {
		return domain.Issue{}, false
	}
	return withPatch(domain.Issue{
		ID:       cur.ShotID + "-spatial-mirror",
		Type:     domain.IssueSpatial,
		Severity: domain.SeverityCritical,
		ShotID:   cur.ShotID,
		Message:  fmt.Sprintf("The layout may be mirrored: anchor '%s' flipped horizontally.", key),
	}, directionLockPatch()), true
}

// cinematography checks axis jumps, lens drift and white balance jumps
// between consecutive shots.
func (a *Analyzer) cinematography(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for i := 1; i < len(shots); i++ {
		prev, cur := shots[i-1], shots[i]

		pc, cc := firstCharacter(prev), firstCharacter(cur)
		if pc != nil && cc != nil && pc.ID == cc.ID &&
			strings.Contains(pc.Position, "left") && strings.Contains(cc.Position, "right") {
			out = append(out, withPatch(domain.Issue{
				ID:       cur.ShotID + "-camera-axis",
				Type:     domain.IssueCamera,
				Severity: domain.SeverityCritical,
				ShotID:   cur.ShotID,
				Message:  "Possible axis jump (180-degree rule violation).",
			}, fields("camera_axis_lock", true, "mirror_flip", false)))
		}

		pl, okp := focalLength(prev)
		cl, okc := focalLength(cur)
		if okp && okc && pl != 0 && cl != 0 && math.Abs(pl-cl) > 10 {
			out = append(out, withPatch(domain.Issue{
				ID:       cur.ShotID + "-camera-lens",
				Type:     domain.IssueCamera,
				Severity: domain.SeverityWarning,
				ShotID:   cur.ShotID,
				Message:  fmt.Sprintf("Lens focal length jumps from %smm to %smm.", formatNumber(pl), formatNumber(cl)),
			}, fields("lens.match_previous", true, "lens_variation", "±10mm")))
		}

		pw, okp := whiteBalance(prev)
		cw, okc := whiteBalance(cur)
		if okp && okc && absInt(pw-cw) > 300 {
			out = append(out, withPatch(domain.Issue{
				ID:       cur.ShotID + "-lighting-wb",
				Type:     domain.IssueLighting,
				Severity: domain.SeverityWarning,
				ShotID:   cur.ShotID,
				Message:  fmt.Sprintf("White balance jumps from %dK to %dK.", pw, cw),
			}, fields("lighting_inherit", true, "white_balance_variation", "≤300K")))
		}
	}
	return out
}

func firstCharacter(sh *domain.Shot) *domain.CharacterDefinition {
	if len(sh.CharacterDefinitions) == 0 {
		return nil
	}
	return sh.CharacterDefinitions[0]
}

func focalLength(sh *domain.Shot) (float64, bool) {
	if sh.Sync == nil {
		return 0, false
	}
	lens, ok := asMap(sh.Sync.Camera["lens"])
	if !ok {
		return 0, false
	}
	return number(lens["focal_length"])
}

// defaultWhiteBalance applies when a shot declares none.
const defaultWhiteBalance = 5600

// whiteBalance reads sync.lighting.white_balance as integer Kelvin. A
// missing value means 5600K; an unparsable one is skipped.
func whiteBalance(sh *domain.Shot) (int, bool) {
	var v any
	if sh.Sync != nil {
		v = sh.Sync.Lighting["white_balance"]
	}
	if !truthy(v) {
		return defaultWhiteBalance, true
	}
	switch t := v.(type) {
	case string:
		return leadingInt(strings.Replace(t, "K", "", 1))
	case float64:
		return int(t), true
	case int:
		return t, true
	}
	return 0, false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
