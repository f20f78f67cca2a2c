/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

// PropStatePlaceholder is the value proposed for a missing prop state override.
const PropStatePlaceholder = "describe physical state here (e.g. 'wet with rain droplets')"

func (a *Analyzer) continuity(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for i, sh := range shots {
		if i > 0 && (sh.Continuity == nil || sh.Continuity.SceneAnchor == "") {
			out = append(out, withPatch(domain.Issue{
				ID:         sh.ShotID + "-continuity-anchor",
				Type:       domain.IssueContinuity,
				Severity:   domain.SeverityCritical,
				ShotID:     sh.ShotID,
				Message:    "The shot has no continuity anchor tying it to the previous shot.",
				Suggestion: "Run stabilize to add continuity blocks that inherit environment, lighting and character state.",
				IsFixable:  true,
			}, fields("continuity", fields(
				"scene_anchor", "inherit from previous shot",
				"reference_scene", "prev"))))
		}
		_, hasNoLUT := sh.Technical["no_LUT"]
		if !hasNoLUT || sh.Technical["color_space"] != "Rec709" {
			out = append(out, withPatch(domain.Issue{
				ID:         sh.ShotID + "-continuity-color",
				Type:       domain.IssueContinuity,
				Severity:   domain.SeverityWarning,
				ShotID:     sh.ShotID,
				Message:    "Color space or LUT settings are not locked.",
				Suggestion: "Set technical 'color_space' and 'no_LUT' to prevent color drift.",
				IsFixable:  true,
			}, fields("technical", fields("color_space", "Rec709", "no_LUT", true))))
		}
	}
	return out
}

// PropTokens returns the distinct prop_ identifiers written in prompt, in
// order of first occurrence.
func PropTokens(prompt string) []string {
	var out []string
	for _, tok := range rules.PropTokenRe.FindAllString(prompt, -1) {
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

// propReference requires every prop named in a prompt to be listed in the
// shot's prop references.
func (a *Analyzer) propReference(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for _, sh := range shots {
		for _, id := range PropTokens(sh.CompositionPrompt) {
			if slices.Contains(sh.PropsReference, id) {
				continue
			}
			out = append(out, withPatch(domain.Issue{
				ID:       sh.ShotID + "-prop-ref-" + id,
				Type:     domain.IssueProp,
				Severity: domain.SeverityWarning,
				ShotID:   sh.ShotID,
				Message:  fmt.Sprintf("Prop '%s' is mentioned but not formally referenced.", id),
			}, fields("props_reference", []any{id})))
		}
	}
	return out
}

func (a *Analyzer) spatialAndProp(shots []*domain.Shot) []domain.Issue {
	usage := map[string]int{}
	for _, sh := range shots {
		for _, id := range distinct(sh.PropsReference) {
			usage[id]++
		}
	}

	var out []domain.Issue
	for _, sh := range shots {
		if !truthy(sh.Technical["seed"]) {
			out = append(out, withPatch(domain.Issue{
				ID:         sh.ShotID + "-spatial-seed-tech",
				Type:       domain.IssueSpatial,
				Severity:   domain.SeverityWarning,
				ShotID:     sh.ShotID,
				Message:    "The shot has no global technical seed.",
				Suggestion: `Add "seed": 3001 to the technical block for consistent results. Stabilize adds it automatically.`,
				IsFixable:  true,
			}, fields("technical", fields("seed", 3001))))
		}

		var persist *domain.Patch
		for _, p := range sh.Props {
			if p == nil || usage[p.ID] <= 1 || p.Continuity == domain.PropPersistent {
				continue
			}
			if persist == nil {
				persist = persistentProps(sh.Props, usage)
			}
			out = append(out, withPatch(domain.Issue{
				ID:         sh.ShotID + "-prop-persistent-" + p.ID,
				Type:       domain.IssueProp,
				Severity:   domain.SeverityCritical,
				ShotID:     sh.ShotID,
				Message:    fmt.Sprintf(`Reused prop '%s' lacks continuity: "persistent".`, p.ID),
				Suggestion: fmt.Sprintf(`In the definition of '%s', add "continuity": "persistent" so it stays unchanged between shots.`, p.ID),
				IsFixable:  true,
			}, persist))
		}

		if sh.ScreenDirection == "" || sh.ParallaxLock == nil {
			out = append(out, withPatch(domain.Issue{
				ID:       sh.ShotID + "-spatial-lock",
				Type:     domain.IssueSpatial,
				Severity: domain.SeverityWarning,
				ShotID:   sh.ShotID,
				Message:  "The frame lacks spatial locks to prevent layout drift.",
			}, directionLockPatch()))
		}

		lower := strings.ToLower(sh.CompositionPrompt)
		if !rules.ContainsAny(lower, a.rules.PropStateKeywords) {
			continue
		}
		for _, id := range distinct(sh.PropsReference) {
			if !strings.Contains(lower, PropStateName(id)) || sh.PropStateOverride[id] != "" {
				continue
			}
			out = append(out, withPatch(domain.Issue{
				ID:       sh.ShotID + "-prop-state-" + id,
				Type:     domain.IssueProp,
				Severity: domain.SeverityWarning,
				ShotID:   sh.ShotID,
				Message:  fmt.Sprintf("The physical state of prop '%s' may not be locked.", id),
			}, fields("prop_state_override", fields(id, PropStatePlaceholder))))
		}
	}
	return out
}

// persistentProps returns a patch replacing the shot's prop list with a copy
// in which every reused prop is marked persistent. Arrays are replaced
// whole when a patch is applied, so every prop issue of a shot shares it.
func persistentProps(props []*domain.PropDefinition, usage map[string]int) *domain.Patch {
	list := make([]any, 0, len(props))
	for _, p := range props {
		if p == nil {
			continue
		}
		c := p.Clone()
		if usage[c.ID] > 1 {
			c.Continuity = domain.PropPersistent
		}
		o := domain.NewObject()
		if b, err := domain.Marshal(c); err == nil && json.Unmarshal(b, o) == nil {
			list = append(list, o)
		}
	}
	return fields("props", list)
}

func directionLockPatch() *domain.Patch {
	return fields("screen_direction", "lock_left_to_right", "parallax_lock", true)
}

// PropStateName derives the word a prompt uses for a prop: the ID without
// its "prop_" prefix, cut before the first "_" that is followed only by
// word characters up to the end.
func PropStateName(id string) string {
	name := strings.Replace(id, "prop_", "", 1)
	for i := 0; i < len(name); i++ {
		if name[i] == '_' && i+1 < len(name) && allWord(name[i+1:]) {
			name = name[:i]
			break
		}
	}
	return strings.Replace(name, "_", " ", 1)
}

func allWord(s string) bool {
	for _, r := range s {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func distinct(in []string) []string {
	var out []string
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
