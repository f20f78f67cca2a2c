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
	"slices"
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

type requiredSfx struct {
	keyword string
	sfx     string
}

// RequiredSfx resolves the sound effects a lower-cased prompt calls for,
// one per matched keyword, in keyword-table order. A rule whose context
// words occur in the prompt wins over the keyword's fallback rule.
func RequiredSfx(r *rules.Rules, prompt string) []string {
	var out []string
	for _, req := range resolveSfx(r, prompt) {
		if !slices.Contains(out, req.sfx) {
			out = append(out, req.sfx)
		}
	}
	return out
}

func resolveSfx(r *rules.Rules, prompt string) []requiredSfx {
	var out []requiredSfx
	for _, g := range r.KeywordGroups {
		if !g.Matches(prompt) {
			continue
		}
		chosen := ""
		for _, rule := range g.Rules {
			if len(rule.Context) > 0 && rules.ContainsAny(prompt, rule.Context) {
				chosen = rule.SFX
				break
			}
		}
		if chosen == "" {
			for _, rule := range g.Rules {
				if len(rule.Context) == 0 {
					chosen = rule.SFX
					break
				}
			}
		}
		if chosen != "" {
			out = append(out, requiredSfx{keyword: g.Keyword, sfx: chosen})
		}
	}
	return out
}

func (a *Analyzer) sfx(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for _, sh := range shots {
		prompt := strings.ToLower(sh.CompositionPrompt)
		resolved := resolveSfx(a.rules, prompt)
		required := RequiredSfx(a.rules, prompt)
		existing := sh.SFXList()

		for _, sfx := range required {
			if slices.Contains(existing, sfx) {
				continue
			}
			keyword := ""
			for _, r := range resolved {
				if r.sfx == sfx {
					keyword = r.keyword
					break
				}
			}
			out = append(out, domain.Issue{
				ID:             sh.ShotID + "-sfx-missing-" + sfx,
				Type:           domain.IssueSfx,
				Severity:       domain.SeverityWarning,
				ShotID:         sh.ShotID,
				Message:        fmt.Sprintf("Action '%s' detected but the matching sound effect is missing.", keyword),
				Suggestion:     fmt.Sprintf("Add the sound effect '%s' to support the shot.", sfx),
				IsFixable:      true,
				OriginalPrompt: sh.CompositionPrompt,
				Details:        map[string]any{domain.DetailSfxToAdd: sfx},
			})
		}

		if len(required) == 0 {
			continue
		}
		var seen []string
		for _, sfx := range existing {
			if slices.Contains(seen, sfx) || !a.rules.LowQuality(sfx) {
				continue
			}
			seen = append(seen, sfx)
			out = append(out, domain.Issue{
				ID:             sh.ShotID + "-sfx-lowquality-" + sfx,
				Type:           domain.IssueSfx,
				Severity:       domain.SeverityWarning,
				ShotID:         sh.ShotID,
				Message:        fmt.Sprintf("Sound effect '%s' is low quality or too generic.", sfx),
				Suggestion:     fmt.Sprintf("Upgrade to a more specific effect for the action, e.g. %s.", strings.Join(required, ", ")),
				IsFixable:      true,
				OriginalPrompt: sh.CompositionPrompt,
				Details: map[string]any{
					domain.DetailSfxToRemove: sfx,
					domain.DetailSfxToAdd:    slices.Clone(required),
				},
			})
		}
	}
	return out
}
