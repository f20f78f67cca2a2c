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
	"sort"
	"strings"

	"shotlint/internal/domain"
)

type sighting struct {
	appearance map[string]any
	shotID     string
}

// character compares every definition with the last one seen for the same
// ID. Only attributes that had a value before count as changed.
func (a *Analyzer) character(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	last := map[string]sighting{}
	for _, sh := range shots {
		for _, cd := range sh.CharacterDefinitions {
			if cd == nil || cd.ID == "" || cd.Appearance == nil {
				continue
			}
			if prev, ok := last[cd.ID]; ok {
				keys := make([]string, 0, len(cd.Appearance))
				for k := range cd.Appearance {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				var changes []string
				for _, k := range keys {
					old, had := prev.appearance[k]
					if !had || !truthy(old) {
						continue
					}
					if valueString(old) != valueString(cd.Appearance[k]) {
						changes = append(changes, fmt.Sprintf("%s changed from '%s' to '%s'", k, valueString(old), valueString(cd.Appearance[k])))
					}
				}
				if len(changes) > 0 {
					joined := strings.Join(changes, ", ")
					out = append(out, domain.Issue{
						ID:             sh.ShotID + "-char-" + cd.ID,
						Type:           domain.IssueCharacter,
						Severity:       domain.SeverityCritical,
						ShotID:         sh.ShotID,
						Message:        fmt.Sprintf("Character '%s' has an inconsistent appearance.", cd.ID),
						Suggestion:     fmt.Sprintf("Check the attributes: %s. Keep them consistent or explain the change in the script.", joined),
						OriginalPrompt: sh.CompositionPrompt,
						Details: map[string]any{
							domain.DetailPreviousShot: prev.shotID,
							domain.DetailChanges:      joined,
						},
					})
				}
			}
			last[cd.ID] = sighting{appearance: cd.Appearance, shotID: sh.ShotID}
		}
	}
	return out
}

// characterLock requires every character to be referenced in bracket form
// and, for shots with several characters, some positional wording.
func (a *Analyzer) characterLock(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for _, sh := range shots {
		var ids []string
		for _, cd := range sh.CharacterDefinitions {
			if cd == nil {
				continue
			}
			ids = append(ids, cd.ID)
			if !LockPattern(cd.ID).MatchString(sh.CompositionPrompt) {
				out = append(out, domain.Issue{
					ID:             sh.ShotID + "-lock-" + cd.ID,
					Type:           domain.IssueCharacterLock,
					Severity:       domain.SeverityWarning,
					ShotID:         sh.ShotID,
					Message:        fmt.Sprintf("Character '%s' is not locked in the prompt.", cd.ID),
					Suggestion:     fmt.Sprintf("Add '{%s}' to the prompt to keep the character consistent.", cd.ID),
					IsFixable:      true,
					OriginalPrompt: sh.CompositionPrompt,
					Details:        map[string]any{domain.DetailCharacterID: cd.ID},
				})
			}
		}
		if len(ids) > 1 && !a.rules.PositionRe.MatchString(sh.CompositionPrompt) {
			out = append(out, domain.Issue{
				ID:                 sh.ShotID + "-lock-positioning",
				Type:               domain.IssueCharacterLock,
				Severity:           domain.SeverityWarning,
				ShotID:             sh.ShotID,
				Message:            "Several characters share the shot but no position words are given.",
				Suggestion:         "Add position words such as 'left', 'beside' or 'in the background' to clarify the layout.",
				SuggestionTemplate: fmt.Sprintf(" In the foreground, {%s} is on the left and {%s} is on the right.", ids[0], ids[1]),
				OriginalPrompt:     sh.CompositionPrompt,
			})
		}
	}
	return out
}
