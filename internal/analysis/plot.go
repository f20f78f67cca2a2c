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
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

type plotStatus string

const (
	statusOK       plotStatus = "ok"
	statusCaptured plotStatus = "captured"
	statusInjured  plotStatus = "injured"
	statusDead     plotStatus = "dead"
	statusBroken   plotStatus = "broken"
)

type plotState struct {
	status plotStatus
	shotID string
}

// plotTracker threads character and object states through one pass.
type plotTracker struct {
	chars   map[string]plotState
	objects map[string]plotState
}

// plot flags actions that contradict a tracked state. Checks for a shot run
// before that shot's own state updates.
func (a *Analyzer) plot(shots []*domain.Shot) []domain.Issue {
	p := a.rules.Plot
	t := plotTracker{chars: map[string]plotState{}, objects: map[string]plotState{}}
	var out []domain.Issue
	for _, sh := range shots {
		prompt := strings.ToLower(sh.CompositionPrompt)
		base := domain.Issue{
			Type:           domain.IssuePlot,
			Severity:       domain.SeverityCritical,
			ShotID:         sh.ShotID,
			OriginalPrompt: sh.CompositionPrompt,
		}

		for _, cd := range sh.CharacterDefinitions {
			if cd == nil {
				continue
			}
			id := cd.ID
			st, ok := t.chars[id]
			if !ok {
				st = plotState{status: statusOK, shotID: sh.ShotID}
				t.chars[id] = st
			}
			if st.status == statusCaptured && rules.ContainsAny(prompt, p.CapturedActions) {
				is := base
				is.ID = sh.ShotID + "-plot-captured-" + id
				is.Message = fmt.Sprintf("Character '%s' acts freely although captured.", id)
				is.Suggestion = fmt.Sprintf("The character was captured in shot %s. Show the escape or rescue first.", st.shotID)
				out = append(out, is)
			}
			if (st.status == statusInjured || st.status == statusDead) && rules.ContainsAny(prompt, p.HealthyActions) {
				is := base
				is.ID = sh.ShotID + "-plot-injury-" + id
				is.Message = fmt.Sprintf("Character '%s' acts healthy although %s earlier.", id, st.status)
				is.Suggestion = fmt.Sprintf("The character was marked %s in shot %s. Add a recovery or correct the state.", st.status, st.shotID)
				out = append(out, is)
			}
			if rules.ContainsAny(prompt, p.Rescue) {
				if st.status != statusCaptured && st.status != statusInjured {
					is := base
					is.ID = sh.ShotID + "-plot-rescue-" + id
					is.Message = fmt.Sprintf("Character '%s' is rescued without being captured or in danger before.", id)
					is.Suggestion = "Make sure an earlier shot shows the character captured or in danger."
					out = append(out, is)
				}
				t.chars[id] = plotState{status: statusOK, shotID: sh.ShotID}
			}
		}

		if a.rules.ObjectRe != nil {
			for _, m := range a.rules.ObjectRe.FindAllStringSubmatch(prompt, -1) {
				name := m[1]
				objID := strings.Replace(name, " ", "_", 1)
				st, ok := t.objects[objID]
				if ok && st.status == statusBroken && containsVerbed(prompt, p.ObjectUse, name) {
					is := base
					is.ID = sh.ShotID + "-plot-object-" + objID
					is.Message = fmt.Sprintf("A broken object is being used: '%s'.", name)
					is.Suggestion = fmt.Sprintf("The object was broken in shot %s. It cannot be used unless repaired.", st.shotID)
					out = append(out, is)
				}
				if containsVerbed(prompt, p.ObjectBreak, name) {
					t.objects[objID] = plotState{status: statusBroken, shotID: sh.ShotID}
				}
			}
		}

		for _, cd := range sh.CharacterDefinitions {
			if cd == nil {
				continue
			}
			if rules.ContainsAny(prompt, p.Capture) {
				t.chars[cd.ID] = plotState{status: statusCaptured, shotID: sh.ShotID}
			}
			if rules.ContainsAny(prompt, p.Injure) {
				t.chars[cd.ID] = plotState{status: statusInjured, shotID: sh.ShotID}
			}
			if rules.ContainsAny(prompt, p.Death) {
				t.chars[cd.ID] = plotState{status: statusDead, shotID: sh.ShotID}
			}
		}
	}
	return out
}

// containsVerbed reports whether prompt contains "<verb> the <object>" for
// any of the verbs.
func containsVerbed(prompt string, verbs []string, object string) bool {
	for _, v := range verbs {
		if strings.Contains(prompt, v+" the "+object) {
			return true
		}
	}
	return false
}
