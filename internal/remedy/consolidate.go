/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remedy

import (
	"bytes"
	"log/slog"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
)

// ConsolidateCharacters makes the first definition of every character, in
// reading order, the master and copies it over all later definitions of
// the same ID. It returns the new document and the number of shots whose
// definitions changed.
func ConsolidateCharacters(doc *domain.Document) (*domain.Document, int) {
	out := doc.Clone()
	if out == nil {
		return nil, 0
	}
	shots := out.Shots()

	masters := map[string]*domain.CharacterDefinition{}
	for _, sh := range shots {
		for _, cd := range sh.CharacterDefinitions {
			if cd == nil {
				continue
			}
			if _, ok := masters[cd.ID]; !ok {
				masters[cd.ID] = cd.Clone()
			}
		}
	}

	changed := 0
	for _, sh := range shots {
		if sh.CharacterDefinitions == nil {
			continue
		}
		before, _ := domain.Marshal(sh.CharacterDefinitions)
		for i, cd := range sh.CharacterDefinitions {
			if cd == nil {
				continue
			}
			sh.CharacterDefinitions[i] = masters[cd.ID].Clone()
		}
		after, _ := domain.Marshal(sh.CharacterDefinitions)
		if !bytes.Equal(before, after) {
			changed++
		}
	}
	applog.WithComponent("remedy").Debug("characters consolidated",
		slog.Int("characters", len(masters)),
		slog.Int("shots_changed", changed))
	return out, changed
}

// StabilizeReport summarizes a document-wide stabilization.
type StabilizeReport struct {
	Consolidated int      `json:"consolidated"`
	Stabilized   int      `json:"stabilized"`
	Failed       []string `json:"failed,omitempty"`
}

// Changed reports whether the run modified anything.
func (r StabilizeReport) Changed() bool { return r.Consolidated > 0 || r.Stabilized > 0 }

// StabilizeDocument consolidates character definitions and then stabilizes
// every shot. A shot that fails to stabilize is kept as it was and listed in
// the report.
func StabilizeDocument(doc *domain.Document) (*domain.Document, StabilizeReport) {
	var rep StabilizeReport
	out, n := ConsolidateCharacters(doc)
	if out == nil {
		return nil, rep
	}
	rep.Consolidated = n
	logger := applog.WithComponent("remedy")
	for _, sc := range out.Script {
		if sc == nil {
			continue
		}
		for i, sh := range sc.VisualPlan {
			if sh == nil {
				continue
			}
			fixed, err := StabilizeShot(sh)
			if err != nil {
				logger.Warn("shot not stabilized", slog.String("shot", sh.ShotID), slog.Any("err", err))
				rep.Failed = append(rep.Failed, sh.ShotID)
				continue
			}
			before, _ := domain.Marshal(sh)
			after, _ := domain.Marshal(fixed)
			if !bytes.Equal(before, after) {
				rep.Stabilized++
			}
			sc.VisualPlan[i] = fixed
		}
	}
	logger.Debug("document stabilized",
		slog.Int("consolidated", rep.Consolidated),
		slog.Int("stabilized", rep.Stabilized),
		slog.Int("failed", len(rep.Failed)))
	return out, rep
}
