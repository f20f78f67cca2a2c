/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

func (a *Analyzer) physics(shots []*domain.Shot) []domain.Issue {
	p := a.rules.Physics
	var out []domain.Issue
	for _, sh := range shots {
		prompt := strings.ToLower(sh.CompositionPrompt)
		if a.rules.FlightRe.MatchString(prompt) && !a.rules.JustifyRe.MatchString(prompt) {
			out = append(out, domain.Issue{
				ID:             sh.ShotID + "-physics-fly",
				Type:           domain.IssuePhysics,
				Severity:       domain.SeverityCritical,
				ShotID:         sh.ShotID,
				Message:        "The character may be flying without a physical cause or a clear reason.",
				Suggestion:     "Add a justifying action such as 'jumps and', 'is thrown by', or mention a magical force.",
				IsFixable:      true,
				OriginalPrompt: sh.CompositionPrompt,
				Details:        map[string]any{domain.DetailKind: domain.KindUnexplainedFlight},
			})
		}
		if rules.ContainsAny(prompt, p.FallingUpward) {
			out = append(out, domain.Issue{
				ID:             sh.ShotID + "-physics-fall",
				Type:           domain.IssuePhysics,
				Severity:       domain.SeverityCritical,
				ShotID:         sh.ShotID,
				Message:        "An object is described as 'falling upward', which breaks gravity.",
				Suggestion:     "Fix the direction of the fall. Use 'rising' or 'floating' for upward motion.",
				OriginalPrompt: sh.CompositionPrompt,
			})
		}
		if rules.ContainsAny(prompt, p.WaterWalk) && !a.rules.WaterRe.MatchString(prompt) {
			out = append(out, domain.Issue{
				ID:             sh.ShotID + "-physics-water",
				Type:           domain.IssuePhysics,
				Severity:       domain.SeverityCritical,
				ShotID:         sh.ShotID,
				Message:        "A character 'walks on water' without explanation.",
				Suggestion:     "Give context such as 'walks on a frozen lake' or 'wades through shallow water'.",
				OriginalPrompt: sh.CompositionPrompt,
			})
		}
	}
	return out
}
