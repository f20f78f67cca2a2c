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

func (a *Analyzer) location(shots []*domain.Shot) []domain.Issue {
	var out []domain.Issue
	for i := 1; i < len(shots); i++ {
		prev, cur := shots[i-1], shots[i]
		if prev.Location == nil || cur.Location == nil || prev.Location.ID == "" || cur.Location.ID == "" {
			continue
		}
		from := strings.ToLower(prev.Location.ID)
		to := strings.ToLower(cur.Location.ID)
		if from == to {
			continue
		}
		if jumpMatches(a.rules.Locations.Illogical, from, to) {
			out = append(out, domain.Issue{
				ID:             cur.ShotID + "-location-critical",
				Type:           domain.IssueLocation,
				Severity:       domain.SeverityCritical,
				ShotID:         cur.ShotID,
				Message:        fmt.Sprintf("Illogical location jump from '%s' to '%s'.", from, to),
				Suggestion:     "Add a transition shot or reconsider the location change.",
				OriginalPrompt: cur.CompositionPrompt,
			})
			continue
		}
		if jumpMatches(a.rules.Locations.Abrupt, from, to) {
			out = append(out, domain.Issue{
				ID:             cur.ShotID + "-location-warning",
				Type:           domain.IssueLocation,
				Severity:       domain.SeverityWarning,
				ShotID:         cur.ShotID,
				Message:        fmt.Sprintf("Abrupt location change from '%s' to '%s'.", from, to),
				Suggestion:     "Make sure a smooth transition between these locations is shown or implied.",
				OriginalPrompt: cur.CompositionPrompt,
			})
		}
	}
	return out
}

func jumpMatches(table []rules.Jump, from, to string) bool {
	for _, j := range table {
		if strings.Contains(from, j.From) && rules.ContainsAny(to, j.To) {
			return true
		}
	}
	return false
}

// timeline reports a gap between a scene's start and the previous scene's
// end, against the first shot of the later scene.
func (a *Analyzer) timeline(scenes []*domain.Scene) []domain.Issue {
	var out []domain.Issue
	lastEnd := 0
	for idx, sc := range scenes {
		if sc == nil {
			continue
		}
		start, end, ok := domain.ParseTimeline(sc.Timeline)
		if !ok {
			continue
		}
		if first := firstShot(sc); first != nil && idx > 0 && start > lastEnd {
			gap := start - lastEnd
			out = append(out, domain.Issue{
				ID:         first.ShotID + "-timeline",
				Type:       domain.IssueTimeline,
				Severity:   domain.SeverityCritical,
				ShotID:     first.ShotID,
				Message:    fmt.Sprintf("Timeline gap of %d seconds before this scene.", gap),
				Suggestion: "Adjust the scene start so it continues from the previous scene's end time.",
				IsFixable:  true,
				Details: map[string]any{
					domain.DetailPreviousEnd:  lastEnd,
					domain.DetailCurrentStart: start,
					domain.DetailGapSeconds:   gap,
				},
			})
		}
		lastEnd = end
	}
	return out
}

func firstShot(sc *domain.Scene) *domain.Shot {
	for _, sh := range sc.VisualPlan {
		if sh != nil {
			return sh
		}
	}
	return nil
}
