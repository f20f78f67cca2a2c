/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package analysis

import "shotlint/internal/domain"

// ShotSummary is the per-shot view of a report.
type ShotSummary struct {
	ShotID   string `json:"shotId"`
	Critical int    `json:"critical"`
	Warnings int    `json:"warnings"`
	Score    int    `json:"score"`
	Ready    bool   `json:"ready"`
}

// QualityScore rates a shot from 10 down: 3 points per critical issue and 1
// per warning, never below 0.
func QualityScore(issues []domain.Issue) int {
	score := 10
	for _, is := range issues {
		switch is.Severity {
		case domain.SeverityCritical:
			score -= 3
		case domain.SeverityWarning:
			score--
		}
	}
	return max(score, 0)
}

// ShotSummaries lists every analyzed shot with its counts and score.
func ShotSummaries(r domain.AnalysisResult) []ShotSummary {
	byShot := map[string][]domain.Issue{}
	for _, is := range r.Issues {
		byShot[is.ShotID] = append(byShot[is.ShotID], is)
	}
	out := make([]ShotSummary, 0, len(r.Shots))
	for _, sh := range r.Shots {
		issues := byShot[sh.ShotID]
		s := ShotSummary{ShotID: sh.ShotID, Score: QualityScore(issues)}
		for _, is := range issues {
			if is.Critical() {
				s.Critical++
			} else {
				s.Warnings++
			}
		}
		s.Ready = s.Critical == 0
		out = append(out, s)
	}
	return out
}
