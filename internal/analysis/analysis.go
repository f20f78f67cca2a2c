/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package analysis runs the continuity and plausibility detectors over a
// script document and aggregates their findings into a report.
//
// Every detector is a pure pass over the flattened shot list (the timeline
// detector walks scenes instead). The aggregator deduplicates, groups by
// shot and collapses clusters of continuity-affecting issues into a single
// merged patch. Analysis never mutates its input.
package analysis

import (
	"log/slog"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/rules"
)

// MergeThreshold is the number of continuity-affecting issues on one shot
// from which they are collapsed into a single patch issue.
const MergeThreshold = 3

// continuityTypes are the categories folded by the merge.
var continuityTypes = map[domain.IssueType]bool{
	domain.IssueCamera:     true,
	domain.IssueLighting:   true,
	domain.IssueContinuity: true,
	domain.IssueProp:       true,
	domain.IssueSpatial:    true,
}

// Analyzer runs the detectors with a fixed rule set. It holds no mutable
// state and may be shared between goroutines.
type Analyzer struct {
	rules *rules.Rules
}

// New returns an Analyzer using r, or the built-in rules when r is nil.
func New(r *rules.Rules) *Analyzer {
	if r == nil {
		r = rules.Default()
	}
	return &Analyzer{rules: r}
}

// Analyze runs the built-in rule set over doc.
func Analyze(doc *domain.Document) domain.AnalysisResult { return New(nil).Analyze(doc) }

// Analyze produces the report for doc. A nil document or one without a
// script list yields a zeroed report.
func (a *Analyzer) Analyze(doc *domain.Document) domain.AnalysisResult {
	if doc == nil || doc.Script == nil {
		return domain.EmptyResult()
	}
	shots := doc.Shots()

	var issues []domain.Issue
	issues = append(issues, a.physics(shots)...)
	issues = append(issues, a.character(shots)...)
	issues = append(issues, a.location(shots)...)
	issues = append(issues, a.timeline(doc.Script)...)
	issues = append(issues, a.plot(shots)...)
	issues = append(issues, a.characterLock(shots)...)
	issues = append(issues, a.sfx(shots)...)
	issues = append(issues, a.continuity(shots)...)
	issues = append(issues, a.propReference(shots)...)
	issues = append(issues, a.spatialAndProp(shots)...)
	issues = append(issues, a.spatialTemporal(shots)...)
	issues = append(issues, a.cinematography(shots)...)

	issues = MergeContinuity(dedupe(issues))

	res := domain.AnalysisResult{
		IssueCounts: domain.ZeroCounts(),
		Issues:      issues,
		Shots:       make([]*domain.Shot, len(shots)),
	}
	for i, s := range shots {
		res.Shots[i] = s.Clone()
	}
	blocked := map[string]bool{}
	for _, is := range issues {
		res.IssueCounts[is.Type]++
		switch is.Severity {
		case domain.SeverityCritical:
			res.Stats.CriticalIssues++
			blocked[is.ShotID] = true
		case domain.SeverityWarning:
			res.Stats.Warnings++
		}
	}
	res.Stats.TotalShots = len(shots)
	res.Stats.Veo3Ready = len(shots) - len(blocked)

	applog.WithComponent("analysis").Debug("analysis complete",
		slog.Int("shots", res.Stats.TotalShots),
		slog.Int("critical", res.Stats.CriticalIssues),
		slog.Int("warnings", res.Stats.Warnings))
	return res
}

func dedupe(issues []domain.Issue) []domain.Issue {
	seen := make(map[string]bool, len(issues))
	out := make([]domain.Issue, 0, len(issues))
	for _, is := range issues {
		if seen[is.ID] {
			continue
		}
		seen[is.ID] = true
		out = append(out, is)
	}
	return out
}

// MergeContinuity groups issues by shot in first-occurrence order. For every
// shot with at least MergeThreshold issues in the continuity-affecting
// categories, those issues are replaced by one Critical continuity issue
// carrying the merged patch, followed by the shot's remaining issues.
func MergeContinuity(issues []domain.Issue) []domain.Issue {
	var order []string
	groups := map[string][]domain.Issue{}
	for _, is := range issues {
		if _, ok := groups[is.ShotID]; !ok {
			order = append(order, is.ShotID)
		}
		groups[is.ShotID] = append(groups[is.ShotID], is)
	}

	out := make([]domain.Issue, 0, len(issues))
	for _, shotID := range order {
		group := groups[shotID]
		var cont, rest []domain.Issue
		for _, is := range group {
			if continuityTypes[is.Type] {
				cont = append(cont, is)
			} else {
				rest = append(rest, is)
			}
		}
		if len(cont) < MergeThreshold {
			out = append(out, group...)
			continue
		}
		merged := domain.NewObject()
		for _, is := range cont {
			merged.Merge(is.Patch)
		}
		wrapper := fields("continuity_patch", merged)
		out = append(out, domain.Issue{
			ID:         shotID + "-continuity-patch",
			Type:       domain.IssueContinuity,
			Severity:   domain.SeverityCritical,
			ShotID:     shotID,
			Message:    "Multiple continuity defects detected. A combined patch is proposed.",
			Suggestion: render(wrapper),
			Patch:      wrapper,
		})
		out = append(out, rest...)
	}
	return out
}

// fields builds a patch from alternating keys and values.
func fields(kv ...any) *domain.Patch {
	p := domain.NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i].(string), kv[i+1])
	}
	return p
}

// render returns the indented JSON form of a patch.
func render(p *domain.Patch) string {
	b, err := domain.MarshalIndent(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// withPatch attaches p to is; when the issue has no prose suggestion the
// rendered patch becomes the suggestion.
func withPatch(is domain.Issue, p *domain.Patch) domain.Issue {
	is.Patch = p
	if is.Suggestion == "" {
		is.Suggestion = render(p)
	}
	return is
}
