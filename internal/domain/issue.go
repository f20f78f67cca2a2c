/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// IssueType is the closed set of defect categories.
type IssueType string

const (
	IssuePhysics       IssueType = "Physics"
	IssueCharacter     IssueType = "Character"
	IssueLocation      IssueType = "Location"
	IssueTimeline      IssueType = "Timeline"
	IssuePlot          IssueType = "Plot"
	IssueCharacterLock IssueType = "CharacterLock"
	IssueSfx           IssueType = "Sfx"
	IssueContinuity    IssueType = "Continuity"
	IssueProp          IssueType = "Prop"
	IssueLighting      IssueType = "Lighting"
	IssueCamera        IssueType = "Camera"
	IssueSpatial       IssueType = "Spatial"
	IssueNarrative     IssueType = "Narrative"
)

// IssueTypes lists every category in declaration order.
var IssueTypes = []IssueType{
	IssuePhysics, IssueCharacter, IssueLocation, IssueTimeline, IssuePlot,
	IssueCharacterLock, IssueSfx, IssueContinuity, IssueProp, IssueLighting,
	IssueCamera, IssueSpatial, IssueNarrative,
}

// Severity of an issue.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
)

// Patch is a structured field correction for a shot, in emission order.
type Patch = Object

// Issue is one detected defect. ID is unique across a report: it is built
// from the shot ID, the category and a discriminator.
//
// Patch, when set, is the machine-actionable form of the fix and is what the
// continuity merge consumes. Suggestion is always readable text; when a
// detector has nothing to say beyond the patch it is the patch rendered as
// indented JSON.
type Issue struct {
	ID                 string         `json:"id"`
	Type               IssueType      `json:"type"`
	Severity           Severity       `json:"severity"`
	ShotID             string         `json:"shotId"`
	Message            string         `json:"message"`
	Suggestion         string         `json:"suggestion"`
	SuggestionTemplate string         `json:"suggestion_template,omitempty"`
	IsFixable          bool           `json:"isFixable"`
	OriginalPrompt     string         `json:"originalPrompt,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
	Patch              *Patch         `json:"patch,omitempty"`
}

// Critical reports whether the issue blocks generation.
func (i Issue) Critical() bool { return i.Severity == SeverityCritical }

// Stats summarizes a report.
type Stats struct {
	TotalShots     int `json:"totalShots"`
	Veo3Ready      int `json:"veo3Ready"`
	CriticalIssues int `json:"criticalIssues"`
	Warnings       int `json:"warnings"`
}

// AnalysisResult is the full report for one document.
type AnalysisResult struct {
	Stats       Stats             `json:"stats"`
	IssueCounts map[IssueType]int `json:"issueCounts"`
	Issues      []Issue           `json:"issues"`
	Shots       []*Shot           `json:"shots"`
}

// ZeroCounts returns a count table with every category set to 0.
func ZeroCounts() map[IssueType]int {
	m := make(map[IssueType]int, len(IssueTypes))
	for _, t := range IssueTypes {
		m[t] = 0
	}
	return m
}

// EmptyResult is the zeroed report returned for malformed input.
func EmptyResult() AnalysisResult {
	return AnalysisResult{IssueCounts: ZeroCounts(), Issues: []Issue{}, Shots: []*Shot{}}
}

// IssuesFor returns the issues owned by shotID, in report order.
func (r AnalysisResult) IssuesFor(shotID string) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.ShotID == shotID {
			out = append(out, is)
		}
	}
	return out
}

// Keys of Issue.Details read by the auto-fixer.
const (
	DetailKind         = "kind"
	DetailCharacterID  = "characterId"
	DetailSfxToAdd     = "sfxToAdd"
	DetailSfxToRemove  = "sfxToRemove"
	DetailPreviousShot = "previousShot"
	DetailChanges      = "changes"
	DetailPreviousEnd  = "previousEndTime"
	DetailCurrentStart = "currentStartTime"
	DetailGapSeconds   = "gapInSeconds"
)

// KindUnexplainedFlight marks a physics issue the fixer can rewrite.
const KindUnexplainedFlight = "unexplained_flight"
