/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders analysis results and shots for consumers outside
// the tool: the flattened per-shot generation record, PDF, PNG, Markdown and
// HTML reports, and zip bundles for the downstream video pipeline.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
)

// Report is the input of the report renderers.
type Report struct {
	Title  string
	Source string    // script path, shown in headers when set
	When   time.Time // zero means omitted
	Result domain.AnalysisResult
}

// shotSection pairs a shot summary with its issues.
type shotSection struct {
	analysis.ShotSummary
	Issues []domain.Issue
}

func (r Report) title() string {
	if r.Title != "" {
		return r.Title
	}
	return "Shot continuity report"
}

func (r Report) sections() []shotSection {
	sums := analysis.ShotSummaries(r.Result)
	out := make([]shotSection, len(sums))
	for i, s := range sums {
		out[i] = shotSection{ShotSummary: s, Issues: r.Result.IssuesFor(s.ShotID)}
	}
	return out
}

func (r Report) summaryLine() string {
	st := r.Result.Stats
	return fmt.Sprintf("Shots: %d   Ready: %d   Critical: %d   Warnings: %d",
		st.TotalShots, st.Veo3Ready, st.CriticalIssues, st.Warnings)
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	return nil
}
