/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
)

var (
	colorReady    = lipgloss.Color("#2EA043")
	colorWarning  = lipgloss.Color("#DBAB09")
	colorCritical = lipgloss.Color("#CF222E")
	colorMuted    = lipgloss.Color("#8B949E")
)

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	crit  lipgloss.Style
	dim   lipgloss.Style
}

// newStyles binds the styles to w, so colors are dropped when w is not a
// terminal.
func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		plain := r.NewStyle()
		return styles{title: plain, ok: plain, warn: plain, crit: plain, dim: plain}
	}
	return styles{
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(colorReady).Bold(true),
		warn:  r.NewStyle().Foreground(colorWarning),
		crit:  r.NewStyle().Foreground(colorCritical).Bold(true),
		dim:   r.NewStyle().Foreground(colorMuted),
	}
}

func statsLine(st domain.Stats) string {
	return fmt.Sprintf("%d shots · %d ready · %d critical · %d warnings",
		st.TotalShots, st.Veo3Ready, st.CriticalIssues, st.Warnings)
}

// printResult writes the human-readable report of one script.
func (a *app) printResult(w io.Writer, path string, res domain.AnalysisResult) {
	s := a.st
	_, _ = fmt.Fprintf(w, "%s  %s\n", s.title.Render(path), s.dim.Render(statsLine(res.Stats)))
	byShot := map[string][]domain.Issue{}
	for _, is := range res.Issues {
		byShot[is.ShotID] = append(byShot[is.ShotID], is)
	}
	for _, sum := range analysis.ShotSummaries(res) {
		state := s.ok.Render("READY")
		if !sum.Ready {
			state = s.crit.Render("BLOCKED")
		}
		_, _ = fmt.Fprintf(w, "  %-12s score %2d  %s\n", sum.ShotID, sum.Score, state)
		for _, is := range byShot[sum.ShotID] {
			mark := s.warn.Render("▲")
			if is.Critical() {
				mark = s.crit.Render("✖")
			}
			_, _ = fmt.Fprintf(w, "     %s [%s] %s\n", mark, is.Type, is.Message)
			switch {
			case is.Patch != nil:
				_, _ = fmt.Fprintf(w, "       %s\n", s.dim.Render(fmt.Sprintf("patch available: shotlint patch %s --issue %s", path, is.ID)))
			case is.Suggestion != "":
				_, _ = fmt.Fprintf(w, "       %s\n", s.dim.Render("→ "+firstLine(is.Suggestion)))
			}
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
