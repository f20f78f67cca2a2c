/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remedy

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
)

var trailingIndexRe = regexp.MustCompile(`_\d+$`)

// AutoFix applies the built-in fixes for issues to a copy of doc.
func AutoFix(doc *domain.Document, issues []domain.Issue) (*domain.Document, int) {
	return NewFixer(nil).AutoFix(doc, issues)
}

// AutoFix returns a fixed copy of doc and the number of fixes applied.
// Dispatch is by issue type; types without a mechanical fix are ignored.
// Timeline issues are handled in one pass over the scenes after the
// per-issue fixes. The result is not re-analyzed.
func (f *Fixer) AutoFix(doc *domain.Document, issues []domain.Issue) (*domain.Document, int) {
	out := doc.Clone()
	if out == nil {
		return nil, 0
	}
	fixes := 0
	for _, is := range issues {
		sh := out.FindShot(is.ShotID)
		if sh == nil {
			continue
		}
		var ok bool
		switch is.Type {
		case domain.IssueCharacterLock:
			ok = fixCharacterLock(sh, is)
		case domain.IssuePhysics:
			ok = f.fixFlight(sh, is)
		case domain.IssueSfx:
			ok = fixSfx(sh, is)
		}
		if ok {
			fixes++
		}
	}
	fixes += fixTimeline(out, issues)

	applog.WithComponent("remedy").Debug("autofix applied",
		slog.Int("issues", len(issues)),
		slog.Int("fixes", fixes))
	return out, fixes
}

// fixCharacterLock writes {id} into the prompt, directly before a leading
// mention of the character's bare name when there is one.
func fixCharacterLock(sh *domain.Shot, is domain.Issue) bool {
	id, _ := is.Details[domain.DetailCharacterID].(string)
	if id == "" || strings.Contains(sh.CompositionPrompt, "{"+id+"}") {
		return false
	}
	name := trailingIndexRe.ReplaceAllString(strings.Replace(id, "char_", "", 1), "")
	nameRe := regexp.MustCompile(`(?i)^(` + regexp.QuoteMeta(name) + `)`)
	if name != "" && nameRe.MatchString(sh.CompositionPrompt) {
		sh.CompositionPrompt = nameRe.ReplaceAllString(sh.CompositionPrompt, "{"+id+"} ${1}")
	} else {
		sh.CompositionPrompt = "{" + id + "} " + sh.CompositionPrompt
	}
	return true
}

// fixFlight prefixes the first flight verb with the justifying action.
func (f *Fixer) fixFlight(sh *domain.Shot, is domain.Issue) bool {
	if !is.IsFixable || is.Details[domain.DetailKind] != domain.KindUnexplainedFlight {
		return false
	}
	loc := f.rules.FixFlightRe.FindStringIndex(sh.CompositionPrompt)
	if loc == nil {
		return false
	}
	p := sh.CompositionPrompt
	sh.CompositionPrompt = p[:loc[0]] + f.rules.Physics.FixPrefix + p[loc[0]:]
	return true
}

// fixSfx adds the required effect ids to the shot's audio list and drops a
// low-quality id the issue names.
func fixSfx(sh *domain.Shot, is domain.Issue) bool {
	add := stringsOf(is.Details[domain.DetailSfxToAdd])
	remove, _ := is.Details[domain.DetailSfxToRemove].(string)
	if len(add) == 0 && remove == "" {
		return false
	}
	if sh.Sync == nil {
		sh.Sync = &domain.Sync{}
	}
	if sh.Sync.Audio == nil {
		sh.Sync.Audio = &domain.Audio{}
	}
	list := slices.Clone(sh.Sync.Audio.SFX)
	before := len(list)
	changed := false
	if remove != "" {
		list = slices.DeleteFunc(list, func(s string) bool { return s == remove })
		changed = len(list) != before
	}
	for _, id := range add {
		if !slices.Contains(list, id) {
			list = append(list, id)
			changed = true
		}
	}
	if changed {
		sh.Sync.Audio.SFX = list
	}
	return changed
}

// fixTimeline slides every scene that owns a fixable timeline issue back to
// the previous scene's end, keeping its duration. The shift carries forward
// to the scenes that follow.
func fixTimeline(doc *domain.Document, issues []domain.Issue) int {
	targets := map[string]bool{}
	for _, is := range issues {
		if is.Type == domain.IssueTimeline && is.IsFixable {
			targets[is.ShotID] = true
		}
	}
	if len(targets) == 0 {
		return 0
	}
	fixes := 0
	lastEnd := 0
	for _, sc := range doc.Script {
		if sc == nil {
			continue
		}
		start, end, ok := domain.ParseTimeline(sc.Timeline)
		if !ok {
			continue
		}
		if start > lastEnd && lastEnd > 0 && ownsAny(sc, targets) {
			dur := end - start
			sc.Timeline = domain.FormatTimeline(lastEnd, lastEnd+dur)
			lastEnd += dur
			fixes++
			continue
		}
		lastEnd = end
	}
	return fixes
}

func ownsAny(sc *domain.Scene, ids map[string]bool) bool {
	for _, sh := range sc.VisualPlan {
		if sh != nil && ids[sh.ShotID] {
			return true
		}
	}
	return false
}

// stringsOf accepts a single string or a list, as issue details arrive either
// from the detectors or decoded from JSON.
func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
