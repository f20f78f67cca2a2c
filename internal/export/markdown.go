/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"shotlint/internal/domain"
)

// RenderMarkdown renders rep as GitHub-flavoured Markdown.
func RenderMarkdown(rep Report) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", rep.title())
	if rep.Source != "" {
		fmt.Fprintf(&b, "Script: `%s`\n\n", rep.Source)
	}
	if !rep.When.IsZero() {
		fmt.Fprintf(&b, "Generated: %s\n\n", rep.When.UTC().Format("2006-01-02 15:04 MST"))
	}
	st := rep.Result.Stats
	b.WriteString("| Shots | Ready | Critical | Warnings |\n|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", st.TotalShots, st.Veo3Ready, st.CriticalIssues, st.Warnings)

	b.WriteString("## Issues by category\n\n| Category | Issues |\n|---|---:|\n")
	for _, typ := range domain.IssueTypes {
		fmt.Fprintf(&b, "| %s | %d |\n", typ, rep.Result.IssueCounts[typ])
	}
	b.WriteString("\n## Shots\n")

	for _, sec := range rep.sections() {
		status := "ready"
		if !sec.Ready {
			status = "blocked"
		}
		fmt.Fprintf(&b, "\n### %s\n\nScore %d/10, %s.\n\n", mdEscape(sec.ShotID), sec.Score, status)
		if len(sec.Issues) == 0 {
			b.WriteString("No issues.\n")
			continue
		}
		for _, is := range sec.Issues {
			fmt.Fprintf(&b, "- **%s** %s: %s\n", is.Severity, is.Type, mdEscape(is.Message))
			if is.Suggestion == "" {
				continue
			}
			if is.Patch != nil {
				b.WriteString("\n  ```json\n")
				for _, line := range strings.Split(is.Suggestion, "\n") {
					b.WriteString("  " + line + "\n")
				}
				b.WriteString("  ```\n\n")
				continue
			}
			fmt.Fprintf(&b, "  - %s\n", mdEscape(is.Suggestion))
		}
	}
	return b.Bytes()
}

// RenderHTML renders rep as a standalone HTML page.
func RenderHTML(rep Report) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert(RenderMarkdown(rep), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(rep.title()))
	b.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:2px 8px}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}

var mdReplacer = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "<", "&lt;", ">", "&gt;")

func mdEscape(s string) string { return mdReplacer.Replace(s) }
