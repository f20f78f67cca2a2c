/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/remedy"
	"shotlint/internal/script"
	"shotlint/internal/storage"
)

// editResult is what a document transform reports back to edit.
type editResult struct {
	doc     *domain.Document
	summary string
	changed bool
}

// edit opens the script, applies fn and, unless dryRun, writes the result
// with a backup, a history snapshot and a refreshed search index. A dry run
// prints the transformed document instead.
func (a *app) edit(ctx context.Context, path, reason string, dryRun bool, fn func(doc *domain.Document) (editResult, error)) error {
	ws, err := a.open(path)
	if err != nil {
		return err
	}
	l := applog.WithOperation(a.log, reason)
	ctx = applog.WithScript(ctx, ws.ScriptPath)
	res, err := fn(ws.Doc)
	if err != nil {
		return err
	}
	if dryRun {
		b, err := script.Encode(res.doc, ws.Format)
		if err != nil {
			return err
		}
		_, err = a.out.Write(b)
		return err
	}
	if !res.changed {
		_, _ = fmt.Fprintf(a.out, "%s %s\n", a.st.dim.Render("unchanged"), res.summary)
		return nil
	}

	ws.Doc = res.doc
	if err := storage.Save(ws); err != nil {
		return err
	}
	// history and index are best effort once the script itself is saved
	if _, err := storage.SaveSnapshot(ctx, ws, reason, a.now()); err != nil {
		l.WarnContext(ctx, "snapshot failed", slog.Any("err", err))
	}
	if err := storage.UpdateIndex(ctx, ws.Root, ws.Doc); err != nil {
		l.WarnContext(ctx, "index update failed", slog.Any("err", err))
	}
	after := a.analyzer.Analyze(ws.Doc)
	_, _ = fmt.Fprintf(a.out, "%s %s\n", a.st.ok.Render("saved"), res.summary)
	_, _ = fmt.Fprintf(a.out, "  %s\n", a.st.dim.Render(statsLine(after.Stats)))
	return nil
}

func (a *app) newFixCommand() *cobra.Command {
	var (
		dryRun bool
		types  []string
	)
	cmd := &cobra.Command{
		Use:   "fix <script>",
		Short: "Apply the automatic fixes for detected issues",
		Long: `Analyze the script and apply every automatic fix: character lock tokens,
flight verbs, SFX corrections and timeline gaps. --type limits the fixes to
the named issue types.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			want := map[domain.IssueType]bool{}
			for _, t := range types {
				want[domain.IssueType(strings.TrimSpace(t))] = true
			}
			return a.edit(cmd.Context(), args[0], "fix", dryRun, func(doc *domain.Document) (editResult, error) {
				issues := a.analyzer.Analyze(doc).Issues
				if len(want) > 0 {
					kept := issues[:0:0]
					for _, is := range issues {
						if want[is.Type] {
							kept = append(kept, is)
						}
					}
					issues = kept
				}
				out, n := a.fixer.AutoFix(doc, issues)
				return editResult{doc: out, summary: fmt.Sprintf("%d fixes applied", n), changed: n > 0}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the fixed script instead of saving it")
	cmd.Flags().StringSliceVar(&types, "type", nil, "only fix these issue types (e.g. CharacterLock,Sfx)")
	return cmd
}

func (a *app) newStabilizeCommand() *cobra.Command {
	var (
		dryRun bool
		shotID string
	)
	cmd := &cobra.Command{
		Use:   "stabilize <script>",
		Short: "Add continuity locks and capture defaults to every shot",
		Long: `Consolidate character appearances across the script, then stabilize every
shot (or only --shot). Stabilizing is idempotent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd.Context(), args[0], "stabilize", dryRun, func(doc *domain.Document) (editResult, error) {
				if shotID != "" {
					return stabilizeOne(doc, shotID)
				}
				out, rep := remedy.StabilizeDocument(doc)
				summary := fmt.Sprintf("%d shots stabilized, %d consolidated", rep.Stabilized, rep.Consolidated)
				if len(rep.Failed) > 0 {
					summary += fmt.Sprintf(", failed: %s", strings.Join(rep.Failed, ", "))
				}
				return editResult{doc: out, summary: summary, changed: rep.Changed()}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the stabilized script instead of saving it")
	cmd.Flags().StringVar(&shotID, "shot", "", "stabilize only this shot")
	return cmd
}

func stabilizeOne(doc *domain.Document, shotID string) (editResult, error) {
	out := doc.Clone()
	for _, sc := range out.Script {
		if sc == nil {
			continue
		}
		for i, sh := range sc.VisualPlan {
			if sh == nil || sh.ShotID != shotID {
				continue
			}
			fixed, err := remedy.StabilizeShot(sh)
			if err != nil {
				return editResult{}, err
			}
			sc.VisualPlan[i] = fixed
			return editResult{doc: out, summary: "shot " + shotID + " stabilized", changed: changedDoc(doc, out)}, nil
		}
	}
	return editResult{}, fmt.Errorf("stabilize %q: %w", shotID, remedy.ErrShotNotFound)
}

// changedDoc compares the encoded documents.
func changedDoc(before, after *domain.Document) bool {
	b1, err1 := domain.Marshal(before)
	b2, err2 := domain.Marshal(after)
	return err1 != nil || err2 != nil || string(b1) != string(b2)
}

// issueByID analyzes doc and returns the issue with id.
func (a *app) issueByID(doc *domain.Document, id string) (domain.Issue, error) {
	for _, is := range a.analyzer.Analyze(doc).Issues {
		if is.ID == id {
			return is, nil
		}
	}
	return domain.Issue{}, fmt.Errorf("no issue %q in the current analysis", id)
}

func (a *app) newPatchCommand() *cobra.Command {
	var (
		dryRun    bool
		shotID    string
		patch     string
		patchFile string
		issueID   string
	)
	cmd := &cobra.Command{
		Use:   "patch <script>",
		Short: "Merge a JSON patch into a shot",
		Long: `Merge a JSON object into one shot: nested objects are merged key by key,
everything else is replaced. The patch comes from --patch, --patch-file
(- for stdin) or the suggestion of an issue (--issue).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if patchFile != "" {
				b, err := readInput(cmd, patchFile)
				if err != nil {
					return err
				}
				patch = string(b)
			}
			if patch == "" && issueID == "" {
				return &exitError{code: 2, err: errors.New("one of --patch, --patch-file or --issue is required")}
			}
			return a.edit(cmd.Context(), args[0], "patch", dryRun, func(doc *domain.Document) (editResult, error) {
				if issueID != "" {
					is, err := a.issueByID(doc, issueID)
					if err != nil {
						return editResult{}, err
					}
					var out *domain.Document
					if is.Patch != nil {
						out, err = remedy.ApplyPatch(doc, is.ShotID, is.Patch)
					} else {
						out, err = remedy.ApplyJSONPatch(doc, is.ShotID, is.Suggestion)
					}
					if err != nil {
						return editResult{}, err
					}
					return editResult{doc: out, summary: "issue " + issueID + " patched", changed: changedDoc(doc, out)}, nil
				}
				if shotID == "" {
					return editResult{}, errors.New("--shot is required with --patch")
				}
				out, err := remedy.ApplyJSONPatch(doc, shotID, patch)
				if err != nil {
					return editResult{}, err
				}
				return editResult{doc: out, summary: "shot " + shotID + " patched", changed: changedDoc(doc, out)}, nil
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "print the patched script instead of saving it")
	f.StringVar(&shotID, "shot", "", "shot to patch")
	f.StringVar(&patch, "patch", "", "JSON object to merge")
	f.StringVar(&patchFile, "patch-file", "", "file holding the JSON patch (- for stdin)")
	f.StringVar(&issueID, "issue", "", "apply the suggestion of this issue id")
	return cmd
}

func (a *app) newSuggestCommand() *cobra.Command {
	var (
		dryRun   bool
		shotID   string
		template string
		issueID  string
	)
	cmd := &cobra.Command{
		Use:   "suggest <script>",
		Short: "Append a suggestion template to a shot prompt",
		Long: `Append text to a shot's composition prompt. With --issue the issue's
suggestion template is used, e.g. the positioning sentence of a character
lock issue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd.Context(), args[0], "suggest", dryRun, func(doc *domain.Document) (editResult, error) {
				id, tpl := shotID, template
				if issueID != "" {
					is, err := a.issueByID(doc, issueID)
					if err != nil {
						return editResult{}, err
					}
					if is.SuggestionTemplate == "" {
						return editResult{}, fmt.Errorf("issue %q has no suggestion template", issueID)
					}
					id, tpl = is.ShotID, is.SuggestionTemplate
				}
				if id == "" || tpl == "" {
					return editResult{}, errors.New("--shot and --template (or --issue) are required")
				}
				out, err := remedy.ApplySuggestion(doc, id, tpl)
				if err != nil {
					return editResult{}, err
				}
				return editResult{doc: out, summary: "shot " + id + " prompt extended", changed: changedDoc(doc, out)}, nil
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "print the changed script instead of saving it")
	f.StringVar(&shotID, "shot", "", "shot whose prompt is extended")
	f.StringVar(&template, "template", "", "text appended to the prompt")
	f.StringVar(&issueID, "issue", "", "use the suggestion template of this issue id")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
