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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shotlint/internal/analysis"
	"shotlint/internal/config"
	"shotlint/internal/domain"
	"shotlint/internal/export"
	applog "shotlint/internal/log"
	"shotlint/internal/script"
	"shotlint/internal/server"
	"shotlint/internal/storage"
	"shotlint/internal/telemetry"
)

// fileReport is the JSON output of analyze for one script.
type fileReport struct {
	Path string `json:"path"`
	domain.AnalysisResult
	Summaries []analysis.ShotSummary `json:"summaries"`
	RunID     string                 `json:"runId,omitempty"`
}

type analyzeOptions struct {
	format string
	record bool
	remote bool
	failOn string
}

func (a *app) newAnalyzeCommand() *cobra.Command {
	var opt analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <script>...",
		Short: "Analyze scripts and report continuity issues",
		Long: `Analyze one or more scripts. Each file is analyzed independently; a file whose
top level is not an object with a "script" list yields an empty report.

The exit status is 1 when a file has issues at or above --fail-on
(critical by default, configurable as analysis.fail_on).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opt.failOn == "" {
				opt.failOn = a.cfg.Analysis.FailOn
			}
			return a.runAnalyze(cmd.Context(), args, opt)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opt.format, "format", "f", "text", "output format: text | json | md | html")
	f.BoolVar(&opt.record, "record", false, "store the run in the workspace index (or the server archive with --remote)")
	f.BoolVar(&opt.remote, "remote", false, "analyze on the configured server instead of locally")
	f.StringVar(&opt.failOn, "fail-on", "", "exit non-zero at this level: critical | warning | none")
	return cmd
}

func (a *app) runAnalyze(ctx context.Context, paths []string, opt analyzeOptions) error {
	switch opt.failOn {
	case config.FailOnCritical, config.FailOnWarning, config.FailOnNone:
	default:
		return &exitError{code: 2, err: fmt.Errorf("unknown --fail-on level %q", opt.failOn)}
	}
	reports := make([]fileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			rep, err := a.analyzeFile(gctx, p, opt)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := a.writeReports(reports, opt.format); err != nil {
		return err
	}
	for _, r := range reports {
		if failed(r.Stats, opt.failOn) {
			return &exitError{code: 1}
		}
	}
	return nil
}

func (a *app) analyzeFile(ctx context.Context, path string, opt analyzeOptions) (fileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileReport{}, err
	}
	l := applog.WithOperation(a.log, "analyze")
	ctx = applog.WithScript(ctx, path)
	if errs, err := script.Validate(data); err == nil {
		for _, e := range errs {
			l.WarnContext(ctx, "schema", slog.String("field", e.Field), slog.String("msg", e.Message))
		}
	}

	rep := fileReport{Path: path}
	if opt.remote {
		c := server.NewClient(a.cfg.Server.BaseURL, a.token, a.cfg.Server.Timeout())
		resp, err := c.Analyze(ctx, data, opt.record, filepath.Base(path))
		if err != nil {
			return fileReport{}, err
		}
		rep.AnalysisResult, rep.Summaries, rep.RunID = resp.AnalysisResult, resp.Summaries, resp.RunID
		return rep, nil
	}

	rep.AnalysisResult = script.AnalyzeBytesWith(a.analyzer, data)
	rep.Summaries = analysis.ShotSummaries(rep.AnalysisResult)
	telemetry.Analysis("cli", rep.Stats)
	l.DebugContext(ctx, "analyzed", slog.Int("shots", rep.Stats.TotalShots), slog.Int("critical", rep.Stats.CriticalIssues))
	if opt.record {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fileReport{}, err
		}
		run, err := storage.RecordRun(ctx, filepath.Dir(abs), abs, rep.AnalysisResult, a.now())
		if err != nil {
			return fileReport{}, fmt.Errorf("record run: %w", err)
		}
		rep.RunID = run.ID
	}
	return rep, nil
}

func (a *app) writeReports(reports []fileReport, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		for i, r := range reports {
			if i > 0 {
				_, _ = fmt.Fprintln(a.out)
			}
			a.printResult(a.out, r.Path, r.AnalysisResult)
			if r.RunID != "" {
				_, _ = fmt.Fprintf(a.out, "  %s\n", a.st.dim.Render("recorded run "+r.RunID))
			}
		}
		return nil
	case "json":
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		b, err := domain.MarshalIndent(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(b))
		return err
	case "md", "markdown":
		for _, r := range reports {
			if _, err := a.out.Write(export.RenderMarkdown(a.report(r.Path, r.AnalysisResult))); err != nil {
				return err
			}
		}
		return nil
	case "html":
		for _, r := range reports {
			b, err := export.RenderHTML(a.report(r.Path, r.AnalysisResult))
			if err != nil {
				return err
			}
			if _, err := a.out.Write(b); err != nil {
				return err
			}
		}
		return nil
	default:
		return &exitError{code: 2, err: fmt.Errorf("unknown format %q", format)}
	}
}

func (a *app) report(path string, res domain.AnalysisResult) export.Report {
	return export.Report{Title: filepath.Base(path), Source: path, When: a.now(), Result: res}
}

// failed reports whether st breaches the fail-on level.
func failed(st domain.Stats, level string) bool {
	switch level {
	case config.FailOnCritical:
		return st.CriticalIssues > 0
	case config.FailOnWarning:
		return st.CriticalIssues > 0 || st.Warnings > 0
	default:
		return false
	}
}

func (a *app) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script>",
		Short: "Check a script against the document schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			errs, err := script.Validate(data)
			if err != nil {
				return err
			}
			if len(errs) == 0 {
				_, _ = fmt.Fprintf(a.out, "%s %s\n", a.st.ok.Render("valid"), args[0])
				return nil
			}
			for _, e := range errs {
				_, _ = fmt.Fprintf(a.out, "%s %s\n", a.st.crit.Render("✖"), e)
			}
			return &exitError{code: 1, err: fmt.Errorf("%s: %d schema errors", args[0], len(errs))}
		},
	}
}
