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
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"shotlint/internal/analysis"
	"shotlint/internal/config"
	applog "shotlint/internal/log"
	"shotlint/internal/remedy"
	"shotlint/internal/rules"
	"shotlint/internal/storage"
	"shotlint/internal/telemetry"
	"shotlint/internal/version"
)

// exitError carries a process exit code. A nil err means the command already
// reported the failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app holds what every command shares once the root pre-run has resolved
// the environment.
type app struct {
	out    io.Writer
	errOut io.Writer
	now    func() time.Time

	cfg      config.AppConfig
	token    string
	rules    *rules.Rules
	analyzer *analysis.Analyzer
	fixer    *remedy.Fixer
	st       styles
	log      *slog.Logger

	mu sync.Mutex
	ws *storage.Workspace // last opened script, autosaved on a crash

	// root flags
	envFile   string
	rulesFile string
	debug     bool
	noColor   bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, now: time.Now}
}

func (a *app) workspace() *storage.Workspace {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ws
}

// open loads the script at path and remembers it for crash recovery.
func (a *app) open(path string) (*storage.Workspace, error) {
	ws, err := storage.OpenWorkspace(path)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.ws = ws
	a.mu.Unlock()
	return ws, nil
}

func (a *app) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shotlint",
		Short: "shotlint - continuity linter for AI video shot scripts",
		Long: `shotlint checks shot scripts for continuity problems before they are sent to a
video generator, fixes what it can and exports the generation records.

Scripts are JSON or YAML documents with a top-level "script" list of scenes.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.StringVar(&a.rulesFile, "rules", "", "rule table override (YAML); defaults to the configured rules_file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error { return a.setup() }

	cmd.AddCommand(
		a.newAnalyzeCommand(),
		a.newValidateCommand(),
		a.newFixCommand(),
		a.newStabilizeCommand(),
		a.newPatchCommand(),
		a.newSuggestCommand(),
		a.newExportCommand(),
		a.newSearchCommand(),
		a.newRunsCommand(),
		a.newSnapshotsCommand(),
		a.newWatchCommand(),
		a.newServeCommand(),
		a.newLoginCommand(),
		a.newLogoutCommand(),
		a.newVersionCommand(),
	)
	return cmd
}

// setup loads .env, the config file and the rule tables, then initializes
// logging and telemetry.
func (a *app) setup() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, token, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg, a.token = cfg, token

	opts := applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    a.errOut,
	}
	if a.debug {
		opts.Level = "debug"
	}
	applog.Init(opts)
	a.log = applog.WithComponent("cli")

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)

	path := a.rulesFile
	if path == "" {
		path = cfg.Analysis.RulesFile
	}
	if path != "" {
		r, err := rules.Load(path)
		if err != nil {
			return err
		}
		a.rules = r
		a.log.Debug("custom rules loaded", slog.String("path", path))
	}
	a.analyzer = analysis.New(a.rules)
	a.fixer = remedy.NewFixer(a.rules)
	a.st = newStyles(a.out, !a.noColor)
	return nil
}

// execute runs the CLI and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			_, _ = fmt.Fprintln(a.errOut, "Error:", ee.err)
		}
		return ee.code
	}
	_, _ = fmt.Fprintln(a.errOut, "Error:", err)
	return 1
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(a.out, version.String())
			return err
		},
	}
}
