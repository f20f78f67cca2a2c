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
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shotlint/internal/config"
	"shotlint/internal/domain"
	"shotlint/internal/server"
	"shotlint/internal/watch"
)

func (a *app) newWatchCommand() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <script>...",
		Short: "Re-analyze scripts whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := watch.New(args, watch.Options{
				Debounce: debounce,
				Analyzer: a.analyzer,
				OnResult: func(r watch.Result) { a.printWatchResult(r) },
			})
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before a changed file is analyzed")
	return cmd
}

func (a *app) printWatchResult(r watch.Result) {
	at := a.st.dim.Render(r.At.Format("15:04:05"))
	if r.Err != nil {
		_, _ = fmt.Fprintf(a.out, "%s %s %s %v\n", at, a.st.crit.Render("✖"), r.Path, r.Err)
		return
	}
	_, _ = fmt.Fprintf(a.out, "%s %s %s\n", at, readyMark(a.st, r.Result.Stats), summaryLine(r.Path, r.Result))
}

func readyMark(s styles, st domain.Stats) string {
	switch {
	case st.CriticalIssues > 0:
		return s.crit.Render("✖")
	case st.Warnings > 0:
		return s.warn.Render("▲")
	default:
		return s.ok.Render("✔")
	}
}

func summaryLine(path string, res domain.AnalysisResult) string {
	return path + "  " + statsLine(res.Stats)
}

func (a *app) newServeCommand() *cobra.Command {
	var (
		addr   string
		db     string
		secret string
		maxMiB int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the analysis API. Requests need a bearer token signed with --secret
(SHL_API_SECRET); a development secret is used when none is set. With --db
(server.database_url) analysis runs can be archived in PostgreSQL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if db == "" {
				db = a.cfg.Server.DatabaseURL
			}
			if secret == "" {
				a.log.Warn("no API secret configured, using the development secret")
			}
			a.log.Info("serving", slog.String("addr", addr), slog.Bool("archive", db != ""))
			return server.Start(cmd.Context(), server.Config{
				Addr:         addr,
				Secret:       secret,
				DatabaseURL:  db,
				Rules:        a.rules,
				MaxBodyBytes: maxMiB << 20,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (default server.addr)")
	f.StringVar(&db, "db", "", "PostgreSQL URL of the run archive (default server.database_url)")
	f.StringVar(&secret, "secret", os.Getenv("SHL_API_SECRET"), "token signing secret")
	f.Int64Var(&maxMiB, "max-body-mib", 8, "request body limit in MiB")
	return cmd
}

func (a *app) newLoginCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request an API token and store it in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := server.NewClient(a.cfg.Server.BaseURL, "", a.cfg.Server.Timeout())
			tr, err := c.IssueToken(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			if err := config.Save(a.cfg, tr.Token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "%s %s (expires %s)\n", a.st.ok.Render("logged in to"), a.cfg.Server.BaseURL, tr.ExpiresAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject; sessions are scoped to it")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func (a *app) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ClearToken(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, a.st.ok.Render("logged out"))
			return nil
		},
	}
}
