/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"shotlint/internal/server"
	"shotlint/internal/storage"
)

func (a *app) newSearchCommand() *cobra.Command {
	var q storage.SearchQuery
	cmd := &cobra.Command{
		Use:   "search <script> [query]",
		Short: "Search shot prompts of a script",
		Long: `Search the composition prompts of a script. The query uses SQLite FTS5
syntax: terms, "quoted phrases", AND/OR/NOT. The index lives next to the
script and is rebuilt when it is missing or stale.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				q.Text = args[1]
			}
			ctx := cmd.Context()
			rebuilt, err := storage.DetectAndRebuildIndex(ctx, ws.Root, ws.Doc)
			if err != nil {
				return err
			}
			if rebuilt {
				a.log.DebugContext(ctx, "index rebuilt", slog.String("root", ws.Root))
			} else if err := storage.UpdateIndex(ctx, ws.Root, ws.Doc); err != nil {
				return err
			}
			hits, err := storage.Search(ctx, ws.Root, q)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				_, _ = fmt.Fprintln(a.out, a.st.dim.Render("no matches"))
				return nil
			}
			for _, h := range hits {
				_, _ = fmt.Fprintf(a.out, "%-12s %s  %s\n", h.ShotID,
					a.st.dim.Render(fmt.Sprintf("scene %d #%d", h.Scene, h.Position)), h.Snippet)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&q.Text, "query", "q", "", "full-text query")
	f.StringVar(&q.Character, "character", "", "only shots defining this character id")
	f.StringVar(&q.Location, "location", "", "only shots at this location id")
	f.IntVar(&q.SceneFrom, "from", 0, "first scene (1-based)")
	f.IntVar(&q.SceneTo, "to", 0, "last scene (1-based)")
	f.IntVar(&q.Limit, "limit", 0, "maximum results")
	f.IntVar(&q.Offset, "offset", 0, "skip this many results")
	return cmd
}

func (a *app) newRunsCommand() *cobra.Command {
	var (
		limit  int
		show   string
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "runs [script]",
		Short: "List recorded analysis runs",
		Long: `List the runs stored with analyze --record. Local runs live in the index next
to the script; --remote lists the server archive.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var runs []storage.Run
			switch {
			case remote:
				c := server.NewClient(a.cfg.Server.BaseURL, a.token, a.cfg.Server.Timeout())
				rs, err := c.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				runs = rs
			case len(args) == 1:
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				root := filepath.Dir(abs)
				if show != "" {
					run, res, err := storage.LoadRun(ctx, root, show)
					if errors.Is(err, storage.ErrRunNotFound) {
						return &exitError{code: 1, err: fmt.Errorf("run %s not found", show)}
					}
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(a.out, "%s  %s\n", a.st.dim.Render("run "+run.ID), run.TS.Local().Format("2006-01-02 15:04:05"))
					a.printResult(a.out, run.Script, res)
					return nil
				}
				rs, err := storage.ListRuns(ctx, root, limit)
				if err != nil {
					return err
				}
				runs = rs
			default:
				return &exitError{code: 2, err: errors.New("a script path or --remote is required")}
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(a.out, a.st.dim.Render("no runs recorded"))
				return nil
			}
			for _, r := range runs {
				state := a.st.ok.Render("READY  ")
				if r.Stats.CriticalIssues > 0 {
					state = a.st.crit.Render("BLOCKED")
				}
				_, _ = fmt.Fprintf(a.out, "%s  %s  %s  %s  %s\n", r.ID, r.TS.Local().Format("2006-01-02 15:04:05"),
					state, r.Script, a.st.dim.Render(statsLine(r.Stats)))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 20, "maximum runs listed")
	f.StringVar(&show, "show", "", "print the stored report of this run id")
	f.BoolVar(&remote, "remote", false, "list the runs archived on the configured server")
	return cmd
}

func (a *app) newSnapshotsCommand() *cobra.Command {
	var (
		limit   int
		restore int64
		prune   int
	)
	cmd := &cobra.Command{
		Use:   "snapshots <script>",
		Short: "List, restore or prune the saved versions of a script",
		Long: `Every fix, stabilize, patch and suggest stores the resulting script as a
snapshot. --restore writes a snapshot back to the script (with a backup of
the current file); --prune keeps only the newest N snapshots.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := a.open(args[0])
			if err != nil {
				return err
			}
			switch {
			case restore > 0:
				doc, snap, err := storage.LoadSnapshot(ctx, ws, restore)
				if errors.Is(err, storage.ErrSnapshotNotFound) {
					return &exitError{code: 1, err: fmt.Errorf("snapshot %d not found", restore)}
				}
				if err != nil {
					return err
				}
				ws.Doc = doc
				if err := storage.Save(ws); err != nil {
					return err
				}
				if _, err := storage.SaveSnapshot(ctx, ws, "restore", a.now()); err != nil {
					a.log.WarnContext(ctx, "snapshot failed", slog.Any("err", err))
				}
				if err := storage.UpdateIndex(ctx, ws.Root, ws.Doc); err != nil {
					a.log.WarnContext(ctx, "index update failed", slog.Any("err", err))
				}
				_, _ = fmt.Fprintf(a.out, "%s snapshot %d (%s, %s)\n", a.st.ok.Render("restored"), snap.ID, snap.Reason,
					snap.TS.Local().Format("2006-01-02 15:04:05"))
				return nil
			case prune > 0:
				n, err := storage.PruneOldSnapshots(ctx, ws, prune)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.out, "%s %d snapshots\n", a.st.ok.Render("pruned"), n)
				return nil
			}

			snaps, err := storage.ListSnapshots(ctx, ws, limit)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				_, _ = fmt.Fprintln(a.out, a.st.dim.Render("no snapshots"))
				return nil
			}
			for _, s := range snaps {
				_, _ = fmt.Fprintf(a.out, "%4d  %s  %-10s %s\n", s.ID, s.TS.Local().Format("2006-01-02 15:04:05"),
					s.Reason, a.st.dim.Render(humanSize(s.Size)))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 20, "maximum snapshots listed")
	f.Int64Var(&restore, "restore", 0, "restore this snapshot id")
	f.IntVar(&prune, "prune", 0, "keep only the newest N snapshots")
	return cmd
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
