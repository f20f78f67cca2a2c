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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shotlint/internal/export"
	"shotlint/internal/remedy"
)

type exportOptions struct {
	shotID      string
	formats     []string
	preset      string
	outDir      string
	base        string
	zstd        bool
	onlyBlocked bool
	noSuggest   bool
}

func (a *app) newExportCommand() *cobra.Command {
	var opt exportOptions
	cmd := &cobra.Command{
		Use:   "export <script>",
		Short: "Export generation records and review reports",
		Long: `Export a script.

  --shot ID           print the generation record of one shot
  --format record     print every generation record as JSON lines
  otherwise           write files for --format (pdf, png, md, html, jsonl, zip)
                      or the formats of --preset (review, pipeline)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args[0])
			if err != nil {
				return err
			}
			if opt.shotID != "" {
				shot := ws.Doc.FindShot(opt.shotID)
				if shot == nil {
					return fmt.Errorf("export %q: %w", opt.shotID, remedy.ErrShotNotFound)
				}
				b, err := export.RenderExportRecord(shot)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, string(b))
				return err
			}
			if len(opt.formats) == 1 && strings.EqualFold(opt.formats[0], "record") {
				_, err := export.WriteRecordsJSONL(a.out, ws.Doc)
				return err
			}

			switch export.PresetName(opt.preset) {
			case "", export.PresetReview, export.PresetPipeline:
			default:
				return &exitError{code: 2, err: fmt.Errorf("unknown preset %q", opt.preset)}
			}
			base := opt.base
			if base == "" {
				base = strings.TrimSuffix(filepath.Base(ws.ScriptPath), filepath.Ext(ws.ScriptPath))
			}
			res := a.analyzer.Analyze(ws.Doc)
			written, err := export.BatchExport(ws.Doc, a.report(ws.ScriptPath, res), export.BatchOptions{
				Preset:  export.PresetName(opt.preset),
				Formats: opt.formats,
				OutDir:  opt.outDir,
				Base:    base,
				PDF:     export.PDFOptions{IncludeSuggestions: !opt.noSuggest, OnlyBlocked: opt.onlyBlocked},
				Zstd:    opt.zstd,
			})
			for _, p := range written {
				_, _ = fmt.Fprintf(a.out, "%s %s\n", a.st.ok.Render("wrote"), p)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opt.shotID, "shot", "", "print the generation record of this shot")
	f.StringSliceVarP(&opt.formats, "format", "f", nil, "formats to write; \"record\" prints JSON lines to stdout")
	f.StringVar(&opt.preset, "preset", "", "format preset: review | pipeline")
	f.StringVarP(&opt.outDir, "out", "o", "", "output directory (default exports/<preset>)")
	f.StringVar(&opt.base, "base", "", "output file name without extension (default: script name)")
	f.BoolVar(&opt.zstd, "zstd", false, "compress bundle entries with zstd")
	f.BoolVar(&opt.onlyBlocked, "only-blocked", false, "list only blocked shots in the PDF report")
	f.BoolVar(&opt.noSuggest, "no-suggestions", false, "leave suggestions out of the PDF report")
	return cmd
}
