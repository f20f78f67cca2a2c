/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shotlint/internal/domain"
)

// PresetName represents a named export preset.
type PresetName string

const (
	// PresetReview produces human-readable reports.
	PresetReview PresetName = "review"
	// PresetPipeline produces the machine records for the video generator.
	PresetPipeline PresetName = "pipeline"
)

// Formats understood by BatchExport.
const (
	FormatPDF    = "pdf"
	FormatPNG    = "png"
	FormatMD     = "md"
	FormatHTML   = "html"
	FormatJSONL  = "jsonl"
	FormatBundle = "zip"
)

// BatchOptions controls batch export across multiple formats.
//
// Path semantics:
//   - OutDir is created when missing; an empty OutDir means "./exports/<preset>".
//   - Every format writes one file named <Base>.<format>; Base defaults to "report".
type BatchOptions struct {
	Preset  PresetName
	Formats []string // empty means preset defaults
	OutDir  string
	Base    string
	PDF     PDFOptions
	PNG     PNGOptions
	Zstd    bool
}

// BatchExport writes every requested format for doc and its report and
// returns the written paths in format order.
func BatchExport(doc *domain.Document, rep Report, opt BatchOptions) ([]string, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		preset := opt.Preset
		if preset == "" {
			preset = PresetReview
		}
		baseOut = filepath.Join("exports", string(preset))
	}
	base := opt.Base
	if base == "" {
		base = "report"
	}

	var written []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		out := filepath.Join(baseOut, base+"."+f)
		var err error
		switch f {
		case FormatPDF:
			err = ExportReportPDF(rep, out, opt.PDF)
		case FormatPNG:
			err = ExportStripPNG(rep, out, opt.PNG)
		case FormatMD:
			err = writeFile(out, RenderMarkdown(rep))
		case FormatHTML:
			var b []byte
			if b, err = RenderHTML(rep); err == nil {
				err = writeFile(out, b)
			}
		case FormatJSONL:
			err = exportJSONL(doc, out)
		case FormatBundle:
			err = ExportBundle(doc, out, BundleOptions{Zstd: opt.Zstd, IncludeReport: true, Report: rep})
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
		if err != nil {
			return written, fmt.Errorf("%s export: %w", f, err)
		}
		written = append(written, out)
	}
	return written, nil
}

func exportJSONL(doc *domain.Document, out string) error {
	if err := ensureDir(out); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create jsonl: %w", err)
	}
	if _, err := WriteRecordsJSONL(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetReview:
		return []string{FormatPDF, FormatHTML, FormatPNG}
	case PresetPipeline:
		return []string{FormatJSONL, FormatBundle}
	default:
		return []string{FormatPDF}
	}
}
