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
	"image/color"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"shotlint/internal/domain"
)

// PDFOptions controls PDF report export.
// Units are points (pt). Built-in Helvetica keeps text vector without
// embedding; UTF-8 input is translated to the core font code page.
type PDFOptions struct {
	IncludeSuggestions bool
	OnlyBlocked        bool // list only shots with at least one critical issue
	CriticalColor      color.RGBA
	WarningColor       color.RGBA
}

const (
	pdfMargin   = 40.0
	pdfLineH    = 14.0
	pdfBodySize = 10.0
)

// ExportReportPDF writes rep as a multi-page A4 PDF to outPath.
func ExportReportPDF(rep Report, outPath string, opt PDFOptions) error {
	critCol := opt.CriticalColor
	if critCol == (color.RGBA{}) {
		critCol = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	}
	warnCol := opt.WarningColor
	if warnCol == (color.RGBA{}) {
		warnCol = color.RGBA{R: 200, G: 130, B: 0, A: 255}
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		SizeStr: "A4",
	})
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(rep.title()), false)
	pdf.SetAuthor("shotlint", false)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 22, tr(rep.title()), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", pdfBodySize)
	if rep.Source != "" {
		pdf.CellFormat(0, pdfLineH, tr("Script: "+rep.Source), "", 1, "L", false, 0, "")
	}
	if !rep.When.IsZero() {
		pdf.CellFormat(0, pdfLineH, "Generated: "+rep.When.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, pdfLineH, rep.summaryLine(), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	// Category table
	pdf.SetFont("Helvetica", "B", pdfBodySize)
	pdf.CellFormat(140, pdfLineH, "Category", "B", 0, "L", false, 0, "")
	pdf.CellFormat(60, pdfLineH, "Issues", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", pdfBodySize)
	for _, typ := range domain.IssueTypes {
		pdf.CellFormat(140, pdfLineH, string(typ), "", 0, "L", false, 0, "")
		pdf.CellFormat(60, pdfLineH, fmt.Sprintf("%d", rep.Result.IssueCounts[typ]), "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	for _, sec := range rep.sections() {
		if opt.OnlyBlocked && sec.Ready {
			continue
		}
		pdf.SetFont("Helvetica", "B", 12)
		status := "ready"
		if !sec.Ready {
			status = "blocked"
		}
		pdf.CellFormat(0, 18, tr(fmt.Sprintf("%s  -  score %d/10, %s", sec.ShotID, sec.Score, status)), "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", pdfBodySize)
		if len(sec.Issues) == 0 {
			pdf.CellFormat(0, pdfLineH, "No issues.", "", 1, "L", false, 0, "")
		}
		for _, is := range sec.Issues {
			c := warnCol
			if is.Critical() {
				c = critCol
			}
			pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
			pdf.SetFont("Helvetica", "B", pdfBodySize)
			pdf.CellFormat(70, pdfLineH, string(is.Severity), "", 0, "L", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(90, pdfLineH, string(is.Type), "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", pdfBodySize)
			pdf.MultiCell(0, pdfLineH, tr(is.Message), "", "L", false)
			if opt.IncludeSuggestions && is.Suggestion != "" {
				pdf.SetTextColor(90, 90, 90)
				pdf.SetFont("Courier", "", 8)
				for _, line := range strings.Split(is.Suggestion, "\n") {
					pdf.SetX(pdfMargin + 160)
					pdf.MultiCell(0, 10, tr(line), "", "L", false)
				}
				pdf.SetTextColor(0, 0, 0)
			}
		}
		pdf.Ln(6)
	}

	if err := ensureDir(outPath); err != nil {
		return err
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
