/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ledongthuc/pdf"

	"shotlint/internal/domain"
)

func sampleDoc() *domain.Document {
	return &domain.Document{Script: []*domain.Scene{
		{Timeline: "0:00 - 0:05", VisualPlan: []*domain.Shot{
			{
				ShotID:            "s1",
				CompositionPrompt: "{char_a} walks",
				ScreenDirection:   "left_to_right",
				ParallaxLock:      domain.Bool(true),
				CharacterDefinitions: []*domain.CharacterDefinition{{
					ID:         "char_a",
					Appearance: map[string]any{"fur_color": "brown", "eyes": "green"},
					Scale:      domain.Float(1),
				}},
				Props:     []*domain.PropDefinition{},
				Technical: domain.Record{"seed": 3001, "fps": 30},
			},
			{ShotID: "s2", CompositionPrompt: "The owl flies <fast> & low"},
		}},
		{Timeline: "0:05 - 0:10", VisualPlan: []*domain.Shot{
			{ShotID: "s3", CompositionPrompt: "A quiet field"},
		}},
	}}
}

// sampleReport builds a result by hand: s1 ready, s2 blocked, s3 with a warning.
func sampleReport(doc *domain.Document) Report {
	patch := domain.NewObject().Set("continuity_patch", domain.NewObject().Set("parallax_lock", true))
	res := domain.AnalysisResult{
		Stats:       domain.Stats{TotalShots: 3, Veo3Ready: 2, CriticalIssues: 1, Warnings: 1},
		IssueCounts: domain.ZeroCounts(),
		Shots:       doc.Shots(),
		Issues: []domain.Issue{
			{ID: "s2-physics-fly", Type: domain.IssuePhysics, Severity: domain.SeverityCritical, ShotID: "s2",
				Message: "Unexplained flight", Suggestion: "Add a reason for flight"},
			{ID: "s3-continuity-patch", Type: domain.IssueContinuity, Severity: domain.SeverityWarning, ShotID: "s3",
				Message: "Continuity fields missing", Suggestion: "{\n  \"parallax_lock\": true\n}", Patch: patch},
		},
	}
	res.IssueCounts[domain.IssuePhysics] = 1
	res.IssueCounts[domain.IssueContinuity] = 1
	return Report{Source: "script.json", When: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), Result: res}
}

func TestExportRecordOrderAndDefaults(t *testing.T) {
	doc := sampleDoc()
	rec, err := ExportRecord(doc.FindShot("s1"))
	if err != nil {
		t.Fatalf("ExportRecord: %v", err)
	}
	got, err := domain.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"shot_id":"s1","prompt":"{char_a} walks","screen_direction":"left_to_right","parallax_lock":true,` +
		`"characters":[{"id":"char_a","eyes":"green","fur_color":"brown","scale":1}],` +
		`"technical":{"fps":30,"codec":"H.264","negative_prompts":["low quality","blurry","watermark"],"seed":3001}}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExportRecordMinimalShot(t *testing.T) {
	doc := sampleDoc()
	rec, err := ExportRecord(doc.FindShot("s2"))
	if err != nil {
		t.Fatalf("ExportRecord: %v", err)
	}
	if diff := cmp.Diff([]string{"shot_id", "prompt", "technical"}, rec.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	b, _ := RenderExportRecord(doc.FindShot("s2"))
	if !bytes.Contains(b, []byte(`"The owl flies <fast> & low"`)) {
		t.Fatalf("prompt should not be HTML escaped:\n%s", b)
	}
	if !bytes.Contains(b, []byte("\n  \"prompt\"")) {
		t.Fatalf("expected two-space indentation:\n%s", b)
	}
	if _, err := ExportRecord(nil); err == nil {
		t.Fatalf("expected error for nil shot")
	}
}

func TestWriteRecordsJSONL(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteRecordsJSONL(&buf, sampleDoc())
	if err != nil {
		t.Fatalf("WriteRecordsJSONL: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}
	var ids []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		ids = append(ids, m["shot_id"].(string))
	}
	if diff := cmp.Diff([]string{"s1", "s2", "s3"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestExportReportPDF(t *testing.T) {
	doc := sampleDoc()
	out := filepath.Join(t.TempDir(), "nested", "report.pdf")
	if err := ExportReportPDF(sampleReport(doc), out, PDFOptions{IncludeSuggestions: true}); err != nil {
		t.Fatalf("ExportReportPDF: %v", err)
	}
	f, r, err := pdf.Open(out)
	if err != nil {
		t.Fatalf("open pdf: %v", err)
	}
	defer func() { _ = f.Close() }()
	if r.NumPage() < 1 {
		t.Fatalf("expected at least one page")
	}
	p := r.Page(1)
	if p.V.IsNull() {
		t.Fatalf("first page missing")
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if !strings.Contains(text, "Shot continuity report") {
		t.Fatalf("title not found in page text: %q", text)
	}
}

func TestExportReportPDFOnlyBlockedIsSmaller(t *testing.T) {
	doc := sampleDoc()
	dir := t.TempDir()
	all := filepath.Join(dir, "all.pdf")
	blocked := filepath.Join(dir, "blocked.pdf")
	if err := ExportReportPDF(sampleReport(doc), all, PDFOptions{IncludeSuggestions: true}); err != nil {
		t.Fatalf("all: %v", err)
	}
	if err := ExportReportPDF(sampleReport(doc), blocked, PDFOptions{OnlyBlocked: true}); err != nil {
		t.Fatalf("blocked: %v", err)
	}
	fa, _ := os.Stat(all)
	fb, _ := os.Stat(blocked)
	if fb.Size() >= fa.Size() {
		t.Fatalf("expected filtered report to be smaller: %d >= %d", fb.Size(), fa.Size())
	}
}

func TestRenderStrip(t *testing.T) {
	rep := sampleReport(sampleDoc())
	var buf bytes.Buffer
	if err := WriteStripPNG(&buf, rep, PNGOptions{}); err != nil {
		t.Fatalf("WriteStripPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3*120 || b.Dy() != 48 {
		t.Fatalf("unexpected size %v", b)
	}
	def := PNGOptions{}.withDefaults()
	checks := []struct {
		x    int
		want color.RGBA
	}{
		{2, def.Ready},
		{120 + 2, def.Blocked},
		{240 + 2, def.Warning},
	}
	for _, c := range checks {
		r, g, b, a := img.At(c.x, 2).RGBA()
		got := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
		if got != c.want {
			t.Fatalf("cell at x=%d: got %v want %v", c.x, got, c.want)
		}
	}
}

func TestRenderStripWraps(t *testing.T) {
	rep := sampleReport(sampleDoc())
	img := RenderStrip(rep, PNGOptions{Columns: 2, CellWidth: 50, CellHeight: 20})
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 40 {
		t.Fatalf("unexpected size %v", b)
	}
	empty := RenderStrip(Report{}, PNGOptions{})
	if b := empty.Bounds(); b.Dx() != 120 || b.Dy() != 48 {
		t.Fatalf("empty report should render one blank cell, got %v", b)
	}
}

func TestClip(t *testing.T) {
	if got := clip("scene_12_shot_4", 6); got != "scene~" {
		t.Fatalf("clip: %q", got)
	}
	if got := clip("s1", 6); got != "s1" {
		t.Fatalf("clip short: %q", got)
	}
}

func TestRenderMarkdownAndHTML(t *testing.T) {
	rep := sampleReport(sampleDoc())
	md := string(RenderMarkdown(rep))
	for _, want := range []string{
		"# Shot continuity report",
		"Script: `script.json`",
		"| 3 | 2 | 1 | 1 |",
		"| Physics | 1 |",
		"| Narrative | 0 |",
		"### s2\n\nScore 7/10, blocked.",
		"### s1\n\nScore 10/10, ready.\n\nNo issues.",
		"  ```json\n  {\n    \"parallax_lock\": true\n  }\n  ```",
		"- **Critical** Physics: Unexplained flight",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}

	h, err := RenderHTML(rep)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	html := string(h)
	for _, want := range []string{"<title>Shot continuity report</title>", "<table>", "<h3>s2</h3>", "<strong>Critical</strong>"} {
		if !strings.Contains(html, want) {
			t.Fatalf("html missing %q:\n%s", want, html)
		}
	}
}

func TestBundleRoundTrip(t *testing.T) {
	for _, useZstd := range []bool{false, true} {
		doc := sampleDoc()
		out := filepath.Join(t.TempDir(), "shots")
		opt := BundleOptions{Zstd: useZstd, IncludeReport: true, Report: sampleReport(doc)}
		if err := ExportBundle(doc, out, opt); err != nil {
			t.Fatalf("ExportBundle(zstd=%v): %v", useZstd, err)
		}
		rc, err := OpenBundle(out + ".zip")
		if err != nil {
			t.Fatalf("OpenBundle: %v", err)
		}
		b, err := ReadBundleFile(rc, ManifestName)
		if err != nil {
			_ = rc.Close()
			t.Fatalf("manifest: %v", err)
		}
		var man Manifest
		if err := json.Unmarshal(b, &man); err != nil {
			_ = rc.Close()
			t.Fatalf("manifest json: %v", err)
		}
		wantMethod := "deflate"
		if useZstd {
			wantMethod = "zstd"
		}
		if man.Shots != 3 || man.Method != wantMethod || man.Stats == nil || man.Stats.CriticalIssues != 1 {
			_ = rc.Close()
			t.Fatalf("unexpected manifest: %+v", man)
		}
		wantRecords := []string{"records/1-s1.json", "records/2-s2.json", "records/3-s3.json"}
		if diff := cmp.Diff(wantRecords, man.Records); diff != "" {
			_ = rc.Close()
			t.Fatalf("records (-want +got):\n%s", diff)
		}
		rec, err := ReadBundleFile(rc, "records/1-s1.json")
		if err != nil {
			_ = rc.Close()
			t.Fatalf("record: %v", err)
		}
		want, _ := RenderExportRecord(doc.FindShot("s1"))
		if !bytes.Equal(rec, want) {
			_ = rc.Close()
			t.Fatalf("record content differs:\n%s\nvs\n%s", rec, want)
		}
		for _, name := range []string{"report.md", "strip.png"} {
			if _, err := ReadBundleFile(rc, name); err != nil {
				_ = rc.Close()
				t.Fatalf("%s: %v", name, err)
			}
		}
		if _, err := ReadBundleFile(rc, "missing.json"); !errors.Is(err, os.ErrNotExist) {
			_ = rc.Close()
			t.Fatalf("expected not-exist error, got %v", err)
		}
		_ = rc.Close()
	}
}

func TestBatchExportPresets(t *testing.T) {
	doc := sampleDoc()
	rep := sampleReport(doc)
	dir := t.TempDir()

	paths, err := BatchExport(doc, rep, BatchOptions{Preset: PresetReview, OutDir: filepath.Join(dir, "review")})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	want := []string{
		filepath.Join(dir, "review", "report.pdf"),
		filepath.Join(dir, "review", "report.html"),
		filepath.Join(dir, "review", "report.png"),
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("review paths (-want +got):\n%s", diff)
	}

	paths, err = BatchExport(doc, rep, BatchOptions{Preset: PresetPipeline, OutDir: filepath.Join(dir, "pipe"), Base: "ep1", Zstd: true})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || fi.Size() == 0 {
			t.Fatalf("expected non-empty %s: %v", p, err)
		}
	}
	jl, _ := os.ReadFile(filepath.Join(dir, "pipe", "ep1.jsonl"))
	if got := bytes.Count(jl, []byte("\n")); got != 3 {
		t.Fatalf("expected 3 jsonl lines, got %d", got)
	}

	if _, err := BatchExport(doc, rep, BatchOptions{Formats: []string{"md", "docx"}, OutDir: dir}); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.md")); err != nil {
		t.Fatalf("formats before the unknown one should be written: %v", err)
	}
	if _, err := BatchExport(nil, rep, BatchOptions{OutDir: dir}); err == nil {
		t.Fatalf("expected error for nil document")
	}
}
