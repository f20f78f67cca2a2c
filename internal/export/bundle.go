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
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"shotlint/internal/domain"
	"shotlint/internal/version"
)

// ManifestName is the bundle entry describing its contents.
const ManifestName = "manifest.json"

// BundleOptions controls bundle export.
type BundleOptions struct {
	Zstd          bool // compress entries with zstd (zip method 93) instead of deflate
	IncludeReport bool // add report.md and strip.png
	Report        Report
}

// Manifest lists the records of a bundle in shot order.
type Manifest struct {
	Generator string        `json:"generator"`
	Shots     int           `json:"shots"`
	Records   []string      `json:"records"`
	Stats     *domain.Stats `json:"stats,omitempty"`
	Method    string        `json:"compression"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportBundle packages one generation record per shot of doc into a zip
// archive at outPath, plus a manifest and optionally the review report.
func ExportBundle(doc *domain.Document, outPath string, opt BundleOptions) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	zw, f, err := createZip(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := WriteBundle(zw, doc, opt); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// WriteBundle writes the bundle entries to zw without closing it.
func WriteBundle(zw *zip.Writer, doc *domain.Document, opt BundleOptions) error {
	method := zip.Deflate
	man := Manifest{Generator: "shotlint " + version.String(), Method: "deflate"}
	if opt.Zstd {
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
		method = zstd.ZipMethodWinZip
		man.Method = "zstd"
	}

	shots := doc.Shots()
	pad := len(fmt.Sprint(len(shots)))
	for i, sh := range shots {
		rec, err := RenderExportRecord(sh)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("records/%0*d-%s.json", pad, i+1, unsafeName.ReplaceAllString(sh.ShotID, "_"))
		if err := addZipFile(zw, name, method, rec); err != nil {
			return fmt.Errorf("zip add record: %w", err)
		}
		man.Records = append(man.Records, name)
	}
	man.Shots = len(shots)

	if opt.IncludeReport {
		st := opt.Report.Result.Stats
		man.Stats = &st
		if err := addZipFile(zw, "report.md", method, RenderMarkdown(opt.Report)); err != nil {
			return fmt.Errorf("zip add report: %w", err)
		}
		var img bytes.Buffer
		if err := WriteStripPNG(&img, opt.Report, PNGOptions{}); err != nil {
			return err
		}
		// PNG is already compressed
		if err := addZipFile(zw, "strip.png", zip.Store, img.Bytes()); err != nil {
			return fmt.Errorf("zip add strip: %w", err)
		}
	}

	b, err := domain.MarshalIndent(man)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, ManifestName, method, b); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	return nil
}

// OpenBundle opens a bundle for reading, with zstd entries supported.
func OpenBundle(path string) (*zip.ReadCloser, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return rc, nil
}

// ReadBundleFile returns the content of the named entry.
func ReadBundleFile(rc *zip.ReadCloser, name string) ([]byte, error) {
	for _, f := range rc.File {
		if f.Name != name {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("bundle entry %s: %w", name, os.ErrNotExist)
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	// Ensure directory exists
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create bundle: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
