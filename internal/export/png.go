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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PNGOptions controls the status strip: one cell per shot in reading order,
// filled by readiness and labelled with the shot ID and score.
// Zero values get reasonable defaults.
type PNGOptions struct {
	CellWidth  int
	CellHeight int
	Columns    int
	Ready      color.RGBA
	Warning    color.RGBA
	Blocked    color.RGBA
}

func (o PNGOptions) withDefaults() PNGOptions {
	if o.CellWidth <= 0 {
		o.CellWidth = 120
	}
	if o.CellHeight <= 0 {
		o.CellHeight = 48
	}
	if o.Columns <= 0 {
		o.Columns = 8
	}
	if o.Ready == (color.RGBA{}) {
		o.Ready = color.RGBA{R: 46, G: 160, B: 67, A: 255}
	}
	if o.Warning == (color.RGBA{}) {
		o.Warning = color.RGBA{R: 219, G: 171, B: 9, A: 255}
	}
	if o.Blocked == (color.RGBA{}) {
		o.Blocked = color.RGBA{R: 207, G: 34, B: 46, A: 255}
	}
	return o
}

// RenderStrip draws the status strip for rep.
func RenderStrip(rep Report, opt PNGOptions) *image.RGBA {
	opt = opt.withDefaults()
	secs := rep.sections()
	cols := min(opt.Columns, max(len(secs), 1))
	rows := max((len(secs)+cols-1)/cols, 1)
	img := image.NewRGBA(image.Rect(0, 0, cols*opt.CellWidth, rows*opt.CellHeight))
	// Background white
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	black := color.RGBA{0, 0, 0, 255}
	for i, sec := range secs {
		x := (i % cols) * opt.CellWidth
		y := (i / cols) * opt.CellHeight
		fill := opt.Ready
		switch {
		case sec.Critical > 0:
			fill = opt.Blocked
		case sec.Warnings > 0:
			fill = opt.Warning
		}
		fillRect(img, x+1, y+1, x+opt.CellWidth-2, y+opt.CellHeight-2, fill)
		strokeRect(img, x, y, x+opt.CellWidth-1, y+opt.CellHeight-1, black)
		label(img, x+6, y+18, clip(sec.ShotID, (opt.CellWidth-12)/7))
		label(img, x+6, y+34, fmt.Sprintf("%d/10 C%d W%d", sec.Score, sec.Critical, sec.Warnings))
	}
	return img
}

// WriteStripPNG encodes the status strip for rep to w.
func WriteStripPNG(w io.Writer, rep Report, opt PNGOptions) error {
	if err := png.Encode(w, RenderStrip(rep, opt)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ExportStripPNG writes the status strip for rep to outPath.
func ExportStripPNG(rep Report, outPath string, opt PNGOptions) error {
	if err := ensureDir(outPath); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := WriteStripPNG(f, rep, opt); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

func label(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0, 0, 0, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "~"
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	// top and bottom
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	// left and right
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
