/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package watch re-analyzes script files whenever they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/script"
)

// Result is one analysis pass over a watched file. Err is set when the file
// could not be read or parsed; Result is then the zeroed report.
type Result struct {
	Path   string
	Doc    *domain.Document
	Result domain.AnalysisResult
	Err    error
	At     time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a file must be quiet before it is re-analyzed.
	// Editors often write a file in several steps. Default 300ms.
	Debounce time.Duration
	// Analyzer defaults to the built-in rules.
	Analyzer *analysis.Analyzer
	// OnResult receives every pass, including the initial one. It runs on
	// the watcher goroutine.
	OnResult func(Result)
}

// Stats counts watcher activity.
type Stats struct {
	Events int
	Passes int
	Errors int
}

// Watcher watches a fixed set of script files.
type Watcher struct {
	opts    Options
	files   map[string]bool
	dirs    []string
	pending map[string]time.Time
	log     *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New prepares a watcher for paths. Nothing is watched until Run.
func New(paths []string, opts Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watch: no files given")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.New(nil)
	}
	w := &Watcher{
		opts:    opts,
		files:   map[string]bool{},
		pending: map[string]time.Time{},
		log:     applog.WithComponent("watch"),
	}
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		w.files[abs] = true
		// watch the directory so atomic rename-on-save is seen
		if d := filepath.Dir(abs); !seen[d] {
			seen[d] = true
			w.dirs = append(w.dirs, d)
		}
	}
	return w, nil
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run analyzes every file once, then again after each settled change, until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = fw.Close() }()
	for _, d := range w.dirs {
		if err := fw.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
		w.log.Debug("watching", slog.String("dir", d))
	}
	for p := range w.files {
		w.pass(ctx, p)
	}

	tick := time.NewTicker(max(min(w.opts.Debounce/2, 100*time.Millisecond), 10*time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.Any("err", err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if !w.files[name] {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.stats.Events++
	w.mu.Unlock()
	w.pending[name] = time.Now()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for p, at := range w.pending {
		if now.Sub(at) < w.opts.Debounce {
			continue
		}
		delete(w.pending, p)
		w.pass(ctx, p)
	}
}

func (w *Watcher) pass(ctx context.Context, path string) {
	r := Result{Path: path, At: time.Now()}
	doc, err := script.Load(path)
	if err != nil {
		r.Err = err
		r.Result = domain.EmptyResult()
		w.log.WarnContext(applog.WithScript(ctx, path), "unreadable script", slog.Any("err", err))
	} else {
		r.Doc = doc
		r.Result = w.opts.Analyzer.Analyze(doc)
		w.log.DebugContext(applog.WithScript(ctx, path), "analyzed",
			slog.Int("shots", r.Result.Stats.TotalShots),
			slog.Int("critical", r.Result.Stats.CriticalIssues))
	}
	w.mu.Lock()
	w.stats.Passes++
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()
	if w.opts.OnResult != nil {
		w.opts.OnResult(r)
	}
}
