/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shotlint/internal/domain"
	applog "shotlint/internal/log"
	"shotlint/internal/script"
)

const (
	// WorkDirName holds the index and backups next to the script.
	WorkDirName    = ".shotlint"
	BackupsDirName = "backups"
)

// Workspace is one script file together with its working directory.
// Root is the directory containing the script; Doc is the in-memory document.
type Workspace struct {
	Root       string
	ScriptPath string
	Format     script.Format
	Doc        *domain.Document
}

// BackupsDir returns the directory holding timestamped copies of the script.
func (ws *Workspace) BackupsDir() string {
	return filepath.Join(ws.Root, WorkDirName, BackupsDirName)
}

// OpenWorkspace loads the script at path. If the script cannot be read or
// parsed, the latest backup is tried.
func OpenWorkspace(path string) (*Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("script path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve script path: %w", err)
	}
	ws := &Workspace{Root: filepath.Dir(abs), ScriptPath: abs, Format: script.FormatFromPath(abs)}
	doc, err := script.Load(abs)
	if err != nil {
		bdoc, berr := openFromLatestBackup(ws)
		if berr != nil {
			return nil, fmt.Errorf("open script: %w; backup attempt: %v", err, berr)
		}
		applog.WithComponent("storage").Warn("script unreadable, opened latest backup",
			slog.String("path", abs), slog.Any("err", err))
		doc = bdoc
	}
	ws.Doc = doc
	return ws, nil
}

// NewWorkspace creates a workspace for doc at path and writes it.
func NewWorkspace(path string, doc *domain.Document) (*Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("script path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve script path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	ws := &Workspace{Root: filepath.Dir(abs), ScriptPath: abs, Format: script.FormatFromPath(abs), Doc: doc}
	if err := Save(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Save writes ws.Doc to disk with transactional semantics and a timestamped
// backup of the previous file (if present).
func Save(ws *Workspace) error {
	if ws == nil {
		return errors.New("nil Workspace")
	}
	if ws.Root == "" || ws.ScriptPath == "" {
		return errors.New("invalid Workspace: missing paths")
	}
	data, err := script.Encode(ws.Doc, ws.Format)
	if err != nil {
		return err
	}

	bdir := ws.BackupsDir()
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}

	base := filepath.Base(ws.ScriptPath)
	if _, statErr := os.Stat(ws.ScriptPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", base, stamp))
		if cerr := copyFile(ws.ScriptPath, bpath); cerr != nil {
			return fmt.Errorf("backup current script: %w", cerr)
		}
	}

	// Transactional write: to temp file in same directory, then rename over target
	temp := filepath.Join(ws.Root, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp script: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(ws.ScriptPath); err == nil {
		_ = os.Remove(ws.ScriptPath)
	}
	if rerr := os.Rename(temp, ws.ScriptPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace script: %w", rerr)
	}
	return nil
}

// SaveAs writes the script to a new path, switching format by extension, and
// updates the workspace.
func SaveAs(ws *Workspace, newPath string) error {
	if ws == nil {
		return errors.New("nil Workspace")
	}
	if newPath == "" {
		return errors.New("new path is empty")
	}
	abs, err := filepath.Abs(newPath)
	if err != nil {
		return fmt.Errorf("resolve script path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	ws.Root = filepath.Dir(abs)
	ws.ScriptPath = abs
	ws.Format = script.FormatFromPath(abs)
	return Save(ws)
}

// Backups lists the backup files of the script, oldest first.
func Backups(ws *Workspace) ([]string, error) {
	ents, err := os.ReadDir(ws.BackupsDir())
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(ws.ScriptPath) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(ws.BackupsDir(), name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// AutosaveCrashSnapshot writes the in-memory document to the backups dir as
// <base>.crash-<stamp>.json so unsaved edits survive a panic. The script
// itself is not touched.
func AutosaveCrashSnapshot(ws *Workspace) (string, error) {
	if ws == nil || ws.Doc == nil {
		return "", errors.New("nothing to autosave")
	}
	data, err := script.Encode(ws.Doc, script.FormatJSON)
	if err != nil {
		return "", err
	}
	bdir := ws.BackupsDir()
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", filepath.Base(ws.ScriptPath), stamp))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// openFromLatestBackup parses the newest readable backup.
func openFromLatestBackup(ws *Workspace) (*domain.Document, error) {
	candidates, err := Backups(ws)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	doc, err := script.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return doc, nil
}
