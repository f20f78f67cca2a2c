/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a report file and an autosave
// of the open script.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "shotlint/internal/log"
	"shotlint/internal/storage"
	"shotlint/internal/telemetry"
	"shotlint/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and attempts a crash-safe autosave
// of the open script (if provided).
//
// Usage: defer crash.Recover(ws)
func Recover(ws *storage.Workspace) {
	if r := recover(); r != nil {
		handle(ws, r)
	}
}

// RecoverFunc is Recover for a workspace that is opened after the deferred
// call is installed; current is asked for it at panic time.
//
// Usage: defer crash.RecoverFunc(func() *storage.Workspace { return ws })
func RecoverFunc(current func() *storage.Workspace) {
	if r := recover(); r != nil {
		var ws *storage.Workspace
		if current != nil {
			ws = current()
		}
		handle(ws, r)
	}
}

func handle(ws *storage.Workspace, r any) {
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, _ := writeReport(ws, r, stack)
	if ws != nil && ws.Doc != nil {
		if path, err := storage.AutosaveCrashSnapshot(ws); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	// Exit with a non-zero code to indicate failure in CLI context.
	exitFn(2)
}

func writeReport(ws *storage.Workspace, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if ws != nil && ws.Root != "" {
		dir = ws.BackupsDir()
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	fname := fmt.Sprintf("crash-%s.log", stamp)
	path := filepath.Join(dir, fname)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "shotlint crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if ws != nil {
		_, _ = fmt.Fprintf(&buf, "Script: %s\n", ws.ScriptPath)
		if ws.Doc != nil {
			_, _ = fmt.Fprintf(&buf, "Scenes: %d Shots: %d\n", len(ws.Doc.Script), len(ws.Doc.Shots()))
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	// write to file
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// optionally upload anonymized crash report (opt-in via env)
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
