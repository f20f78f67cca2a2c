/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"testing"
	"time"

	"shotlint/internal/domain"
)

func TestFromEnvTimeoutAndFlags(t *testing.T) {
	t.Setenv("SHL_TELEMETRY_OPT_IN", " Yes ")
	t.Setenv("SHL_TELEMETRY_URL", " http://metrics.local/events ")
	t.Setenv("SHL_CRASH_UPLOAD_URL", "http://metrics.local/crash")
	t.Setenv("SHL_TELEMETRY_TIMEOUT_MS", "250")
	t.Setenv("SHL_TELEMETRY_DEBUG", "1")

	cfg := FromEnv()
	if !cfg.OptIn || !cfg.DebugLogging {
		t.Fatalf("flags not parsed: %+v", cfg)
	}
	if cfg.EventsURL != "http://metrics.local/events" {
		t.Fatalf("events url not trimmed: %q", cfg.EventsURL)
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("timeout = %s", cfg.Timeout)
	}

	t.Setenv("SHL_TELEMETRY_TIMEOUT_MS", "soon")
	if got := FromEnv().Timeout; got != 1500*time.Millisecond {
		t.Fatalf("invalid timeout should keep the default, got %s", got)
	}
}

func TestUnreachableEndpointsDoNotBlock(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	start := time.Now()
	c.Analysis("cli", domain.Stats{TotalShots: 5, CriticalIssues: 2})
	c.UploadCrash([]byte("panic: analyze"))
	c.Flush(context.Background())
	c.Close()
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("close took %s with unreachable endpoints", d)
	}
}
