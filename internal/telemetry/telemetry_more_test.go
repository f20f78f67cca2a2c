/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shotlint/internal/domain"
)

// resetDefault drops the installed default client so the next package-level
// call has to initialise it from env.
func resetDefault(t *testing.T) {
	t.Helper()
	defaultMu.Lock()
	old := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	old.Close()
	t.Cleanup(func() {
		defaultMu.Lock()
		c := defaultClient
		defaultClient = nil
		defaultMu.Unlock()
		c.Close()
	})
}

// within fails the test when fn has not returned after d.
func within(t *testing.T, d time.Duration, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", name, d)
	}
}

func TestAnalysisInitialisesDefaultFromEnv(t *testing.T) {
	t.Setenv("SHL_TELEMETRY_OPT_IN", "")
	resetDefault(t)
	within(t, 2*time.Second, "Analysis", func() {
		Analysis("server", domain.Stats{TotalShots: 2, Veo3Ready: 2})
	})
	defaultMu.Lock()
	installed := defaultClient != nil
	defaultMu.Unlock()
	if !installed {
		t.Fatalf("default client not installed after first use")
	}
}

func TestUploadCrashWithoutPriorSetup(t *testing.T) {
	t.Setenv("SHL_TELEMETRY_OPT_IN", "")
	t.Setenv("SHL_CRASH_UPLOAD_URL", "")
	resetDefault(t)
	within(t, 2*time.Second, "UploadCrash", func() { UploadCrash([]byte("panic: shot s1")) })
	within(t, 2*time.Second, "Enabled", func() {
		if Enabled() {
			t.Errorf("telemetry enabled without opt-in")
		}
	})
}

func TestNewDefaultReplacesInstalledClient(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resetDefault(t)
	t.Setenv("SHL_TELEMETRY_OPT_IN", "")
	InitDefault()
	if Enabled() {
		t.Fatalf("env client should be disabled")
	}
	within(t, 2*time.Second, "NewDefault", func() {
		NewDefault(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	})
	if !Enabled() {
		t.Fatalf("replacement client should be enabled")
	}
	Analysis("cli", domain.Stats{TotalShots: 1})
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&hits) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&hits) == 0 {
		t.Fatalf("analysis event not sent through the replacement client")
	}
}

func TestDisabledClientSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL, Timeout: time.Second})
	c.Analysis("watch", domain.Stats{TotalShots: 3})
	c.UploadCrash([]byte("trace"))
	c.Close()

	c2 := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	c2.Event("", map[string]any{"shots": 1})
	c2.Close()
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}
