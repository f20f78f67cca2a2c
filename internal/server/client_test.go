/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotlint/internal/script"
)

func TestClientRoundTrip(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, Config{}).Handler())
	t.Cleanup(ts.Close)
	ctx := context.Background()

	c := NewClient(ts.URL+"/", "", 5*time.Second)
	_, err := c.Analyze(ctx, []byte(testScript), false, "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized), "got %v", err)

	tr, err := c.IssueToken(ctx, "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, tr.Token, c.Token)

	res, err := c.Analyze(ctx, []byte(testScript), false, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.TotalShots)
	assert.Len(t, res.Summaries, 2)

	doc, err := script.Parse([]byte(testScript))
	require.NoError(t, err)
	fixed, err := c.AutoFix(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "{char_a} char_a walks", fixed.Document.FindShot("s1").CompositionPrompt)
	assert.Equal(t, "char_a walks", doc.FindShot("s1").CompositionPrompt)

	st, err := c.Stabilize(ctx, doc, "")
	require.NoError(t, err)
	require.NotNil(t, st.Stabilize)
	assert.Equal(t, 2, st.Stabilize.Stabilized)

	_, err = c.Stabilize(ctx, doc, "zz")
	assert.True(t, IsStatus(err, http.StatusNotFound), "got %v", err)

	_, err = c.ListRuns(ctx, 5)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable), "got %v", err)
}

func TestClientSession(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, Config{}).Handler())
	t.Cleanup(ts.Close)
	ctx := context.Background()

	c := NewClient(ts.URL, tokenFor(t, "alice"), 0)
	ss, err := c.CreateSession(ctx, []byte(testScript))
	require.NoError(t, err)

	ss, err = c.SessionAction(ctx, ss.ID, "suggest", &DocumentRequest{ShotID: "s1", Template: " At dusk."})
	require.NoError(t, err)
	assert.Equal(t, "char_a walks At dusk.", ss.Document.FindShot("s1").CompositionPrompt)

	ss, err = c.SessionAction(ctx, ss.ID, "undo", nil)
	require.NoError(t, err)
	assert.Equal(t, "char_a walks", ss.Document.FindShot("s1").CompositionPrompt)

	_, err = c.SessionAction(ctx, ss.ID, "undo", nil)
	assert.True(t, IsStatus(err, http.StatusConflict), "got %v", err)
}
