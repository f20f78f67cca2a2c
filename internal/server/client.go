/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shotlint/internal/domain"
	"shotlint/internal/storage"
)

// Client is a minimal HTTP client for the API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new API client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("server: %d %s", e.Status, e.Message) }

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er ErrorResponse
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, dest any) error {
	var body io.Reader
	if in != nil {
		b, err := domain.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, "application/json", body, dest)
}

// IssueToken requests a bearer token and stores it in the client.
func (c *Client) IssueToken(ctx context.Context, subject string, ttl time.Duration) (TokenResponse, error) {
	var tr TokenResponse
	req := tokenRequest{Subject: subject, TTLSeconds: int64(ttl / time.Second)}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", req, &tr); err != nil {
		return TokenResponse{}, err
	}
	c.Token = tr.Token
	return tr, nil
}

// Analyze posts a raw JSON or YAML script. When record is set, the run is
// archived under name.
func (c *Client) Analyze(ctx context.Context, scriptData []byte, record bool, name string) (AnalyzeResponse, error) {
	path := "/api/analyze"
	if record {
		q := url.Values{"record": {"true"}}
		if name != "" {
			q.Set("name", name)
		}
		path += "?" + q.Encode()
	}
	var out AnalyzeResponse
	err := c.do(ctx, http.MethodPost, path, "application/octet-stream", bytes.NewReader(scriptData), &out)
	return out, err
}

// AutoFix runs the fixer server side.
func (c *Client) AutoFix(ctx context.Context, doc *domain.Document) (TransformResponse, error) {
	var out TransformResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/autofix", DocumentRequest{Document: doc}, &out)
	return out, err
}

// Stabilize stabilizes one shot, or the whole document when shotID is empty.
func (c *Client) Stabilize(ctx context.Context, doc *domain.Document, shotID string) (TransformResponse, error) {
	var out TransformResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/stabilize", DocumentRequest{Document: doc, ShotID: shotID}, &out)
	return out, err
}

// ListRuns lists archived runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	var runs []storage.Run
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateSession starts an editing session for a raw script.
func (c *Client) CreateSession(ctx context.Context, scriptData []byte) (SessionResponse, error) {
	var out SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/sessions", "application/octet-stream", bytes.NewReader(scriptData), &out)
	return out, err
}

// SessionAction posts to /api/sessions/{id}/{action} (autofix, stabilize,
// patch, suggest, undo, redo). req may be nil.
func (c *Client) SessionAction(ctx context.Context, id, action string, req *DocumentRequest) (SessionResponse, error) {
	var out SessionResponse
	var in any
	if req != nil {
		in = req
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/"+action, in, &out)
	return out, err
}
