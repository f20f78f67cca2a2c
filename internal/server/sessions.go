/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"shotlint/internal/domain"
	"shotlint/internal/history"
	"shotlint/internal/remedy"
	"shotlint/internal/script"
)

var (
	errSessionNotFound = errors.New("session not found")
	errNothingToUndo   = errors.New("nothing to undo")
	errNothingToRedo   = fmt.Errorf("%w: nothing to redo", errNothingToUndo)
)

// session is one document being edited through the API.
type session struct {
	mu      sync.Mutex
	id      string
	owner   string
	doc     *domain.Document
	touched time.Time
}

type sessionStore struct {
	mu   sync.Mutex
	byID map[string]*session
	hist *history.Manager
	ttl  time.Duration
}

func newSessionStore(h *history.Manager, ttl time.Duration) *sessionStore {
	return &sessionStore{byID: map[string]*session{}, hist: h, ttl: ttl}
}

func (st *sessionStore) create(owner string, doc *domain.Document, now time.Time) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.expireLocked(now)
	ss := &session{id: uuid.NewString(), owner: owner, doc: doc, touched: now}
	st.byID[ss.id] = ss
	return ss
}

// get returns the session if it exists, belongs to owner and has not expired.
func (st *sessionStore) get(id, owner string, now time.Time) (*session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.expireLocked(now)
	ss, ok := st.byID[id]
	if !ok || ss.owner != owner {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	ss.touched = now
	return ss, nil
}

func (st *sessionStore) remove(id, owner string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	ss, ok := st.byID[id]
	if !ok || ss.owner != owner {
		return false
	}
	delete(st.byID, id)
	st.hist.Clear(id)
	return true
}

func (st *sessionStore) expireLocked(now time.Time) {
	for id, ss := range st.byID {
		if now.Sub(ss.touched) > st.ttl {
			delete(st.byID, id)
			st.hist.Clear(id)
		}
	}
}

// SessionResponse is the state of a session after each call.
type SessionResponse struct {
	ID        string                  `json:"id"`
	Document  *domain.Document        `json:"document"`
	Result    AnalyzeResponse         `json:"result"`
	Undo      int                     `json:"undo"`
	Redo      int                     `json:"redo"`
	Fixed     int                     `json:"fixed,omitempty"`
	Stabilize *remedy.StabilizeReport `json:"stabilize,omitempty"`
}

func (s *Server) view(ss *session) SessionResponse {
	u, r := s.sessions.hist.Depth(ss.id)
	return SessionResponse{ID: ss.id, Document: ss.doc, Result: s.analyze(ss.doc), Undo: u, Redo: r}
}

func subject(c *gin.Context) string { return c.GetString(subjectKey) }

// handleCreateSession starts a session from a raw JSON or YAML script.
func (s *Server) handleCreateSession(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	doc, err := script.Parse(body)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	ss := s.sessions.create(subject(c), doc, s.now())
	ss.mu.Lock()
	defer ss.mu.Unlock()
	writeJSON(c, http.StatusCreated, s.view(ss))
}

// withSession runs fn with the locked session named by :id.
func (s *Server) withSession(c *gin.Context, fn func(ss *session) (SessionResponse, error)) {
	ss, err := s.sessions.get(c.Param("id"), subject(c), s.now())
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	resp, err := fn(ss)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleGetSession(c *gin.Context) {
	s.withSession(c, func(ss *session) (SessionResponse, error) { return s.view(ss), nil })
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.sessions.remove(c.Param("id"), subject(c)) {
		abortError(c, http.StatusNotFound, fmt.Errorf("%w: %s", errSessionNotFound, c.Param("id")))
		return
	}
	c.Status(http.StatusNoContent)
}

// edit applies a transform to the session document and records the prior
// revision for undo. A failing transform leaves the session untouched.
func (s *Server) edit(ss *session, label string, fn func(doc *domain.Document) (*domain.Document, error)) error {
	before, err := history.Capture(ss.id, label, ss.doc, s.now())
	if err != nil {
		return err
	}
	out, err := fn(ss.doc)
	if err != nil {
		return err
	}
	s.sessions.hist.Push(before)
	ss.doc = out
	return nil
}

// sessionBody decodes an optional JSON body; the document comes from the session.
func sessionBody(c *gin.Context) (DocumentRequest, error) {
	var req DocumentRequest
	if c.Request.ContentLength == 0 {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req, nil
}

func (s *Server) handleSessionAutoFix(c *gin.Context) {
	req, err := sessionBody(c)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		var fixed int
		err := s.edit(ss, "autofix", func(doc *domain.Document) (*domain.Document, error) {
			out, n := s.autoFix(doc, req.Issues)
			fixed = n
			return out, nil
		})
		if err != nil {
			return SessionResponse{}, err
		}
		v := s.view(ss)
		v.Fixed = fixed
		return v, nil
	})
}

func (s *Server) handleSessionStabilize(c *gin.Context) {
	req, err := sessionBody(c)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		var rep *remedy.StabilizeReport
		err := s.edit(ss, "stabilize", func(doc *domain.Document) (*domain.Document, error) {
			out, r, err := s.stabilize(doc, req.ShotID)
			rep = r
			return out, err
		})
		if err != nil {
			return SessionResponse{}, err
		}
		v := s.view(ss)
		v.Stabilize = rep
		return v, nil
	})
}

func (s *Server) handleSessionPatch(c *gin.Context) {
	req, err := sessionBody(c)
	var raw string
	if err == nil {
		raw, err = patchArg(req)
	}
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		err := s.edit(ss, "patch", func(doc *domain.Document) (*domain.Document, error) {
			return remedy.ApplyJSONPatch(doc, req.ShotID, raw)
		})
		if err != nil {
			return SessionResponse{}, err
		}
		return s.view(ss), nil
	})
}

func (s *Server) handleSessionSuggest(c *gin.Context) {
	req, err := sessionBody(c)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		err := s.edit(ss, "suggest", func(doc *domain.Document) (*domain.Document, error) {
			return remedy.ApplySuggestion(doc, req.ShotID, req.Template)
		})
		if err != nil {
			return SessionResponse{}, err
		}
		return s.view(ss), nil
	})
}

func (s *Server) handleUndo(c *gin.Context) {
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		return s.step(ss, s.sessions.hist.Undo, errNothingToUndo)
	})
}

func (s *Server) handleRedo(c *gin.Context) {
	s.withSession(c, func(ss *session) (SessionResponse, error) {
		return s.step(ss, s.sessions.hist.Redo, errNothingToRedo)
	})
}

// step moves the session one revision back or forward.
func (s *Server) step(ss *session, move func(string, history.Snapshot) (history.Snapshot, bool), empty error) (SessionResponse, error) {
	cur, err := history.Capture(ss.id, "current", ss.doc, s.now())
	if err != nil {
		return SessionResponse{}, err
	}
	rev, ok := move(ss.id, cur)
	if !ok {
		return SessionResponse{}, empty
	}
	doc, err := rev.Document()
	if err != nil {
		return SessionResponse{}, err
	}
	ss.doc = doc
	return s.view(ss), nil
}
