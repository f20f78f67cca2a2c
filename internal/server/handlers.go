/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
	"shotlint/internal/export"
	"shotlint/internal/remedy"
	"shotlint/internal/script"
	"shotlint/internal/storage"
	"shotlint/internal/telemetry"
)

var errBadRequest = errors.New("bad request")

// DocumentRequest is the body of the document transforms. Which fields are
// read depends on the endpoint.
type DocumentRequest struct {
	Document *domain.Document `json:"document"`
	Issues   []domain.Issue   `json:"issues,omitempty"`
	ShotID   string           `json:"shotId,omitempty"`
	Template string           `json:"template,omitempty"`
	Patch    json.RawMessage  `json:"patch,omitempty"`
}

// AnalyzeResponse is an analysis report with its per-shot summaries.
type AnalyzeResponse struct {
	domain.AnalysisResult
	Summaries []analysis.ShotSummary `json:"summaries"`
	RunID     string                 `json:"runId,omitempty"`
}

// TransformResponse carries a transformed document and its fresh analysis.
type TransformResponse struct {
	Document  *domain.Document        `json:"document"`
	Fixed     int                     `json:"fixed,omitempty"`
	Stabilize *remedy.StabilizeReport `json:"stabilize,omitempty"`
	Result    domain.AnalysisResult   `json:"result"`
}

func (s *Server) analyze(doc *domain.Document) AnalyzeResponse {
	res := s.analyzer.Analyze(doc)
	return AnalyzeResponse{AnalysisResult: res, Summaries: analysis.ShotSummaries(res)}
}

// handleAnalyze accepts a raw JSON or YAML script. A body without a usable
// script array yields the zeroed report, not an error.
func (s *Server) handleAnalyze(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	res := script.AnalyzeBytesWith(s.analyzer, body)
	resp := AnalyzeResponse{AnalysisResult: res, Summaries: analysis.ShotSummaries(res)}
	telemetry.Analysis("api", res.Stats)

	if record, _ := strconv.ParseBool(c.Query("record")); record {
		if s.archive == nil {
			abortError(c, http.StatusServiceUnavailable, errors.New("run archive not configured"))
			return
		}
		doc, err := script.Parse(body)
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		name := c.DefaultQuery("name", "api")
		run, err := s.archive.SaveRun(c.Request.Context(), name, doc, res, s.now())
		if err != nil {
			s.log.Error("archive run failed", slog.Any("err", err))
			abortError(c, http.StatusInternalServerError, err)
			return
		}
		resp.RunID = run.ID
	}
	writeJSON(c, http.StatusOK, resp)
}

// bindDocument decodes a DocumentRequest and requires a document.
func bindDocument(c *gin.Context) (DocumentRequest, bool) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, statusForBind(err), fmt.Errorf("%w: %v", errBadRequest, err))
		return req, false
	}
	if req.Document == nil {
		abortError(c, http.StatusBadRequest, fmt.Errorf("%w: document is required", errBadRequest))
		return req, false
	}
	return req, true
}

func statusForBind(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// autoFix runs the fixer with the given issues, analyzing first when none
// were supplied.
func (s *Server) autoFix(doc *domain.Document, issues []domain.Issue) (*domain.Document, int) {
	if issues == nil {
		issues = s.analyzer.Analyze(doc).Issues
	}
	return s.fixer.AutoFix(doc, issues)
}

// stabilize runs StabilizeShot for one shot, or StabilizeDocument when
// shotID is empty.
func (s *Server) stabilize(doc *domain.Document, shotID string) (*domain.Document, *remedy.StabilizeReport, error) {
	if shotID == "" {
		out, rep := remedy.StabilizeDocument(doc)
		return out, &rep, nil
	}
	out := doc.Clone()
	for _, sc := range out.Script {
		if sc == nil {
			continue
		}
		for i, sh := range sc.VisualPlan {
			if sh == nil || sh.ShotID != shotID {
				continue
			}
			fixed, err := remedy.StabilizeShot(sh)
			if err != nil {
				return nil, nil, err
			}
			sc.VisualPlan[i] = fixed
			return out, &remedy.StabilizeReport{Stabilized: 1}, nil
		}
	}
	return nil, nil, fmt.Errorf("stabilize %q: %w", shotID, remedy.ErrShotNotFound)
}

func patchArg(req DocumentRequest) (string, error) {
	if req.ShotID == "" {
		return "", fmt.Errorf("%w: shotId is required", errBadRequest)
	}
	if len(req.Patch) == 0 {
		return "", fmt.Errorf("%w: patch is required", errBadRequest)
	}
	raw := string(req.Patch)
	// a patch may also arrive as a JSON string holding the patch text
	var text string
	if err := json.Unmarshal(req.Patch, &text); err == nil {
		raw = text
	}
	return raw, nil
}

func (s *Server) transformed(c *gin.Context, doc *domain.Document, fixed int, rep *remedy.StabilizeReport) {
	writeJSON(c, http.StatusOK, TransformResponse{Document: doc, Fixed: fixed, Stabilize: rep, Result: s.analyzer.Analyze(doc)})
}

func (s *Server) handleAutoFix(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	out, n := s.autoFix(req.Document, req.Issues)
	s.transformed(c, out, n, nil)
}

func (s *Server) handleStabilize(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	out, rep, err := s.stabilize(req.Document, req.ShotID)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.transformed(c, out, 0, rep)
}

func (s *Server) handlePatch(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	raw, err := patchArg(req)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	out, err := remedy.ApplyJSONPatch(req.Document, req.ShotID, raw)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.transformed(c, out, 0, nil)
}

func (s *Server) handleSuggest(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	out, err := remedy.ApplySuggestion(req.Document, req.ShotID, req.Template)
	if err != nil {
		abortError(c, statusFor(err), err)
		return
	}
	s.transformed(c, out, 0, nil)
}

// handleExport returns the generation record of one shot, or the records of
// every shot in script order.
func (s *Server) handleExport(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	if req.ShotID != "" {
		sh := req.Document.FindShot(req.ShotID)
		if sh == nil {
			abortError(c, http.StatusNotFound, fmt.Errorf("export %q: %w", req.ShotID, remedy.ErrShotNotFound))
			return
		}
		rec, err := export.ExportRecord(sh)
		if err != nil {
			abortError(c, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(c, http.StatusOK, rec)
		return
	}
	recs := make([]*domain.Object, 0)
	for _, sh := range req.Document.Shots() {
		rec, err := export.ExportRecord(sh)
		if err != nil {
			abortError(c, http.StatusUnprocessableEntity, fmt.Errorf("shot %s: %w", sh.ShotID, err))
			return
		}
		recs = append(recs, rec)
	}
	writeJSON(c, http.StatusOK, recs)
}

// handleReport renders the analysis of the posted document in the format
// named by ?format= (markdown, html, png or pdf).
func (s *Server) handleReport(c *gin.Context) {
	req, ok := bindDocument(c)
	if !ok {
		return
	}
	rep := export.Report{Title: c.Query("title"), When: s.now(), Result: s.analyzer.Analyze(req.Document)}
	switch strings.ToLower(c.DefaultQuery("format", "markdown")) {
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", export.RenderMarkdown(rep))
	case "html":
		b, err := export.RenderHTML(rep)
		if err != nil {
			abortError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", b)
	case "png":
		c.Status(http.StatusOK)
		c.Header("Content-Type", "image/png")
		if err := export.WriteStripPNG(c.Writer, rep, export.PNGOptions{}); err != nil {
			s.log.Error("png report failed", slog.Any("err", err))
		}
	case "pdf":
		dir, err := os.MkdirTemp("", "shotlint-report-")
		if err != nil {
			abortError(c, http.StatusInternalServerError, err)
			return
		}
		defer func() { _ = os.RemoveAll(dir) }()
		out := filepath.Join(dir, "report.pdf")
		if err := export.ExportReportPDF(rep, out, export.PDFOptions{}); err != nil {
			abortError(c, http.StatusInternalServerError, err)
			return
		}
		b, err := os.ReadFile(out)
		if err != nil {
			abortError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", b)
	default:
		abortError(c, http.StatusBadRequest, fmt.Errorf("%w: unknown format %q", errBadRequest, c.Query("format")))
	}
}

func (s *Server) requireArchive(c *gin.Context) bool {
	if s.archive == nil {
		abortError(c, http.StatusServiceUnavailable, errors.New("run archive not configured"))
		return false
	}
	return true
}

func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireArchive(c) {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := s.archive.ListRuns(c.Request.Context(), limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(c, http.StatusOK, runs)
}

// RunResponse is one archived run with its report.
type RunResponse struct {
	Run    storage.Run           `json:"run"`
	Result domain.AnalysisResult `json:"result"`
}

func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireArchive(c) {
		return
	}
	run, res, err := s.archive.LoadRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrRunNotFound) {
		abortError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, RunResponse{Run: run, Result: res})
}

func (s *Server) handleSearchRun(c *gin.Context) {
	if !s.requireArchive(c) {
		return
	}
	q := storage.SearchQuery{Text: c.Query("q"), Character: c.Query("character"), Location: c.Query("location")}
	q.SceneFrom, _ = strconv.Atoi(c.Query("from"))
	q.SceneTo, _ = strconv.Atoi(c.Query("to"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	q.Offset, _ = strconv.Atoi(c.Query("offset"))
	res, err := s.archive.SearchShots(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(c, http.StatusOK, res)
}
