/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the analysis engine over HTTP: stateless
// analyze/fix/stabilize/export endpoints, editing sessions with undo/redo,
// and an optional Postgres archive of analysis runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
	"shotlint/internal/history"
	applog "shotlint/internal/log"
	"shotlint/internal/remedy"
	"shotlint/internal/rules"
	"shotlint/internal/version"
)

// Config holds server configuration.
type Config struct {
	Addr string // http bind address, e.g., ":8080"
	// Secret signs bearer tokens; DevSecret is used when empty.
	Secret string
	// DatabaseURL enables the run archive when set.
	DatabaseURL string
	// Rules overrides the built-in rule tables.
	Rules *rules.Rules
	// MaxBodyBytes limits request bodies; default 8 MiB.
	MaxBodyBytes int64
	// SessionTTL expires idle sessions; default 2h.
	SessionTTL time.Duration
	// History bounds the per-session undo stacks.
	History history.Config
}

// Server is the HTTP front-end of the engine.
type Server struct {
	cfg      Config
	analyzer *analysis.Analyzer
	fixer    *remedy.Fixer
	sessions *sessionStore
	archive  *Archive
	engine   *gin.Engine
	log      *slog.Logger
	now      func() time.Time
}

// New builds a server. archive may be nil.
func New(cfg Config, archive *Archive) *Server {
	l := applog.WithComponent("server")
	if cfg.Secret == "" {
		cfg.Secret = DevSecret
		l.Warn("no API secret configured; using insecure dev secret")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.History.MaxPerKey == 0 {
		cfg.History.MaxPerKey = 100
	}
	s := &Server{
		cfg:      cfg,
		analyzer: analysis.New(cfg.Rules),
		fixer:    remedy.NewFixer(cfg.Rules),
		archive:  archive,
		log:      l,
		now:      time.Now,
	}
	s.sessions = newSessionStore(history.NewManager(cfg.History), cfg.SessionTTL)
	s.engine = s.routes()
	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), s.limitBody())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/readyz", s.handleReady)
	r.GET("/version", func(c *gin.Context) { c.String(http.StatusOK, version.String()) })
	r.POST("/api/auth/token", s.handleToken)

	api := r.Group("/api", requireAuth(s.cfg.Secret))
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/autofix", s.handleAutoFix)
	api.POST("/stabilize", s.handleStabilize)
	api.POST("/export", s.handleExport)
	api.POST("/report", s.handleReport)
	api.POST("/patch", s.handlePatch)
	api.POST("/suggest", s.handleSuggest)

	ses := api.Group("/sessions")
	ses.POST("", s.handleCreateSession)
	ses.GET("/:id", s.handleGetSession)
	ses.DELETE("/:id", s.handleDeleteSession)
	ses.POST("/:id/autofix", s.handleSessionAutoFix)
	ses.POST("/:id/stabilize", s.handleSessionStabilize)
	ses.POST("/:id/patch", s.handleSessionPatch)
	ses.POST("/:id/suggest", s.handleSessionSuggest)
	ses.POST("/:id/undo", s.handleUndo)
	ses.POST("/:id/redo", s.handleRedo)

	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/search", s.handleSearchRun)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", s.cfg.Addr), slog.Bool("archive", s.archive != nil))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Start opens the archive when configured and serves until ctx is cancelled.
func Start(ctx context.Context, cfg Config) error {
	var archive *Archive
	if cfg.DatabaseURL != "" {
		a, err := OpenArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				applog.WithComponent("server").Error("db close", slog.Any("err", err))
			}
		}()
		archive = a
	}
	return New(cfg, archive).Run(ctx)
}

func (s *Server) handleReady(c *gin.Context) {
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.archive.Ping(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db not ready")
			return
		}
	}
	c.String(http.StatusOK, "ready")
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		}
		c.Next()
	}
}

// writeJSON encodes v without HTML escaping so prompts survive verbatim.
func writeJSON(c *gin.Context, status int, v any) {
	b, err := domain.Marshal(v)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, remedy.ErrShotNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, remedy.ErrInvalidPatch), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errNothingToUndo):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
