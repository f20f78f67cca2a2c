/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// DevSecret signs tokens when no secret is configured.
const DevSecret = "dev-secret-change-me"

const subjectKey = "subject"

var (
	errTokenFormat  = errors.New("invalid token format")
	errBadSignature = errors.New("bad signature")
	errTokenExpired = errors.New("token expired")
)

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

// SignToken issues a bearer token for subject valid until exp.
// The token is base64url(claims) "." base64url(HMAC-SHA256(claims)).
func SignToken(secret, subject string, exp time.Time) (string, error) {
	b, err := json.Marshal(tokenClaims{Sub: subject, Exp: exp.Unix()})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func verifyToken(secret, token string, now time.Time) (string, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errTokenFormat
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: payload", errTokenFormat)
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", fmt.Errorf("%w: signature", errTokenFormat)
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", errBadSignature
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", fmt.Errorf("%w: claims", errTokenFormat)
	}
	if claims.Exp < now.Unix() {
		return "", errTokenExpired
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

// requireAuth rejects requests without a valid bearer token and stores the
// token subject in the gin context.
func requireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			abortError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		sub, err := verifyToken(secret, strings.TrimSpace(auth[len(prefix):]), time.Now())
		if err != nil {
			abortError(c, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		c.Set(subjectKey, sub)
		c.Next()
	}
}

// tokenRequest is the optional body of POST /api/auth/token.
type tokenRequest struct {
	Subject    string `json:"subject"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// TokenResponse is returned by POST /api/auth/token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleToken(c *gin.Context) {
	var req tokenRequest
	// empty body is allowed
	_ = c.ShouldBindJSON(&req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := s.now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := SignToken(s.cfg.Secret, req.Subject, exp)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}
