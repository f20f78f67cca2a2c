/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package remedy holds the document transforms: the issue-driven auto-fixer,
// the per-shot stabilizer with its character consolidation pre-pass, and the
// manual suggestion and patch application used by the CLI and HTTP API.
//
// Every transform clones its input and returns a new document.
package remedy

import (
	"errors"

	"shotlint/internal/rules"
)

var (
	// ErrShotNotFound is returned when a transform targets an unknown shot ID.
	ErrShotNotFound = errors.New("shot not found")
	// ErrInvalidPatch is returned for a patch that is not a JSON object or
	// does not fit the shot model.
	ErrInvalidPatch = errors.New("invalid patch")
)

// Fixer applies issue-driven fixes using a fixed rule set.
type Fixer struct {
	rules *rules.Rules
}

// NewFixer returns a Fixer using r, or the built-in rules when r is nil.
func NewFixer(r *rules.Rules) *Fixer {
	if r == nil {
		r = rules.Default()
	}
	return &Fixer{rules: r}
}
