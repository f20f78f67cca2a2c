/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remedy

import (
	"encoding/json"
	"fmt"
	"strings"

	"shotlint/internal/domain"
)

// continuityWrapper is the key the analyzer wraps merged patches in.
const continuityWrapper = "continuity_patch"

// ApplySuggestion appends template to the trimmed prompt of the shot.
func ApplySuggestion(doc *domain.Document, shotID, template string) (*domain.Document, error) {
	out := doc.Clone()
	sh := out.FindShot(shotID)
	if sh == nil {
		return nil, fmt.Errorf("apply suggestion to %q: %w", shotID, ErrShotNotFound)
	}
	sh.CompositionPrompt = strings.TrimSpace(sh.CompositionPrompt) + template
	return out, nil
}

// ApplyJSONPatch parses patchJSON and applies it with ApplyPatch.
func ApplyJSONPatch(doc *domain.Document, shotID, patchJSON string) (*domain.Document, error) {
	var p domain.Patch
	if err := json.Unmarshal([]byte(patchJSON), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return ApplyPatch(doc, shotID, &p)
}

// ApplyPatch merges p into the shot. For each top-level key, two objects are
// merged one level deep with the patch winning; any other value replaces the
// shot's. A {"continuity_patch": {...}} wrapper is unwrapped first. On error
// doc is returned untouched.
func ApplyPatch(doc *domain.Document, shotID string, p *domain.Patch) (*domain.Document, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidPatch)
	}
	if p.Len() == 1 {
		if inner, ok := p.Get(continuityWrapper); ok {
			obj, ok := inner.(*domain.Object)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPatch, continuityWrapper)
			}
			p = obj
		}
	}

	out := doc.Clone()
	sh := out.FindShot(shotID)
	if sh == nil {
		return nil, fmt.Errorf("apply patch to %q: %w", shotID, ErrShotNotFound)
	}

	raw, err := domain.Marshal(sh)
	if err != nil {
		return nil, fmt.Errorf("encode shot %s: %w", shotID, err)
	}
	cur := domain.NewObject()
	if err := json.Unmarshal(raw, cur); err != nil {
		return nil, fmt.Errorf("decode shot %s: %w", shotID, err)
	}
	cur.Merge(p)

	merged, err := domain.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var patched domain.Shot
	if err := json.Unmarshal(merged, &patched); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	*sh = patched
	return out, nil
}
