/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"shotlint/internal/domain"
)

// Technical defaults every record starts from; the shot's own technical
// block is laid over them.
var (
	DefaultFPS             = 24
	DefaultCodec           = "H.264"
	DefaultNegativePrompts = []string{"low quality", "blurry", "watermark"}
)

// ExportRecord builds the flattened generation record for a shot. Fields are
// emitted in a fixed order; nil values, empty lists and empty objects are
// left out.
func ExportRecord(shot *domain.Shot) (*domain.Object, error) {
	if shot == nil {
		return nil, fmt.Errorf("export record: nil shot")
	}
	rec := domain.NewObject()
	var firstErr error
	add := func(key string, v any) {
		if firstErr != nil {
			return
		}
		b, err := domain.Marshal(v)
		if err != nil {
			firstErr = fmt.Errorf("export record %s: field %s: %w", shot.ShotID, key, err)
			return
		}
		if emptyJSON(b) {
			return
		}
		rec.Set(key, json.RawMessage(b))
	}

	var camera, lighting domain.Record
	var audio *domain.Audio
	if shot.Sync != nil {
		camera, lighting, audio = shot.Sync.Camera, shot.Sync.Lighting, shot.Sync.Audio
	}

	add("shot_id", shot.ShotID)
	add("prompt", shot.CompositionPrompt)
	add("continuity", shot.Continuity)
	add("anchors", shot.Anchors)
	if shot.ScreenDirection != "" {
		add("screen_direction", shot.ScreenDirection)
	}
	add("parallax_lock", shot.ParallaxLock)
	add("environment", shot.Environment)
	add("camera", camera)
	add("lighting", lighting)
	if shot.CharacterDefinitions != nil {
		chars := make([]*domain.Object, 0, len(shot.CharacterDefinitions))
		for _, cd := range shot.CharacterDefinitions {
			c, err := flattenCharacter(cd)
			if err != nil {
				return nil, fmt.Errorf("export record %s: %w", shot.ShotID, err)
			}
			chars = append(chars, c)
		}
		add("characters", chars)
	}
	add("props", shot.Props)
	add("props_reference", shot.PropsReference)
	add("prop_state_override", shot.PropStateOverride)
	add("audio", audio)
	add("animation", shot.Animation)

	tech := domain.NewObject().
		Set("fps", DefaultFPS).
		Set("codec", DefaultCodec).
		Set("negative_prompts", DefaultNegativePrompts)
	for _, k := range sortedKeys(shot.Technical) {
		tech.Set(k, shot.Technical[k])
	}
	add("technical", tech)

	if firstErr != nil {
		return nil, firstErr
	}
	return rec, nil
}

// RenderExportRecord returns the record for shot as two-space indented JSON.
func RenderExportRecord(shot *domain.Shot) ([]byte, error) {
	rec, err := ExportRecord(shot)
	if err != nil {
		return nil, err
	}
	return domain.MarshalIndent(rec)
}

// WriteRecordsJSONL writes one compact record per shot of doc, in reading
// order, one per line.
func WriteRecordsJSONL(w io.Writer, doc *domain.Document) (int, error) {
	n := 0
	for _, sh := range doc.Shots() {
		rec, err := ExportRecord(sh)
		if err != nil {
			return n, err
		}
		b, err := domain.Marshal(rec)
		if err != nil {
			return n, fmt.Errorf("encode record %s: %w", sh.ShotID, err)
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			return n, fmt.Errorf("write record %s: %w", sh.ShotID, err)
		}
		n++
	}
	return n, nil
}

// flattenCharacter lifts the appearance attributes next to the id, followed
// by the remaining definition fields. A later key keeps the position of an
// earlier one with the same name.
func flattenCharacter(cd *domain.CharacterDefinition) (*domain.Object, error) {
	out := domain.NewObject()
	if cd == nil {
		return out, nil
	}
	out.Set("id", cd.ID)
	for _, k := range sortedKeys(cd.Appearance) {
		out.Set(k, cd.Appearance[k])
	}
	b, err := domain.Marshal(cd)
	if err != nil {
		return nil, fmt.Errorf("character %s: %w", cd.ID, err)
	}
	rest := domain.NewObject()
	if err := json.Unmarshal(b, rest); err != nil {
		return nil, fmt.Errorf("character %s: %w", cd.ID, err)
	}
	rest.Delete("id")
	rest.Delete("appearance")
	for _, k := range rest.Keys() {
		v, _ := rest.Get(k)
		out.Set(k, v)
	}
	return out, nil
}

func emptyJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("[]")) || bytes.Equal(b, []byte("{}"))
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
