/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Marshal encodes v without HTML escaping, so prompts containing '<' or '&'
// survive verbatim.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var knownKeys sync.Map // reflect.Type -> map[string]struct{}

func jsonKeys(t reflect.Type) map[string]struct{} {
	if v, ok := knownKeys.Load(t); ok {
		return v.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	knownKeys.Store(t, keys)
	return keys
}

// decodeWithExtra unmarshals data into dst (a pointer to a struct without
// custom methods) and returns the object members dst has no field for.
func decodeWithExtra(data []byte, dst any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	known := jsonKeys(reflect.TypeOf(dst).Elem())
	for k := range raw {
		if _, ok := known[k]; ok {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// encodeWithExtra marshals v and appends the extra members in key order.
func encodeWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	if len(b) < 2 || b[len(b)-1] != '}' {
		return nil, fmt.Errorf("encode extra: %T is not an object", v)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	first := len(b) == 2
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type (
	documentJSON   Document
	sceneJSON      Scene
	locationJSON   Location
	anchorJSON     Anchor
	syncJSON       Sync
	audioJSON      Audio
	continuityJSON ContinuitySettings
	characterJSON  CharacterDefinition
	propJSON       PropDefinition
	shotJSON       Shot
)

func (d Document) MarshalJSON() ([]byte, error) { return encodeWithExtra(documentJSON(d), d.Extra) }
func (d *Document) UnmarshalJSON(b []byte) error {
	var v documentJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*d = Document(v)
	d.Extra = extra
	return nil
}

func (s Scene) MarshalJSON() ([]byte, error) { return encodeWithExtra(sceneJSON(s), s.Extra) }
func (s *Scene) UnmarshalJSON(b []byte) error {
	var v sceneJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*s = Scene(v)
	s.Extra = extra
	return nil
}

func (l Location) MarshalJSON() ([]byte, error) { return encodeWithExtra(locationJSON(l), l.Extra) }
func (l *Location) UnmarshalJSON(b []byte) error {
	var v locationJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*l = Location(v)
	l.Extra = extra
	return nil
}

func (a Anchor) MarshalJSON() ([]byte, error) { return encodeWithExtra(anchorJSON(a), a.Extra) }
func (a *Anchor) UnmarshalJSON(b []byte) error {
	var v anchorJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*a = Anchor(v)
	a.Extra = extra
	return nil
}

func (s Sync) MarshalJSON() ([]byte, error) { return encodeWithExtra(syncJSON(s), s.Extra) }
func (s *Sync) UnmarshalJSON(b []byte) error {
	var v syncJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*s = Sync(v)
	s.Extra = extra
	return nil
}

func (a Audio) MarshalJSON() ([]byte, error) { return encodeWithExtra(audioJSON(a), a.Extra) }
func (a *Audio) UnmarshalJSON(b []byte) error {
	var v audioJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*a = Audio(v)
	a.Extra = extra
	return nil
}

func (c ContinuitySettings) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(continuityJSON(c), c.Extra)
}
func (c *ContinuitySettings) UnmarshalJSON(b []byte) error {
	var v continuityJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*c = ContinuitySettings(v)
	c.Extra = extra
	return nil
}

func (c CharacterDefinition) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(characterJSON(c), c.Extra)
}
func (c *CharacterDefinition) UnmarshalJSON(b []byte) error {
	var v characterJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*c = CharacterDefinition(v)
	c.Extra = extra
	return nil
}

func (p PropDefinition) MarshalJSON() ([]byte, error) { return encodeWithExtra(propJSON(p), p.Extra) }
func (p *PropDefinition) UnmarshalJSON(b []byte) error {
	var v propJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*p = PropDefinition(v)
	p.Extra = extra
	return nil
}

func (s Shot) MarshalJSON() ([]byte, error) { return encodeWithExtra(shotJSON(s), s.Extra) }
func (s *Shot) UnmarshalJSON(b []byte) error {
	var v shotJSON
	extra, err := decodeWithExtra(b, &v)
	if err != nil {
		return err
	}
	*s = Shot(v)
	s.Extra = extra
	return nil
}

// StringList decodes either a single string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []any
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	out := make(StringList, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}
