/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script loads and saves shot scripts. A script is a JSON or YAML
// document whose top level holds a "script" list of scenes.
package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"shotlint/internal/domain"
)

// ErrMalformedRoot is returned when the top level is not an object holding a
// "script" list.
var ErrMalformedRoot = errors.New("malformed script root")

// Format is the on-disk encoding of a script.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format by file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses the script at path.
func Load(path string) (*domain.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	doc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a JSON or YAML script. Input starting with '{' or '[' is
// read as JSON, anything else as YAML.
func Parse(data []byte) (*domain.Document, error) {
	b, err := ToJSON(data)
	if err != nil {
		return nil, err
	}
	if err := checkRoot(b); err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	return &doc, nil
}

// Encode renders doc in the given format. YAML output keeps the field order
// of the JSON form.
func Encode(doc *domain.Document, f Format) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	b, err := domain.MarshalIndent(doc)
	if err != nil {
		return nil, fmt.Errorf("encode script: %w", err)
	}
	if f != FormatYAML {
		return append(b, '\n'), nil
	}
	var n yaml.Node
	if err := yaml.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	blockStyle(&n)
	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(&n); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return out.Bytes(), nil
}

// ToJSON returns data as JSON, converting YAML input.
func ToJSON(data []byte) ([]byte, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedRoot)
	}
	if trim[0] == '{' || trim[0] == '[' {
		return trim, nil
	}
	var v any
	if err := yaml.Unmarshal(trim, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	b, err := domain.Marshal(normalize(v))
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return b, nil
}

func checkRoot(b []byte) error {
	var root any
	if err := json.Unmarshal(b, &root); err != nil {
		return fmt.Errorf("decode script: %w", err)
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: top level is %s", ErrMalformedRoot, kindOf(root))
	}
	s, ok := obj["script"]
	if !ok {
		return fmt.Errorf("%w: no script list", ErrMalformedRoot)
	}
	if _, ok := s.([]any); !ok {
		return fmt.Errorf("%w: script is %s", ErrMalformedRoot, kindOf(s))
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}

// normalize turns YAML maps with non-string keys into JSON-compatible maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// blockStyle drops the flow and quoting styles a JSON source leaves on the
// nodes, so the encoder picks plain block YAML.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		n.Style = 0
	case yaml.ScalarNode:
		if n.Tag == "!!str" {
			n.Style = 0
		}
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
