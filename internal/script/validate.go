/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	_ "embed"
	"fmt"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// SchemaJSON returns the JSON Schema scripts are validated against.
func SchemaJSON() []byte { return schemaJSON }

// Error is one schema violation. Field is the dotted path into the document
// ("script.0.visualPlan.2.shotId"), or "(root)".
type Error struct {
	Field   string
	Message string
}

func (e Error) String() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiled() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Validate checks a JSON or YAML script against the schema. It returns the
// violations found; the error is set only when the input cannot be read at
// all.
func Validate(data []byte) ([]Error, error) {
	s, err := compiled()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	b, err := ToJSON(data)
	if err != nil {
		return nil, err
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, fmt.Errorf("schema validate: %w", err)
	}
	if res.Valid() {
		return nil, nil
	}
	out := make([]Error, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		out = append(out, Error{Field: e.Field(), Message: e.Description()})
	}
	return out, nil
}
