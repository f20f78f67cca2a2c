/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain defines the script document model consumed by the analysis
// engine and the issue/report shapes it produces.
//
// Every optional field is nullable: a nil *bool means "unspecified", which the
// detectors and the stabilizer treat differently from an explicit false.
// Keys the model does not know about are kept in Extra and written back on
// marshal, so a load/save cycle never drops author data.
package domain

import "encoding/json"

// Document is the root of a script file: an ordered list of scenes in
// screen-time order.
type Document struct {
	Script []*Scene                    `json:"script"`
	Extra  map[string]json.RawMessage `json:"-"`
}

// Scene groups shots sharing a timeline window ("M:SS - M:SS") and dialogue.
type Scene struct {
	Timeline     string                     `json:"timeline,omitempty"`
	HostDialogue string                     `json:"hostDialogue,omitempty"`
	VisualPlan   []*Shot                    `json:"visualPlan,omitzero"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// Record is an open sub-object (camera, lighting, environment, animation,
// technical) whose keys are not fixed by the model.
type Record map[string]any

// Location references a named set.
type Location struct {
	ID    string                     `json:"id"`
	Extra map[string]json.RawMessage `json:"-"`
}

// Anchor pins a named scene element to normalized screen coordinates.
type Anchor struct {
	XY    []float64                  `json:"xy"`
	Extra map[string]json.RawMessage `json:"-"`
}

// Sync holds the per-shot timing and capture sub-records.
type Sync struct {
	Duration string                     `json:"duration,omitempty"`
	Camera   Record                     `json:"camera,omitzero"`
	Lighting Record                     `json:"lighting,omitzero"`
	Audio    *Audio                     `json:"audio,omitzero"`
	Extra    map[string]json.RawMessage `json:"-"`
}

// Audio lists the sound effects declared for a shot.
type Audio struct {
	SFX   StringList                 `json:"sfx,omitzero"`
	Extra map[string]json.RawMessage `json:"-"`
}

// ContinuitySettings links a shot to the one before it.
type ContinuitySettings struct {
	SceneAnchor           string                     `json:"scene_anchor,omitempty"`
	ReferenceScene        string                     `json:"reference_scene,omitempty"`
	EnvironmentInherit    *bool                      `json:"environment_inherit,omitzero"`
	LightingInherit       *bool                      `json:"lighting_inherit,omitzero"`
	CharacterStateInherit []string                   `json:"character_state_inherit,omitzero"`
	PropStateInherit      []string                   `json:"prop_state_inherit,omitzero"`
	Extra                 map[string]json.RawMessage `json:"-"`
}

// CharacterDefinition describes a character as it appears in one shot. Two
// definitions sharing an ID describe the same character.
type CharacterDefinition struct {
	ID         string                     `json:"id"`
	Appearance map[string]any             `json:"appearance,omitzero"`
	Scale      *float64                   `json:"scale,omitzero"`
	Position   string                     `json:"position,omitempty"`
	Pose       string                     `json:"pose,omitempty"`
	Seed       *float64                   `json:"seed,omitzero"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// PropDefinition describes a prop used in a shot.
type PropDefinition struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type,omitempty"`
	Appearance string                     `json:"appearance,omitempty"`
	Continuity string                     `json:"continuity,omitempty"`
	Seed       *float64                   `json:"seed,omitzero"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// PropPersistent is the only continuity marker a prop may carry.
const PropPersistent = "persistent"

// Shot is the atomic unit of a script: one generation prompt plus its
// structured metadata and continuity-lock flags.
type Shot struct {
	ShotID               string                 `json:"shotId"`
	CompositionPrompt    string                 `json:"compositionPrompt"`
	CharacterDefinitions []*CharacterDefinition `json:"character_definitions,omitzero"`
	Location             *Location              `json:"location,omitzero"`
	Sync                 *Sync                  `json:"sync,omitzero"`
	Environment          Record                 `json:"environment,omitzero"`
	Animation            Record                 `json:"animation,omitzero"`
	Technical            Record                 `json:"technical,omitzero"`
	Props                []*PropDefinition      `json:"props,omitzero"`
	PropsReference       []string               `json:"props_reference,omitzero"`
	Continuity           *ContinuitySettings    `json:"continuity,omitzero"`
	PropStateOverride    map[string]string      `json:"prop_state_override,omitzero"`
	Anchors              map[string]Anchor      `json:"anchors,omitzero"`
	ScreenDirection      string                 `json:"screen_direction,omitempty"`
	ParallaxLock         *bool                  `json:"parallax_lock,omitzero"`

	// spatial
	AnchorsInherit *bool    `json:"anchors_inherit,omitzero"`
	PropLock       []string `json:"prop_lock,omitzero"`
	ScaleInherit   *bool    `json:"scale_inherit,omitzero"`
	ScaleVariation string   `json:"scale_variation,omitempty"`
	GeometryLock   *bool    `json:"geometry_lock,omitzero"`

	// temporal
	StatePersistence       []string `json:"state_persistence,omitzero"`
	StateDecayRate         string   `json:"state_decay_rate,omitempty"`
	AutoSyncAudio          *bool    `json:"auto_sync_audio,omitzero"`
	AudioLatencyCorrection string   `json:"audio_latency_correction,omitempty"`

	// camera
	CameraAxisLock    *bool  `json:"camera_axis_lock,omitzero"`
	MirrorFlip        *bool  `json:"mirror_flip,omitzero"`
	LensMatchPrevious *bool  `json:"lens.match_previous,omitzero"`
	LensVariation     string `json:"lens_variation,omitempty"`
	CameraHeightLock  *bool  `json:"camera_height_lock,omitzero"`
	EyeLineMatch      string `json:"eye_line_match,omitempty"`

	// lighting
	WhiteBalanceVariation string `json:"white_balance_variation,omitempty"`
	ExposureLock          *bool  `json:"exposure_lock,omitzero"`
	ContrastMatch         string `json:"contrast_match,omitempty"`
	LightDirectionLock    string `json:"light_direction_lock,omitempty"`
	ShadowPersistence     *bool  `json:"shadow_persistence,omitzero"`

	// physics
	PhysicsGravityLock    *bool  `json:"physics_gravity_lock,omitzero"`
	CollisionRefinement   *bool  `json:"collision_refinement,omitzero"`
	ReflectionConsistency *bool  `json:"reflection_consistency,omitzero"`
	ReflectionRef         string `json:"reflection_ref,omitempty"`

	// narrative
	EmotionCurve   string `json:"emotion_curve,omitempty"`
	EmotionInherit *bool  `json:"emotion_inherit,omitzero"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Shots flattens the document into reading order, skipping nil entries.
func (d *Document) Shots() []*Shot {
	if d == nil {
		return nil
	}
	var out []*Shot
	for _, sc := range d.Script {
		if sc == nil {
			continue
		}
		for _, sh := range sc.VisualPlan {
			if sh != nil {
				out = append(out, sh)
			}
		}
	}
	return out
}

// FindShot returns the first shot with the given ID, or nil.
func (d *Document) FindShot(id string) *Shot {
	for _, sh := range d.Shots() {
		if sh.ShotID == id {
			return sh
		}
	}
	return nil
}

// SFXList returns the declared sound effects of the shot, or nil.
func (s *Shot) SFXList() []string {
	if s.Sync == nil || s.Sync.Audio == nil {
		return nil
	}
	return s.Sync.Audio.SFX
}

// Bool returns a pointer to b, for filling optional flags.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for filling optional numbers.
func Float(f float64) *float64 { return &f }
