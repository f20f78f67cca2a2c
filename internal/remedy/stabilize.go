/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remedy

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"shotlint/internal/domain"
	"shotlint/internal/rules"
)

// CaptureClause is appended to every stabilized prompt.
const CaptureClause = "Photographic digital capture — clean sensor look, neutral color (Rec709/ACES-like), no vintage effects, no film grain, no anime, no manga, no cel shading, no toon."

var captureClauseRe = regexp.MustCompile(`Photographic digital capture.*$`)

var (
	motionConstraints = []string{
		"no anthropomorphic posture",
		"no exaggerated squash/stretch",
		"no collision with camera",
		"no random zooms or reframing",
	}
	negativePrompts = []string{
		"low quality",
		"blurry",
		"watermark",
		"glowing outlines",
		"random color shift",
		"new environment",
		"reset wardrobe",
	}
	statePersistence = []string{"wet_fur", "mud_stains", "exhaustion"}
)

const (
	globalSeed    = 3001
	characterSeed = 1001
	propSeed      = 2001
	defaultPose   = "natural, non-anthropomorphic posture"
)

// StabilizeShot returns a normalized copy of shot with every continuity lock
// filled in. Values the author set are kept except where the clean-capture
// look requires a fixed value. A failure leaves shot untouched and is
// reported as an error.
func StabilizeShot(shot *domain.Shot) (out *domain.Shot, err error) {
	if shot == nil {
		return nil, errors.New("stabilize: nil shot")
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("stabilize shot %s: %v", shot.ShotID, r)
		}
	}()
	s := shot.Clone()

	core := strings.TrimSpace(captureClauseRe.ReplaceAllString(s.CompositionPrompt, ""))

	stabilizeEnvironment(s)
	stabilizeCamera(s)
	stabilizeLighting(s)

	for i, cd := range s.CharacterDefinitions {
		if cd == nil {
			continue
		}
		if cd.Scale == nil && i == 0 {
			cd.Scale = domain.Float(1.0)
		}
		if cd.Pose == "" {
			cd.Pose = defaultPose
		}
	}
	s.CompositionPrompt = core + " " + CaptureClause

	if s.Animation == nil {
		s.Animation = domain.Record{}
	}
	s.Animation["motion_constraints"] = union(s.Animation["motion_constraints"], motionConstraints)

	if s.PhysicsGravityLock == nil {
		s.PhysicsGravityLock = domain.Bool(true)
	}
	if s.CollisionRefinement == nil {
		s.CollisionRefinement = domain.Bool(true)
	}

	if s.Technical == nil {
		s.Technical = domain.Record{}
	}
	s.Technical["color_space"] = "Rec709"
	s.Technical["no_LUT"] = true
	s.Technical["negative_prompts"] = union(s.Technical["negative_prompts"], negativePrompts)
	if !truthy(s.Technical["seed"]) {
		s.Technical["seed"] = float64(globalSeed)
	}
	for i, cd := range s.CharacterDefinitions {
		if cd != nil && (cd.Seed == nil || *cd.Seed == 0) {
			cd.Seed = domain.Float(float64(characterSeed + i))
		}
	}

	refs := slices.Clone(s.PropsReference)
	refs = append(refs, rules.PropTokenRe.FindAllString(s.CompositionPrompt, -1)...)
	for i, p := range s.Props {
		if p == nil {
			continue
		}
		if p.Seed == nil || *p.Seed == 0 {
			p.Seed = domain.Float(float64(propSeed + i))
		}
		p.Continuity = domain.PropPersistent
	}
	slices.Sort(refs)
	refs = slices.Compact(refs)
	if len(refs) > 0 {
		s.PropsReference = refs
	} else {
		s.PropsReference = nil
	}

	if s.ScreenDirection == "" {
		s.ScreenDirection = "lock_left_to_right"
	}
	if s.ParallaxLock == nil {
		s.ParallaxLock = domain.Bool(true)
	}
	if s.Anchors == nil {
		s.Anchors = map[string]domain.Anchor{}
	}

	stabilizeContinuity(s)

	if s.StatePersistence == nil {
		s.StatePersistence = slices.Clone(statePersistence)
	}

	// folded into the camera and lighting records above
	s.ExposureLock = nil
	s.CameraAxisLock = nil
	return s, nil
}

func stabilizeEnvironment(s *domain.Shot) {
	env := domain.Record{"location": "secret garden path", "time_of_day": "late afternoon"}
	for k, v := range s.Environment {
		env[k] = v
	}
	env["inherit"] = true
	if !truthy(env["modifications"]) {
		env["modifications"] = "minor only (≤10%)"
	}
	s.Environment = env
}

func stabilizeCamera(s *domain.Shot) {
	if s.Sync == nil {
		s.Sync = &domain.Sync{}
	}
	cam := domain.Record{
		"stabilization":              "strong",
		"rolling_shutter_correction": true,
		"focus_mode":                 "continuous",
		"aperture":                   "f/4.0",
		"shutter":                    "1/120",
		"iso":                        "base",
		"auto_exposure":              false,
		"motion_blur":                "off",
	}
	for k, v := range s.Sync.Camera {
		cam[k] = v
	}
	if _, ok := cam["lens.match_previous"]; !ok {
		cam["lens.match_previous"] = true
	}
	cam["camera_axis_lock"] = lock(s.CameraAxisLock, cam["camera_axis_lock"], true)
	cam["camera_height_lock"] = lock(s.CameraHeightLock, cam["camera_height_lock"], true)
	s.Sync.Camera = cam
}

func stabilizeLighting(s *domain.Shot) {
	light := domain.Record{"style": "dynamic, contrasty but realistic"}
	for k, v := range s.Sync.Lighting {
		light[k] = v
	}
	light["exposure"] = "locked midtone"
	light["reference"] = "previous_scene"
	light["variation"] = "0.1"
	light["white_balance"] = "5600K"
	light["exposure_lock"] = lock(s.ExposureLock, light["exposure_lock"], true)
	light["contrast_match"] = text(s.ContrastMatch, light["contrast_match"], "inherit")
	light["light_direction_lock"] = text(s.LightDirectionLock, light["light_direction_lock"], "southwest")
	light["shadow_persistence"] = lock(s.ShadowPersistence, light["shadow_persistence"], true)
	s.Sync.Lighting = light
}

func stabilizeContinuity(s *domain.Shot) {
	c := s.Continuity
	if c == nil {
		c = &domain.ContinuitySettings{}
		s.Continuity = c
	}
	if c.SceneAnchor == "" {
		c.SceneAnchor = "inherit from previous shot"
	}
	if c.ReferenceScene == "" {
		c.ReferenceScene = "prev"
	}
	if c.EnvironmentInherit == nil {
		c.EnvironmentInherit = domain.Bool(true)
	}
	if c.LightingInherit == nil {
		c.LightingInherit = domain.Bool(true)
	}
	if c.CharacterStateInherit == nil {
		c.CharacterStateInherit = make([]string, 0, len(s.CharacterDefinitions))
		for _, cd := range s.CharacterDefinitions {
			if cd != nil {
				c.CharacterStateInherit = append(c.CharacterStateInherit, cd.ID)
			}
		}
	}
	if c.PropStateInherit == nil {
		c.PropStateInherit = make([]string, 0, len(s.Props))
		for _, p := range s.Props {
			if p != nil {
				c.PropStateInherit = append(c.PropStateInherit, p.ID)
			}
		}
	}
}

// lock resolves a flag from the shot-level value, then the value already in
// the sub-record, then def.
func lock(top *bool, existing any, def bool) any {
	if top != nil {
		return *top
	}
	if existing != nil {
		return existing
	}
	return def
}

func text(top string, existing any, def string) any {
	if top != "" {
		return top
	}
	if truthy(existing) {
		return existing
	}
	return def
}

// union appends the missing defaults to an existing string list, dropping
// duplicates and keeping first-seen order.
func union(existing any, defaults []string) []any {
	var out []any
	seen := map[string]bool{}
	add := func(v any) {
		if s, ok := v.(string); ok {
			if seen[s] {
				return
			}
			seen[s] = true
		}
		out = append(out, v)
	}
	switch t := existing.(type) {
	case []any:
		for _, v := range t {
			add(v)
		}
	case []string:
		for _, v := range t {
			add(v)
		}
	}
	for _, d := range defaults {
		add(d)
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}
