/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// Deep copies. Transforms never mutate their input; they clone first and
// work on the copy.

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{Extra: cloneExtra(d.Extra)}
	if d.Script != nil {
		c.Script = make([]*Scene, len(d.Script))
		for i, sc := range d.Script {
			c.Script[i] = sc.Clone()
		}
	}
	return c
}

func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	c := *s
	c.Extra = cloneExtra(s.Extra)
	if s.VisualPlan != nil {
		c.VisualPlan = make([]*Shot, len(s.VisualPlan))
		for i, sh := range s.VisualPlan {
			c.VisualPlan[i] = sh.Clone()
		}
	}
	return &c
}

func (s *Shot) Clone() *Shot {
	if s == nil {
		return nil
	}
	c := *s
	if s.CharacterDefinitions != nil {
		c.CharacterDefinitions = make([]*CharacterDefinition, len(s.CharacterDefinitions))
		for i, cd := range s.CharacterDefinitions {
			c.CharacterDefinitions[i] = cd.Clone()
		}
	}
	if s.Location != nil {
		loc := *s.Location
		loc.Extra = cloneExtra(s.Location.Extra)
		c.Location = &loc
	}
	c.Sync = s.Sync.Clone()
	c.Environment = s.Environment.Clone()
	c.Animation = s.Animation.Clone()
	c.Technical = s.Technical.Clone()
	if s.Props != nil {
		c.Props = make([]*PropDefinition, len(s.Props))
		for i, p := range s.Props {
			c.Props[i] = p.Clone()
		}
	}
	c.PropsReference = slices.Clone(s.PropsReference)
	c.Continuity = s.Continuity.Clone()
	c.PropStateOverride = maps.Clone(s.PropStateOverride)
	if s.Anchors != nil {
		c.Anchors = make(map[string]Anchor, len(s.Anchors))
		for k, a := range s.Anchors {
			c.Anchors[k] = Anchor{XY: slices.Clone(a.XY), Extra: cloneExtra(a.Extra)}
		}
	}
	c.ParallaxLock = cloneBool(s.ParallaxLock)
	c.AnchorsInherit = cloneBool(s.AnchorsInherit)
	c.PropLock = slices.Clone(s.PropLock)
	c.ScaleInherit = cloneBool(s.ScaleInherit)
	c.GeometryLock = cloneBool(s.GeometryLock)
	c.StatePersistence = slices.Clone(s.StatePersistence)
	c.AutoSyncAudio = cloneBool(s.AutoSyncAudio)
	c.CameraAxisLock = cloneBool(s.CameraAxisLock)
	c.MirrorFlip = cloneBool(s.MirrorFlip)
	c.LensMatchPrevious = cloneBool(s.LensMatchPrevious)
	c.CameraHeightLock = cloneBool(s.CameraHeightLock)
	c.ExposureLock = cloneBool(s.ExposureLock)
	c.ShadowPersistence = cloneBool(s.ShadowPersistence)
	c.PhysicsGravityLock = cloneBool(s.PhysicsGravityLock)
	c.CollisionRefinement = cloneBool(s.CollisionRefinement)
	c.ReflectionConsistency = cloneBool(s.ReflectionConsistency)
	c.EmotionInherit = cloneBool(s.EmotionInherit)
	c.Extra = cloneExtra(s.Extra)
	return &c
}

func (s *Sync) Clone() *Sync {
	if s == nil {
		return nil
	}
	c := &Sync{
		Duration: s.Duration,
		Camera:   s.Camera.Clone(),
		Lighting: s.Lighting.Clone(),
		Extra:    cloneExtra(s.Extra),
	}
	if s.Audio != nil {
		c.Audio = &Audio{SFX: slices.Clone(s.Audio.SFX), Extra: cloneExtra(s.Audio.Extra)}
	}
	return c
}

func (c *ContinuitySettings) Clone() *ContinuitySettings {
	if c == nil {
		return nil
	}
	n := *c
	n.EnvironmentInherit = cloneBool(c.EnvironmentInherit)
	n.LightingInherit = cloneBool(c.LightingInherit)
	n.CharacterStateInherit = slices.Clone(c.CharacterStateInherit)
	n.PropStateInherit = slices.Clone(c.PropStateInherit)
	n.Extra = cloneExtra(c.Extra)
	return &n
}

func (c *CharacterDefinition) Clone() *CharacterDefinition {
	if c == nil {
		return nil
	}
	n := *c
	if c.Appearance != nil {
		n.Appearance = Record(c.Appearance).Clone()
	}
	n.Scale = cloneFloat(c.Scale)
	n.Seed = cloneFloat(c.Seed)
	n.Extra = cloneExtra(c.Extra)
	return &n
}

func (p *PropDefinition) Clone() *PropDefinition {
	if p == nil {
		return nil
	}
	n := *p
	n.Seed = cloneFloat(p.Seed)
	n.Extra = cloneExtra(p.Extra)
	return &n
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	case *Object:
		return t.Clone()
	default:
		return v
	}
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
