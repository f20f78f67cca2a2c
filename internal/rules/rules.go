/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package rules holds the keyword tables the detectors match prompts
// against. The tables are static data: the built-in set is embedded and
// parsed once, and a replacement file can be loaded for experiments.
// A *Rules value is read-only after construction and safe to share.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var builtin []byte

// SfxRule maps action keywords to a required sound effect. A rule with a
// Context applies only when one of the context words occurs in the prompt;
// a rule without one is the fallback for its keywords.
type SfxRule struct {
	Keywords []string `yaml:"keywords"`
	SFX      string   `yaml:"sfx"`
	Context  []string `yaml:"context"`
}

// KeywordGroup is every SfxRule sharing one keyword, in table order.
type KeywordGroup struct {
	Keyword string
	Rules   []SfxRule
	re      *regexp.Regexp
}

// Matches reports whether the keyword occurs as a whole word in prompt.
func (g KeywordGroup) Matches(prompt string) bool { return g.re.MatchString(prompt) }

// Jump is one row of a location table: leaving a set whose ID contains From
// for one whose ID contains any of To.
type Jump struct {
	From string   `yaml:"from"`
	To   []string `yaml:"to"`
}

// Physics lists the flight and gravity phrases.
type Physics struct {
	Flight        []string `yaml:"flight"`
	Justification []string `yaml:"justification"`
	FixFlight     []string `yaml:"fix_flight"`
	FixPrefix     string   `yaml:"fix_prefix"`
	FallingUpward []string `yaml:"falling_upward"`
	WaterWalk     []string `yaml:"water_walk"`
	WaterContext  []string `yaml:"water_context"`
}

// Plot lists the state-machine triggers for characters and objects.
type Plot struct {
	CapturedActions []string `yaml:"captured_actions"`
	HealthyActions  []string `yaml:"healthy_actions"`
	Rescue          []string `yaml:"rescue"`
	Capture         []string `yaml:"capture"`
	Injure          []string `yaml:"injure"`
	Death           []string `yaml:"death"`
	Objects         []string `yaml:"objects"`
	ObjectSuffixes  []string `yaml:"object_suffixes"`
	ObjectUse       []string `yaml:"object_use"`
	ObjectBreak     []string `yaml:"object_break"`
}

// Rules is the complete, compiled rule set.
type Rules struct {
	Sfx           []SfxRule `yaml:"sfx"`
	LowQualitySfx []string  `yaml:"low_quality_sfx"`
	Locations     struct {
		Illogical []Jump `yaml:"illogical"`
		Abrupt    []Jump `yaml:"abrupt"`
	} `yaml:"locations"`
	Physics           Physics  `yaml:"physics"`
	Plot              Plot     `yaml:"plot"`
	Positions         []string `yaml:"positions"`
	PropStateKeywords []string `yaml:"prop_state_keywords"`
	Temporal          struct {
		Wet []string `yaml:"wet"`
		Dry []string `yaml:"dry"`
	} `yaml:"temporal"`
	Narrative struct {
		Alarms    []string `yaml:"alarms"`
		Reactions []string `yaml:"reactions"`
	} `yaml:"narrative"`

	// compiled
	KeywordGroups []KeywordGroup `yaml:"-"`
	FlightRe      *regexp.Regexp `yaml:"-"`
	JustifyRe     *regexp.Regexp `yaml:"-"`
	FixFlightRe   *regexp.Regexp `yaml:"-"`
	WaterRe       *regexp.Regexp `yaml:"-"`
	PositionRe    *regexp.Regexp `yaml:"-"`
	ObjectRe      *regexp.Regexp `yaml:"-"`
	lowQuality    map[string]struct{}
}

// PropTokenRe matches prop identifiers written literally in a prompt.
var PropTokenRe = regexp.MustCompile(`prop_[\w_]+`)

var (
	defaultOnce  sync.Once
	defaultRules *Rules
)

// Default returns the embedded rule set. It panics if the embedded file is
// broken, which only a bad build can cause.
func Default() *Rules {
	defaultOnce.Do(func() {
		r, err := Parse(builtin)
		if err != nil {
			panic(fmt.Sprintf("rules: embedded rule set: %v", err))
		}
		defaultRules = r
	})
	return defaultRules
}

// Load reads a rule file. An empty path yields the embedded set.
func Load(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and compiles a YAML rule set.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	if len(r.Physics.Flight) == 0 || len(r.Physics.FixFlight) == 0 {
		return errors.New("rules: physics.flight and physics.fix_flight must not be empty")
	}
	var err error
	if r.FlightRe, err = alternation(r.Physics.Flight, "(?i)"); err != nil {
		return err
	}
	if r.JustifyRe, err = alternation(r.Physics.Justification, "(?i)"); err != nil {
		return err
	}
	if r.FixFlightRe, err = alternation(r.Physics.FixFlight, "(?i)"); err != nil {
		return err
	}
	if r.WaterRe, err = alternation(r.Physics.WaterContext, "(?i)"); err != nil {
		return err
	}
	if r.PositionRe, err = alternation(r.Positions, "(?i)"); err != nil {
		return err
	}

	var objs []string
	for _, s := range r.Plot.ObjectSuffixes {
		objs = append(objs, `\w+ `+regexp.QuoteMeta(s))
	}
	for _, o := range r.Plot.Objects {
		objs = append(objs, regexp.QuoteMeta(o))
	}
	if len(objs) > 0 {
		r.ObjectRe, err = regexp.Compile(`the (` + strings.Join(objs, "|") + `)`)
		if err != nil {
			return fmt.Errorf("rules: plot objects: %w", err)
		}
	}

	r.KeywordGroups = nil
	index := map[string]int{}
	for _, rule := range r.Sfx {
		if rule.SFX == "" {
			return fmt.Errorf("rules: sfx rule %v has no sfx id", rule.Keywords)
		}
		for _, kw := range rule.Keywords {
			i, ok := index[kw]
			if !ok {
				re, err := regexp.Compile(`\b` + regexp.QuoteMeta(kw) + `\b`)
				if err != nil {
					return fmt.Errorf("rules: sfx keyword %q: %w", kw, err)
				}
				i = len(r.KeywordGroups)
				index[kw] = i
				r.KeywordGroups = append(r.KeywordGroups, KeywordGroup{Keyword: kw, re: re})
			}
			r.KeywordGroups[i].Rules = append(r.KeywordGroups[i].Rules, rule)
		}
	}

	r.lowQuality = make(map[string]struct{}, len(r.LowQualitySfx))
	for _, s := range r.LowQualitySfx {
		r.lowQuality[s] = struct{}{}
	}
	return nil
}

// alternation compiles words into "(a|b|c)". An empty list yields a pattern
// that never matches.
func alternation(words []string, flags string) (*regexp.Regexp, error) {
	if len(words) == 0 {
		return regexp.MustCompile(`[^\x00-\x{10FFFF}]`), nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(flags + "(" + strings.Join(quoted, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("rules: %v: %w", words, err)
	}
	return re, nil
}

// LowQuality reports whether sfx is in the generic low-quality set.
func (r *Rules) LowQuality(sfx string) bool {
	_, ok := r.lowQuality[sfx]
	return ok
}

// ContainsAny reports whether s contains any of the phrases.
func ContainsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
