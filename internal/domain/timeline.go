/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const timelineSep = " - "

// ParseTimeline splits a scene timeline "M:SS - M:SS" into start and end
// offsets in seconds. ok is false when either side does not parse.
func ParseTimeline(tl string) (start, end int, ok bool) {
	if !strings.Contains(tl, timelineSep) {
		return 0, 0, false
	}
	parts := strings.Split(tl, timelineSep)
	start, ok1 := parseClock(parts[0])
	end, ok2 := parseClock(parts[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return start, end, true
}

// FormatTimeline renders start and end seconds as "M:SS - M:SS".
func FormatTimeline(start, end int) string {
	return FormatClock(start) + timelineSep + FormatClock(end)
}

// FormatClock renders seconds as M:SS.
func FormatClock(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func parseClock(s string) (int, bool) {
	if !strings.Contains(s, ":") {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	sec, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	return m*60 + sec, true
}
