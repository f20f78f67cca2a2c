/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"log/slog"

	"shotlint/internal/analysis"
	"shotlint/internal/domain"
	applog "shotlint/internal/log"
)

// AnalyzeBytes parses data and analyzes it with the default rules. Input
// that cannot be parsed yields a zeroed report.
func AnalyzeBytes(data []byte) domain.AnalysisResult {
	return AnalyzeBytesWith(analysis.New(nil), data)
}

// AnalyzeBytesWith is AnalyzeBytes with a configured analyzer.
func AnalyzeBytesWith(a *analysis.Analyzer, data []byte) domain.AnalysisResult {
	doc, err := Parse(data)
	if err != nil {
		applog.WithComponent("script").Debug("unreadable script, empty report", slog.Any("err", err))
		return domain.EmptyResult()
	}
	return a.Analyze(doc)
}
