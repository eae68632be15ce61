// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"regexp"
	"strings"
)

// leakPrefixes match whole lines of internal-reasoning leakage that
// must never reach the user, per spec.md's explicit examples.
var leakPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*Thought:.*$`),
	regexp.MustCompile(`(?im)^\s*Observation:.*$`),
	regexp.MustCompile(`(?im)^\s*Action:.*$`),
	regexp.MustCompile(`(?im)^\s*Okay,\s*(since|with|given|without|lacking)\b.*$`),
	regexp.MustCompile(`(?im)^\s*.*has provided the final answer\.\s*$`),
}

// StripReasoningLeaks removes lines matching known internal-reasoning
// patterns from text, collapsing the resulting blank-line runs.
func StripReasoningLeaks(text string) string {
	stripped := text
	for _, pattern := range leakPrefixes {
		stripped = pattern.ReplaceAllString(stripped, "")
	}

	lines := strings.Split(stripped, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// FinalAnswerTag is the tag a terminal step is prefixed with. No code
// in this package references it, and StripReasoningLeaks does not
// remove it.
const FinalAnswerTag = "FinalAnswer:"
