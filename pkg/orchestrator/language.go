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

import "strings"

// markerWords are a small set of high-frequency, language-distinctive
// function words. This is a lightweight heuristic, not a general
// language identifier — the minimum the spec requires is distinguishing
// Italian/English/Indonesian, and those three rarely share function
// words, so a word-overlap vote is enough.
var markerWords = map[string][]string{
	"it": {"di", "che", "non", "per", "sono", "come", "quando", "dove", "perché", "cosa", "grazie"},
	"id": {"yang", "dan", "ini", "itu", "dengan", "tidak", "saya", "untuk", "bagaimana", "apa", "terima kasih"},
	"en": {"the", "and", "is", "are", "what", "how", "when", "where", "please", "thanks", "can"},
}

// DefaultLanguage is used when no marker word matches.
const DefaultLanguage = "en"

// DetectLanguage returns the detected language code ("it", "en", "id")
// of text by a function-word overlap vote.
func DetectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return DefaultLanguage
	}

	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?;:\"'")] = true
	}

	best, bestScore := DefaultLanguage, 0
	for lang, markers := range markerWords {
		score := 0
		for _, m := range markers {
			if set[m] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}
