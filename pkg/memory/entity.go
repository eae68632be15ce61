// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EntityExtractor extracts Entity values from a single user Message.
// Implementations run synchronously inside AppendTurn; a future
// background worker (e.g. an auto-CRM sync) can implement or consume
// the same interface without requiring the core to know about it —
// see the Open Question decision in DESIGN.md.
type EntityExtractor interface {
	Extract(msg Message) []Entity
}

// HeuristicExtractor is a regexp/keyword based EntityExtractor. It
// trades recall for being deterministic, fast, and impossible to
// prompt-inject — it never runs the message content through a model.
type HeuristicExtractor struct {
	now func() time.Time
}

// NewHeuristicExtractor builds the default extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{now: time.Now}
}

var (
	budgetPattern   = regexp.MustCompile(`(?i)(?:budget|anggaran)[^\d]{0,15}(idr|rp|usd|\$)?\s?([\d.,]{3,})`)
	locationPattern = regexp.MustCompile(`(?i)\b(bali|jakarta|surabaya|bandung|yogyakarta|denpasar|canggu|ubud|seminyak)\b`)
	langPattern     = regexp.MustCompile(`(?i)\b(bahasa indonesia|indonesian|english|bahasa inggris)\b`)
	visaPattern     = regexp.MustCompile(`(?i)\b(kitas|kitap|b211a|b211b|visa on arrival|working visa|investor visa|retirement visa)\b`)
	companyPattern  = regexp.MustCompile(`(?i)\b(pt pma|pt local|cv|representative office|pma company)\b`)
	timelinePattern = regexp.MustCompile(`(?i)\b(\d{1,2}\s?(days?|weeks?|months?)|asap|urgent|this month|next month)\b`)
	namePattern     = regexp.MustCompile(`(?i)\b(?:my name is|i'?m|i am|mi chiamo|saya|nama saya)\s+([A-Z][a-zA-Z]+)\b`)
	professionPattern = regexp.MustCompile(`(?i)\b(?:i'?m a|i am a|i work as a?n?|sono un[a]?)\s+(freelancer|consultant|developer|engineer|designer|entrepreneur|founder|investor|digital nomad|remote worker|lawyer|accountant)\b`)
	expertisePattern  = regexp.MustCompile(`(?i)\b(first time|new to this|beginner|never done this before|already have (?:a|an) (?:kitas|pt pma|visa)|experienced|done this before|renewing)\b`)
)

// Extract scans msg.Content for recognized entity cues. Confidence is
// fixed per pattern class rather than computed — a keyword match is
// either a hit or not.
func (e *HeuristicExtractor) Extract(msg Message) []Entity {
	if msg.Role != RoleUser {
		return nil
	}
	now := e.now()
	var out []Entity

	if m := budgetPattern.FindStringSubmatch(msg.Content); m != nil {
		value := strings.TrimSpace(m[1] + " " + m[2])
		out = append(out, Entity{
			Kind: EntityBudget, Value: strings.TrimSpace(value),
			Confidence: 0.6, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := locationPattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityLocation, Value: strings.ToLower(m[1]),
			Confidence: 0.8, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := langPattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityPreferredLanguage, Value: strings.ToLower(m[1]),
			Confidence: 0.7, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := visaPattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityVisaType, Value: strings.ToLower(m[1]),
			Confidence: 0.85, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := companyPattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityCompanyType, Value: strings.ToLower(m[1]),
			Confidence: 0.85, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := timelinePattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityTimeline, Value: strings.ToLower(m[1]),
			Confidence: 0.5, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := namePattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityName, Value: m[1],
			Confidence: 0.7, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := professionPattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityProfession, Value: strings.ToLower(m[1]),
			Confidence: 0.7, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	if m := expertisePattern.FindStringSubmatch(msg.Content); m != nil {
		out = append(out, Entity{
			Kind: EntityExpertiseLevel, Value: strings.ToLower(m[1]),
			Confidence: 0.6, LastSeen: now, SourceMessageID: msg.ID,
		})
	}
	return out
}

// normalizeDigits strips thousands separators so downstream code can
// parse a budget entity's value as a number when it needs to compare
// against pricing tiers.
func normalizeDigits(s string) (int64, bool) {
	cleaned := strings.NewReplacer(".", "", ",", "").Replace(s)
	n, err := strconv.ParseInt(strings.TrimSpace(cleaned), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
