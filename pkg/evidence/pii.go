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

package evidence

import (
	"fmt"
	"regexp"
)

// Pattern is one configured PII detector.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
}

// DefaultPatterns returns the built-in phone-number and
// Indonesian-personal-ID (NIK/KITAS/passport-like) detectors.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "phone_number",
			Regex:       regexp.MustCompile(`\b(\+?\d{1,3}[-.\s]?)?(\(?\d{2,4}\)?[-.\s]?)?\d{3,4}[-.\s]?\d{3,4}\b`),
			Placeholder: "[REDACTED:PHONE]",
		},
		{
			Name:        "national_id",
			Regex:       regexp.MustCompile(`\b\d{16}\b`),
			Placeholder: "[REDACTED:ID]",
		},
		{
			Name:        "passport_number",
			Regex:       regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
			Placeholder: "[REDACTED:PASSPORT]",
		},
	}
}

// Redactor masks configured PII patterns in text. Grounded on
// sanitizeInput's sequential-application idiom (pkg/rag/sanitize.go),
// generalized from fixed substring replacement to compiled regex
// patterns since PII values are not known ahead of time.
type Redactor struct {
	patterns []Pattern
}

// NewRedactor builds a Redactor. An empty patterns list is accepted
// here, but Redact then returns an error: silently redacting nothing
// would defeat the hard-error-on-failure persistence guarantee.
func NewRedactor(patterns []Pattern) *Redactor {
	return &Redactor{patterns: patterns}
}

// Redact masks every configured pattern match in text, except matches
// equal to one of exempt (the requesting user's own PII, passed
// through unmasked for the user-visible copy; pass nil to redact
// everything, as required before persistence).
func (r *Redactor) Redact(text string, exempt []string) (string, error) {
	if len(r.patterns) == 0 {
		return "", fmt.Errorf("evidence: redactor has no configured patterns")
	}

	exemptSet := make(map[string]bool, len(exempt))
	for _, e := range exempt {
		exemptSet[e] = true
	}

	redacted := text
	for _, p := range r.patterns {
		if p.Regex == nil {
			return "", fmt.Errorf("evidence: pattern %q has a nil regex", p.Name)
		}
		redacted = p.Regex.ReplaceAllStringFunc(redacted, func(match string) string {
			if exemptSet[match] {
				return match
			}
			return p.Placeholder
		})
	}
	return redacted, nil
}
