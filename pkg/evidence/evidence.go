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

// Package evidence implements component C8: the post-answer pipeline
// that binds citations, enforces per-query-class format, redacts PII,
// and scores verification confidence. It never fails the request — a
// degraded score or empty citation list is always preferable to a
// 5xx — except that a PII-redaction failure is a hard error for
// persistence (an unredacted turn must never be stored).
package evidence

import (
	"context"

	"github.com/nuzantara/core/pkg/retrieval"
)

// Citation binds a claim-like span of the answer to a retrieved chunk.
type Citation struct {
	ChunkID     string `json:"chunk_id"`
	ParentTitle string `json:"parent_title,omitempty"`
	Excerpt     string `json:"excerpt"`
}

// Output is the result of running the pipeline over one answer.
type Output struct {
	// Answer is the (possibly format-enforced) final answer text.
	Answer string `json:"answer"`
	// RedactedAnswer is Answer with third-party PII masked, suitable
	// for returning to the user.
	RedactedAnswer string `json:"-"`
	// PersistedAnswer is Answer with all configured PII masked
	// (including the user's own), suitable for storage/logging.
	PersistedAnswer string `json:"-"`
	Citations       []Citation `json:"citations"`
	VerificationScore float64  `json:"verification_score"`
}

// QueryClass selects a Template for format enforcement.
type QueryClass string

const (
	ClassGeneral       QueryClass = "general"
	ClassVisa          QueryClass = "visa"
	ClassTax           QueryClass = "tax"
	ClassCompanySetup  QueryClass = "company_setup"
)

// Pipeline runs the C8 stages in order: citation binding, format
// enforcement, PII redaction, verification scoring.
type Pipeline struct {
	templates *TemplateSet
	redactor  *Redactor
}

// NewPipeline builds a Pipeline. A nil redactor config uses
// DefaultPatterns.
func NewPipeline(templates *TemplateSet, redactor *Redactor) *Pipeline {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if redactor == nil {
		redactor = NewRedactor(DefaultPatterns())
	}
	return &Pipeline{templates: templates, redactor: redactor}
}

// Run executes the pipeline over answer, binding citations against
// results, enforcing the template for class, and redacting PII. userPII
// lists the requesting user's own PII values, which are exempt from
// user-visible (but not persisted) redaction.
func (p *Pipeline) Run(ctx context.Context, answer string, results []retrieval.Result, class QueryClass, userPII []string) (*Output, error) {
	citations := BindCitations(answer, results)

	formatted := p.templates.Enforce(class, answer)

	redactedForUser, err := p.redactor.Redact(formatted, userPII)
	if err != nil {
		// Redaction failure never fails the request; the pipeline
		// degrades to returning the unredacted text to the user while
		// the persistence path (below) still hard-errors.
		redactedForUser = formatted
	}

	persisted, err := p.redactor.Redact(formatted, nil)
	if err != nil {
		return nil, err
	}

	score := Verify(formatted, citations, results)

	return &Output{
		Answer:            formatted,
		RedactedAnswer:    redactedForUser,
		PersistedAnswer:   persisted,
		Citations:         citations,
		VerificationScore: score,
	}, nil
}
