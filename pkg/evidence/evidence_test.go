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
	"context"
	"strings"
	"testing"

	"github.com/nuzantara/core/pkg/retrieval"
)

func TestBindCitations_BindsMatchingSentenceAndDedups(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: retrieval.Chunk{ID: "c1", Text: "A KITAS renewal requires a sponsor letter and takes fourteen business days to process."}},
		{Chunk: retrieval.Chunk{ID: "c2", Text: "PT PMA minimum capital requirements vary by business sector and location."}},
	}
	answer := "A KITAS renewal requires a sponsor letter and takes fourteen business days to process. A KITAS renewal requires a sponsor letter and takes fourteen business days to process again."

	citations := BindCitations(answer, results)
	if len(citations) != 1 {
		t.Fatalf("BindCitations returned %d citations, want 1 (deduplicated by chunk id)", len(citations))
	}
	if citations[0].ChunkID != "c1" {
		t.Errorf("ChunkID = %q, want c1", citations[0].ChunkID)
	}
}

func TestBindCitations_NoOverlapLeavesUncited(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: retrieval.Chunk{ID: "c1", Text: "Completely unrelated content about shipping logistics."}},
	}
	citations := BindCitations("The capital of Italy is Rome.", results)
	if len(citations) != 0 {
		t.Errorf("expected no citations for unrelated text, got %+v", citations)
	}
}

func TestBindCitations_EmptyInputs(t *testing.T) {
	if got := BindCitations("", nil); got != nil {
		t.Errorf("BindCitations(\"\", nil) = %+v, want nil", got)
	}
	if got := BindCitations("some text", nil); got != nil {
		t.Errorf("BindCitations with no results = %+v, want nil", got)
	}
}

func TestRedactor_RedactsPatternsExceptExempt(t *testing.T) {
	r := NewRedactor(DefaultPatterns())

	text := "Call me at 081234567890 or check passport AB1234567."
	redacted, err := r.Redact(text, nil)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if strings.Contains(redacted, "081234567890") {
		t.Error("phone number should be redacted")
	}
	if strings.Contains(redacted, "AB1234567") {
		t.Error("passport number should be redacted")
	}

	redactedExempt, err := r.Redact(text, []string{"AB1234567"})
	if err != nil {
		t.Fatalf("Redact with exempt: %v", err)
	}
	if !strings.Contains(redactedExempt, "AB1234567") {
		t.Error("exempt passport number should survive redaction")
	}
}

func TestRedactor_NoPatternsErrors(t *testing.T) {
	r := NewRedactor(nil)
	if _, err := r.Redact("anything", nil); err == nil {
		t.Error("expected an error when the redactor has no configured patterns")
	}
}

func TestTemplateSet_EnforceAppendsMissingHeadings(t *testing.T) {
	ts := DefaultTemplates()
	out := ts.Enforce(ClassVisa, "You need a sponsor.")
	for _, heading := range []string{"Requirements", "Process", "Timeline"} {
		if !strings.Contains(out, heading) {
			t.Errorf("expected missing heading %q to be appended, got: %q", heading, out)
		}
	}
}

func TestTemplateSet_EnforceLeavesCompleteAnswerUnchanged(t *testing.T) {
	ts := DefaultTemplates()
	complete := "Requirements: sponsor letter.\nProcess: submit online.\nTimeline: 14 days."
	out := ts.Enforce(ClassVisa, complete)
	if out != complete {
		t.Errorf("Enforce modified an already-complete answer: %q", out)
	}
}

func TestTemplateSet_GeneralClassPassesThrough(t *testing.T) {
	ts := DefaultTemplates()
	if out := ts.Enforce(ClassGeneral, "hello"); out != "hello" {
		t.Errorf("ClassGeneral should pass through unchanged, got %q", out)
	}
}

func TestVerify_PenalizesHedgingAndRewardsCitations(t *testing.T) {
	results := []retrieval.Result{{RelevanceScore: 0.9}}
	confident := Verify("This is the answer.", []Citation{{ChunkID: "c1"}}, results)
	hedged := Verify("I think this might be the answer, probably.", nil, results)

	if confident <= hedged {
		t.Errorf("confident score %v should exceed hedged score %v", confident, hedged)
	}
	if confident < 0 || confident > 1 || hedged < 0 || hedged > 1 {
		t.Errorf("scores out of [0,1] bounds: confident=%v hedged=%v", confident, hedged)
	}
}

func TestPipeline_RunBindsFormatsRedactsAndScores(t *testing.T) {
	p := NewPipeline(nil, nil)
	results := []retrieval.Result{
		{Chunk: retrieval.Chunk{ID: "c1", Text: "A KITAS renewal requires a sponsor letter and takes fourteen business days."}, RelevanceScore: 0.8},
	}

	out, err := p.Run(context.Background(), "A KITAS renewal requires a sponsor letter and takes fourteen business days. Call 081234567890 for help.", results, ClassVisa, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Citations) == 0 {
		t.Error("expected at least one citation bound from the matching chunk")
	}
	if strings.Contains(out.PersistedAnswer, "081234567890") {
		t.Error("persisted answer must have all PII redacted")
	}
	if out.VerificationScore < 0 || out.VerificationScore > 1 {
		t.Errorf("VerificationScore out of bounds: %v", out.VerificationScore)
	}
	for _, heading := range []string{"Requirements", "Process", "Timeline"} {
		if !strings.Contains(out.Answer, heading) {
			t.Errorf("expected visa template heading %q in formatted answer", heading)
		}
	}
}
