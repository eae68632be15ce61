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
	"strings"

	"github.com/nuzantara/core/pkg/retrieval"
)

// hedgePhrases mark confabulation-prone language: the model asserting
// something it is uncertain of, or a claim with no retrieval backing.
var hedgePhrases = []string{
	"i believe",
	"i think",
	"probably",
	"might be",
	"as far as i know",
	"it's possible that",
	"i'm not sure",
}

// Verify returns a bounded [0,1] score combining citation coverage,
// agreement between the top retrieval scores and the answer, and the
// absence of hedged or confabulated assertions.
func Verify(answer string, citations []Citation, results []retrieval.Result) float64 {
	coverage := citationCoverage(answer, citations)
	agreement := retrievalAgreement(results)
	hedgePenalty := hedgeScore(answer)

	score := 0.5*coverage + 0.3*agreement + 0.2*hedgePenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// citationCoverage estimates what fraction of the answer's sentences
// ended up bound to a citation.
func citationCoverage(answer string, citations []Citation) float64 {
	sentences := splitSentences(answer)
	if len(sentences) == 0 {
		return 0
	}
	if len(citations) == 0 {
		return 0
	}
	ratio := float64(len(citations)) / float64(len(sentences))
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// retrievalAgreement rewards a strong top relevance score: a confident
// top match is a good proxy for the retrieved evidence actually
// supporting the answer.
func retrievalAgreement(results []retrieval.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	best := results[0].RelevanceScore
	if results[0].RerankScore > 0 {
		best = results[0].RerankScore
	}
	if best > 1 {
		best = 1
	}
	if best < 0 {
		best = 0
	}
	return best
}

// hedgeScore returns 1.0 when the answer contains no hedging language,
// decaying toward 0 as hedge phrases accumulate.
func hedgeScore(answer string) float64 {
	lower := strings.ToLower(answer)
	hits := 0
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			hits++
		}
	}
	if hits == 0 {
		return 1.0
	}
	score := 1.0 - float64(hits)*0.25
	if score < 0 {
		return 0
	}
	return score
}
