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

// ngramSize is the token n-gram window used for overlap matching
// between an answer sentence and a retrieved chunk.
const ngramSize = 4

// minOverlapRatio is the fraction of a sentence's n-grams that must
// appear in a chunk for the sentence to be considered bound to it.
const minOverlapRatio = 0.3

// BindCitations splits answer into claim-like spans (sentences) and
// attempts to bind each one to the retrieved chunk with the highest
// token n-gram overlap. Sentences with no chunk clearing
// minOverlapRatio are left uncited. The returned list is deduplicated
// by chunk id.
func BindCitations(answer string, results []retrieval.Result) []Citation {
	sentences := splitSentences(answer)
	if len(sentences) == 0 || len(results) == 0 {
		return nil
	}

	chunkGrams := make([]map[string]bool, len(results))
	for i, r := range results {
		chunkGrams[i] = ngramSet(r.Chunk.Text)
	}

	seen := make(map[string]bool)
	var citations []Citation
	for _, sentence := range sentences {
		sentGrams := ngramSet(sentence)
		if len(sentGrams) == 0 {
			continue
		}

		bestIdx, bestRatio := -1, 0.0
		for i, grams := range chunkGrams {
			ratio := overlapRatio(sentGrams, grams)
			if ratio > bestRatio {
				bestIdx, bestRatio = i, ratio
			}
		}
		if bestIdx == -1 || bestRatio < minOverlapRatio {
			continue
		}

		chunk := results[bestIdx].Chunk
		if seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true
		citations = append(citations, Citation{
			ChunkID:     chunk.ID,
			ParentTitle: parentTitle(chunk),
			Excerpt:     excerpt(chunk.Text, 200),
		})
	}
	return citations
}

func parentTitle(c retrieval.Chunk) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["title"].(string); ok {
		return v
	}
	if v, ok := c.Metadata["parent_title"].(string); ok {
		return v
	}
	return ""
}

func excerpt(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func ngramSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	grams := make(map[string]bool)
	if len(words) < ngramSize {
		if len(words) > 0 {
			grams[strings.Join(words, " ")] = true
		}
		return grams
	}
	for i := 0; i+ngramSize <= len(words); i++ {
		grams[strings.Join(words[i:i+ngramSize], " ")] = true
	}
	return grams
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for g := range a {
		if b[g] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
