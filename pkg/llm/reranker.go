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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nuzantara/core/pkg/retrieval"
)

// Reranker re-ranks retrieval.Results using an LLM's deeper semantic
// judgment than raw vector similarity. It satisfies
// retrieval.Reranker structurally so pkg/retrieval never imports
// pkg/llm.
type Reranker struct {
	provider   Provider
	maxResults int
}

// NewReranker builds a Reranker. maxResults bounds how many top
// results are sent to the LLM for ranking (cost/latency control);
// anything beyond that keeps its original order and is appended
// unchanged.
func NewReranker(provider Provider, maxResults int) *Reranker {
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Reranker{provider: provider, maxResults: maxResults}
}

type rankingDecision struct {
	Index     int    `json:"index"`
	Relevance int    `json:"relevance"`
	Reason    string `json:"reason,omitempty"`
}

// Rerank implements retrieval.Reranker. On any LLM or parse failure it
// degrades to the original order rather than failing the search.
func (r *Reranker) Rerank(ctx context.Context, query string, results []retrieval.Result) ([]retrieval.Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	toRerank := results
	rest := []retrieval.Result(nil)
	if len(toRerank) > r.maxResults {
		rest = results[r.maxResults:]
		toRerank = results[:r.maxResults]
	}

	temp := 0.0
	req := &Request{
		Messages: []Message{{Role: RoleUser, Content: buildRerankPrompt(query, toRerank)}},
		Config:   &GenerateConfig{Temperature: &temp},
	}

	var out strings.Builder
	for resp, err := range r.provider.GenerateContent(ctx, req, false) {
		if err != nil {
			slog.WarnContext(ctx, "rerank failed, returning original order", "error", err)
			return results, nil
		}
		out.WriteString(resp.Content)
	}

	rankings, err := parseRankings(out.String(), len(toRerank))
	if err != nil {
		slog.WarnContext(ctx, "rerank: failed to parse rankings, returning original order", "error", err)
		return results, nil
	}

	reranked := applyRankings(toRerank, rankings)
	return append(reranked, rest...), nil
}

func buildRerankPrompt(query string, results []retrieval.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the query: %q\n\n"+
		"Rank the following documents by their relevance to the query.\n"+
		"For each document, provide a relevance score from 1-10 (10 being most relevant).\n\nDocuments:\n", query)
	for i, res := range results {
		fmt.Fprintf(&sb, "\n[%d] %s\n", i, truncate(res.Chunk.Text, 500))
	}
	sb.WriteString("\nRespond with a JSON array of rankings, ordered from most to least relevant:\n" +
		`[{"index": 0, "relevance": 9, "reason": "directly answers the query"}, ...]` +
		"\n\nOnly include the JSON array, no other text.")
	return sb.String()
}

func parseRankings(response string, n int) ([]rankingDecision, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("rerank: no JSON array found in response")
	}

	var rankings []rankingDecision
	if err := json.Unmarshal([]byte(response[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("rerank: parse rankings JSON: %w", err)
	}

	seen := make(map[int]bool)
	var valid []rankingDecision
	for _, ranking := range rankings {
		if ranking.Index >= 0 && ranking.Index < n && !seen[ranking.Index] {
			seen[ranking.Index] = true
			valid = append(valid, ranking)
		}
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			valid = append(valid, rankingDecision{Index: i, Relevance: 1})
		}
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Relevance > valid[j].Relevance })
	return valid, nil
}

// applyRankings reorders results by ranking and assigns a
// position-based RerankScore (1st=1.0, 2nd=0.95, ...), floored at 0.1.
func applyRankings(results []retrieval.Result, rankings []rankingDecision) []retrieval.Result {
	reranked := make([]retrieval.Result, 0, len(rankings))
	for i, ranking := range rankings {
		if ranking.Index >= len(results) {
			continue
		}
		res := results[ranking.Index]
		score := 1.0 - float64(i)*0.05
		if score < 0.1 {
			score = 0.1
		}
		res.RerankScore = score
		reranked = append(reranked, res)
	}
	return reranked
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

var _ retrieval.Reranker = (*Reranker)(nil)
