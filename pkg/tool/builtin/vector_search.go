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

// Package builtin implements the required tools of component C5:
// vector_search, pricing_lookup, team_lookup, diagnostics, and
// vision_analyze.
package builtin

import (
	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/tool"
)

// VectorSearchTool exposes component C6's retrieval pipeline as a tool
// the orchestrator can call from within the ReAct loop, for follow-up
// queries that need retrieval beyond the initial assembled context.
type VectorSearchTool struct {
	engine *retrieval.Engine
}

// NewVectorSearchTool wires a retrieval.Engine into a callable tool.
func NewVectorSearchTool(engine *retrieval.Engine) *VectorSearchTool {
	return &VectorSearchTool{engine: engine}
}

func (t *VectorSearchTool) Name() string             { return "vector_search" }
func (t *VectorSearchTool) Description() string      { return "Search the knowledge base collections for passages relevant to a query." }
func (t *VectorSearchTool) IsLongRunning() bool       { return false }
func (t *VectorSearchTool) RequiresApproval() bool    { return false }

func (t *VectorSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string"},
			"collections": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"top_k":       map[string]any{"type": "integer"},
		},
		"required": []string{"query"},
	}
}

func (t *VectorSearchTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, errs.Wrap(errs.ErrValidation, "vector_search: query is required", nil)
	}
	var collections []string
	if raw, ok := args["collections"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				collections = append(collections, s)
			}
		}
	}
	topK := 10
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	result, err := t.engine.Search(ctx, retrieval.Request{
		Query:       query,
		Collections: collections,
		Principal:   ctx.Principal,
		TopK:        topK,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, "vector_search", err)
	}

	passages := make([]map[string]any, 0, len(result.Results))
	for _, r := range result.Results {
		passages = append(passages, map[string]any{
			"chunk_id":      r.Chunk.ID,
			"document_id":   r.Chunk.ParentID,
			"text":          r.Chunk.Text,
			"relevance":     r.RelevanceScore,
			"rerank_score":  r.RerankScore,
			"collection":    r.Chunk.Collection,
		})
	}
	return map[string]any{
		"passages":       passages,
		"total_matches":  result.TotalMatches,
		"search_time_ms": result.SearchTimeMs,
	}, nil
}

var _ tool.CallableTool = (*VectorSearchTool)(nil)
