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

// Package retrieval implements the retrieval pipeline: semantic cache
// probe, embedding, per-collection vector search fan-out, optional
// reranking, parent-document expansion, and assembly.
package retrieval

import (
	"context"

	"github.com/nuzantara/core/pkg/principal"
)

// Chunk is a single retrievable unit of indexed content.
type Chunk struct {
	ID         string
	ParentID   string
	Text       string
	Collection string
	Metadata   map[string]any
}

// Result pairs a Chunk with its relevance scoring.
type Result struct {
	Chunk          Chunk
	RelevanceScore float64
	RerankScore    float64
}

// Request describes a single retrieval call.
type Request struct {
	Query       string
	Collections []string
	Principal   principal.Principal
	TopK        int

	// Tier is the router.Tier name (greeting/fast/pro/deep) that
	// classified this query, if known. Controls whether reranking is
	// mandatory (see EngineConfig.RerankEnabledTiers). Empty means
	// "always rerank when a Reranker is configured".
	Tier string
}

// Response is the assembled outcome of a retrieval call.
type Response struct {
	Results      []Result
	TotalMatches int
	SearchTimeMs int64
	CacheHit     bool
}

// Reranker reorders Results by deeper relevance than vector
// similarity alone provides. Implemented by pkg/llm for tiers where
// reranking is mandatory.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result) ([]Result, error)
}

// Embedder produces a query embedding. Satisfied by pkg/embedder.Embedder;
// declared locally so this package doesn't need to import the concrete
// provider construction machinery.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PurgeSignal lets the ingestion side invalidate cached retrieval
// results for a key prefix (e.g. a collection name) after a document
// update, without the retrieval pipeline scheduling its own
// invalidation sweeps.
type PurgeSignal interface {
	Purge(ctx context.Context, prefix string) error
}
