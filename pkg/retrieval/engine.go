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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/vector"
)

const (
	minQueryLength = 2
	maxQueryLength = 10000
)

// EngineConfig wires an Engine's dependencies.
type EngineConfig struct {
	// Providers maps collection name to the vector.Provider backing it.
	// Multiple collections may point at the same Provider instance.
	Providers map[string]vector.Provider

	// Embedder produces query embeddings.
	Embedder Embedder

	// Reranker re-scores merged results. Optional.
	Reranker Reranker

	// RerankEnabledTiers names tiers (by Request.Tier) for which
	// reranking runs when configured. A tier absent from this map
	// never reranks even if Reranker is set, except "" (unspecified)
	// which always reranks when a Reranker is present.
	RerankEnabledTiers map[string]bool

	// CacheTTL bounds how long a Response is served from the semantic
	// cache before re-fetching (default 5m).
	CacheTTL time.Duration

	// EmbeddingDimension is used for the zero-vector health probe.
	EmbeddingDimension int

	// ParentExpansionTopM bounds how many distinct parent documents
	// survive after dedup (default 5).
	ParentExpansionTopM int

	// FetchMultiplier over-fetches per collection before reranking so
	// the rerank stage has enough candidates to reorder (default 3).
	FetchMultiplier int
}

// Engine implements component C6: semantic cache probe, embed,
// per-collection fan-out, optional rerank, parent expansion, assemble.
type Engine struct {
	cfg   EngineConfig
	cache *semanticCache
}

// NewEngine validates cfg and returns a ready Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("retrieval: at least one collection provider is required")
	}
	if cfg.ParentExpansionTopM <= 0 {
		cfg.ParentExpansionTopM = 5
	}
	if cfg.FetchMultiplier <= 0 {
		cfg.FetchMultiplier = 3
	}
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = 768
	}
	return &Engine{cfg: cfg, cache: newSemanticCache(cfg.CacheTTL)}, nil
}

// Search runs the retrieval pipeline for req.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	query := strings.Join(strings.Fields(strings.TrimSpace(req.Query)), " ")
	if len(query) < minQueryLength {
		return nil, errs.Wrap(errs.ErrValidation, "retrieval: query too short", nil)
	}
	if len(query) > maxQueryLength {
		return nil, errs.Wrap(errs.ErrValidation, "retrieval: query too long", nil)
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	collections := e.allowedCollections(req)
	if len(collections) == 0 {
		return &Response{Results: []Result{}, SearchTimeMs: time.Since(start).Milliseconds()}, nil
	}

	key := fingerprint(query, req.Tier, collections)
	if cached, ok := e.cache.get(key); ok {
		cached.CacheHit = true
		return &cached, nil
	}

	embedding, err := e.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.ErrRetrievalTransient, "retrieval: embed query", err)
	}

	fetchK := req.TopK
	shouldRerank := e.cfg.Reranker != nil && (req.Tier == "" || e.cfg.RerankEnabledTiers[req.Tier])
	if shouldRerank {
		fetchK = req.TopK * e.cfg.FetchMultiplier
	}

	results, err := e.fanOutSearch(ctx, collections, embedding, fetchK)
	if err != nil {
		return nil, err
	}

	if shouldRerank && len(results) > 0 {
		reranked, err := e.cfg.Reranker.Rerank(ctx, query, results)
		if err != nil {
			slog.Warn("retrieval: rerank failed, keeping vector order", "error", err)
		} else {
			results = reranked
		}
	}

	results = expandParents(results, e.cfg.ParentExpansionTopM)

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	resp := Response{
		Results:      results,
		TotalMatches: len(results),
		SearchTimeMs: time.Since(start).Milliseconds(),
	}
	e.cache.set(key, resp)
	return &resp, nil
}

// allowedCollections intersects the requested collections (or all
// configured ones, if unspecified) with what the principal may read.
func (e *Engine) allowedCollections(req Request) []string {
	candidates := req.Collections
	if len(candidates) == 0 {
		for name := range e.cfg.Providers {
			candidates = append(candidates, name)
		}
	}
	allowed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := e.cfg.Providers[c]; !ok {
			continue
		}
		if !req.Principal.CanAccess(c) {
			continue
		}
		allowed = append(allowed, c)
	}
	sort.Strings(allowed)
	return allowed
}

// fanOutSearch queries each collection's provider concurrently,
// bounded by errgroup, and merges results by descending score.
func (e *Engine) fanOutSearch(ctx context.Context, collections []string, embedding []float32, topK int) ([]Result, error) {
	var mu sync.Mutex
	merged := make([]Result, 0, len(collections)*topK)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range collections {
		name := name
		provider := e.cfg.Providers[name]
		g.Go(func() error {
			matches, err := provider.Search(gctx, name, embedding, topK)
			if err != nil {
				slog.Warn("retrieval: collection search failed", "collection", name, "error", err)
				return nil // degrade, don't fail the whole request (I-C1)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, m := range matches {
				merged = append(merged, toResult(name, m))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.ErrRetrievalTransient, "retrieval: collection fan-out", err)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].RelevanceScore > merged[j].RelevanceScore })
	return merged, nil
}

func toResult(collection string, m vector.Result) Result {
	content := m.Content
	if content == "" {
		if c, ok := m.Metadata["content"].(string); ok {
			content = c
		}
	}
	parentID := ""
	if pid, ok := m.Metadata["parent_id"].(string); ok {
		parentID = pid
	} else if did, ok := m.Metadata["document_id"].(string); ok {
		parentID = did
	}
	return Result{
		Chunk: Chunk{
			ID:         m.ID,
			ParentID:   parentID,
			Text:       content,
			Collection: collection,
			Metadata:   m.Metadata,
		},
		RelevanceScore: m.Score,
	}
}

// expandParents dedups results by ParentID, keeping only the
// highest-scoring chunk per parent (I-P1), bounded to topM parents.
func expandParents(results []Result, topM int) []Result {
	seen := make(map[string]bool, len(results))
	expanded := make([]Result, 0, len(results))
	for _, r := range results {
		key := r.Chunk.ParentID
		if key == "" {
			key = r.Chunk.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		expanded = append(expanded, r)
		if len(expanded) >= topM {
			break
		}
	}
	return expanded
}

// Status reports collection health and cache size for the
// diagnostics tool and /healthz.
func (e *Engine) Status(ctx context.Context) map[string]any {
	checks := make([]HealthCheck, 0, len(e.cfg.Providers))
	for name, provider := range e.cfg.Providers {
		checks = append(checks, probeCollection(ctx, name, provider, e.cfg.EmbeddingDimension))
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Collection < checks[j].Collection })

	return map[string]any{
		"collections": checks,
		"cache_size":  e.cache.size(),
		"reranker_configured": e.cfg.Reranker != nil,
	}
}

// Purge invalidates cached results for a collection-name prefix, for
// the ingestion side to call after reindexing (satisfies PurgeSignal).
func (e *Engine) Purge(ctx context.Context, prefix string) error {
	return e.cache.Purge(ctx, prefix)
}

var _ PurgeSignal = (*Engine)(nil)
