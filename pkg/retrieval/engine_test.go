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
	"testing"

	"github.com/nuzantara/core/pkg/principal"
	"github.com/nuzantara/core/pkg/vector"
)

// stubProvider returns a fixed, score-descending list of matches,
// optionally truncated to topK, and records the topK it was asked for.
type stubProvider struct {
	name     string
	matches  []vector.Result
	lastTopK int
	err      error
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Upsert(ctx context.Context, collection, id string, v []float32, metadata map[string]any) error {
	return nil
}
func (p *stubProvider) Search(ctx context.Context, collection string, v []float32, topK int) ([]vector.Result, error) {
	p.lastTopK = topK
	if p.err != nil {
		return nil, p.err
	}
	if topK < len(p.matches) {
		return p.matches[:topK], nil
	}
	return p.matches, nil
}
func (p *stubProvider) SearchWithFilter(ctx context.Context, collection string, v []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	return p.Search(ctx, collection, v, topK)
}
func (p *stubProvider) Delete(ctx context.Context, collection, id string) error { return nil }
func (p *stubProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return nil
}
func (p *stubProvider) CreateCollection(ctx context.Context, collection string, dim int) error {
	return nil
}
func (p *stubProvider) DeleteCollection(ctx context.Context, collection string) error { return nil }
func (p *stubProvider) Close() error                                                 { return nil }

var _ vector.Provider = (*stubProvider)(nil)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func matchesWithParents(n int, parentPrefix string) []vector.Result {
	out := make([]vector.Result, n)
	for i := 0; i < n; i++ {
		out[i] = vector.Result{
			ID:    fmt.Sprintf("chunk-%d", i),
			Score: 1.0 - float64(i)*0.01,
			Content: fmt.Sprintf("chunk text %d", i),
			Metadata: map[string]any{
				"parent_id": fmt.Sprintf("%s-%d", parentPrefix, i),
			},
		}
	}
	return out
}

func TestEngine_SearchEnforcesTopKCap(t *testing.T) {
	provider := &stubProvider{name: "visa_docs", matches: matchesWithParents(20, "doc")}
	e, err := NewEngine(EngineConfig{
		Providers: map[string]vector.Provider{"visa_docs": provider},
		Embedder:  stubEmbedder{},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	resp, err := e.Search(context.Background(), Request{
		Query:       "how do I renew my KITAS",
		Collections: []string{"visa_docs"},
		Principal:   principal.Principal{Role: principal.RoleAdmin},
		TopK:        5,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("Results length = %d, want 5 (TopK cap enforced)", len(resp.Results))
	}
}

func TestEngine_ParentExpansionDedupsByParentID(t *testing.T) {
	matches := []vector.Result{
		{ID: "c1", Score: 0.9, Content: "a", Metadata: map[string]any{"parent_id": "p1"}},
		{ID: "c2", Score: 0.8, Content: "b", Metadata: map[string]any{"parent_id": "p1"}},
		{ID: "c3", Score: 0.7, Content: "c", Metadata: map[string]any{"parent_id": "p2"}},
	}
	provider := &stubProvider{name: "visa_docs", matches: matches}
	e, err := NewEngine(EngineConfig{
		Providers:           map[string]vector.Provider{"visa_docs": provider},
		Embedder:            stubEmbedder{},
		ParentExpansionTopM: 5,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	resp, err := e.Search(context.Background(), Request{
		Query:     "kitas renewal",
		Principal: principal.Principal{Role: principal.RoleAdmin},
		TopK:      10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Results length = %d, want 2 (deduped by parent_id, highest score kept)", len(resp.Results))
	}
	if resp.Results[0].Chunk.ID != "c1" {
		t.Errorf("kept chunk = %q, want c1 (highest-scoring of the p1 group)", resp.Results[0].Chunk.ID)
	}
}

func TestEngine_AuthorizationFiltersDisallowedCollections(t *testing.T) {
	visa := &stubProvider{name: "visa_docs", matches: matchesWithParents(3, "v")}
	staff := &stubProvider{name: "staff_only", matches: matchesWithParents(3, "s")}
	e, err := NewEngine(EngineConfig{
		Providers: map[string]vector.Provider{"visa_docs": visa, "staff_only": staff},
		Embedder:  stubEmbedder{},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	customer := principal.Principal{ID: "u1", Role: principal.RoleCustomer, AllowedCollections: []string{"visa_docs"}}
	resp, err := e.Search(context.Background(), Request{
		Query:       "what does staff know",
		Collections: []string{"visa_docs", "staff_only"},
		Principal:   customer,
		TopK:        10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range resp.Results {
		if r.Chunk.Collection == "staff_only" {
			t.Error("customer principal must never receive results from an unauthorized collection")
		}
	}

	noAccess := principal.Principal{ID: "u2", Role: principal.RoleCustomer}
	resp, err = e.Search(context.Background(), Request{
		Query:       "anything",
		Collections: []string{"visa_docs", "staff_only"},
		Principal:   noAccess,
		TopK:        10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("principal with no allowed collections should get zero results, got %d", len(resp.Results))
	}
}

func TestEngine_SearchRejectsDegenerateQueries(t *testing.T) {
	provider := &stubProvider{name: "visa_docs", matches: matchesWithParents(1, "d")}
	e, err := NewEngine(EngineConfig{
		Providers: map[string]vector.Provider{"visa_docs": provider},
		Embedder:  stubEmbedder{},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	p := principal.Principal{Role: principal.RoleAdmin}

	if _, err := e.Search(context.Background(), Request{Query: "a", Principal: p}); err == nil {
		t.Error("expected a validation error for a too-short query")
	}
	if _, err := e.Search(context.Background(), Request{Query: "", Principal: p}); err == nil {
		t.Error("expected a validation error for an empty query")
	}
}

func TestEngine_SearchCachesRepeatedQueries(t *testing.T) {
	provider := &stubProvider{name: "visa_docs", matches: matchesWithParents(3, "c")}
	e, err := NewEngine(EngineConfig{
		Providers: map[string]vector.Provider{"visa_docs": provider},
		Embedder:  stubEmbedder{},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	p := principal.Principal{Role: principal.RoleAdmin}
	req := Request{Query: "how do I renew my KITAS", Principal: p, TopK: 3}

	first, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if first.CacheHit {
		t.Error("first call should not be a cache hit")
	}

	second, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if !second.CacheHit {
		t.Error("identical repeated query should be served from the semantic cache")
	}
}

type recordingReranker struct {
	called bool
}

func (r *recordingReranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	r.called = true
	// Reverse the order to make the effect observable.
	out := make([]Result, len(results))
	for i, res := range results {
		out[len(results)-1-i] = res
	}
	return out, nil
}

func TestEngine_RerankOnlyRunsForEnabledTiers(t *testing.T) {
	provider := &stubProvider{name: "visa_docs", matches: matchesWithParents(5, "r")}
	reranker := &recordingReranker{}
	e, err := NewEngine(EngineConfig{
		Providers:          map[string]vector.Provider{"visa_docs": provider},
		Embedder:           stubEmbedder{},
		Reranker:           reranker,
		RerankEnabledTiers: map[string]bool{"deep": true},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	p := principal.Principal{Role: principal.RoleAdmin}

	_, err = e.Search(context.Background(), Request{Query: "fast tier query here", Principal: p, Tier: "fast", TopK: 3})
	if err != nil {
		t.Fatalf("Search (fast): %v", err)
	}
	if reranker.called {
		t.Error("reranker should not run for a tier not listed in RerankEnabledTiers")
	}

	_, err = e.Search(context.Background(), Request{Query: "deep tier query here", Principal: p, Tier: "deep", TopK: 3})
	if err != nil {
		t.Fatalf("Search (deep): %v", err)
	}
	if !reranker.called {
		t.Error("reranker should run for a tier listed in RerankEnabledTiers")
	}
}
