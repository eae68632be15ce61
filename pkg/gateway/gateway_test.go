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

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nuzantara/core/pkg/evidence"
	"github.com/nuzantara/core/pkg/llm"
	"github.com/nuzantara/core/pkg/orchestrator"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/retry"
	"github.com/nuzantara/core/pkg/router"
	"github.com/nuzantara/core/pkg/vector"
)

type scriptedProvider struct {
	content string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) GenerateContent(ctx context.Context, req *llm.Request, stream bool) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		yield(&llm.Response{Content: p.content}, nil)
	}
}

func (p *scriptedProvider) Close() error { return nil }

func newTestOrchestrator(answer string) *orchestrator.Orchestrator {
	gw := llm.NewGateway(llm.CascadeConfig{
		Default: []llm.Provider{&scriptedProvider{content: answer}},
		Retry:   retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	return orchestrator.New(gw, nil, time.Second)
}

type stubVectorProvider struct {
	matches []vector.Result
}

func (p *stubVectorProvider) Name() string { return "stub" }
func (p *stubVectorProvider) Upsert(ctx context.Context, collection, id string, v []float32, metadata map[string]any) error {
	return nil
}
func (p *stubVectorProvider) Search(ctx context.Context, collection string, v []float32, topK int) ([]vector.Result, error) {
	return p.matches, nil
}
func (p *stubVectorProvider) SearchWithFilter(ctx context.Context, collection string, v []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	return p.matches, nil
}
func (p *stubVectorProvider) Delete(ctx context.Context, collection, id string) error { return nil }
func (p *stubVectorProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return nil
}
func (p *stubVectorProvider) CreateCollection(ctx context.Context, collection string, dim int) error {
	return nil
}
func (p *stubVectorProvider) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}
func (p *stubVectorProvider) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()
	var cfg router.Config
	cfg.SetDefaults()
	r, err := router.New(cfg)
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	return r
}

func newTestEngine(t *testing.T, matches []vector.Result) *retrieval.Engine {
	t.Helper()
	e, err := retrieval.NewEngine(retrieval.EngineConfig{
		Providers: map[string]vector.Provider{"visa_docs": &stubVectorProvider{matches: matches}},
		Embedder:  stubEmbedder{},
	})
	if err != nil {
		t.Fatalf("retrieval.NewEngine: %v", err)
	}
	return e
}

func parseSSE(body string) []string {
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "event: ") {
				events = append(events, strings.TrimPrefix(line, "event: "))
			}
		}
	}
	return events
}

func TestHandleQuery_StreamsAndTerminatesWithDone(t *testing.T) {
	matches := []vector.Result{
		{ID: "c1", Score: 0.9, Content: "A KITAS renewal requires a sponsor letter and takes fourteen business days.", Metadata: map[string]any{"parent_id": "p1"}},
	}
	s := New(Config{
		Router:       newTestRouter(t),
		Retrieval:    newTestEngine(t, matches),
		Orchestrator: newTestOrchestrator("A KITAS renewal requires a sponsor letter and takes fourteen business days."),
		Evidence:     evidence.NewPipeline(nil, nil),
	})

	body, _ := json.Marshal(queryRequest{SessionID: "s1", Query: "How do I renew my KITAS?"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("X-Principal-ID", "u1")
	req.Header.Set("X-Principal-Role", "admin")
	rec := httptest.NewRecorder()

	s.Routes("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	events := parseSSE(rec.Body.String())
	if len(events) == 0 || events[len(events)-1] != "done" {
		t.Fatalf("expected the stream to terminate with a done event, got: %v", events)
	}

	var sawChunk, sawSources bool
	for _, e := range events {
		if e == "chunk" {
			sawChunk = true
		}
		if e == "sources" {
			sawSources = true
		}
	}
	if !sawChunk {
		t.Error("expected at least one chunk event")
	}
	if !sawSources {
		t.Error("expected a sources event carrying citations")
	}

	if !strings.Contains(rec.Body.String(), "c1") && !strings.Contains(rec.Body.String(), "chunk_id") {
		t.Error("expected the sources event to contain citation data bound to the retrieved chunk")
	}
}

func TestHandleQuery_CustomerDeniedUnauthorizedCollectionYieldsNoRetrieval(t *testing.T) {
	matches := []vector.Result{
		{ID: "c1", Score: 0.9, Content: "Staff-only internal pricing notes.", Metadata: map[string]any{"parent_id": "p1"}},
	}
	s := New(Config{
		Router:       newTestRouter(t),
		Retrieval:    newTestEngine(t, matches),
		Orchestrator: newTestOrchestrator("General information about visas."),
		Evidence:     evidence.NewPipeline(nil, nil),
	})

	body, _ := json.Marshal(queryRequest{SessionID: "s1", Query: "How do I renew my KITAS?"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	// No X-Principal-Role header: defaults to customer with no allowed
	// collections, so the authorized visa_docs provider must not be
	// queried despite the router selecting it for this query.
	req.Header.Set("X-Principal-ID", "u2")
	rec := httptest.NewRecorder()

	s.Routes("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Staff-only internal pricing notes") {
		t.Error("unauthorized principal must not receive content from a collection it cannot access")
	}
}

func TestHandleQuery_RejectsMissingFields(t *testing.T) {
	s := New(Config{Router: newTestRouter(t), Orchestrator: newTestOrchestrator("n/a")})

	body, _ := json.Marshal(queryRequest{SessionID: "", Query: ""})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Routes("").ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a request missing session_id/query", rec.Code)
	}
}

func TestHandleHistory_RequiresConversationMemory(t *testing.T) {
	s := New(Config{Router: newTestRouter(t), Orchestrator: newTestOrchestrator("n/a")})

	req := httptest.NewRequest(http.MethodGet, "/history?session_id=s1", nil)
	rec := httptest.NewRecorder()

	s.Routes("").ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when no conversation store is configured", rec.Code)
	}
}

func TestHandleHealthz_OKWithNoRetrievalConfigured(t *testing.T) {
	s := New(Config{Router: newTestRouter(t), Orchestrator: newTestOrchestrator("n/a")})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Routes("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
