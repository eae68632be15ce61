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

package orchestrator

import (
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/nuzantara/core/pkg/llm"
	"github.com/nuzantara/core/pkg/memory"
	"github.com/nuzantara/core/pkg/principal"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/retry"
	"github.com/nuzantara/core/pkg/tool"
)

// scriptedProvider returns one fixed Response per call, in order, and
// records the requests it was invoked with.
type scriptedProvider struct {
	responses []*llm.Response
	call      int
	requests  []*llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) GenerateContent(ctx context.Context, req *llm.Request, stream bool) iter.Seq2[*llm.Response, error] {
	p.requests = append(p.requests, req)
	idx := p.call
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.call++
	resp := p.responses[idx]
	return func(yield func(*llm.Response, error) bool) {
		yield(resp, nil)
	}
}

func (p *scriptedProvider) Close() error { return nil }

func newTestGateway(p llm.Provider) *llm.Gateway {
	return llm.NewGateway(llm.CascadeConfig{
		Default: []llm.Provider{p},
		Retry:   retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
}

func collectEvents(seq iter.Seq2[*Event, error]) []*Event {
	var out []*Event
	for ev, err := range seq {
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func TestOrchestrator_GreetingTierSkipsReasoningAndIncludesQuery(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{{Content: "Ciao! Come posso aiutarti?"}}}
	gw := newTestGateway(p)
	o := New(gw, nil, time.Second)

	turn := Turn{
		SessionID:     "s1",
		Query:         "ciao",
		Tier:          "greeting",
		MaxIterations: 0,
	}

	events := collectEvents(o.Run(context.Background(), "s1", turn))

	toolStarts := 0
	for _, ev := range events {
		if ev.Kind == EventToolStart {
			toolStarts++
		}
	}
	if toolStarts != 0 {
		t.Errorf("greeting turn triggered %d tool calls, want 0", toolStarts)
	}
	if len(p.requests) != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", len(p.requests))
	}
	last := p.requests[0].Messages[len(p.requests[0].Messages)-1]
	if last.Role != llm.RoleUser || last.Content != "ciao" {
		t.Errorf("final request did not include the user's query: %+v", last)
	}
}

func TestOrchestrator_OutOfDomainRefusalWhenNoRetrievalAndNoTools(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{{Content: "should not be called"}}}
	gw := newTestGateway(p)
	o := New(gw, nil, time.Second)

	turn := Turn{
		SessionID:     "s1",
		Query:         "What's the capital of Mars?",
		Tier:          "pro",
		MaxIterations: 4,
		Domain:        "Indonesian visas, tax, and company setup",
	}

	events := collectEvents(o.Run(context.Background(), "s1", turn))
	if len(p.requests) != 0 {
		t.Errorf("expected the gateway never to be called for an out-of-domain refusal, got %d calls", len(p.requests))
	}

	var gotChunk, gotDone bool
	for _, ev := range events {
		if ev.Kind == EventChunk {
			gotChunk = true
			if ev.Content == "" {
				t.Error("expected a non-empty refusal message")
			}
		}
		if ev.Kind == EventDone {
			gotDone = true
		}
	}
	if !gotChunk || !gotDone {
		t.Errorf("expected a chunk and a done event, got: %+v", events)
	}
}

func TestOrchestrator_ProceedsWhenRetrievalResultsPresent(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{{Content: "Here is your answer about KITAS renewal."}}}
	gw := newTestGateway(p)
	o := New(gw, nil, time.Second)

	turn := Turn{
		SessionID:        "s1",
		Query:            "How do I renew my KITAS?",
		Tier:             "fast",
		MaxIterations:    2,
		RetrievalResults: []retrieval.Result{{Chunk: retrieval.Chunk{ID: "c1", Text: "KITAS renewal takes 14 days."}}},
	}

	events := collectEvents(o.Run(context.Background(), "s1", turn))
	if len(p.requests) == 0 {
		t.Fatal("expected the gateway to be invoked when retrieval produced results")
	}

	var sawDone bool
	for _, ev := range events {
		if ev.Kind == EventDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("expected the turn to terminate with a done event")
	}
}

func TestOrchestrator_ToolCallLoop(t *testing.T) {
	toolCall := tool.ToolCall{ID: "call-1", Name: "pricing_lookup", Args: map[string]any{"service": "kitas"}}
	p := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []tool.ToolCall{toolCall}},
		{Content: "Based on the lookup, it costs $500."},
	}}
	gw := newTestGateway(p)

	stub := &stubCallableTool{name: "pricing_lookup", result: map[string]any{"price": 500}}
	reg, err := tool.NewRegistry(time.Second, stub)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	o := New(gw, reg, time.Second)

	turn := Turn{
		SessionID:     "s1",
		Principal:     principal.Principal{ID: "u1", Role: principal.RoleCustomer},
		Query:         "How much does a KITAS cost?",
		Tier:          "fast",
		MaxIterations: 2,
	}

	events := collectEvents(o.Run(context.Background(), "s1", turn))

	var sawToolStart, sawToolEnd bool
	for _, ev := range events {
		if ev.Kind == EventToolStart && ev.Tool == "pricing_lookup" {
			sawToolStart = true
		}
		if ev.Kind == EventToolEnd && ev.Tool == "pricing_lookup" {
			sawToolEnd = true
		}
	}
	if !sawToolStart || !sawToolEnd {
		t.Errorf("expected tool_start/tool_end events for the tool call, got: %+v", events)
	}
	if stub.calls != 1 {
		t.Errorf("tool invoked %d times, want 1", stub.calls)
	}
}

func TestOrchestrator_EntitySnapshotReachesSystemPrompt(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{{Content: "Ciao Marco!"}}}
	gw := newTestGateway(p)
	o := New(gw, nil, time.Second)

	turn := Turn{
		SessionID:     "s1",
		Query:         "Quanto costa un KITAS?",
		Tier:          "fast",
		MaxIterations: 2,
		SystemPrompt:  "You are the assistant persona.",
		RetrievalResults: []retrieval.Result{
			{Chunk: retrieval.Chunk{ID: "c1", Text: "info"}},
		},
		EntitySnapshot: memory.Snapshot{
			memory.EntityName: {Kind: memory.EntityName, Value: "Marco"},
		},
	}

	collectEvents(o.Run(context.Background(), "s1", turn))

	if len(p.requests) == 0 {
		t.Fatal("expected at least one LLM call")
	}
	sysPrompt := p.requests[0].SystemInstruction
	if !strings.Contains(sysPrompt, "You are the assistant persona.") || !strings.Contains(sysPrompt, "name: Marco") {
		t.Errorf("system prompt missing persona or entity snapshot: %q", sysPrompt)
	}
}

type stubCallableTool struct {
	name   string
	result map[string]any
	calls  int
}

func (s *stubCallableTool) Name() string              { return s.name }
func (s *stubCallableTool) Description() string       { return "stub" }
func (s *stubCallableTool) IsLongRunning() bool        { return false }
func (s *stubCallableTool) RequiresApproval() bool     { return false }
func (s *stubCallableTool) Schema() map[string]any     { return nil }
func (s *stubCallableTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	s.calls++
	return s.result, nil
}
