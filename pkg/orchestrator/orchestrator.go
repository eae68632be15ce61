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

// Package orchestrator implements component C4: a bounded ReAct loop
// over the LLM gateway and tool executor, with a per-tier iteration
// cap as the primary termination mechanism (not a rarely-hit safety
// backstop, see pkg/router.MaxIterations), an explicit state machine,
// reasoning-leak stripping on the finalized answer, and an
// out-of-domain refusal policy.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/llm"
	"github.com/nuzantara/core/pkg/memory"
	"github.com/nuzantara/core/pkg/principal"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/tool"
)

// State is a node of the per-turn state machine.
type State string

const (
	StateInit       State = "INIT"
	StatePlanning   State = "PLANNING"
	StateToolRun    State = "TOOL_RUNNING"
	StateObserving  State = "OBSERVING"
	StateFinalizing State = "FINALIZING"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
	StateCancelled  State = "CANCELLED"
)

// EventKind identifies a gateway-facing streaming event emitted during
// a turn.
type EventKind string

const (
	EventStatus    EventKind = "status"
	EventToolStart EventKind = "tool_start"
	EventToolEnd   EventKind = "tool_end"
	EventChunk     EventKind = "chunk"
	EventSources   EventKind = "sources"
	EventDone      EventKind = "done"
	EventError     EventKind = "error"
)

// Event is one item the orchestrator yields for the gateway to
// translate into an SSE event.
type Event struct {
	Kind    EventKind
	Phase   State
	Detail  string
	Tool    string
	Args    map[string]any
	Outcome string
	Content string
	Sources []retrieval.Result
}

// Turn carries everything one orchestrator invocation needs.
type Turn struct {
	SessionID        string
	Principal        principal.Principal
	Query            string
	Tier             string
	MaxIterations    int
	Language         string
	SystemPrompt     string
	History          []llm.Message
	RetrievalResults []retrieval.Result
	Domain           string
	EntitySnapshot   memory.Snapshot
}

// buildSystemPrompt assembles the per-call system instruction: the
// caller-supplied persona/guardrails/domain framing plus a rendered
// entity snapshot (spec §4.4 step 1: "system + compressed history +
// entity snapshot + running step trace + tool schema"). The entity
// snapshot is appended as plain facts, never as instructions, so it
// cannot itself carry injected directives.
func buildSystemPrompt(turn Turn) string {
	facts := renderSnapshot(turn.EntitySnapshot)
	if facts == "" {
		return turn.SystemPrompt
	}
	if turn.SystemPrompt == "" {
		return "Known about this user so far:\n" + facts
	}
	return turn.SystemPrompt + "\n\nKnown about this user so far:\n" + facts
}

// renderSnapshot formats a Snapshot as a stable, sorted fact list.
func renderSnapshot(snap memory.Snapshot) string {
	if len(snap) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(snap))
	for k := range snap {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var b strings.Builder
	for _, k := range kinds {
		e := snap[memory.EntityKind(k)]
		fmt.Fprintf(&b, "- %s: %s\n", k, e.Value)
	}
	return b.String()
}

// Orchestrator drives the ReAct loop.
type Orchestrator struct {
	gateway  *llm.Gateway
	tools    *tool.Registry
	timeout  time.Duration
}

// New builds an Orchestrator. timeout bounds the whole turn; a tool's
// own per-call timeout (configured on the Registry) always applies in
// addition.
func New(gateway *llm.Gateway, tools *tool.Registry, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{gateway: gateway, tools: tools, timeout: timeout}
}

// Run executes the bounded ReAct loop for turn, yielding Events as the
// gateway should stream them. It never returns a Go error for
// recoverable conditions — those surface as an EventError item — so
// the caller can always finalize the SSE stream cleanly.
func (o *Orchestrator) Run(ctx context.Context, principalSessionID string, turn Turn) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		if turn.MaxIterations == 0 {
			// Greeting tier: no reasoning loop, just a direct reply.
			messages := append([]llm.Message(nil), turn.History...)
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Query})
			o.finalize(ctx, turn, messages, yield)
			return
		}

		if len(turn.RetrievalResults) == 0 && len(o.toolDefinitions()) == 0 {
			if !yield(&Event{Kind: EventChunk, Phase: StateFinalizing, Content: outOfDomainReply(turn)}, nil) {
				return
			}
			yield(&Event{Kind: EventDone, Phase: StateDone}, nil)
			return
		}

		messages := append([]llm.Message(nil), turn.History...)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Query})

		state := StatePlanning
		for iteration := 0; iteration < turn.MaxIterations; iteration++ {
			if ctx.Err() != nil {
				yield(&Event{Kind: EventStatus, Phase: StateCancelled, Detail: ctx.Err().Error()}, nil)
				return
			}
			if !yield(&Event{Kind: EventStatus, Phase: state, Detail: fmt.Sprintf("iteration %d", iteration+1)}, nil) {
				return
			}

			req := &llm.Request{
				Messages:          messages,
				SystemInstruction: buildSystemPrompt(turn),
				Tools:             o.toolDefinitions(),
			}

			var resp *llm.Response
			for r, err := range o.gateway.Generate(ctx, turn.Tier, req, false) {
				if err != nil {
					if errs.Is(err, errs.ErrCancelled) {
						yield(&Event{Kind: EventStatus, Phase: StateCancelled}, nil)
						return
					}
					yield(&Event{Kind: EventError, Phase: StateError, Detail: err.Error()}, err)
					return
				}
				resp = r
			}
			if resp == nil {
				yield(&Event{Kind: EventError, Phase: StateError, Detail: "llm gateway returned no response"}, nil)
				return
			}

			if len(resp.ToolCalls) == 0 {
				o.finishTurn(ctx, turn, resp.Content, yield)
				return
			}

			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
			state = StateToolRun

			for _, call := range resp.ToolCalls {
				if !yield(&Event{Kind: EventToolStart, Phase: StateToolRun, Tool: call.Name, Args: call.Args}, nil) {
					return
				}

				toolCtx := tool.Context{Context: ctx, CallID: call.ID, SessionID: turn.SessionID, Principal: turn.Principal}
				result, err := o.tools.Call(toolCtx, turn.Principal, turn.SessionID, call.ID, call.Name, call.Args)

				outcome := "ok"
				observation := tool.ToolResult{ToolCallID: call.ID}
				if err != nil {
					outcome = "error"
					observation.Error = err.Error()
					slog.WarnContext(ctx, "orchestrator: tool call failed", "tool", call.Name, "error", err)
				} else {
					observation.Content = fmt.Sprintf("%v", result)
				}

				if !yield(&Event{Kind: EventToolEnd, Phase: StateObserving, Tool: call.Name, Outcome: outcome}, nil) {
					return
				}

				messages = append(messages, llm.Message{Role: llm.RoleTool, Content: observation.Content, ToolCallID: call.ID})
			}

			state = StatePlanning
		}

		// Iteration cap reached: finalize with whatever we have.
		o.finalize(ctx, turn, messages, yield)
	}
}

func (o *Orchestrator) toolDefinitions() []tool.Definition {
	if o.tools == nil {
		return nil
	}
	return o.tools.Definitions()
}

// finalize issues one last non-tool generation call to produce a
// FinalAnswer when the iteration cap was reached without one.
func (o *Orchestrator) finalize(ctx context.Context, turn Turn, messages []llm.Message, yield func(*Event, error) bool) {
	req := &llm.Request{
		Messages:          append(append([]llm.Message(nil), messages...), llm.Message{Role: llm.RoleUser, Content: "Answer the user directly now, using only what you already know from this conversation."}),
		SystemInstruction: buildSystemPrompt(turn),
	}

	var content string
	for resp, err := range o.gateway.Generate(ctx, turn.Tier, req, false) {
		if err != nil {
			yield(&Event{Kind: EventError, Phase: StateError, Detail: err.Error()}, err)
			return
		}
		content = resp.Content
	}
	o.finishTurn(ctx, turn, content, yield)
}

// finishTurn applies the output post-filter, recovers a degenerate
// answer, and emits the closing chunk/sources/done events.
func (o *Orchestrator) finishTurn(ctx context.Context, turn Turn, raw string, yield func(*Event, error) bool) {
	filtered := StripReasoningLeaks(raw)

	if isDegenerate(filtered) {
		if turn.Tier == "fast" || turn.Tier == "pro" {
			filtered = retrievalOnlyAnswer(turn.RetrievalResults)
		}
		if isDegenerate(filtered) {
			filtered = outOfDomainReply(turn)
		}
	}

	if !yield(&Event{Kind: EventChunk, Phase: StateFinalizing, Content: filtered}, nil) {
		return
	}
	if !yield(&Event{Kind: EventSources, Phase: StateFinalizing, Sources: turn.RetrievalResults}, nil) {
		return
	}
	yield(&Event{Kind: EventDone, Phase: StateDone}, nil)
}

// isDegenerate reports whether text is too short to be a real answer
// (spec's "<N non-whitespace characters" recovery trigger, N=10).
func isDegenerate(text string) bool {
	count := 0
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			count++
		}
	}
	return count < 10
}

func retrievalOnlyAnswer(results []retrieval.Result) string {
	if len(results) == 0 {
		return ""
	}
	best := results[0]
	return best.Chunk.Text
}

func outOfDomainReply(turn Turn) string {
	domain := turn.Domain
	if domain == "" {
		domain = "visa, tax, and company-setup questions"
	}
	return fmt.Sprintf("I don't have that information — I can help with %s.", domain)
}
