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

// Package gateway implements component C1: the external HTTP surface.
// POST /query (aliased at /api/chat/stream) streams a turn as
// server-sent events; GET /history returns persisted session history;
// GET /healthz reports retrieval-backend health; metrics are exposed
// at the configured Prometheus endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nuzantara/core/pkg/evidence"
	"github.com/nuzantara/core/pkg/llm"
	"github.com/nuzantara/core/pkg/memory"
	"github.com/nuzantara/core/pkg/observability"
	"github.com/nuzantara/core/pkg/orchestrator"
	"github.com/nuzantara/core/pkg/principal"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/router"
)

// Server wires the request/response lifecycle across C1-C8: route →
// load history → retrieve → orchestrate (ReAct loop) → evidence
// pipeline → persist → stream.
type Server struct {
	router       *router.Router
	conversation *memory.Conversation
	retrieval    *retrieval.Engine
	orchestrator *orchestrator.Orchestrator
	evidence     *evidence.Pipeline
	metrics      *observability.Metrics
	turnTimeout  time.Duration
	domain       string
	systemPrompt string
}

// Config bundles the components a Server wires together.
type Config struct {
	Router       *router.Router
	Conversation *memory.Conversation
	Retrieval    *retrieval.Engine
	Orchestrator *orchestrator.Orchestrator
	Evidence     *evidence.Pipeline
	Metrics      *observability.Metrics
	TurnTimeout  time.Duration

	// Domain names what this deployment can answer about, surfaced in
	// the orchestrator's out-of-domain refusal ("I can help with
	// {domain}").
	Domain string

	// SystemPrompt is the persona/guardrails/domain framing prefixed
	// to every orchestrator call, ahead of the rendered entity
	// snapshot (spec §4.4 step 1).
	SystemPrompt string
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 90 * time.Second
	}
	if cfg.Domain == "" {
		cfg.Domain = "Indonesian visas, tax, and company setup"
	}
	return &Server{
		router:       cfg.Router,
		conversation: cfg.Conversation,
		retrieval:    cfg.Retrieval,
		orchestrator: cfg.Orchestrator,
		evidence:     cfg.Evidence,
		metrics:      cfg.Metrics,
		turnTimeout:  cfg.TurnTimeout,
		domain:       cfg.Domain,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Routes builds the chi router exposing the external interface.
func (s *Server) Routes(metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Post("/query", s.handleQuery)
	r.Post("/api/chat/stream", s.handleQuery)
	r.Get("/history", s.handleHistory)
	r.Get("/healthz", s.handleHealthz)

	if s.metrics != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, s.metrics.Handler())
	}

	return r
}

type queryRequest struct {
	SessionID string            `json:"session_id"`
	Query     string            `json:"query"`
	Hints     map[string]string `json:"hints,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Query == "" {
		http.Error(w, "session_id and query are required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()

	p := principalFromRequest(r)
	decision := s.router.Route(req.Query)

	var history []llm.Message
	var retrievalResults []retrieval.Result
	var snapshot memory.Snapshot

	if s.conversation != nil {
		loaded, err := s.conversation.LoadHistory(ctx, req.SessionID, p.ID)
		if err != nil {
			writeSSE(w, flusher, "error", map[string]string{"detail": err.Error()})
			return
		}
		snapshot = loaded.Snapshot
		for _, m := range loaded.Windowed {
			role := llm.RoleUser
			if m.Role == memory.RoleAssistant {
				role = llm.RoleAssistant
			} else if m.Role == memory.RoleSystem {
				role = llm.RoleSystem
			}
			history = append(history, llm.Message{Role: role, Content: m.Content})
		}
	}

	if s.retrieval != nil && len(decision.Collections) > 0 {
		resp, err := s.retrieval.Search(ctx, retrieval.Request{
			Query:       req.Query,
			Collections: decision.Collections,
			Principal:   p,
			Tier:        string(decision.Tier),
		})
		if err == nil {
			retrievalResults = resp.Results
		}
	}

	writeSSE(w, flusher, "status", map[string]string{"phase": "planning"})

	turn := orchestrator.Turn{
		SessionID:        req.SessionID,
		Principal:        p,
		Query:            req.Query,
		Tier:             string(decision.Tier),
		MaxIterations:    decision.MaxIterations,
		Language:         orchestrator.DetectLanguage(req.Query),
		SystemPrompt:     s.systemPrompt,
		History:          history,
		RetrievalResults: retrievalResults,
		Domain:           s.domain,
		EntitySnapshot:   snapshot,
	}

	var finalAnswer string
	var sources []retrieval.Result

	for ev, err := range s.orchestrator.Run(ctx, req.SessionID, turn) {
		if err != nil {
			writeSSE(w, flusher, "error", map[string]string{"detail": err.Error()})
			return
		}
		switch ev.Kind {
		case orchestrator.EventStatus:
			writeSSE(w, flusher, "status", map[string]string{"phase": string(ev.Phase), "detail": ev.Detail})
		case orchestrator.EventToolStart:
			writeSSE(w, flusher, "tool_start", map[string]any{"name": ev.Tool, "args": ev.Args})
		case orchestrator.EventToolEnd:
			writeSSE(w, flusher, "tool_end", map[string]any{"name": ev.Tool, "outcome": ev.Outcome})
		case orchestrator.EventChunk:
			finalAnswer = ev.Content
			writeSSE(w, flusher, "chunk", map[string]string{"text": ev.Content})
		case orchestrator.EventSources:
			sources = ev.Sources
		case orchestrator.EventDone:
			// handled after the loop
		}
	}

	queryClass := classFromHints(req.Hints)
	var citations []evidence.Citation
	verificationScore := 0.0
	persistedAnswer := finalAnswer
	if s.evidence != nil {
		out, err := s.evidence.Run(ctx, finalAnswer, sources, queryClass, nil)
		if err != nil {
			// Redaction failed: the turn is not persisted, so an
			// unredacted answer is never stored.
			persistedAnswer = ""
		} else {
			finalAnswer = out.RedactedAnswer
			persistedAnswer = out.PersistedAnswer
			citations = out.Citations
			verificationScore = out.VerificationScore
			if s.metrics != nil {
				s.metrics.RecordVerificationScore(string(queryClass), verificationScore)
			}
		}
	}

	writeSSE(w, flusher, "sources", map[string]any{"citations": citations, "verification_score": verificationScore})

	if s.conversation != nil && persistedAnswer != "" {
		_ = s.conversation.AppendTurn(ctx, req.SessionID, p.ID, req.Query, persistedAnswer)
	}

	writeSSE(w, flusher, "done", map[string]string{})
}

func classFromHints(hints map[string]string) evidence.QueryClass {
	if hints == nil {
		return evidence.ClassGeneral
	}
	switch evidence.QueryClass(hints["query_class"]) {
	case evidence.ClassVisa, evidence.ClassTax, evidence.ClassCompanySetup:
		return evidence.QueryClass(hints["query_class"])
	default:
		return evidence.ClassGeneral
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if s.conversation == nil {
		http.Error(w, "conversation memory not configured", http.StatusServiceUnavailable)
		return
	}

	p := principalFromRequest(r)
	turn, err := s.conversation.LoadHistory(r.Context(), sessionID, p.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"history":  turn.History,
		"snapshot": turn.Snapshot,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.retrieval == nil {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}
	status := s.retrieval.Status(r.Context())
	_ = json.NewEncoder(w).Encode(status)
}

// principalFromRequest extracts the caller's principal. Authentication
// itself (JWT/API-key validation) is out of scope here; this reads
// whatever an upstream auth middleware has already attached to the
// request headers, following the teacher's header-forwarding pattern
// in pkg/auth.
func principalFromRequest(r *http.Request) principal.Principal {
	id := r.Header.Get("X-Principal-ID")
	if id == "" {
		id = "anonymous"
	}
	role := principal.Role(r.Header.Get("X-Principal-Role"))
	if role == "" {
		role = principal.RoleCustomer
	}
	return principal.Principal{ID: id, Role: role}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{"detail":"encode error"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// loggingMiddleware wraps the response writer so http.Flusher still
// works for the SSE endpoints — do not swap in chi's own
// middleware.Logger response wrapper here, it does not forward Flush.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start), r.ContentLength, int64(wrapped.size))
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
