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

package main

import (
	"fmt"
	"time"

	"github.com/nuzantara/core/pkg/builder"
	"github.com/nuzantara/core/pkg/config"
	"github.com/nuzantara/core/pkg/embedder"
	"github.com/nuzantara/core/pkg/evidence"
	"github.com/nuzantara/core/pkg/gateway"
	"github.com/nuzantara/core/pkg/llm"
	"github.com/nuzantara/core/pkg/memory"
	"github.com/nuzantara/core/pkg/observability"
	"github.com/nuzantara/core/pkg/orchestrator"
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/router"
	"github.com/nuzantara/core/pkg/tool"
	"github.com/nuzantara/core/pkg/tool/builtin"
	"github.com/nuzantara/core/pkg/vector"
)

// app bundles the constructed components plus anything main needs to
// close on shutdown.
type app struct {
	server  *gateway.Server
	metrics *observability.Metrics
	dbPool  *config.DBPool
}

// build wires components C1-C8 from cfg following the teacher's
// sequential-construction idiom (cmd/hector/main.go): resolve live
// objects (vector providers, embedders, LLM providers) from the
// declarative config, then build each component on top of the last.
func build(cfg *config.Config) (*app, error) {
	n := cfg.Nuzantara

	dbPool := config.NewDBPool()

	var metrics *observability.Metrics
	if cfg.Server.Observability != nil && cfg.Server.Observability.Metrics.Enabled {
		m, err := observability.NewMetrics(&cfg.Server.Observability.Metrics)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = m
	}

	vectorProviders, err := buildVectorProviders(cfg, n)
	if err != nil {
		return nil, fmt.Errorf("vector providers: %w", err)
	}

	embedders, err := buildEmbedders(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedders: %w", err)
	}

	retrievalEngine, err := buildRetrievalEngine(n, vectorProviders, embedders)
	if err != nil {
		return nil, fmt.Errorf("retrieval engine: %w", err)
	}

	llmGateway, err := buildLLMGateway(cfg, n)
	if err != nil {
		return nil, fmt.Errorf("llm gateway: %w", err)
	}

	rtr, err := router.New(*n.Router)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	toolRegistry, err := buildToolRegistry(cfg, retrievalEngine, dbPool)
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}

	turnTimeout := 90 * time.Second
	if n.Limits != nil && n.Limits.TurnTimeout != "" {
		if d, err := time.ParseDuration(n.Limits.TurnTimeout); err == nil {
			turnTimeout = d
		}
	}

	orch := orchestrator.New(llmGateway, toolRegistry, turnTimeout)

	conversation, err := buildConversation(cfg, n, dbPool)
	if err != nil {
		return nil, fmt.Errorf("conversation memory: %w", err)
	}

	var redactor *evidence.Redactor
	if n.PII != nil && n.PII.IsEnabled() {
		patterns := evidence.DefaultPatterns()
		for i := range patterns {
			if n.PII.Placeholder != "" {
				patterns[i].Placeholder = n.PII.Placeholder
			}
		}
		redactor = evidence.NewRedactor(patterns)
	}
	pipeline := evidence.NewPipeline(evidence.DefaultTemplates(), redactor)

	srv := gateway.New(gateway.Config{
		Router:       rtr,
		Conversation: conversation,
		Retrieval:    retrievalEngine,
		Orchestrator: orch,
		Evidence:     pipeline,
		Metrics:      metrics,
		TurnTimeout:  turnTimeout,
	})

	return &app{server: srv, metrics: metrics, dbPool: dbPool}, nil
}

func buildVectorProviders(cfg *config.Config, n config.NuzantaraConfig) (map[string]vector.Provider, error) {
	resolved := make(map[string]vector.Provider, len(n.Collections))
	built := make(map[string]vector.Provider, len(cfg.VectorStores))
	for collName, coll := range n.Collections {
		if coll.VectorStore == "" {
			continue
		}
		if p, ok := built[coll.VectorStore]; ok {
			resolved[collName] = p
			continue
		}
		vsCfg, ok := cfg.VectorStores[coll.VectorStore]
		if !ok {
			return nil, fmt.Errorf("collection %q references unknown vector_store %q", collName, coll.VectorStore)
		}
		p, err := vectorProviderFromConfig(vsCfg)
		if err != nil {
			return nil, fmt.Errorf("vector_store %q: %w", coll.VectorStore, err)
		}
		built[coll.VectorStore] = p
		resolved[collName] = p
	}
	return resolved, nil
}

// vectorProviderFromConfig adapts the teacher's declarative
// VectorStoreConfig into a live vector.Provider using the builder
// package's fluent constructor (pkg/builder/vector.go).
func vectorProviderFromConfig(vs *config.VectorStoreConfig) (vector.Provider, error) {
	vs.SetDefaults()
	b := builder.NewVectorProvider(vs.Type).
		PersistPath(vs.PersistPath).
		Compress(vs.Compress).
		Host(vs.Host).
		Port(vs.Port).
		APIKey(vs.APIKey).
		IndexName(vs.IndexName)
	if vs.EnableTLS != nil {
		b = b.UseTLS(*vs.EnableTLS)
	}
	return b.Build()
}

func buildEmbedders(cfg *config.Config) (map[string]embedder.Embedder, error) {
	out := make(map[string]embedder.Embedder, len(cfg.Embedders))
	for name, ec := range cfg.Embedders {
		e, err := builder.EmbedderFromConfig(ec).Build()
		if err != nil {
			return nil, fmt.Errorf("embedder %q: %w", name, err)
		}
		out[name] = e
	}
	return out, nil
}

func buildRetrievalEngine(n config.NuzantaraConfig, vectorProviders map[string]vector.Provider, embedders map[string]embedder.Embedder) (*retrieval.Engine, error) {
	if len(vectorProviders) == 0 {
		return nil, nil
	}

	var queryEmbedder embedder.Embedder
	for _, coll := range n.Collections {
		if coll.Embedder == "" {
			continue
		}
		if e, ok := embedders[coll.Embedder]; ok {
			queryEmbedder = e
			break
		}
	}
	if queryEmbedder == nil {
		return nil, fmt.Errorf("no embedder resolved for any configured collection")
	}

	cacheTTL := 5 * time.Minute
	rerankTiers := map[string]bool{}
	parentTopM := 5
	fetchMultiplier := 3
	if n.Retrieval != nil {
		if d, err := time.ParseDuration(n.Retrieval.CacheTTL); err == nil {
			cacheTTL = d
		}
		for _, t := range n.Retrieval.RerankEnabledTiers {
			rerankTiers[t] = true
		}
		if n.Retrieval.ParentExpansionTopM > 0 {
			parentTopM = n.Retrieval.ParentExpansionTopM
		}
		if n.Retrieval.FetchMultiplier > 0 {
			fetchMultiplier = n.Retrieval.FetchMultiplier
		}
	}

	return retrieval.NewEngine(retrieval.EngineConfig{
		Providers:           vectorProviders,
		Embedder:            queryEmbedder,
		RerankEnabledTiers:  rerankTiers,
		CacheTTL:            cacheTTL,
		ParentExpansionTopM: parentTopM,
		FetchMultiplier:     fetchMultiplier,
	})
}

func buildLLMGateway(cfg *config.Config, n config.NuzantaraConfig) (*llm.Gateway, error) {
	providers := make(map[string]llm.Provider, len(cfg.LLMs))
	for name, lc := range cfg.LLMs {
		p, err := llmProviderFromConfig(lc)
		if err != nil {
			return nil, fmt.Errorf("llm %q: %w", name, err)
		}
		providers[name] = p
	}

	resolve := func(names []string) []llm.Provider {
		var out []llm.Provider
		for _, name := range names {
			if p, ok := providers[name]; ok {
				out = append(out, p)
			}
		}
		return out
	}

	cascade := llm.CascadeConfig{
		Providers: make(map[string][]llm.Provider),
	}
	if n.LLMCascade != nil {
		for tier, names := range n.LLMCascade.Tiers {
			cascade.Providers[tier] = resolve(names)
		}
		cascade.Default = resolve(n.LLMCascade.Default)
	}
	if len(cascade.Default) == 0 {
		for _, p := range providers {
			cascade.Default = append(cascade.Default, p)
		}
	}

	return llm.NewGateway(cascade), nil
}

// llmProviderFromConfig adapts the teacher's declarative LLMConfig
// into a live llm.Provider. Only anthropic and ollama are implemented
// on the C7 cascade; any other configured provider returns an
// "unsupported llm provider" error, which fails startup.
func llmProviderFromConfig(lc *config.LLMConfig) (llm.Provider, error) {
	lc.SetDefaults()
	var temperature float64 = 0.7
	if lc.Temperature != nil {
		temperature = *lc.Temperature
	}
	switch lc.Provider {
	case config.LLMProviderAnthropic:
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:      lc.APIKey,
			Model:       lc.Model,
			Host:        lc.BaseURL,
			Temperature: temperature,
			MaxTokens:   lc.MaxTokens,
		})
	case config.LLMProviderOllama:
		return llm.NewOllamaProvider(llm.OllamaConfig{
			Host:        lc.BaseURL,
			Model:       lc.Model,
			Temperature: temperature,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", lc.Provider)
	}
}

func buildToolRegistry(cfg *config.Config, engine *retrieval.Engine, dbPool *config.DBPool) (*tool.Registry, error) {
	var tools []tool.CallableTool
	if engine != nil {
		tools = append(tools, builtin.NewVectorSearchTool(engine), builtin.NewDiagnosticsTool(engine))
	}
	if dbCfg, ok := cfg.Databases["crm"]; ok {
		db, err := dbPool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("crm database: %w", err)
		}
		tools = append(tools, builtin.NewPricingLookupTool(db), builtin.NewTeamLookupTool(db))
	}
	return tool.NewRegistry(10*time.Second, tools...)
}

func buildConversation(cfg *config.Config, n config.NuzantaraConfig, dbPool *config.DBPool) (*memory.Conversation, error) {
	if n.ConversationMemory == nil || n.ConversationMemory.Database == "" {
		return nil, nil
	}
	dbCfg, ok := cfg.Databases[n.ConversationMemory.Database]
	if !ok {
		return nil, fmt.Errorf("memory references unknown database %q", n.ConversationMemory.Database)
	}
	db, err := dbPool.Get(dbCfg)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewSQLStore(db, dbCfg.Dialect())
	if err != nil {
		return nil, err
	}

	windowSize := 20
	if n.ConversationMemory.HistoryWindowSize > 0 {
		windowSize = n.ConversationMemory.HistoryWindowSize
	}
	working := memory.NewBufferWindowStrategy(windowSize)

	return memory.NewConversation(store, memory.NewHeuristicExtractor(), working), nil
}
