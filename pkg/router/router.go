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

// Package router implements component C2: classifying an incoming
// query into a processing tier and selecting the collections and model
// tier that tier should use. There is no tier-classification precedent
// in the teacher repository; this package follows its registry/
// config-driven dispatch idiom (see pkg/agent/agent_router.go) applied
// to a new concern.
package router

import (
	"log/slog"
	"regexp"
	"strings"
)

// Tier is the processing depth assigned to a query.
type Tier string

const (
	TierGreeting Tier = "greeting"
	TierFast     Tier = "fast"
	TierPro      Tier = "pro"
	TierDeep     Tier = "deep"
)

// MaxIterations is the bounded ReAct iteration cap per tier (spec
// §4.4). This is the PRIMARY termination mechanism for the
// orchestrator's loop, not a rarely-hit safety backstop — a deliberate
// departure from the teacher's ReasoningConfig.MaxIterations=100
// "safety limit, not primary control" philosophy, required because
// spec.md treats the cap as load-bearing for latency/cost control per
// tier.
var MaxIterations = map[Tier]int{
	TierGreeting: 0,
	TierFast:     2,
	TierPro:      4,
	TierDeep:     6,
}

// Config drives classification. Loaded from the ambient configuration
// stack (pkg/config).
type Config struct {
	GreetingPatterns []string          `yaml:"greeting_patterns"`
	TopicCollections map[string][]string `yaml:"topic_collections"` // topic keyword -> collections
	TopicTier        map[string]Tier   `yaml:"topic_tier"`          // topic keyword -> tier
	DefaultTier      Tier              `yaml:"default_tier"`
	DefaultCollections []string        `yaml:"default_collections"`
}

// SetDefaults fills a Config with the business defaults for this
// domain (visa/tax/company-setup topics) when the operator config is
// silent on them.
func (c *Config) SetDefaults() {
	if len(c.GreetingPatterns) == 0 {
		c.GreetingPatterns = []string{
			`(?i)^\s*(hi|hello|hey|halo|hai|ciao|good (morning|afternoon|evening))\b`,
			`(?i)\b(thanks|thank you|grazie|terima kasih|makasih)\b`,
			`(?i)^\s*(bye|goodbye|arrivederci|see you|ok(ay)?|got it)\s*[!.]*\s*$`,
		}
	}
	if c.DefaultTier == "" {
		c.DefaultTier = TierPro
	}
	if len(c.TopicCollections) == 0 {
		c.TopicCollections = map[string][]string{
			"visa":    {"visa_docs"},
			"kitas":   {"visa_docs"},
			"tax":     {"tax_docs"},
			"pajak":   {"tax_docs"},
			"company": {"company_setup_docs"},
			"pt pma":  {"company_setup_docs"},
		}
	}
	if len(c.TopicTier) == 0 {
		c.TopicTier = map[string]Tier{
			"visa":    TierFast,
			"kitas":   TierFast,
			"tax":     TierPro,
			"pajak":   TierPro,
			"company": TierPro,
			"pt pma":  TierDeep,
		}
	}
}

// Decision is the outcome of routing a query (spec data model: Route
// Decision).
type Decision struct {
	Tier            Tier
	Collections     []string
	MaxIterations   int
	MatchedCue      string
	AmbiguousDefault bool
}

// Router classifies queries into tiers.
type Router struct {
	cfg      Config
	greeting []*regexp.Regexp
}

// New compiles a Router from cfg. cfg.SetDefaults should be called
// beforehand by the caller (following the teacher's config-struct
// convention of explicit SetDefaults/Validate steps).
func New(cfg Config) (*Router, error) {
	r := &Router{cfg: cfg}
	for _, p := range cfg.GreetingPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		r.greeting = append(r.greeting, re)
	}
	return r, nil
}

// Route classifies query and returns the tier/collection decision.
// Ambiguous input — nothing matched — defaults to pro rather than
// greeting, per spec.md §4.2's failure-mode requirement (silently
// under-routing a substantive question to the greeting fast-path would
// produce an empty answer).
func (r *Router) Route(query string) Decision {
	trimmed := strings.TrimSpace(query)

	for _, re := range r.greeting {
		if re.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 6 {
			d := Decision{Tier: TierGreeting, MaxIterations: MaxIterations[TierGreeting], MatchedCue: "greeting_pattern"}
			slog.Debug("router: classified", "tier", d.Tier, "cue", d.MatchedCue)
			return d
		}
	}

	lower := strings.ToLower(trimmed)
	var bestTier Tier
	var bestCue string
	var collections []string
	for cue, tier := range r.cfg.TopicTier {
		if strings.Contains(lower, cue) {
			if bestCue == "" || tierPrecedence(tier) > tierPrecedence(bestTier) {
				bestTier = tier
				bestCue = cue
				collections = r.cfg.TopicCollections[cue]
			}
		}
	}

	if bestCue == "" {
		d := Decision{
			Tier:             r.cfg.DefaultTier,
			Collections:      r.cfg.DefaultCollections,
			MaxIterations:    MaxIterations[r.cfg.DefaultTier],
			AmbiguousDefault: true,
		}
		slog.Debug("router: classified", "tier", d.Tier, "cue", "ambiguous_default")
		return d
	}

	d := Decision{
		Tier:          bestTier,
		Collections:   collections,
		MaxIterations: MaxIterations[bestTier],
		MatchedCue:    bestCue,
	}
	slog.Debug("router: classified", "tier", d.Tier, "cue", d.MatchedCue)
	return d
}

// tierPrecedence breaks ties between multiple matched topic cues by
// preferring the deeper tier — an ambiguous query spanning a fast-tier
// and a deep-tier cue should get the deeper treatment, not the
// cheaper one.
func tierPrecedence(t Tier) int {
	switch t {
	case TierDeep:
		return 3
	case TierPro:
		return 2
	case TierFast:
		return 1
	default:
		return 0
	}
}
