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

package router

import "testing"

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	var cfg Config
	cfg.SetDefaults()
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRoute_GreetingPatterns(t *testing.T) {
	r := newTestRouter(t)

	cases := []string{
		"hi",
		"hello there",
		"ciao",
		"thanks",
		"thank you so much",
		"grazie",
		"ok",
		"bye",
	}
	for _, q := range cases {
		d := r.Route(q)
		if d.Tier != TierGreeting {
			t.Errorf("Route(%q) = tier %q, want %q", q, d.Tier, TierGreeting)
		}
		if d.MaxIterations != 0 {
			t.Errorf("Route(%q) MaxIterations = %d, want 0", q, d.MaxIterations)
		}
	}
}

func TestRoute_TopicTiers(t *testing.T) {
	r := newTestRouter(t)

	d := r.Route("How do I apply for a KITAS?")
	if d.Tier != TierFast {
		t.Errorf("kitas query tier = %q, want %q", d.Tier, TierFast)
	}
	if len(d.Collections) == 0 || d.Collections[0] != "visa_docs" {
		t.Errorf("kitas query collections = %v, want [visa_docs]", d.Collections)
	}

	d = r.Route("What are the requirements for a PT PMA company?")
	if d.Tier != TierDeep {
		t.Errorf("pt pma query tier = %q, want %q", d.Tier, TierDeep)
	}
}

func TestRoute_TiePrecedencePrefersDeeperTier(t *testing.T) {
	r := newTestRouter(t)

	// Mentions both a fast-tier cue (visa) and a deep-tier cue (pt pma).
	d := r.Route("I need a visa for my PT PMA company employees")
	if d.Tier != TierDeep {
		t.Errorf("mixed-cue query tier = %q, want %q (deeper cue should win)", d.Tier, TierDeep)
	}
}

func TestRoute_AmbiguousDefaultsToProNotGreeting(t *testing.T) {
	r := newTestRouter(t)

	d := r.Route("What's the weather like in Bali this weekend?")
	if d.Tier != TierPro {
		t.Errorf("ambiguous query tier = %q, want %q", d.Tier, TierPro)
	}
	if !d.AmbiguousDefault {
		t.Error("expected AmbiguousDefault = true for unmatched query")
	}
}

func TestRoute_LongGreetingLikeSentenceIsNotGreeting(t *testing.T) {
	r := newTestRouter(t)

	// Starts with "hi" but is really a substantive question; the
	// token-count brevity test should keep this out of the greeting tier.
	d := r.Route("hi, I was wondering if you could walk me through the full KITAS renewal process in detail")
	if d.Tier == TierGreeting {
		t.Error("long question starting with a greeting word should not route to greeting tier")
	}
}
