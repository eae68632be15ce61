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

package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/retry"
)

// CascadeConfig configures a Gateway's provider ordering per router
// tier, along with the retry behavior applied to each provider before
// the cascade falls through to the next one.
type CascadeConfig struct {
	// Providers maps a router.Tier name to an ordered list of
	// providers, first-preference first. A tier not present here
	// falls back to Default.
	Providers map[string][]Provider
	// Default is used for any tier with no entry in Providers.
	Default []Provider
	// Retry governs same-provider retry attempts on
	// errs.ErrModelTransient before the cascade advances to the next
	// provider. Zero value uses retry.DefaultConfig().
	Retry retry.Config
}

// Gateway is component C7: a tier-aware fallback cascade across LLM
// providers. It advances to the next configured provider on a
// transient failure and aborts the whole request on a terminal one,
// mirroring the teacher's Retryer-driven retry idiom (pkg/rag/retry.go)
// applied across providers instead of within a single one.
type Gateway struct {
	cfg     CascadeConfig
	retryer *retry.Retryer
}

// NewGateway builds a Gateway from cfg.
func NewGateway(cfg CascadeConfig) *Gateway {
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	// errs.ErrModelTransient is always retryable regardless of the
	// wrapped message text, since it is our own classification signal
	// rather than a raw provider error string.
	cfg.Retry.RetryableErrors = append(cfg.Retry.RetryableErrors, errs.ErrModelTransient.Error())
	return &Gateway{cfg: cfg, retryer: retry.New(cfg.Retry)}
}

func (g *Gateway) providersFor(tier string) []Provider {
	if p, ok := g.cfg.Providers[tier]; ok && len(p) > 0 {
		return p
	}
	return g.cfg.Default
}

// Generate runs req against the provider cascade configured for tier,
// retrying each provider per cfg.Retry on transient failures and
// falling through to the next provider when retries are exhausted.
// A terminal failure aborts the whole cascade immediately: it signals
// a request the model itself rejected (bad input, auth, etc.), which
// no amount of provider-hopping fixes.
func (g *Gateway) Generate(ctx context.Context, tier string, req *Request, stream bool) iter.Seq2[*Response, error] {
	providers := g.providersFor(tier)
	return func(yield func(*Response, error) bool) {
		if len(providers) == 0 {
			yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: no providers configured for tier "+tier, nil))
			return
		}

		var lastErr error
		for i, provider := range providers {
			yielded, terminal, err := g.runWithRetry(ctx, provider, req, stream, yield)
			if yielded {
				return
			}
			if terminal {
				yield(nil, err)
				return
			}
			lastErr = err
			slog.WarnContext(ctx, "llm gateway: provider exhausted, falling through",
				"provider", provider.Name(), "tier", tier, "attempt", i+1, "of", len(providers), "error", err)
		}
		yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: all providers in cascade exhausted", lastErr))
	}
}

// runWithRetry drives provider through up to cfg.Retry.MaxRetries+1
// attempts. It returns yielded=true once any Response has been handed
// to the caller's yield (success no longer falls through on a later
// mid-stream error), terminal=true if the provider returned
// errs.ErrModelTerminal (cascade must abort), and the last error seen
// otherwise so the caller can log it before advancing.
func (g *Gateway) runWithRetry(ctx context.Context, provider Provider, req *Request, stream bool, yield func(*Response, error) bool) (yielded bool, terminal bool, lastErr error) {
	attempt := func() error {
		first := true
		for resp, err := range provider.GenerateContent(ctx, req, stream) {
			if err != nil {
				if first {
					return err
				}
				// A provider failed mid-stream after already yielding
				// partial content: we cannot silently retry without
				// duplicating output the caller already saw, so the
				// failure surfaces as-is.
				yield(nil, err)
				yielded = true
				return nil
			}
			first = false
			yielded = true
			if !yield(resp, nil) {
				return nil
			}
		}
		return nil
	}

	err := g.retryer.Do(ctx, "llm.generate:"+provider.Name(), func() error {
		if yielded {
			// A previous attempt already streamed partial content to
			// the caller; do not re-invoke the provider from scratch.
			return nil
		}
		return attempt()
	})

	if err == nil {
		return yielded, false, nil
	}

	if errors.Is(err, errs.ErrModelTerminal) {
		return yielded, true, err
	}
	return yielded, false, err
}
