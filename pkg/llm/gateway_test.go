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
	"testing"
	"time"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/retry"
)

// fakeProvider returns a fixed sequence of (Response, error) pairs,
// recording how many times GenerateContent is invoked.
type fakeProvider struct {
	name  string
	seq   [][2]any // each entry is (*Response, error)
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error] {
	f.calls++
	return func(yield func(*Response, error) bool) {
		for _, pair := range f.seq {
			resp, _ := pair[0].(*Response)
			err, _ := pair[1].(error)
			if !yield(resp, err) {
				return
			}
		}
	}
}

func (f *fakeProvider) Close() error { return nil }

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func drain(seq iter.Seq2[*Response, error]) ([]*Response, error) {
	var out []*Response
	var lastErr error
	for resp, err := range seq {
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, resp)
	}
	return out, lastErr
}

func TestGateway_SuccessOnFirstProvider(t *testing.T) {
	p := &fakeProvider{name: "p1", seq: [][2]any{{&Response{Content: "hi"}, nil}}}
	gw := NewGateway(CascadeConfig{Default: []Provider{p}, Retry: fastRetry()})

	resps, err := drain(gw.Generate(context.Background(), "", &Request{}, false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resps) != 1 || resps[0].Content != "hi" {
		t.Errorf("resps = %+v, want one response with Content=hi", resps)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestGateway_FallsThroughOnTransientFailure(t *testing.T) {
	failing := &fakeProvider{name: "failing", seq: [][2]any{{nil, errs.ErrModelTransient}}}
	working := &fakeProvider{name: "working", seq: [][2]any{{&Response{Content: "ok"}, nil}}}
	gw := NewGateway(CascadeConfig{Default: []Provider{failing, working}, Retry: fastRetry()})

	resps, err := drain(gw.Generate(context.Background(), "", &Request{}, false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resps) != 1 || resps[0].Content != "ok" {
		t.Errorf("resps = %+v, want fallthrough to the working provider", resps)
	}
}

func TestGateway_AbortsCascadeOnTerminalFailure(t *testing.T) {
	failing := &fakeProvider{name: "failing", seq: [][2]any{{nil, errs.ErrModelTerminal}}}
	working := &fakeProvider{name: "working", seq: [][2]any{{&Response{Content: "ok"}, nil}}}
	gw := NewGateway(CascadeConfig{Default: []Provider{failing, working}, Retry: fastRetry()})

	_, err := drain(gw.Generate(context.Background(), "", &Request{}, false))
	if err == nil {
		t.Fatal("expected a terminal error to abort the cascade")
	}
	if !errors.Is(err, errs.ErrModelTerminal) {
		t.Errorf("expected ErrModelTerminal, got %v", err)
	}
	if working.calls != 0 {
		t.Errorf("working provider should never be tried after a terminal failure, calls=%d", working.calls)
	}
}

func TestGateway_AllProvidersExhaustedReturnsTransient(t *testing.T) {
	p1 := &fakeProvider{name: "p1", seq: [][2]any{{nil, errs.ErrModelTransient}}}
	p2 := &fakeProvider{name: "p2", seq: [][2]any{{nil, errs.ErrModelTransient}}}
	gw := NewGateway(CascadeConfig{Default: []Provider{p1, p2}, Retry: fastRetry()})

	_, err := drain(gw.Generate(context.Background(), "", &Request{}, false))
	if err == nil {
		t.Fatal("expected an error when every provider in the cascade is exhausted")
	}
	if !errors.Is(err, errs.ErrModelTransient) {
		t.Errorf("expected ErrModelTransient, got %v", err)
	}
}

func TestGateway_TierSpecificProvidersOverrideDefault(t *testing.T) {
	deep := &fakeProvider{name: "deep", seq: [][2]any{{&Response{Content: "deep-answer"}, nil}}}
	fallback := &fakeProvider{name: "fallback", seq: [][2]any{{&Response{Content: "fallback-answer"}, nil}}}
	gw := NewGateway(CascadeConfig{
		Providers: map[string][]Provider{"deep": {deep}},
		Default:   []Provider{fallback},
		Retry:     fastRetry(),
	})

	resps, err := drain(gw.Generate(context.Background(), "deep", &Request{}, false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resps) != 1 || resps[0].Content != "deep-answer" {
		t.Errorf("resps = %+v, want the tier-specific provider's response", resps)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback provider should not be used when the tier has its own entry, calls=%d", fallback.calls)
	}
}

func TestGateway_NoProvidersConfiguredIsTerminal(t *testing.T) {
	gw := NewGateway(CascadeConfig{Retry: fastRetry()})
	_, err := drain(gw.Generate(context.Background(), "unknown-tier", &Request{}, false))
	if err == nil {
		t.Fatal("expected an error when no providers are configured")
	}
	if !errors.Is(err, errs.ErrModelTerminal) {
		t.Errorf("expected ErrModelTerminal, got %v", err)
	}
}
