// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"strings"
	"testing"
)

func makeMessages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{Role: RoleUser, Content: "msg", Ordinal: int64(i)}
	}
	return out
}

func TestBufferWindowStrategy_FilterMessages(t *testing.T) {
	s := NewBufferWindowStrategy(3)
	msgs := makeMessages(5)
	filtered := s.FilterMessages(msgs)
	if len(filtered) != 3 {
		t.Fatalf("len(filtered) = %d, want 3", len(filtered))
	}
	if filtered[0].Ordinal != 2 {
		t.Errorf("expected window to start at ordinal 2, got %d", filtered[0].Ordinal)
	}
}

func TestBufferWindowStrategy_DefaultsWhenNonPositive(t *testing.T) {
	s := NewBufferWindowStrategy(0)
	msgs := makeMessages(25)
	filtered := s.FilterMessages(msgs)
	if len(filtered) != 20 {
		t.Fatalf("len(filtered) = %d, want default window 20", len(filtered))
	}
}

func TestBufferWindowStrategy_NeverSummarizes(t *testing.T) {
	s := NewBufferWindowStrategy(3)
	summary, err := s.CheckAndSummarize(context.Background(), makeMessages(10))
	if err != nil || summary != nil {
		t.Errorf("CheckAndSummarize() = %v, %v; want nil, nil", summary, err)
	}
}

func TestTokenWindowStrategy_FilterMessages(t *testing.T) {
	count := func(text string) int { return len(text) }
	s := NewTokenWindowStrategy(10, count)
	msgs := []Message{
		{Content: "12345"},
		{Content: "12345"},
		{Content: "12345"},
	}
	filtered := s.FilterMessages(msgs)
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2 (last 10 tokens worth)", len(filtered))
	}
}

func TestSummaryBufferStrategy_SummarizesOnlyOverBudget(t *testing.T) {
	count := func(text string) int { return len(text) }
	called := false
	summarize := func(ctx context.Context, msgs []Message) (string, error) {
		called = true
		return "condensed", nil
	}
	s := NewSummaryBufferStrategy(5, 2, count, summarize)

	// Under budget: no summary.
	short := makeMessages(1)
	summary, err := s.CheckAndSummarize(context.Background(), short)
	if err != nil {
		t.Fatalf("CheckAndSummarize: %v", err)
	}
	if summary != nil || called {
		t.Errorf("expected no summarization under budget, got %+v, called=%v", summary, called)
	}

	// Over budget: summary produced.
	long := []Message{
		{Content: "aaaaaaaaaa"},
		{Content: "bbbbbbbbbb"},
		{Content: "cccccccccc"},
		{Content: "dddddddddd"},
	}
	summary, err = s.CheckAndSummarize(context.Background(), long)
	if err != nil {
		t.Fatalf("CheckAndSummarize: %v", err)
	}
	if summary == nil {
		t.Fatal("expected a summary message when over budget")
	}
	if !called {
		t.Error("expected the summarizer to have been invoked")
	}
	if summary.Role != RoleSystem {
		t.Errorf("summary.Role = %v, want RoleSystem", summary.Role)
	}
	if !strings.Contains(summary.Content, "condensed") {
		t.Errorf("summary.Content = %q, want it to contain the summarizer's output", summary.Content)
	}
}

func TestSummaryBufferStrategy_FilterKeepsRecentOnly(t *testing.T) {
	s := NewSummaryBufferStrategy(100, 2, nil, nil)
	filtered := s.FilterMessages(makeMessages(5))
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
}

func TestNilWorkingMemory_PassesThrough(t *testing.T) {
	var s NilWorkingMemory
	msgs := makeMessages(3)
	if got := s.FilterMessages(msgs); len(got) != 3 {
		t.Errorf("FilterMessages altered the slice: got %d messages, want 3", len(got))
	}
	summary, err := s.CheckAndSummarize(context.Background(), msgs)
	if err != nil || summary != nil {
		t.Errorf("CheckAndSummarize() = %v, %v; want nil, nil", summary, err)
	}
}
