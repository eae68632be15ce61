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
	"sync"
	"testing"
)

func TestConversation_AppendTurnThenLoadHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv := NewConversation(store, NewHeuristicExtractor(), NewBufferWindowStrategy(10))

	if err := conv.AppendTurn(ctx, "s1", "p1", "my budget is around 5000 usd", "Noted, thanks."); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	turn, err := conv.LoadHistory(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(turn.History) != 2 {
		t.Fatalf("len(turn.History) = %d, want 2", len(turn.History))
	}
	if turn.History[0].Role != RoleUser || turn.History[1].Role != RoleAssistant {
		t.Errorf("unexpected role ordering: %+v", turn.History)
	}
	if _, ok := turn.Snapshot[EntityBudget]; !ok {
		t.Errorf("expected a budget entity to have been extracted and merged, got %+v", turn.Snapshot)
	}
	if len(turn.Windowed) != len(turn.History) {
		t.Errorf("window should pass through when under window size: got %d, want %d", len(turn.Windowed), len(turn.History))
	}
}

func TestConversation_NilDependenciesFallBackToNoOps(t *testing.T) {
	store := newTestStore(t)
	conv := NewConversation(store, nil, nil)

	ctx := context.Background()
	if err := conv.AppendTurn(ctx, "s1", "p1", "hello", "hi"); err != nil {
		t.Fatalf("AppendTurn with nil extractor/working strategy: %v", err)
	}
	if conv.WorkingMemory().Name() != "none" {
		t.Errorf("expected the nil working-memory fallback, got %q", conv.WorkingMemory().Name())
	}
}

func TestConversation_AppendTurnIsSerializedPerSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv := NewConversation(store, NewHeuristicExtractor(), NewBufferWindowStrategy(100))

	const turns = 20
	var wg sync.WaitGroup
	wg.Add(turns)
	for i := 0; i < turns; i++ {
		go func() {
			defer wg.Done()
			if err := conv.AppendTurn(ctx, "shared-session", "p1", "hello", "hi"); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	turn, err := conv.LoadHistory(ctx, "shared-session", "p1")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(turn.History) != turns*2 {
		t.Errorf("len(turn.History) = %d, want %d (no lost or duplicated writes)", len(turn.History), turns*2)
	}
}
