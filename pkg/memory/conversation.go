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
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Conversation is component C3: session-scoped ordered history plus an
// entity snapshot, with per-session serialization so concurrent turns
// for the same session never interleave their read-modify-write of
// history or entities (spec §5).
type Conversation struct {
	store     Store
	extractor EntityExtractor
	working   WorkingMemoryStrategy

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewConversation wires a Store, EntityExtractor, and
// WorkingMemoryStrategy into the C3 component. A nil extractor falls
// back to the HeuristicExtractor; a nil working strategy falls back to
// the no-op NilWorkingMemory.
func NewConversation(store Store, extractor EntityExtractor, working WorkingMemoryStrategy) *Conversation {
	if extractor == nil {
		extractor = NewHeuristicExtractor()
	}
	if working == nil {
		working = NilWorkingMemory{}
	}
	return &Conversation{
		store:     store,
		extractor: extractor,
		working:   working,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (c *Conversation) WorkingMemory() WorkingMemoryStrategy { return c.working }

func (c *Conversation) sessionLock(sessionID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[sessionID] = l
	}
	return l
}

// Turn is the bundle of history, snapshot, and window the orchestrator
// needs to assemble a prompt for the next reasoning cycle.
type Turn struct {
	History  []Message
	Snapshot Snapshot
	Windowed []Message
}

// LoadHistory returns the session's full ordered history (oldest
// first), the working-memory-filtered window of it, and the current
// entity snapshot. This is load_history + the windowing half of the
// context-assembly step (spec §4.3/§4.4).
func (c *Conversation) LoadHistory(ctx context.Context, sessionID, principalID string) (Turn, error) {
	if err := c.store.EnsureSession(ctx, sessionID, principalID); err != nil {
		return Turn{}, err
	}
	history, err := c.store.LoadHistory(ctx, sessionID, principalID, 0)
	if err != nil {
		return Turn{}, err
	}
	snap, err := c.store.LoadSnapshot(ctx, sessionID, principalID)
	if err != nil {
		return Turn{}, err
	}
	return Turn{
		History:  history,
		Snapshot: snap,
		Windowed: c.working.FilterMessages(history),
	}, nil
}

// AppendTurn persists a user message and the assistant's final answer
// for it as a single atomic batch, extracts and merges entities from
// the user message, and triggers summarization at most once for the
// whole turn — never once per message, which would create the
// summarize-on-every-append loop the batch API exists to avoid.
func (c *Conversation) AppendTurn(ctx context.Context, sessionID, principalID, userText, assistantText string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.EnsureSession(ctx, sessionID, principalID); err != nil {
		return err
	}

	userMsg := Message{ID: uuid.NewString(), SessionID: sessionID, Role: RoleUser, Content: userText}
	assistantMsg := Message{ID: uuid.NewString(), SessionID: sessionID, Role: RoleAssistant, Content: assistantText}

	if err := c.store.AppendMessages(ctx, sessionID, principalID, []Message{userMsg, assistantMsg}); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if entities := c.extractor.Extract(userMsg); len(entities) > 0 {
		snap, err := c.store.LoadSnapshot(ctx, sessionID, principalID)
		if err != nil {
			return fmt.Errorf("load snapshot for merge: %w", err)
		}
		merged := snap.Merge(entities...)
		if err := c.store.SaveSnapshot(ctx, sessionID, principalID, merged); err != nil {
			return fmt.Errorf("save merged snapshot: %w", err)
		}
	}

	history, err := c.store.LoadHistory(ctx, sessionID, principalID, 0)
	if err != nil {
		return fmt.Errorf("reload history for summarization check: %w", err)
	}
	summary, err := c.working.CheckAndSummarize(ctx, history)
	if err != nil {
		slog.Warn("memory: summarization failed, continuing without it", "session_id", sessionID, "error", err)
		return nil
	}
	if summary != nil {
		summary.ID = uuid.NewString()
		summary.SessionID = sessionID
		if err := c.store.AppendMessages(ctx, sessionID, principalID, []Message{*summary}); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
	}
	return nil
}
