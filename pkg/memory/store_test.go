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
	"database/sql"
	"testing"

	"github.com/nuzantara/core/pkg/errs"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewSQLStore(db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store
}

func TestSQLStore_AppendAndLoadHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.EnsureSession(ctx, "s1", "p1"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	msgs := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	if err := store.AppendMessages(ctx, "s1", "p1", msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	history, err := store.LoadHistory(ctx, "s1", "p1", 0)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi there" {
		t.Errorf("history out of order: %+v", history)
	}
	if history[0].Ordinal != 0 || history[1].Ordinal != 1 {
		t.Errorf("unexpected ordinals: %d, %d", history[0].Ordinal, history[1].Ordinal)
	}
}

func TestSQLStore_LoadHistory_LimitReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.EnsureSession(ctx, "s1", "p1")
	for i := 0; i < 5; i++ {
		if err := store.AppendMessages(ctx, "s1", "p1", []Message{{Role: RoleUser, Content: "m"}}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	history, err := store.LoadHistory(ctx, "s1", "p1", 2)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Ordinal != 3 || history[1].Ordinal != 4 {
		t.Errorf("expected the last two ordinals (3,4), got %d,%d", history[0].Ordinal, history[1].Ordinal)
	}
}

func TestSQLStore_CrossPrincipalIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.EnsureSession(ctx, "s1", "owner"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}

	_, err := store.LoadHistory(ctx, "s1", "intruder", 0)
	if err == nil {
		t.Fatal("expected an authorization error for a mismatched principal, got nil")
	}
	if !errs.Is(err, errs.ErrAuthorization) {
		t.Errorf("expected ErrAuthorization, got %v", err)
	}
}

func TestSQLStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.EnsureSession(ctx, "s1", "p1")

	snap := Snapshot{
		EntityBudget:   Entity{Kind: EntityBudget, Value: "5000 usd", Confidence: 0.6},
		EntityLocation: Entity{Kind: EntityLocation, Value: "bali", Confidence: 0.8},
	}
	if err := store.SaveSnapshot(ctx, "s1", "p1", snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len(loaded) = %d, want 2", len(loaded))
	}
	if loaded[EntityBudget].Value != "5000 usd" {
		t.Errorf("budget = %+v, want value 5000 usd", loaded[EntityBudget])
	}
	if loaded[EntityLocation].Value != "bali" {
		t.Errorf("location = %+v, want value bali", loaded[EntityLocation])
	}
}

func TestNewSQLStore_RejectsUnsupportedDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if _, err := NewSQLStore(db, "oracle"); err == nil {
		t.Fatal("expected an error for an unsupported dialect")
	}
}

func TestNewSQLStore_RejectsNilDB(t *testing.T) {
	if _, err := NewSQLStore(nil, "sqlite"); err == nil {
		t.Fatal("expected an error for a nil database handle")
	}
}
