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

import "testing"

func TestHeuristicExtractor_Extract(t *testing.T) {
	e := NewHeuristicExtractor()

	tests := []struct {
		name    string
		content string
		want    EntityKind
	}{
		{"budget", "my budget is around 5000 usd", EntityBudget},
		{"location", "I'm looking to move to Bali", EntityLocation},
		{"visa", "I need a KITAS for this", EntityVisaType},
		{"company", "we'll set up a PT PMA", EntityCompanyType},
		{"timeline", "this is urgent, need it asap", EntityTimeline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := e.Extract(Message{Role: RoleUser, Content: tt.content, ID: "m1"})
			found := false
			for _, ent := range entities {
				if ent.Kind == tt.want {
					found = true
					if ent.SourceMessageID != "m1" {
						t.Errorf("SourceMessageID = %q, want m1", ent.SourceMessageID)
					}
				}
			}
			if !found {
				t.Errorf("Extract(%q) did not produce a %s entity; got %+v", tt.content, tt.want, entities)
			}
		})
	}
}

func TestHeuristicExtractor_IgnoresNonUserMessages(t *testing.T) {
	e := NewHeuristicExtractor()
	entities := e.Extract(Message{Role: RoleAssistant, Content: "your budget of 5000 usd works"})
	if len(entities) != 0 {
		t.Errorf("expected no entities from a non-user message, got %+v", entities)
	}
}

func TestHeuristicExtractor_NoMatchReturnsEmpty(t *testing.T) {
	e := NewHeuristicExtractor()
	entities := e.Extract(Message{Role: RoleUser, Content: "just saying hello"})
	if len(entities) != 0 {
		t.Errorf("expected no entities, got %+v", entities)
	}
}

func TestSnapshot_MergePrefersHigherOrEqualConfidence(t *testing.T) {
	snap := Snapshot{
		EntityBudget: Entity{Kind: EntityBudget, Value: "1000", Confidence: 0.5},
	}

	merged := snap.Merge(Entity{Kind: EntityBudget, Value: "2000", Confidence: 0.3})
	if merged[EntityBudget].Value != "1000" {
		t.Errorf("lower-confidence entity should not replace the existing one: got %+v", merged[EntityBudget])
	}

	merged = snap.Merge(Entity{Kind: EntityBudget, Value: "2000", Confidence: 0.5})
	if merged[EntityBudget].Value != "2000" {
		t.Errorf("equal-confidence entity should replace the existing one: got %+v", merged[EntityBudget])
	}

	// Original snapshot must be untouched by Merge.
	if snap[EntityBudget].Value != "1000" {
		t.Errorf("Merge must not mutate the receiver, got %+v", snap[EntityBudget])
	}
}

func TestSnapshot_Clone(t *testing.T) {
	snap := Snapshot{EntityBudget: Entity{Kind: EntityBudget, Value: "1000"}}
	clone := snap.Clone()
	clone[EntityBudget] = Entity{Kind: EntityBudget, Value: "mutated"}
	if snap[EntityBudget].Value != "1000" {
		t.Errorf("mutating the clone affected the original: %+v", snap[EntityBudget])
	}
}
