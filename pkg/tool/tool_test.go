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

package tool

import (
	"testing"

	"github.com/nuzantara/core/pkg/principal"
)

type stubTool struct {
	name string
}

func (s stubTool) Name() string              { return s.name }
func (s stubTool) Description() string       { return "stub tool " + s.name }
func (s stubTool) IsLongRunning() bool       { return false }
func (s stubTool) RequiresApproval() bool    { return false }
func (s stubTool) Schema() map[string]any    { return map[string]any{"type": "object"} }
func (s stubTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func TestToDefinition(t *testing.T) {
	def := ToDefinition(stubTool{name: "pricing_lookup"})
	if def.Name != "pricing_lookup" {
		t.Errorf("Name = %q, want pricing_lookup", def.Name)
	}
	if def.Description == "" {
		t.Error("Description should not be empty")
	}
	if def.Parameters == nil {
		t.Error("Parameters should be populated from Schema()")
	}
}

func TestStringPredicate(t *testing.T) {
	pred := StringPredicate([]string{"a", "b"})
	staff := principal.Principal{ID: "s1", Role: principal.RoleStaff}

	if !pred(staff, stubTool{name: "a"}) {
		t.Error("expected allowed tool \"a\" to pass")
	}
	if pred(staff, stubTool{name: "c"}) {
		t.Error("expected non-listed tool \"c\" to be rejected")
	}
}

func TestPredicateCombinators(t *testing.T) {
	p := principal.Principal{ID: "u1", Role: principal.RoleCustomer}
	tl := stubTool{name: "pricing_lookup"}

	if !AllowAll()(p, tl) {
		t.Error("AllowAll should always allow")
	}
	if DenyAll()(p, tl) {
		t.Error("DenyAll should always deny")
	}

	onlyPricing := StringPredicate([]string{"pricing_lookup"})
	onlyOther := StringPredicate([]string{"other_tool"})

	if !Combine(AllowAll(), onlyPricing)(p, tl) {
		t.Error("Combine(AllowAll, onlyPricing) should allow pricing_lookup")
	}
	if Combine(onlyOther, onlyPricing)(p, tl) {
		t.Error("Combine should deny when any predicate rejects")
	}
	if !Or(onlyOther, onlyPricing)(p, tl) {
		t.Error("Or should allow when any predicate accepts")
	}
	if Or(onlyOther, DenyAll())(p, tl) {
		t.Error("Or should deny when every predicate rejects")
	}
	if !Not(onlyOther)(p, tl) {
		t.Error("Not(onlyOther) should allow pricing_lookup")
	}
}
