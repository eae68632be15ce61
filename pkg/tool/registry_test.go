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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/principal"
)

type schemaTool struct {
	name    string
	schema  map[string]any
	calls   int
	err     error
	lastCtx Context
}

func (s *schemaTool) Name() string           { return s.name }
func (s *schemaTool) Description() string    { return "schema tool" }
func (s *schemaTool) IsLongRunning() bool    { return false }
func (s *schemaTool) RequiresApproval() bool { return false }
func (s *schemaTool) Schema() map[string]any { return s.schema }
func (s *schemaTool) Call(ctx Context, args map[string]any) (map[string]any, error) {
	s.calls++
	s.lastCtx = ctx
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"echo": args}, nil
}

func requiredStringSchema(field string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{field},
		"properties": map[string]any{
			field: map[string]any{"type": "string"},
		},
	}
}

func TestNewRegistry_DuplicateNameRejected(t *testing.T) {
	a := &schemaTool{name: "dup"}
	b := &schemaTool{name: "dup"}
	_, err := NewRegistry(time.Second, a, b)
	if err == nil {
		t.Fatal("expected an error registering two tools with the same name")
	}
}

func TestRegistry_DefinitionsReflectsRegisteredTools(t *testing.T) {
	a := &schemaTool{name: "a"}
	b := &schemaTool{name: "b"}
	reg, err := NewRegistry(time.Second, a, b)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defs := reg.Definitions()
	if len(defs) != 2 {
		t.Fatalf("Definitions() returned %d entries, want 2", len(defs))
	}
}

func TestRegistry_CallUnknownTool(t *testing.T) {
	reg, err := NewRegistry(time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p := principal.Principal{ID: "u1", Role: principal.RoleCustomer}
	_, err = reg.Call(context.Background(), p, "sess", "call-1", "missing", nil)
	if err == nil {
		t.Fatal("expected an error calling an unregistered tool")
	}
	if !errs.Is(err, errs.ErrTool) {
		t.Errorf("expected ErrTool, got %v", err)
	}
}

func TestRegistry_CallValidatesArgsAgainstSchema(t *testing.T) {
	tl := &schemaTool{name: "lookup", schema: requiredStringSchema("query")}
	reg, err := NewRegistry(time.Second, tl)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p := principal.Principal{ID: "u1", Role: principal.RoleCustomer}

	_, err = reg.Call(context.Background(), p, "sess", "call-1", "lookup", map[string]any{})
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
	if !errs.Is(err, errs.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if tl.calls != 0 {
		t.Error("tool should not be invoked when argument validation fails")
	}

	_, err = reg.Call(context.Background(), p, "sess", "call-2", "lookup", map[string]any{"query": "kitas"})
	if err != nil {
		t.Fatalf("Call with valid args: %v", err)
	}
	if tl.calls != 1 {
		t.Errorf("tool called %d times, want 1", tl.calls)
	}
	if tl.lastCtx.Principal.ID != "u1" || tl.lastCtx.SessionID != "sess" || tl.lastCtx.CallID != "call-2" {
		t.Errorf("tool context not propagated correctly: %+v", tl.lastCtx)
	}
}

func TestRegistry_CallWrapsToolError(t *testing.T) {
	boom := errors.New("boom")
	tl := &schemaTool{name: "broken", err: boom}
	reg, err := NewRegistry(time.Second, tl)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p := principal.Principal{ID: "u1", Role: principal.RoleCustomer}

	_, err = reg.Call(context.Background(), p, "sess", "call-1", "broken", nil)
	if err == nil {
		t.Fatal("expected an error from a failing tool")
	}
	if !errs.Is(err, errs.ErrTool) {
		t.Errorf("expected ErrTool, got %v", err)
	}
}
