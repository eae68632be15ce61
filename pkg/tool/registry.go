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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/principal"
)

// Registry is the immutable startup registry for component C5: tools
// are registered once at construction and never added to or removed
// from afterward, replacing the source system's dynamic tool
// discovery with the startup-time registry the redesign notes call
// for.
type Registry struct {
	tools   map[string]CallableTool
	schemas map[string]*jsonschema.Schema
	timeout time.Duration
}

// NewRegistry compiles tools' JSON schemas once and returns an
// immutable Registry. defaultTimeout bounds every Call unless a
// per-tool override is later added.
func NewRegistry(defaultTimeout time.Duration, tools ...CallableTool) (*Registry, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	r := &Registry{
		tools:   make(map[string]CallableTool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
		timeout: defaultTimeout,
	}
	compiler := jsonschema.NewCompiler()
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("tool registry: duplicate tool name %q", t.Name())
		}
		r.tools[t.Name()] = t

		schema := t.Schema()
		if schema == nil {
			continue
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("tool registry: encode schema for %q: %w", t.Name(), err)
		}
		res, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool registry: invalid schema for %q: %w", t.Name(), err)
		}
		url := "mem://" + t.Name()
		if err := compiler.AddResource(url, res); err != nil {
			return nil, fmt.Errorf("tool registry: add schema resource for %q: %w", t.Name(), err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool registry: compile schema for %q: %w", t.Name(), err)
		}
		r.schemas[t.Name()] = compiled
	}
	return r, nil
}

// Definitions returns the Definition of every registered tool, for
// handing to the LLM Gateway as available function-call targets.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToDefinition(t))
	}
	return defs
}

// Call validates args against the tool's schema, then invokes it with
// a bounded context derived from parent. An argument-validation
// failure comes back wrapped with ErrValidation; an unknown tool or a
// failing tool comes back wrapped with ErrTool. The orchestrator can
// feed either into the ReAct loop as an Observation rather than
// aborting the turn.
func (r *Registry) Call(parent context.Context, p principal.Principal, sessionID, callID, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, errs.Wrap(errs.ErrTool, fmt.Sprintf("unknown tool %q", name), nil)
	}

	if schema, ok := r.schemas[name]; ok {
		if err := schema.Validate(args); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, fmt.Sprintf("tool %q: argument validation failed", name), err)
		}
	}

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	toolCtx := Context{Context: ctx, CallID: callID, SessionID: sessionID, Principal: p}
	result, err := t.Call(toolCtx, args)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, fmt.Sprintf("tool %q failed", name), err)
	}
	return result, nil
}
