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

package builtin

import (
	"github.com/nuzantara/core/pkg/retrieval"
	"github.com/nuzantara/core/pkg/tool"
)

// DiagnosticsTool reports the health of the retrieval pipeline's
// dependencies (vector stores, semantic cache) so the orchestrator can
// answer "why is search degraded" style questions, and so operators
// get a tool-shaped view of the same data the /healthz endpoint
// exposes.
type DiagnosticsTool struct {
	engine *retrieval.Engine
}

// NewDiagnosticsTool wires a retrieval.Engine into a callable tool.
func NewDiagnosticsTool(engine *retrieval.Engine) *DiagnosticsTool {
	return &DiagnosticsTool{engine: engine}
}

func (t *DiagnosticsTool) Name() string          { return "diagnostics" }
func (t *DiagnosticsTool) Description() string   { return "Report the health of retrieval collections and the semantic cache." }
func (t *DiagnosticsTool) IsLongRunning() bool    { return false }
func (t *DiagnosticsTool) RequiresApproval() bool { return false }

func (t *DiagnosticsTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *DiagnosticsTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	return t.engine.Status(ctx), nil
}

var _ tool.CallableTool = (*DiagnosticsTool)(nil)
