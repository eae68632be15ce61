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

// Package llm implements component C7: a tier-aware fallback cascade
// across LLM providers, with retry/backoff and token budgeting.
package llm

import (
	"context"
	"iter"

	"github.com/nuzantara/core/pkg/tool"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation sent to a Provider.
type Message struct {
	Role Role
	// Content is the text content of the message.
	Content string
	// ToolCalls is set on an assistant message that requested tool
	// invocations.
	ToolCalls []tool.ToolCall
	// ToolCallID is set on a RoleTool message, identifying which
	// ToolCall this is the result of.
	ToolCallID string
}

// GenerateConfig configures a single generation call.
type GenerateConfig struct {
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	StopSequences []string
}

// Clone deep-copies c so pipeline stages can mutate their own copy
// without affecting a shared default config.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		t := *c.Temperature
		clone.Temperature = &t
	}
	if c.MaxTokens != nil {
		m := *c.MaxTokens
		clone.MaxTokens = &m
	}
	if c.TopP != nil {
		p := *c.TopP
		clone.TopP = &p
	}
	if c.StopSequences != nil {
		clone.StopSequences = append([]string(nil), c.StopSequences...)
	}
	return &clone
}

// Request is the input to a Provider's GenerateContent call.
type Request struct {
	Messages          []Message
	Tools             []tool.Definition
	SystemInstruction string
	Config            *GenerateConfig
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Usage reports token accounting for a call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a single yielded value from GenerateContent. In
// streaming mode, Partial=true chunks carry incremental Content;
// Partial=false is always the final, aggregated response.
type Response struct {
	Content      string
	Partial      bool
	ToolCalls    []tool.ToolCall
	Usage        *Usage
	FinishReason FinishReason
}

// Provider is a single LLM backend. GenerateContent follows the
// teacher's unified streaming/non-streaming contract: it always
// returns an iter.Seq2, yielding one Response when stream=false and
// multiple partial Responses followed by one final aggregated
// Response when stream=true.
type Provider interface {
	Name() string
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]
	Close() error
}
