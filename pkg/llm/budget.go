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

package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Budget computes the available context window for a generation call
// and truncates conversation history to fit it.
//
//	available = model_limit - reserved_output - system_prompt_size
//
// History is truncated from the oldest non-summarized turn first, so
// the most recent exchanges (and any pre-built summary turn) are
// always preserved.
type Budget struct {
	ModelLimit     int
	ReservedOutput int
	encodingName   string

	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewBudget builds a Budget for a model with the given context-window
// limit and output reservation. encodingName selects the tiktoken
// encoding (e.g. "cl100k_base"); empty defaults to "cl100k_base",
// which approximates token counts closely enough for budgeting
// purposes across the providers this gateway fronts (none of them
// expose their own public tokenizer as a Go library).
func NewBudget(modelLimit, reservedOutput int, encodingName string) *Budget {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	return &Budget{ModelLimit: modelLimit, ReservedOutput: reservedOutput, encodingName: encodingName}
}

func (b *Budget) encoder() (*tiktoken.Tiktoken, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enc != nil {
		return b.enc, nil
	}
	enc, err := tiktoken.GetEncoding(b.encodingName)
	if err != nil {
		return nil, fmt.Errorf("llm: budget: load tiktoken encoding %q: %w", b.encodingName, err)
	}
	b.enc = enc
	return enc, nil
}

// CountTokens returns the token count of text under this budget's
// encoding.
func (b *Budget) CountTokens(text string) (int, error) {
	enc, err := b.encoder()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Available returns the number of tokens left for conversation history
// after reserving output and accounting for systemPromptSize.
func (b *Budget) Available(systemPromptSize int) int {
	available := b.ModelLimit - b.ReservedOutput - systemPromptSize
	if available < 0 {
		return 0
	}
	return available
}

// Fit truncates messages (oldest-first, skipping any message at index
// summaryIdx which holds a pre-built running summary) so their total
// token count fits within available. The system instruction is not
// part of messages and must already be excluded from available via
// systemPromptSize passed to Available.
func (b *Budget) Fit(messages []Message, summaryIdx int, available int) ([]Message, error) {
	if available <= 0 {
		if summaryIdx >= 0 && summaryIdx < len(messages) {
			return messages[summaryIdx : summaryIdx+1], nil
		}
		return nil, nil
	}

	counts := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		n, err := b.CountTokens(m.Content)
		if err != nil {
			return nil, err
		}
		counts[i] = n
		total += n
	}
	if total <= available {
		return messages, nil
	}

	kept := make([]bool, len(messages))
	for i := range kept {
		kept[i] = true
	}

	for i := 0; i < len(messages) && total > available; i++ {
		if i == summaryIdx {
			continue
		}
		kept[i] = false
		total -= counts[i]
	}

	out := make([]Message, 0, len(messages))
	for i, k := range kept {
		if k {
			out = append(out, messages[i])
		}
	}
	return out, nil
}
