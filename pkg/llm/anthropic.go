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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/httpclient"
	"github.com/nuzantara/core/pkg/tool"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	Host        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// AnthropicProvider implements Provider against the Anthropic Messages
// API. Hand-rolled HTTP client (no SDK), matching the teacher's own
// choice for this provider.
type AnthropicProvider struct {
	cfg    AnthropicConfig
	client *httpclient.Client
}

// NewAnthropicProvider builds an AnthropicProvider from cfg, applying
// defaults matching the teacher's.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &AnthropicProvider{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(cfg.RetryDelay),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
		),
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + p.cfg.Model }
func (p *AnthropicProvider) Close() error { return nil }

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     *map[string]any `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
	} `json:"delta,omitempty"`
	ContentBlock *anthropicContent `json:"content_block,omitempty"`
	Usage        *anthropicUsage   `json:"usage,omitempty"`
}

func (p *AnthropicProvider) buildRequest(req *Request, stream bool) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: msg.Content}},
			})
		case RoleTool:
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content}},
			})
		case RoleAssistant:
			contents := []anthropicContent{}
			if msg.Content != "" {
				contents = append(contents, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				contents = append(contents, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: &args})
			}
			messages = append(messages, anthropicMessage{Role: "assistant", Content: contents})
		}
	}

	temperature := p.cfg.Temperature
	if req.Config != nil && req.Config.Temperature != nil {
		temperature = *req.Config.Temperature
	}
	maxTokens := p.cfg.MaxTokens
	if req.Config != nil && req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}

	out := anthropicRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      stream,
		System:      req.SystemInstruction,
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicTool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
		}
		out.Tools = tools
	}
	return out
}

func (p *AnthropicProvider) do(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic build request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return p.client.Do(req)
}

func (p *AnthropicProvider) GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		body, err := json.Marshal(p.buildRequest(req, stream))
		if err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: anthropic encode request", err))
			return
		}

		resp, err := p.do(ctx, body)
		if err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: anthropic request failed", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			kind := errs.ErrModelTransient
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				kind = errs.ErrModelTerminal
			}
			yield(nil, errs.Wrap(kind, fmt.Sprintf("llm: anthropic status %d: %s", resp.StatusCode, raw), nil))
			return
		}

		if !stream {
			var out anthropicResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: anthropic decode response", err))
				return
			}
			if out.Error != nil {
				yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: anthropic api error: "+out.Error.Message, nil))
				return
			}
			r := aggregateAnthropic(out)
			yield(r, nil)
			return
		}

		if !streamAnthropic(resp.Body, yield) {
			return
		}
	}
}

func aggregateAnthropic(out anthropicResponse) *Response {
	var text strings.Builder
	var calls []tool.ToolCall
	for _, c := range out.Content {
		switch c.Type {
		case "text":
			text.WriteString(c.Text)
		case "tool_use":
			var args map[string]any
			if c.Input != nil {
				args = *c.Input
			}
			calls = append(calls, tool.ToolCall{ID: c.ID, Name: c.Name, Args: args})
		}
	}
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	} else if out.StopReason == "max_tokens" {
		finish = FinishLength
	}
	return &Response{
		Content:   text.String(),
		ToolCalls: calls,
		Usage: &Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
		FinishReason: finish,
	}
}

// streamAnthropic parses the Anthropic SSE stream, yielding Partial=true
// chunks as text deltas arrive and a final Partial=false aggregated
// Response on message_stop. Returns false if the caller stopped
// iterating early.
func streamAnthropic(body io.Reader, yield func(*Response, error) bool) bool {
	var textBuf strings.Builder
	toolCalls := map[int]*tool.ToolCall{}
	toolJSON := map[int]*strings.Builder{}
	var usage anthropicUsage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		raw := strings.TrimPrefix(line, "data: ")

		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: anthropic decode stream event", err))
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				toolCalls[ev.Index] = &tool.ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name, Args: map[string]any{}}
				toolJSON[ev.Index] = &strings.Builder{}
			}
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			if ev.Delta.Text != "" {
				textBuf.WriteString(ev.Delta.Text)
				if !yield(&Response{Content: ev.Delta.Text, Partial: true}, nil) {
					return false
				}
			}
			if ev.Delta.Type == "input_json_delta" && ev.Delta.PartialJSON != "" {
				if buf, ok := toolJSON[ev.Index]; ok {
					buf.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if tc, ok := toolCalls[ev.Index]; ok {
				if buf, ok := toolJSON[ev.Index]; ok && buf.Len() > 0 {
					var args map[string]any
					if err := json.Unmarshal([]byte(buf.String()), &args); err == nil {
						tc.Args = args
					}
				}
			}
		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			var calls []tool.ToolCall
			for i := 0; i < len(toolCalls); i++ {
				if tc, ok := toolCalls[i]; ok {
					calls = append(calls, *tc)
				}
			}
			finish := FinishStop
			if len(calls) > 0 {
				finish = FinishToolCalls
			}
			return yield(&Response{
				Content:      textBuf.String(),
				ToolCalls:    calls,
				Usage:        &Usage{CompletionTokens: usage.OutputTokens, TotalTokens: usage.OutputTokens},
				FinishReason: finish,
			}, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		return yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: anthropic read stream", err))
	}
	return true
}

var _ Provider = (*AnthropicProvider)(nil)
