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

// OllamaConfig configures a local Ollama chat model, used as the
// fast/cheap tier of the fallback cascade and as the default when no
// hosted provider is configured.
type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OllamaProvider implements Provider against a local Ollama instance's
// /api/chat endpoint.
type OllamaProvider struct {
	cfg    OllamaConfig
	client *httpclient.Client
}

// NewOllamaProvider builds an OllamaProvider from cfg.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})),
	}
}

func (p *OllamaProvider) Name() string { return "ollama:" + p.cfg.Model }
func (p *OllamaProvider) Close() error  { return nil }

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ollamaToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaChunk struct {
	Message            ollamaMessage `json:"message"`
	Done               bool          `json:"done"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	EvalCount          int           `json:"eval_count"`
	Error              string        `json:"error,omitempty"`
}

func (p *OllamaProvider) buildRequest(req *Request, stream bool) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, ollamaMessage{Role: "user", Content: msg.Content})
		case RoleTool:
			messages = append(messages, ollamaMessage{Role: "tool", Content: msg.Content, ToolCallID: msg.ToolCallID})
		case RoleAssistant:
			m := ollamaMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, ollamaToolCall{Function: ollamaToolCallFunction{Name: tc.Name, Arguments: tc.Args}})
			}
			messages = append(messages, m)
		}
	}

	opts := &ollamaOptions{Temperature: p.cfg.Temperature}
	if req.Config != nil {
		if req.Config.Temperature != nil {
			opts.Temperature = *req.Config.Temperature
		}
		if req.Config.MaxTokens != nil {
			opts.NumPredict = *req.Config.MaxTokens
		}
	}

	out := ollamaRequest{Model: p.cfg.Model, Messages: messages, Stream: stream, Options: opts}
	if len(req.Tools) > 0 {
		tools := make([]ollamaTool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = ollamaTool{Type: "function", Function: ollamaToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}}
		}
		out.Tools = tools
	}
	return out
}

func (p *OllamaProvider) GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		body, err := json.Marshal(p.buildRequest(req, stream))
		if err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: ollama encode request", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: ollama build request", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: ollama request failed", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			yield(nil, errs.Wrap(errs.ErrModelTransient, fmt.Sprintf("llm: ollama status %d: %s", resp.StatusCode, raw), nil))
			return
		}

		if !stream {
			var chunk ollamaChunk
			if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
				yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: ollama decode response", err))
				return
			}
			if chunk.Error != "" {
				yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: ollama api error: "+chunk.Error, nil))
				return
			}
			yield(toResponse(chunk), nil)
			return
		}

		streamOllama(resp.Body, yield)
	}
}

// streamOllama parses Ollama's newline-delimited JSON chat stream.
func streamOllama(body io.Reader, yield func(*Response, error) bool) {
	var textBuf strings.Builder
	var last ollamaChunk

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: ollama decode stream chunk", err))
			return
		}
		if chunk.Error != "" {
			yield(nil, errs.Wrap(errs.ErrModelTerminal, "llm: ollama api error: "+chunk.Error, nil))
			return
		}
		last = chunk
		if chunk.Message.Content != "" {
			textBuf.WriteString(chunk.Message.Content)
			if !yield(&Response{Content: chunk.Message.Content, Partial: true}, nil) {
				return
			}
		}
		if chunk.Done {
			last.Message.Content = textBuf.String()
			yield(toResponse(last), nil)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(nil, errs.Wrap(errs.ErrModelTransient, "llm: ollama read stream", err))
	}
}

func toResponse(chunk ollamaChunk) *Response {
	var calls []tool.ToolCall
	for i, tc := range chunk.Message.ToolCalls {
		calls = append(calls, tool.ToolCall{ID: fmt.Sprintf("call_%d", i), Name: tc.Function.Name, Args: tc.Function.Arguments})
	}
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	}
	return &Response{
		Content:   chunk.Message.Content,
		ToolCalls: calls,
		Usage: &Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
		},
		FinishReason: finish,
	}
}

var _ Provider = (*OllamaProvider)(nil)
