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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/httpclient"
	"github.com/nuzantara/core/pkg/tool"
)

// VisionAnalyzeConfig configures the VisionAnalyzeTool's upstream
// vision-capable model endpoint.
type VisionAnalyzeConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// VisionAnalyzeTool describes an uploaded document image (a passport
// page, a KITAS card, a tax form scan) in plain language for the
// orchestrator to reason over. Hand-rolled HTTP client following the
// teacher's own choice not to depend on a provider SDK for this kind
// of call (see pkg/llms/anthropic.go).
type VisionAnalyzeTool struct {
	cfg    VisionAnalyzeConfig
	client *httpclient.Client
}

// NewVisionAnalyzeTool builds a VisionAnalyzeTool from cfg.
func NewVisionAnalyzeTool(cfg VisionAnalyzeConfig) *VisionAnalyzeTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(2),
	)
	return &VisionAnalyzeTool{cfg: cfg, client: client}
}

func (t *VisionAnalyzeTool) Name() string          { return "vision_analyze" }
func (t *VisionAnalyzeTool) Description() string   { return "Describe the contents of an uploaded document image (passport, KITAS, tax form scan)." }
func (t *VisionAnalyzeTool) IsLongRunning() bool    { return false }
func (t *VisionAnalyzeTool) RequiresApproval() bool { return false }

func (t *VisionAnalyzeTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"image_url": map[string]any{"type": "string"},
			"question":  map[string]any{"type": "string"},
		},
		"required": []string{"image_url"},
	}
}

type visionRequest struct {
	Model    string `json:"model"`
	ImageURL string `json:"image_url"`
	Question string `json:"question,omitempty"`
}

type visionResponse struct {
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

func (t *VisionAnalyzeTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	imageURL, _ := args["image_url"].(string)
	if imageURL == "" {
		return nil, errs.Wrap(errs.ErrValidation, "vision_analyze: image_url is required", nil)
	}
	question, _ := args["question"].(string)

	body, err := json.Marshal(visionRequest{Model: t.cfg.Model, ImageURL: imageURL, Question: question})
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, "vision_analyze: encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, "vision_analyze: build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, "vision_analyze: request failed", err)
	}
	defer resp.Body.Close()

	var out visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ErrTool, "vision_analyze: decode response", err)
	}
	if out.Error != "" {
		return nil, errs.Wrap(errs.ErrTool, fmt.Sprintf("vision_analyze: upstream error: %s", out.Error), nil)
	}
	return map[string]any{"description": out.Description}, nil
}

var _ tool.CallableTool = (*VisionAnalyzeTool)(nil)
