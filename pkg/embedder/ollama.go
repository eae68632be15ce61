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

package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nuzantara/core/pkg/ollama"
)

// ollamaEmbedMu serializes requests: Ollama's llama runner crashes on
// concurrent embedding requests against the same model.
var ollamaEmbedMu sync.Mutex

// OllamaConfig configures a local Ollama embedding model.
type OllamaConfig struct {
	Host      string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OllamaEmbedder implements Embedder against a local Ollama instance.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	client *ollama.Client
}

// NewOllamaEmbedder builds an OllamaEmbedder, defaulting Host to
// http://localhost:11434 and Model to nomic-embed-text.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OllamaEmbedder{cfg: cfg, client: ollama.NewClientWithTimeout(cfg.Host, cfg.Timeout)}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	resp, err := e.client.MakeRequest(ctx, "/api/embeddings", ollamaEmbedRequest{Model: e.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedder: ollama decode response: %w", err)
	}
	return out.Embedding, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedder: ollama batch item %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Dimension() int { return e.cfg.Dimension }
func (e *OllamaEmbedder) Model() string  { return e.cfg.Model }
func (e *OllamaEmbedder) Close() error   { return nil }

var _ Embedder = (*OllamaEmbedder)(nil)
