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

package config

import "testing"

func TestEmbedderConfig_SetDefaults(t *testing.T) {
	tests := []struct {
		name     string
		config   EmbedderConfig
		validate func(t *testing.T, c EmbedderConfig)
	}{
		{
			name:   "empty_config_ollama_defaults",
			config: EmbedderConfig{},
			validate: func(t *testing.T, c EmbedderConfig) {
				if c.Provider != "ollama" {
					t.Errorf("Provider = %v, want ollama", c.Provider)
				}
				if c.Model != "nomic-embed-text" {
					t.Errorf("Model = %v, want nomic-embed-text", c.Model)
				}
				if c.BaseURL != "http://localhost:11434" {
					t.Errorf("BaseURL = %v, want http://localhost:11434", c.BaseURL)
				}
				if c.Dimension != 768 {
					t.Errorf("Dimension = %v, want 768", c.Dimension)
				}
				if c.Timeout != 30 {
					t.Errorf("Timeout = %v, want 30", c.Timeout)
				}
				if c.BatchSize != 100 {
					t.Errorf("BatchSize = %v, want 100", c.BatchSize)
				}
			},
		},
		{
			name:   "openai_defaults",
			config: EmbedderConfig{Provider: "openai"},
			validate: func(t *testing.T, c EmbedderConfig) {
				if c.Model != "text-embedding-3-small" {
					t.Errorf("Model = %v, want text-embedding-3-small", c.Model)
				}
				if c.Dimension != 1536 {
					t.Errorf("Dimension = %v, want 1536", c.Dimension)
				}
				if c.BaseURL != "https://api.openai.com/v1" {
					t.Errorf("BaseURL = %v, want https://api.openai.com/v1", c.BaseURL)
				}
			},
		},
		{
			name:   "openai_large_model_dimension",
			config: EmbedderConfig{Provider: "openai", Model: "text-embedding-3-large"},
			validate: func(t *testing.T, c EmbedderConfig) {
				if c.Dimension != 3072 {
					t.Errorf("Dimension = %v, want 3072", c.Dimension)
				}
			},
		},
		{
			name:   "cohere_defaults",
			config: EmbedderConfig{Provider: "cohere"},
			validate: func(t *testing.T, c EmbedderConfig) {
				if c.Model != "embed-english-v3.0" {
					t.Errorf("Model = %v, want embed-english-v3.0", c.Model)
				}
				if c.Dimension != 1024 {
					t.Errorf("Dimension = %v, want 1024", c.Dimension)
				}
				if c.BatchSize != 96 {
					t.Errorf("BatchSize = %v, want 96", c.BatchSize)
				}
				if c.InputType != "search_document" {
					t.Errorf("InputType = %v, want search_document", c.InputType)
				}
				if c.Truncate != "END" {
					t.Errorf("Truncate = %v, want END", c.Truncate)
				}
			},
		},
		{
			name: "explicit_values_preserved",
			config: EmbedderConfig{
				Provider:  "openai",
				Model:     "custom-model",
				Dimension: 42,
				Timeout:   5,
			},
			validate: func(t *testing.T, c EmbedderConfig) {
				if c.Model != "custom-model" {
					t.Errorf("Model should be preserved: %v", c.Model)
				}
				if c.Dimension != 42 {
					t.Errorf("Dimension should be preserved: %v", c.Dimension)
				}
				if c.Timeout != 5 {
					t.Errorf("Timeout should be preserved: %v", c.Timeout)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			c.SetDefaults()
			tt.validate(t, c)
		})
	}
}

func TestEmbedderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  EmbedderConfig
		wantErr bool
	}{
		{
			name: "valid_ollama",
			config: EmbedderConfig{
				Provider:  "ollama",
				Model:     "nomic-embed-text",
				Dimension: 768,
			},
			wantErr: false,
		},
		{
			name: "invalid_provider",
			config: EmbedderConfig{
				Provider:  "bogus",
				Model:     "m",
				Dimension: 1,
			},
			wantErr: true,
		},
		{
			name: "openai_missing_api_key",
			config: EmbedderConfig{
				Provider:  "openai",
				Model:     "text-embedding-3-small",
				Dimension: 1536,
			},
			wantErr: true,
		},
		{
			name: "openai_with_api_key",
			config: EmbedderConfig{
				Provider:  "openai",
				Model:     "text-embedding-3-small",
				APIKey:    "sk-test",
				Dimension: 1536,
			},
			wantErr: false,
		},
		{
			name: "missing_model",
			config: EmbedderConfig{
				Provider:  "ollama",
				Dimension: 768,
			},
			wantErr: true,
		},
		{
			name: "non_positive_dimension",
			config: EmbedderConfig{
				Provider:  "ollama",
				Model:     "nomic-embed-text",
				Dimension: 0,
			},
			wantErr: true,
		},
		{
			name: "cohere_invalid_input_type",
			config: EmbedderConfig{
				Provider:  "cohere",
				Model:     "embed-english-v3.0",
				APIKey:    "key",
				Dimension: 1024,
				InputType: "bogus",
			},
			wantErr: true,
		},
		{
			name: "cohere_invalid_output_dimension",
			config: EmbedderConfig{
				Provider:        "cohere",
				Model:           "embed-english-v3.0",
				APIKey:          "key",
				Dimension:       1024,
				OutputDimension: 999,
			},
			wantErr: true,
		},
		{
			name: "cohere_valid_output_dimension",
			config: EmbedderConfig{
				Provider:        "cohere",
				Model:           "embed-english-v3.0",
				APIKey:          "key",
				Dimension:       1024,
				OutputDimension: 256,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
