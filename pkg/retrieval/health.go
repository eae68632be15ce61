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

package retrieval

import (
	"context"
	"time"

	"github.com/nuzantara/core/pkg/vector"
)

// Status of a single dependency check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// HealthCheck is the outcome of probing one collection's backing
// provider.
type HealthCheck struct {
	Collection string    `json:"collection"`
	Provider   string    `json:"provider"`
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Latency    int64     `json:"latency_ms"`
	Checked    time.Time `json:"checked_at"`
}

// probeCollection runs a one-result search against a collection to
// confirm the backing provider is reachable, without requiring any
// real embedding (an all-zero probe vector is sufficient since the
// point is connectivity, not relevance).
func probeCollection(ctx context.Context, name string, provider vector.Provider, dimension int) HealthCheck {
	start := time.Now()
	probeVec := make([]float32, dimension)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := provider.Search(ctx, name, probeVec, 1)
	check := HealthCheck{
		Collection: name,
		Provider:   provider.Name(),
		Latency:    time.Since(start).Milliseconds(),
		Checked:    time.Now(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
		return check
	}
	check.Status = StatusHealthy
	return check
}
