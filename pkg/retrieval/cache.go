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
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// semanticCache is a TTL-based cache of Response keyed by a stable
// fingerprint of (normalized query, route tier, collection set). No
// ecosystem cache library is wired elsewhere in the dependency stack
// (the teacher never imports one directly — see DESIGN.md), so this is
// a small hand-rolled map guarded by a mutex rather than a third-party
// LRU.
type semanticCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	response  Response
	expiresAt time.Time
}

func newSemanticCache(ttl time.Duration) *semanticCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &semanticCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// fingerprint computes the cache key for a query against a tier and
// collection set.
func fingerprint(query, tier string, collections []string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sorted := append([]string(nil), collections...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte("|"))
	h.Write([]byte(tier))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *semanticCache) get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Response{}, false
	}
	return entry.response, true
}

func (c *semanticCache) set(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: resp, expiresAt: time.Now().Add(c.ttl)}
}

// Purge drops every entry holding at least one result whose chunk
// collection starts with prefix. Since keys are hashed, Purge matches
// against the cached results rather than the key itself; the query
// text is not consulted, and an entry with no results is kept.
func (c *semanticCache) Purge(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		for _, r := range entry.response.Results {
			if strings.HasPrefix(r.Chunk.Collection, prefix) {
				delete(c.entries, key)
				break
			}
		}
	}
	return nil
}

// size reports the current entry count, for diagnostics.
func (c *semanticCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
