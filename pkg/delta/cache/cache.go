// Copyright 2018-2025 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package cache memoizes table snapshots keyed by (table id, version).
// Snapshots are immutable once constructed so cached entries are shared
// across requests without locking.
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"

	"github.com/openlake/delta-sharing/pkg/delta"
)

// LoadFunc loads the snapshot on a cache miss.
type LoadFunc func(ctx context.Context) (*delta.Snapshot, error)

// Cache is a capacity-bounded LRU of snapshots with an optional TTL.
// Concurrent loads of the same key are collapsed into one.
type Cache struct {
	lru   gcache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// New returns a cache holding at most capacity snapshots. A zero ttl disables
// expiration.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		lru: gcache.New(capacity).LRU().Build(),
		ttl: ttl,
	}
}

func key(tableID string, version int64) string {
	return tableID + "@" + strconv.FormatInt(version, 10)
}

// Get returns the snapshot of the table at the given version, loading it at
// most once per key across concurrent callers. Load errors are returned to
// every waiter and never cached.
func (c *Cache) Get(ctx context.Context, tableID string, version int64, load LoadFunc) (*delta.Snapshot, error) {
	k := key(tableID, version)
	if v, err := c.lru.Get(k); err == nil {
		return v.(*delta.Snapshot), nil
	}

	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		// check again, another flight may have populated the entry between
		// the miss and the singleflight barrier.
		if v, err := c.lru.Get(k); err == nil {
			return v, nil
		}
		s, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			_ = c.lru.SetWithExpire(k, s, c.ttl)
		} else {
			_ = c.lru.Set(k, s)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*delta.Snapshot), nil
}

// InvalidateTable drops every cached snapshot of the given table. Called on
// catalog mutations affecting the table.
func (c *Cache) InvalidateTable(tableID string) {
	prefix := tableID + "@"
	for _, k := range c.lru.Keys(false) {
		if ks, ok := k.(string); ok && strings.HasPrefix(ks, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	return c.lru.Len(true)
}
