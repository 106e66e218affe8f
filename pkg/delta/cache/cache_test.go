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

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlake/delta-sharing/pkg/delta"
)

func TestGetLoadsOnce(t *testing.T) {
	c := New(8, 0)
	var loads int32

	load := func(ctx context.Context) (*delta.Snapshot, error) {
		atomic.AddInt32(&loads, 1)
		return &delta.Snapshot{Version: 3}, nil
	}

	s1, err := c.Get(context.Background(), "t1", 3, load)
	require.NoError(t, err)
	s2, err := c.Get(context.Background(), "t1", 3, load)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.Equal(t, 1, c.Len())
}

func TestGetDistinctVersions(t *testing.T) {
	c := New(8, 0)
	for _, v := range []int64{1, 2} {
		v := v
		_, err := c.Get(context.Background(), "t1", v, func(ctx context.Context) (*delta.Snapshot, error) {
			return &delta.Snapshot{Version: v}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}

func TestGetErrorNotCached(t *testing.T) {
	c := New(8, 0)
	calls := 0

	_, err := c.Get(context.Background(), "t1", 1, func(ctx context.Context) (*delta.Snapshot, error) {
		calls++
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	s, err := c.Get(context.Background(), "t1", 1, func(ctx context.Context) (*delta.Snapshot, error) {
		calls++
		return &delta.Snapshot{Version: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, 2, calls)
}

func TestConcurrentGetsCollapse(t *testing.T) {
	c := New(8, 0)
	var loads int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "t1", 7, func(ctx context.Context) (*delta.Snapshot, error) {
				atomic.AddInt32(&loads, 1)
				return &delta.Snapshot{Version: 7}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestInvalidateTable(t *testing.T) {
	c := New(8, 0)
	load := func(v int64) LoadFunc {
		return func(ctx context.Context) (*delta.Snapshot, error) {
			return &delta.Snapshot{Version: v}, nil
		}
	}

	_, err := c.Get(context.Background(), "t1", 1, load(1))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "t1", 2, load(2))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "t2", 1, load(1))
	require.NoError(t, err)

	c.InvalidateTable("t1")
	assert.Equal(t, 1, c.Len())

	var reloaded bool
	_, err = c.Get(context.Background(), "t1", 1, func(ctx context.Context) (*delta.Snapshot, error) {
		reloaded = true
		return &delta.Snapshot{Version: 1}, nil
	})
	require.NoError(t, err)
	assert.True(t, reloaded)
}

func TestCapacityEviction(t *testing.T) {
	c := New(2, 0)
	load := func(v int64) LoadFunc {
		return func(ctx context.Context) (*delta.Snapshot, error) {
			return &delta.Snapshot{Version: v}, nil
		}
	}
	for i := int64(0); i < 5; i++ {
		_, err := c.Get(context.Background(), "t1", i, load(i))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, c.Len(), 2)
}
