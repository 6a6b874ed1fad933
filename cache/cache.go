// Copyright 2023 StreamNative, Inc.
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

package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/streamnative/talus/common/metrics"
	"github.com/streamnative/talus/metadata"
)

// DeserializeFunc is the deserialization function. eg: [json.Unmarshal].
type DeserializeFunc func(data []byte, value any) error

const (
	// Safety-net TTL only. Entries are invalidated exactly by store
	// notifications; the TTL bounds staleness if a notification is lost.
	cacheEntryTTL = 5 * time.Minute

	cacheNumCounters = 100_000
	cacheMaxCost     = 32 * 1024 * 1024
	cacheBufferItems = 64
)

// Cache is a read-through view of the typed documents stored at one tier of
// the coordination store, deserialized once and invalidated by the store
// change feed.
//
// An absent document is a cached empty Optional, not an error. Any other
// fetch failure surfaces to the caller; the cache never substitutes a stale
// value for a failed fetch.
type Cache[T any] struct {
	tier            *Tier
	name            string
	deserializeFunc DeserializeFunc

	values *ristretto.Cache
	group  singleflight.Group
	loads  *loadTracker

	hits          metrics.Counter
	misses        metrics.Counter
	invalidations metrics.Counter
}

// New creates a typed document cache on the given tier.
func New[T any](tier *Tier, name string, deserializeFunc DeserializeFunc) (*Cache[T], error) {
	values, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}

	labels := map[string]string{"tier": tier.name, "cache": name}
	c := &Cache[T]{
		tier:            tier,
		name:            name,
		deserializeFunc: deserializeFunc,
		values:          values,
		loads:           newLoadTracker(),

		hits:          metrics.NewCounter("talus_config_cache_hits", "Config cache hits", labels),
		misses:        metrics.NewCounter("talus_config_cache_misses", "Config cache misses", labels),
		invalidations: metrics.NewCounter("talus_config_cache_invalidations", "Config cache entries invalidated by notifications", labels),
	}
	tier.register(c)
	return c, nil
}

// Get returns the document at path, fetching it from the store on a miss.
// Concurrent misses on the same path collapse into a single store fetch;
// every caller receives the same result. Misses on different paths never
// block each other.
func (c *Cache[T]) Get(ctx context.Context, path string) (Optional[T], error) {
	if cached, ok := c.values.Get(path); ok {
		c.hits.Inc()
		return cached.(Optional[T]), nil
	}

	c.misses.Inc()
	value, err, _ := c.group.Do(path, func() (any, error) {
		return c.load(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return value.(Optional[T]), nil
}

func (c *Cache[T]) load(ctx context.Context, path string) (Optional[T], error) {
	generation := c.loads.begin(path)

	data, _, err := c.tier.store.Get(ctx, path)
	if errors.Is(err, metadata.ErrPathNotFound) {
		// The notification subscription covers absent paths too, so a later
		// creation still invalidates this negative entry
		opt := emptyOptional[T]()
		c.loads.end(path, generation, func() {
			c.values.Set(path, opt, 0)
		})
		return opt, nil
	}
	if err != nil {
		c.loads.end(path, generation, nil)
		return nil, errors.Wrapf(err, "failed to fetch %s from %s store", path, c.tier.name)
	}

	var value T
	if err := c.deserializeFunc(data, &value); err != nil {
		c.loads.end(path, generation, nil)
		return nil, errors.Wrapf(err, "failed to deserialize value at %s", path)
	}

	opt := optionalOf(value)
	c.loads.end(path, generation, func() {
		c.values.SetWithTTL(path, opt, int64(len(data)), cacheEntryTTL)
	})
	return opt, nil
}

func (c *Cache[T]) handleNotification(n *metadata.Notification) {
	c.loads.invalidate(n.Path)
	c.values.Del(n.Path)
	c.group.Forget(n.Path)
	c.invalidations.Inc()
}

func (c *Cache[T]) Close() error {
	c.values.Close()
	return nil
}
