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
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/streamnative/talus/metadata"
)

const (
	existsKeyPrefix   = "exists:"
	childrenKeyPrefix = "children:"
)

// MetaCache holds the untyped hierarchy metadata of one tier: document
// existence and child sets. It shares the tier's notification-driven
// invalidation; a change on a path also invalidates the parent's child set.
type MetaCache struct {
	tier    *Tier
	entries *ristretto.Cache
	group   singleflight.Group
	loads   *loadTracker
}

func NewMeta(tier *Tier) (*MetaCache, error) {
	entries, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}

	m := &MetaCache{
		tier:    tier,
		entries: entries,
		loads:   newLoadTracker(),
	}
	tier.register(m)
	return m, nil
}

// Exists checks whether a document is present at path. A failure of the
// backing query is surfaced, never turned into "absent".
func (m *MetaCache) Exists(ctx context.Context, path string) (bool, error) {
	key := existsKeyPrefix + path
	if cached, ok := m.entries.Get(key); ok {
		return cached.(bool), nil
	}

	value, err, _ := m.group.Do(key, func() (any, error) {
		generation := m.loads.begin(key)
		exists, err := m.tier.store.Exists(ctx, path)
		if err != nil {
			m.loads.end(key, generation, nil)
			return false, errors.Wrapf(err, "failed to check existence of %s on %s store", path, m.tier.name)
		}
		m.loads.end(key, generation, func() {
			m.entries.SetWithTTL(key, exists, 1, cacheEntryTTL)
		})
		return exists, nil
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// Children returns the cached child names under path. An absent path yields
// an empty set, not an error.
func (m *MetaCache) Children(ctx context.Context, path string) ([]string, error) {
	key := childrenKeyPrefix + path
	if cached, ok := m.entries.Get(key); ok {
		return cached.([]string), nil
	}

	value, err, _ := m.group.Do(key, func() (any, error) {
		generation := m.loads.begin(key)
		children, err := m.tier.store.ListChildren(ctx, path)
		if errors.Is(err, metadata.ErrPathNotFound) {
			children = []string{}
		} else if err != nil {
			m.loads.end(key, generation, nil)
			return nil, errors.Wrapf(err, "failed to list children of %s on %s store", path, m.tier.name)
		}
		m.loads.end(key, generation, func() {
			m.entries.SetWithTTL(key, children, int64(len(children)+1), cacheEntryTTL)
		})
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

func (m *MetaCache) handleNotification(n *metadata.Notification) {
	m.loads.invalidate(existsKeyPrefix + n.Path)
	m.loads.invalidate(childrenKeyPrefix + n.Path)
	m.entries.Del(existsKeyPrefix + n.Path)
	m.entries.Del(childrenKeyPrefix + n.Path)
	m.group.Forget(existsKeyPrefix + n.Path)
	m.group.Forget(childrenKeyPrefix + n.Path)

	if parent := parentPath(n.Path); parent != "" {
		m.loads.invalidate(childrenKeyPrefix + parent)
		m.entries.Del(childrenKeyPrefix + parent)
		m.group.Forget(childrenKeyPrefix + parent)
	}
}

func (m *MetaCache) Close() error {
	m.entries.Close()
	return nil
}

func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
