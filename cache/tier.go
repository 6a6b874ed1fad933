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
	"io"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
)

// Tier binds a set of caches to one scope of the coordination store.
// Two tiers exist at runtime: "local" for this cluster's store and "global"
// for the cross-cluster one. Callers always pick a tier explicitly; there is
// no fallback between them.
//
// The tier owns the notification subscription on its store and fans every
// change event out to the caches registered on it, so invalidation is exact
// rather than TTL-driven.
type Tier struct {
	sync.Mutex

	name   string
	store  metadata.Store
	caches []internalCache

	ctx    context.Context
	cancel context.CancelFunc
}

type internalCache interface {
	io.Closer
	handleNotification(n *metadata.Notification)
}

func NewTier(name string, store metadata.Store) *Tier {
	t := &Tier{
		name:  name,
		store: store,
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	notifications := store.Notifications()
	go common.DoWithLabels(
		map[string]string{
			"talus": "cache-tier",
			"tier":  name,
		},
		func() { t.run(notifications) },
	)

	return t
}

func (t *Tier) Name() string {
	return t.name
}

// Store exposes the tier's backing store for the callers that need raw,
// uncached reads (live directory listings).
func (t *Tier) Store() metadata.Store {
	return t.store
}

// ConnectionState reports the live connectivity of the tier's store client.
func (t *Tier) ConnectionState() metadata.State {
	return t.store.ConnectionState()
}

func (t *Tier) run(notifications <-chan *metadata.Notification) {
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return
			}
			t.handleNotification(n)

		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Tier) handleNotification(n *metadata.Notification) {
	t.Lock()
	defer t.Unlock()

	slog.Debug(
		"Received store notification",
		slog.String("tier", t.name),
		slog.String("path", n.Path),
		slog.Any("type", n.Type),
	)

	for _, c := range t.caches {
		c.handleNotification(n)
	}
}

func (t *Tier) register(c internalCache) {
	t.Lock()
	defer t.Unlock()
	t.caches = append(t.caches, c)
}

func (t *Tier) Close() error {
	t.cancel()

	t.Lock()
	defer t.Unlock()

	var err error
	for _, c := range t.caches {
		err = multierr.Append(err, c.Close())
	}
	return err
}
