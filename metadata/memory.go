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

package metadata

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

const notificationChanSize = 128

type memNode struct {
	payload []byte
	version Version
}

// MemoryStore keeps the whole hierarchy in process. It backs unit tests and
// the standalone mode of the resolver command.
type MemoryStore struct {
	sync.Mutex

	tree        *treemap.Map
	state       State
	subscribers []chan *Notification
	closed      bool
	log         *slog.Logger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree:  treemap.NewWithStringComparator(),
		state: StateConnected,
		log:   slog.With(slog.String("component", "memory-metadata-store")),
	}
}

// SetConnectionState overrides the reported connectivity state.
func (m *MemoryStore) SetConnectionState(state State) {
	m.Lock()
	defer m.Unlock()
	m.state = state
}

func (m *MemoryStore) ConnectionState() State {
	m.Lock()
	defer m.Unlock()
	return m.state
}

func (m *MemoryStore) Notifications() <-chan *Notification {
	m.Lock()
	defer m.Unlock()

	ch := make(chan *Notification, notificationChanSize)
	if m.closed {
		close(ch)
		return ch
	}
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *MemoryStore) Get(ctx context.Context, path string) ([]byte, Version, error) {
	if err := m.check(ctx, path); err != nil {
		return nil, VersionNotExists, err
	}

	m.Lock()
	defer m.Unlock()

	v, found := m.tree.Get(path)
	if !found {
		return nil, VersionNotExists, ErrPathNotFound
	}

	node := v.(*memNode)
	payload := make([]byte, len(node.payload))
	copy(payload, node.payload)
	return payload, node.version, nil
}

func (m *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := m.check(ctx, path); err != nil {
		return false, err
	}

	m.Lock()
	defer m.Unlock()

	_, found := m.tree.Get(path)
	return found, nil
}

func (m *MemoryStore) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := m.check(ctx, path); err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	if _, found := m.tree.Get(path); !found {
		return nil, ErrPathNotFound
	}

	prefix := path + "/"
	children := []string{}

	// Keys come out of the treemap already sorted
	it := m.tree.Iterator()
	for it.Next() {
		key := it.Key().(string)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if rest := key[len(prefix):]; !strings.Contains(rest, "/") {
			children = append(children, rest)
		}
	}
	return children, nil
}

func (m *MemoryStore) CreateRecursive(ctx context.Context, path string, payload []byte) (Version, error) {
	if err := m.check(ctx, path); err != nil {
		return VersionNotExists, err
	}

	m.Lock()
	defer m.Unlock()

	if _, found := m.tree.Get(path); found {
		return VersionNotExists, ErrPathAlreadyExists
	}

	segments := Split(path)
	current := ""
	for i, segment := range segments {
		current += "/" + segment
		if _, found := m.tree.Get(current); found {
			continue
		}

		node := &memNode{}
		if i == len(segments)-1 {
			node.payload = append([]byte{}, payload...)
		}
		m.tree.Put(current, node)
		m.notify(&Notification{Type: NotificationCreated, Path: current})
	}

	return 0, nil
}

func (m *MemoryStore) Put(ctx context.Context, path string, payload []byte) (Version, error) {
	if err := m.check(ctx, path); err != nil {
		return VersionNotExists, err
	}

	m.Lock()
	defer m.Unlock()

	v, found := m.tree.Get(path)
	if !found {
		return VersionNotExists, ErrPathNotFound
	}

	node := v.(*memNode)
	node.payload = append([]byte{}, payload...)
	node.version++
	m.notify(&Notification{Type: NotificationModified, Path: path})
	return node.version, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := m.check(ctx, path); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()

	if _, found := m.tree.Get(path); !found {
		return ErrPathNotFound
	}

	prefix := path + "/"
	var removed []string

	it := m.tree.Iterator()
	for it.Next() {
		key := it.Key().(string)
		if key == path || strings.HasPrefix(key, prefix) {
			removed = append(removed, key)
		}
	}

	// Remove deepest paths first so subscribers never observe a child
	// outliving its parent's deletion
	for i := len(removed) - 1; i >= 0; i-- {
		m.tree.Remove(removed[i])
		m.notify(&Notification{Type: NotificationDeleted, Path: removed[i]})
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.state = StateClosed
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	return nil
}

func (m *MemoryStore) check(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}

	m.Lock()
	defer m.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Sends never block: a saturated subscriber loses the notification, same
// policy as the file store.
func (m *MemoryStore) notify(n *Notification) {
	for _, ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			m.log.Warn(
				"Dropping notification on saturated subscriber",
				slog.String("path", n.Path),
			)
		}
	}
}
