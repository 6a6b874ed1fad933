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

import "sync"

// loadTracker orders cache population against notification delivery.
// A store fetch that was in flight when its path got invalidated must not
// populate the cache: its result may predate the change the notification
// reported, and the entry would then stay stale until the TTL.
type loadTracker struct {
	sync.Mutex
	loads map[string]*inflightLoad
}

type inflightLoad struct {
	refs       int
	generation uint64
}

func newLoadTracker() *loadTracker {
	return &loadTracker{loads: map[string]*inflightLoad{}}
}

// begin marks a load on key as in flight and returns the key's current
// invalidation generation.
func (t *loadTracker) begin(key string) uint64 {
	t.Lock()
	defer t.Unlock()

	l, ok := t.loads[key]
	if !ok {
		l = &inflightLoad{}
		t.loads[key] = l
	}
	l.refs++
	return l.generation
}

// end finishes a load begun at the given generation, running store only if
// no invalidation arrived in between. The callback runs under the tracker
// lock, so an invalidation is ordered either fully before or fully after
// the population it guards.
func (t *loadTracker) end(key string, generation uint64, store func()) {
	t.Lock()
	defer t.Unlock()

	l := t.loads[key]
	if l.generation == generation && store != nil {
		store()
	}
	l.refs--
	if l.refs == 0 {
		delete(t.loads, key)
	}
}

// invalidate supersedes every load currently in flight on key.
func (t *loadTracker) invalidate(key string) {
	t.Lock()
	defer t.Unlock()

	if l, ok := t.loads[key]; ok {
		l.generation++
	}
}
