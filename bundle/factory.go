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

// Package bundle computes the current partition layout of a namespace's
// key range from live ownership state. Layouts are recomputed on every
// request and never persisted or cached by this layer.
package bundle

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/policies"
)

const (
	// FirstBoundary and LastBoundary delimit the full 32-bit hash ring.
	FirstBoundary = "0x00000000"
	LastBoundary  = "0xffffffff"

	fullRange = uint64(1) << 32
)

// Factory computes the live bundle layout of a namespace. A nil result with
// a nil error means the factory has no layout for that namespace; callers
// must then keep whatever layout they already know.
type Factory interface {
	ComputeBundles(ctx context.Context, namespace policies.NamespaceName) (*policies.BundlesData, error)
}

// HashRingFactory splits the 32-bit hash ring into equal bundles. The per
// namespace bundle count is fed from live ownership state, not from the
// persisted policy document.
type HashRingFactory struct {
	sync.RWMutex

	counts map[string]int
}

func NewHashRingFactory() *HashRingFactory {
	return &HashRingFactory{
		counts: map[string]int{},
	}
}

// SetBundleCount records the live bundle count of a namespace.
func (f *HashRingFactory) SetBundleCount(namespace policies.NamespaceName, count int) {
	f.Lock()
	defer f.Unlock()
	f.counts[namespace.String()] = count
}

func (f *HashRingFactory) ComputeBundles(_ context.Context, namespace policies.NamespaceName) (*policies.BundlesData, error) {
	f.RLock()
	count, ok := f.counts[namespace.String()]
	f.RUnlock()

	if !ok {
		return nil, nil
	}
	if count <= 0 {
		return nil, status.Errorf(codes.Internal,
			"talus: invalid bundle count %d for namespace %s", count, namespace)
	}

	boundaries := make([]string, count+1)
	boundaries[0] = FirstBoundary
	for i := 1; i < count; i++ {
		boundaries[i] = fmt.Sprintf("0x%08x", uint64(i)*fullRange/uint64(count))
	}
	boundaries[count] = LastBoundary

	return &policies.BundlesData{
		Boundaries: boundaries,
		NumBundles: count,
	}, nil
}

// FindBundle locates the bundle owning the topic within the given layout,
// returning the index of the bundle's lower boundary.
func FindBundle(topic string, bundles *policies.BundlesData) (int, error) {
	if bundles == nil || len(bundles.Boundaries) < 2 {
		return 0, status.Errorf(codes.Internal,
			"talus: no bundle layout available for topic %s", topic)
	}

	hash := uint64(common.Xxh332(topic))
	idx := sort.Search(len(bundles.Boundaries), func(i int) bool {
		b, err := strconv.ParseUint(bundles.Boundaries[i], 0, 64)
		return err == nil && b > hash
	})
	if idx == len(bundles.Boundaries) {
		// Top boundary is an inclusive max
		idx--
	}
	if idx == 0 {
		return 0, status.Errorf(codes.Internal,
			"talus: hash 0x%08x outside bundle layout for topic %s", hash, topic)
	}
	return idx - 1, nil
}
