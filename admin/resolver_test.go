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

package admin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/streamnative/talus/bundle"
	"github.com/streamnative/talus/cache"
	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
	"github.com/streamnative/talus/policies"
)

func newResolverFixture(t *testing.T, factory bundle.Factory) (*PolicyResolver, *metadata.MemoryStore, func()) {
	t.Helper()

	store := metadata.NewMemoryStore()
	tier := cache.NewTier("local", store)
	policiesCache, err := cache.New[policies.NamespacePolicies](tier, "policies", json.Unmarshal)
	assert.NoError(t, err)

	return NewPolicyResolver(policiesCache, factory), store, func() {
		_ = tier.Close()
		_ = store.Close()
	}
}

func persistPolicies(t *testing.T, store *metadata.MemoryStore, ns policies.NamespaceName, p *policies.NamespacePolicies) {
	t.Helper()
	payload, err := json.Marshal(p)
	assert.NoError(t, err)
	_, err = store.CreateRecursive(context.Background(),
		metadata.PoliciesPath(ns.Property, ns.Cluster, ns.Namespace), payload)
	assert.NoError(t, err)
}

func TestPolicyResolver_NotFound(t *testing.T) {
	factory := bundle.NewHashRingFactory()
	resolver, _, closer := newResolverFixture(t, factory)
	defer closer()

	// Bundle-collaborator state is irrelevant for a missing document
	factory.SetBundleCount(policies.NewNamespaceName("p1", "c1", "ns1"), 4)

	_, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.ErrorIs(t, err, common.ErrNamespaceNotFound)
}

func TestPolicyResolver_OverlayFromLiveLayout(t *testing.T) {
	factory := bundle.NewHashRingFactory()
	resolver, store, closer := newResolverFixture(t, factory)
	defer closer()

	ns := policies.NewNamespaceName("p1", "c1", "ns1")
	persisted := &policies.NamespacePolicies{
		ReplicationClusters: []string{"c1"},
		Bundles: &policies.BundlesData{
			Boundaries: []string{"0x00000000", "0xffffffff"},
			NumBundles: 1,
		},
	}
	persistPolicies(t, store, ns, persisted)
	factory.SetBundleCount(ns, 2)

	result, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.NoError(t, err)

	// The stale persisted layout is replaced by the live one
	assert.Equal(t, 2, result.Bundles.NumBundles)
	assert.Equal(t, []string{"0x00000000", "0x80000000", "0xffffffff"}, result.Bundles.Boundaries)
	assert.Equal(t, []string{"c1"}, result.ReplicationClusters)
}

func TestPolicyResolver_EmptyLayoutKeepsPersisted(t *testing.T) {
	factory := bundle.NewHashRingFactory()
	resolver, store, closer := newResolverFixture(t, factory)
	defer closer()

	ns := policies.NewNamespaceName("p1", "c1", "ns1")
	persisted := &policies.NamespacePolicies{
		Bundles: &policies.BundlesData{
			Boundaries: []string{"0x00000000", "0xffffffff"},
			NumBundles: 1,
		},
	}
	persistPolicies(t, store, ns, persisted)

	result, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.NoError(t, err)
	assert.Equal(t, persisted.Bundles, result.Bundles)
}

func TestPolicyResolver_OverlayDoesNotTouchCache(t *testing.T) {
	factory := bundle.NewHashRingFactory()
	resolver, store, closer := newResolverFixture(t, factory)
	defer closer()

	ns := policies.NewNamespaceName("p1", "c1", "ns1")
	persistPolicies(t, store, ns, &policies.NamespacePolicies{
		Bundles: &policies.BundlesData{
			Boundaries: []string{"0x00000000", "0xffffffff"},
			NumBundles: 1,
		},
	})
	factory.SetBundleCount(ns, 4)

	first, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.NoError(t, err)
	assert.Equal(t, 4, first.Bundles.NumBundles)

	// A later read with a changed live layout starts again from the
	// persisted document, not from the previous overlay
	factory.SetBundleCount(ns, 8)
	second, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.NoError(t, err)
	assert.Equal(t, 8, second.Bundles.NumBundles)
	assert.Equal(t, 4, first.Bundles.NumBundles)
}

type failingFactory struct{}

func (failingFactory) ComputeBundles(context.Context, policies.NamespaceName) (*policies.BundlesData, error) {
	return nil, errors.New("ownership state unavailable")
}

func TestPolicyResolver_LayoutFailureIsInternal(t *testing.T) {
	resolver, store, closer := newResolverFixture(t, failingFactory{})
	defer closer()

	persistPolicies(t, store, policies.NewNamespaceName("p1", "c1", "ns1"),
		&policies.NamespacePolicies{})

	// A failed layout computation fails the read: fresh settings must not
	// be merged with stale partition data
	_, err := resolver.GetPolicies(context.Background(), "p1", "c1", "ns1")
	assert.Error(t, err)
	assert.Equal(t, codes.Internal, common.StatusCode(err))
}
