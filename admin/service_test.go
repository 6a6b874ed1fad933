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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/streamnative/talus/bundle"
	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
	"github.com/streamnative/talus/policies"
)

type serviceFixture struct {
	svc    *Service
	local  *metadata.MemoryStore
	global metadata.Store
}

func newServiceFixture(t *testing.T, authorizer Authorizer, global metadata.Store) (*serviceFixture, func()) {
	t.Helper()

	local := metadata.NewMemoryStore()
	if global == nil {
		global = metadata.NewMemoryStore()
	}

	svc, err := NewService(
		BrokerAddress{Host: "broker-1.example.com", Port: 8080},
		local, global, authorizer, bundle.NewHashRingFactory(),
	)
	assert.NoError(t, err)

	return &serviceFixture{svc: svc, local: local, global: global}, func() {
		assert.NoError(t, svc.Close())
		_ = local.Close()
		_ = global.Close()
	}
}

func TestService_CreatePropertyRoundTrip(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	ctx := context.Background()
	admin := policies.PropertyAdmin{
		AdminRoles:      []string{"ops"},
		AllowedClusters: []string{"c1", "c2"},
	}
	assert.NoError(t, f.svc.CreateProperty(ctx, "tenantA", admin))

	got, err := f.svc.GetProperty(ctx, "tenantA")
	assert.NoError(t, err)
	assert.Equal(t, admin, *got)
}

func TestService_CreatePropertyConflict(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	ctx := context.Background()
	assert.NoError(t, f.svc.CreateProperty(ctx, "tenantA", policies.PropertyAdmin{}))

	err := f.svc.CreateProperty(ctx, "tenantA", policies.PropertyAdmin{})
	assert.Equal(t, codes.AlreadyExists, common.StatusCode(err))
}

func TestService_CreatePropertyReadOnly(t *testing.T) {
	global := metadata.NewMemoryStore()
	_, err := global.CreateRecursive(context.Background(), metadata.PoliciesReadOnlyFlagPath, nil)
	assert.NoError(t, err)

	f, closer := newServiceFixture(t, AllowAll{}, global)
	defer closer()

	err = f.svc.CreateProperty(context.Background(), "tenantA", policies.PropertyAdmin{})
	assert.ErrorIs(t, err, common.ErrPoliciesReadOnly)
}

type denyAuthorizer struct{}

func (denyAuthorizer) ValidateSuperUserAccess(context.Context) error {
	return status.Error(codes.PermissionDenied, "talus: super-user access required")
}

func (denyAuthorizer) ValidateAdminAccessOnProperty(_ context.Context, property string) error {
	return status.Errorf(codes.PermissionDenied, "talus: no admin access on property %s", property)
}

func (denyAuthorizer) ValidateBundleOwnership(context.Context, policies.NamespaceName, string) error {
	return status.Error(codes.PermissionDenied, "talus: bundle not owned")
}

func TestService_AuthorizationDenied(t *testing.T) {
	f, closer := newServiceFixture(t, denyAuthorizer{}, nil)
	defer closer()

	ctx := context.Background()

	err := f.svc.CreateProperty(ctx, "tenantA", policies.PropertyAdmin{})
	assert.Equal(t, codes.PermissionDenied, common.StatusCode(err))

	_, err = f.svc.GetProperty(ctx, "tenantA")
	assert.Equal(t, codes.PermissionDenied, common.StatusCode(err))

	_, err = f.svc.ListNamespaces(ctx, "tenantA")
	assert.Equal(t, codes.PermissionDenied, common.StatusCode(err))

	_, err = f.svc.GetNamespacePolicies(ctx, "tenantA", "c1", "ns1")
	assert.Equal(t, codes.PermissionDenied, common.StatusCode(err))
}

// transientCreateStore fails the first create attempts with a retryable
// error before letting the call through.
type transientCreateStore struct {
	metadata.Store
	failures atomic.Int32
	attempts atomic.Int32
}

func (s *transientCreateStore) CreateRecursive(ctx context.Context, path string, payload []byte) (metadata.Version, error) {
	s.attempts.Add(1)
	if s.failures.Add(-1) >= 0 {
		return metadata.VersionNotExists, status.Error(codes.Unavailable, "talus: session lost")
	}
	return s.Store.CreateRecursive(ctx, path, payload)
}

func TestService_CreatePropertyRetriesTransientFailure(t *testing.T) {
	global := &transientCreateStore{Store: metadata.NewMemoryStore()}
	global.failures.Store(1)

	f, closer := newServiceFixture(t, AllowAll{}, global)
	defer closer()

	ctx := context.Background()
	assert.NoError(t, f.svc.CreateProperty(ctx, "tenantA", policies.PropertyAdmin{}))
	assert.EqualValues(t, 2, global.attempts.Load())

	got, err := f.svc.GetProperty(ctx, "tenantA")
	assert.NoError(t, err)
	assert.Equal(t, policies.PropertyAdmin{}, *got)
}

func TestService_Clusters(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	ctx := context.Background()
	clusters, err := f.svc.Clusters(ctx)
	assert.NoError(t, err)
	assert.Empty(t, clusters)

	data, err := json.Marshal(policies.ClusterData{
		ServiceURL:       "http://c1.example.com:8080",
		BrokerServiceURL: "pulsar://c1.example.com:6650",
	})
	assert.NoError(t, err)
	_, err = f.global.CreateRecursive(ctx, metadata.ClustersPath("c1"), data)
	assert.NoError(t, err)
	_, err = f.global.CreateRecursive(ctx, metadata.ClustersPath("c2"), []byte("{}"))
	assert.NoError(t, err)

	// The membership cache is invalidated by the create notifications
	assert.Eventually(t, func() bool {
		clusters, err = f.svc.Clusters(ctx)
		return err == nil && len(clusters) == 2
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"c1", "c2"}, clusters)

	cluster, err := f.svc.GetCluster(ctx, "c1")
	assert.NoError(t, err)
	assert.Equal(t, "http://c1.example.com:8080", cluster.ServiceURL)
	assert.Equal(t, "pulsar://c1.example.com:6650", cluster.BrokerServiceURL)

	_, err = f.svc.GetCluster(ctx, "c3")
	assert.Equal(t, codes.NotFound, common.StatusCode(err))
}

func TestService_GetNamespaceIsolationPolicies(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	ctx := context.Background()

	// No document yet: an empty map, not an error
	isolation, err := f.svc.GetNamespaceIsolationPolicies(ctx, "c1")
	assert.NoError(t, err)
	assert.Empty(t, isolation)

	data, err := json.Marshal(policies.NamespaceIsolationPolicies{
		"strict": {Namespaces: []string{"tenantA/c1/ns1"}},
	})
	assert.NoError(t, err)
	_, err = f.global.CreateRecursive(ctx,
		metadata.ClustersPath("c1", "namespaceIsolationPolicies"), data)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		isolation, err = f.svc.GetNamespaceIsolationPolicies(ctx, "c1")
		return err == nil && len(isolation) == 1
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"tenantA/c1/ns1"}, isolation["strict"].Namespaces)
}

func TestService_GetNamespacePolicies(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	ctx := context.Background()
	data, err := json.Marshal(policies.NamespacePolicies{
		ReplicationClusters: []string{"c1", "c2"},
	})
	assert.NoError(t, err)
	_, err = f.local.CreateRecursive(ctx, metadata.PoliciesPath("tenantA", "c1", "ns1"), data)
	assert.NoError(t, err)

	got, err := f.svc.GetNamespacePolicies(ctx, "tenantA", "c1", "ns1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, got.ReplicationClusters)

	_, err = f.svc.GetNamespacePolicies(ctx, "tenantA", "c1", "no-such-ns")
	assert.ErrorIs(t, err, common.ErrNamespaceNotFound)
}

func TestService_DomainOf(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	for path, domain := range map[string]string{
		"/queues/tenantA/c1/ns1/q1":     "queue",
		"/topics/tenantA/c1/ns1/t1":     "topic",
		"/persistent/tenantA/c1/ns1/t1": "persistent",
	} {
		got, err := f.svc.DomainOf(path)
		assert.NoError(t, err)
		assert.Equal(t, domain, got)
	}

	_, err := f.svc.DomainOf("/clusters/c1")
	assert.Equal(t, codes.Internal, common.StatusCode(err))
}

func TestService_EnsureLocalBroker(t *testing.T) {
	f, closer := newServiceFixture(t, AllowAll{}, nil)
	defer closer()

	req := RequestTarget{Scheme: "http", Host: "broker-1.example.com", Port: 8080, Path: "/admin/clusters"}

	redirect, err := f.svc.EnsureLocalBroker("broker-1.example.com:8080", req)
	assert.NoError(t, err)
	assert.Nil(t, redirect)

	redirect, err = f.svc.EnsureLocalBroker("broker-2.example.com:8080", req)
	assert.NoError(t, err)
	assert.NotNil(t, redirect)
	assert.Equal(t, "broker-2.example.com", redirect.Target.Host)
}
