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

// Package admin is the control-plane resolution layer of the broker: it
// answers what the current policy state of a resource is and which broker
// is authoritative for it, on top of the two coordination-store tiers.
package admin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/streamnative/talus/bundle"
	"github.com/streamnative/talus/cache"
	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
	"github.com/streamnative/talus/policies"
)

const isolationPoliciesNode = "namespaceIsolationPolicies"

// Service wires the resolution components over the two store tiers and
// sequences authorization, ownership routing and the read-only gate in
// front of them. The transport layer dispatches authenticated requests
// into it.
type Service struct {
	router     *OwnershipRouter
	gate       *ReadOnlyGate
	resolver   *PolicyResolver
	enumerator *NamespaceEnumerator
	authorizer Authorizer

	localTier  *cache.Tier
	globalTier *cache.Tier
	globalMeta *cache.MetaCache

	policiesCache   *cache.Cache[policies.NamespacePolicies]
	propertiesCache *cache.Cache[policies.PropertyAdmin]
	clustersCache   *cache.Cache[policies.ClusterData]
	isolationCache  *cache.Cache[policies.NamespaceIsolationPolicies]
}

func NewService(
	self BrokerAddress,
	localStore metadata.Store,
	globalStore metadata.Store,
	authorizer Authorizer,
	bundles bundle.Factory,
) (*Service, error) {
	localTier := cache.NewTier("local", localStore)
	globalTier := cache.NewTier("global", globalStore)

	globalMeta, err := cache.NewMeta(globalTier)
	if err != nil {
		return nil, err
	}

	policiesCache, err := cache.New[policies.NamespacePolicies](localTier, "policies", json.Unmarshal)
	if err != nil {
		return nil, err
	}
	propertiesCache, err := cache.New[policies.PropertyAdmin](globalTier, "properties", json.Unmarshal)
	if err != nil {
		return nil, err
	}
	clustersCache, err := cache.New[policies.ClusterData](globalTier, "clusters", json.Unmarshal)
	if err != nil {
		return nil, err
	}
	isolationCache, err := cache.New[policies.NamespaceIsolationPolicies](globalTier, "namespace-isolation", json.Unmarshal)
	if err != nil {
		return nil, err
	}

	return &Service{
		router:     NewOwnershipRouter(self),
		gate:       NewReadOnlyGate(globalTier, globalMeta),
		resolver:   NewPolicyResolver(policiesCache, bundles),
		enumerator: NewNamespaceEnumerator(globalStore),
		authorizer: authorizer,

		localTier:  localTier,
		globalTier: globalTier,
		globalMeta: globalMeta,

		policiesCache:   policiesCache,
		propertiesCache: propertiesCache,
		clustersCache:   clustersCache,
		isolationCache:  isolationCache,
	}, nil
}

// EnsureLocalBroker checks whether this process is the broker named in the
// request; a non-nil Redirect tells the transport to re-issue the request
// against the owning broker.
func (s *Service) EnsureLocalBroker(brokerLabel string, req RequestTarget) (*Redirect, error) {
	return s.router.EnsureLocal(brokerLabel, req)
}

// CheckWritable gates every mutating operation.
func (s *Service) CheckWritable(ctx context.Context) error {
	return s.gate.CheckWritable(ctx)
}

// GetNamespacePolicies returns the namespace's persisted policies with the
// live bundle layout overlaid.
func (s *Service) GetNamespacePolicies(ctx context.Context, property, cluster, namespace string) (*policies.NamespacePolicies, error) {
	if err := s.authorizer.ValidateAdminAccessOnProperty(ctx, property); err != nil {
		return nil, err
	}
	return s.resolver.GetPolicies(ctx, property, cluster, namespace)
}

// ListNamespaces lists every namespace of the property on every cluster.
func (s *Service) ListNamespaces(ctx context.Context, property string) ([]string, error) {
	if err := s.authorizer.ValidateAdminAccessOnProperty(ctx, property); err != nil {
		return nil, err
	}
	return s.enumerator.ListNamespaces(ctx, property)
}

// Clusters returns the names of all registered clusters.
func (s *Service) Clusters(ctx context.Context) ([]string, error) {
	return s.globalMeta.Children(ctx, metadata.ClustersPath())
}

// GetCluster returns the endpoints document of one cluster.
func (s *Service) GetCluster(ctx context.Context, name string) (*policies.ClusterData, error) {
	opt, err := s.clustersCache.Get(ctx, metadata.ClustersPath(name))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "talus: failed to get cluster %s: %s", name, err)
	}
	if opt.Empty() {
		return nil, status.Errorf(codes.NotFound, "talus: cluster does not exist: %s", name)
	}
	data := opt.MustGet()
	return &data, nil
}

// GetProperty returns the administrative document of one property.
func (s *Service) GetProperty(ctx context.Context, name string) (*policies.PropertyAdmin, error) {
	if err := s.authorizer.ValidateAdminAccessOnProperty(ctx, name); err != nil {
		return nil, err
	}

	opt, err := s.propertiesCache.Get(ctx, metadata.PoliciesPath(name))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "talus: failed to get property %s: %s", name, err)
	}
	if opt.Empty() {
		return nil, common.ErrPropertyNotFound
	}
	admin := opt.MustGet()
	return &admin, nil
}

// GetNamespaceIsolationPolicies returns the isolation policies of one
// cluster, or an empty map when none are defined.
func (s *Service) GetNamespaceIsolationPolicies(ctx context.Context, cluster string) (policies.NamespaceIsolationPolicies, error) {
	if err := s.authorizer.ValidateSuperUserAccess(ctx); err != nil {
		return nil, err
	}

	opt, err := s.isolationCache.Get(ctx, metadata.ClustersPath(cluster, isolationPoliciesNode))
	if err != nil {
		return nil, status.Errorf(codes.Internal,
			"talus: failed to get isolation policies of cluster %s: %s", cluster, err)
	}
	if opt.Empty() {
		return policies.NamespaceIsolationPolicies{}, nil
	}
	return opt.MustGet(), nil
}

// CreateProperty registers a new property on the global tier. Transient
// store failures are retried with backoff until the context expires.
func (s *Service) CreateProperty(ctx context.Context, name string, admin policies.PropertyAdmin) error {
	if err := s.authorizer.ValidateSuperUserAccess(ctx); err != nil {
		return err
	}
	if err := s.gate.CheckWritable(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(admin)
	if err != nil {
		return status.Errorf(codes.Internal, "talus: failed to serialize property %s: %s", name, err)
	}

	path := metadata.PoliciesPath(name)
	err = backoff.Retry(func() error {
		_, err := s.globalTier.Store().CreateRecursive(ctx, path, payload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, metadata.ErrPathAlreadyExists):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			return err
		}
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))

	if errors.Is(err, metadata.ErrPathAlreadyExists) {
		return status.Errorf(codes.AlreadyExists, "talus: property already exists: %s", name)
	}
	return err
}

// DomainOf classifies the destination domain of a request path.
func (s *Service) DomainOf(requestPath string) (string, error) {
	path := strings.TrimPrefix(requestPath, "/")
	switch {
	case strings.HasPrefix(path, "queues/"):
		return "queue", nil
	case strings.HasPrefix(path, "topics/"):
		return "topic", nil
	case strings.HasPrefix(path, "persistent/"):
		return "persistent", nil
	default:
		return "", status.Errorf(codes.Internal,
			"talus: domain lookup invoked from wrong resource: %s", requestPath)
	}
}

// ValidateBundleOwnership defers to the authorization collaborator.
func (s *Service) ValidateBundleOwnership(ctx context.Context, namespace policies.NamespaceName, bundleRange string) error {
	return s.authorizer.ValidateBundleOwnership(ctx, namespace, bundleRange)
}

func (s *Service) Close() error {
	return multierr.Append(
		s.localTier.Close(),
		s.globalTier.Close(),
	)
}
