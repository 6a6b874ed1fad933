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
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/streamnative/talus/bundle"
	"github.com/streamnative/talus/cache"
	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
	"github.com/streamnative/talus/policies"
)

// PolicyResolver serves the effective policy view of a namespace: the
// persisted document with the freshly computed bundle layout overlaid.
// The persisted bundle field may be arbitrarily stale and is never returned
// when a live layout is available; the overlay happens purely in memory and
// is never written back.
type PolicyResolver struct {
	policiesCache *cache.Cache[policies.NamespacePolicies]
	bundles       bundle.Factory
	log           *slog.Logger
}

func NewPolicyResolver(policiesCache *cache.Cache[policies.NamespacePolicies], bundles bundle.Factory) *PolicyResolver {
	return &PolicyResolver{
		policiesCache: policiesCache,
		bundles:       bundles,
		log:           slog.With(slog.String("component", "policy-resolver")),
	}
}

func (r *PolicyResolver) GetPolicies(ctx context.Context, property, cluster, namespace string) (*policies.NamespacePolicies, error) {
	path := metadata.PoliciesPath(property, cluster, namespace)

	persisted, err := r.policiesCache.Get(ctx, path)
	if err != nil {
		r.log.Error(
			"Failed to get namespace policies",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil, status.Errorf(codes.Internal,
			"talus: failed to get policies at %s: %s", path, err)
	}
	if persisted.Empty() {
		return nil, common.ErrNamespaceNotFound
	}

	// Clone before the overlay: the cached copy must stay untouched
	doc := persisted.MustGet()
	result := doc.Clone()

	computed, err := r.bundles.ComputeBundles(ctx,
		policies.NewNamespaceName(property, cluster, namespace))
	if err != nil {
		r.log.Error(
			"Failed to compute bundle layout",
			slog.String("namespace", property+"/"+cluster+"/"+namespace),
			slog.Any("error", err),
		)
		return nil, status.Errorf(codes.Internal,
			"talus: failed to compute bundles for %s/%s/%s: %s", property, cluster, namespace, err)
	}

	// A degenerate empty layout must not erase previously known bundles
	if computed != nil {
		result.Bundles = computed
	}
	return result, nil
}
