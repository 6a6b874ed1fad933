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
	"fmt"
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
)

// NamespaceEnumerator lists all namespaces of a property across every
// cluster. It reads the global store directly, not through the cache:
// directory membership has to reflect concurrent create/delete immediately.
type NamespaceEnumerator struct {
	global metadata.Store
	log    *slog.Logger
}

func NewNamespaceEnumerator(global metadata.Store) *NamespaceEnumerator {
	return &NamespaceEnumerator{
		global: global,
		log:    slog.With(slog.String("component", "namespace-enumerator")),
	}
}

// ListNamespaces returns every "property/cluster/namespace" under the
// property, in lexicographic order. A cluster deleted between the two
// listing levels is skipped; any other failure propagates.
func (e *NamespaceEnumerator) ListNamespaces(ctx context.Context, property string) ([]string, error) {
	clusters, err := e.global.ListChildren(ctx, metadata.PoliciesPath(property))
	if err != nil {
		if errors.Is(err, metadata.ErrPathNotFound) {
			return nil, common.ErrPropertyNotFound
		}
		return nil, errors.Wrapf(err, "failed to list clusters of property %s", property)
	}

	namespaces := []string{}
	for _, cluster := range clusters {
		children, err := e.global.ListChildren(ctx, metadata.PoliciesPath(property, cluster))
		if err != nil {
			if errors.Is(err, metadata.ErrPathNotFound) {
				// The cluster was deleted between the two listing calls
				e.log.Debug(
					"Skipping concurrently deleted cluster",
					slog.String("property", property),
					slog.String("cluster", cluster),
				)
				continue
			}
			return nil, errors.Wrapf(err, "failed to list namespaces of %s/%s", property, cluster)
		}

		for _, namespace := range children {
			namespaces = append(namespaces, fmt.Sprintf("%s/%s/%s", property, cluster, namespace))
		}
	}

	sort.Strings(namespaces)
	return namespaces, nil
}
