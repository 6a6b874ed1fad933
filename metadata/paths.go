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

import "strings"

const (
	adminRoot = "/admin"

	// PoliciesReadOnlyFlagPath marks the whole control plane as read-only
	// when a document exists there on the global tier.
	PoliciesReadOnlyFlagPath = "/admin/flags/policies-readonly"

	// LoadSheddingUnloadDisabledFlagPath is consumed by the load manager;
	// it is only addressed by name from this layer.
	LoadSheddingUnloadDisabledFlagPath = "/admin/flags/load-shedding-unload-disabled"
)

// Path composes an absolute document path under the admin root.
func Path(parts ...string) string {
	return adminRoot + "/" + strings.Join(parts, "/")
}

// PoliciesPath addresses the policies hierarchy: the property node at
// PoliciesPath(property), the per-cluster level one below and the namespace
// policy document at PoliciesPath(property, cluster, namespace).
func PoliciesPath(parts ...string) string {
	return Path(append([]string{"policies"}, parts...)...)
}

// ClustersPath addresses the cluster registry.
func ClustersPath(parts ...string) string {
	return Path(append([]string{"clusters"}, parts...)...)
}

// Split breaks a store path into its segments.
func Split(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
