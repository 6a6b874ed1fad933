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

package policies

// PropertyAdmin is the administrative document of one property (tenant).
type PropertyAdmin struct {
	AdminRoles      []string `json:"adminRoles"`
	AllowedClusters []string `json:"allowedClusters"`
}

// ClusterData holds the reachable endpoints of one cluster.
type ClusterData struct {
	ServiceURL       string `json:"serviceUrl"`
	BrokerServiceURL string `json:"brokerServiceUrl"`
}

// NamespaceIsolationData assigns a set of namespaces to a set of primary
// and secondary brokers.
type NamespaceIsolationData struct {
	Namespaces []string `json:"namespaces"`
	Primary    []string `json:"primary"`
	Secondary  []string `json:"secondary"`
}

// NamespaceIsolationPolicies is the per-cluster map of isolation policies,
// keyed by policy name.
type NamespaceIsolationPolicies map[string]NamespaceIsolationData
