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

// BundlesData is the current partition layout of a namespace's key range:
// ordered hash boundaries, each bundle owning [boundary[i], boundary[i+1]).
type BundlesData struct {
	Boundaries []string `json:"boundaries"`
	NumBundles int      `json:"numBundles"`
}

func (b *BundlesData) Clone() *BundlesData {
	if b == nil {
		return nil
	}
	return &BundlesData{
		Boundaries: append([]string{}, b.Boundaries...),
		NumBundles: b.NumBundles,
	}
}

type AuthPolicies struct {
	NamespaceAuth   map[string][]string            `json:"namespace_auth"`
	DestinationAuth map[string]map[string][]string `json:"destination_auth"`
}

type BacklogQuota struct {
	Limit  int64  `json:"limit"`
	Policy string `json:"policy"`
}

type RetentionPolicies struct {
	RetentionTimeInMinutes int `json:"retentionTimeInMinutes"`
	RetentionSizeInMB      int `json:"retentionSizeInMB"`
}

type PersistencePolicies struct {
	BookkeeperEnsemble             int     `json:"bookkeeperEnsemble"`
	BookkeeperWriteQuorum          int     `json:"bookkeeperWriteQuorum"`
	BookkeeperAckQuorum            int     `json:"bookkeeperAckQuorum"`
	ManagedLedgerMaxMarkDeleteRate float64 `json:"managedLedgerMaxMarkDeleteRate"`
}

// NamespacePolicies is the persisted multi-tenant policy document of one
// namespace. It is read-only from the resolution layer: the only mutation
// ever applied is the in-memory overlay of the freshly computed bundle
// layout before the document is returned to a caller.
type NamespacePolicies struct {
	AuthPolicies        AuthPolicies `json:"auth_policies"`
	ReplicationClusters []string     `json:"replication_clusters"`

	// Bundles is overwritten at read time with the layout computed from
	// live ownership state; the persisted value may be arbitrarily stale.
	Bundles *BundlesData `json:"bundles,omitempty"`

	BacklogQuotaMap        map[string]BacklogQuota `json:"backlog_quota_map"`
	Persistence            *PersistencePolicies    `json:"persistence,omitempty"`
	Retention              *RetentionPolicies      `json:"retention_policies,omitempty"`
	LatencyStatsSampleRate int                     `json:"latency_stats_sample_rate"`
	MessageTTLInSeconds    int                     `json:"message_ttl_in_seconds"`
}

func (p *NamespacePolicies) Clone() *NamespacePolicies {
	if p == nil {
		return nil
	}

	clone := &NamespacePolicies{
		AuthPolicies: AuthPolicies{
			NamespaceAuth:   map[string][]string{},
			DestinationAuth: map[string]map[string][]string{},
		},
		ReplicationClusters:    append([]string{}, p.ReplicationClusters...),
		Bundles:                p.Bundles.Clone(),
		LatencyStatsSampleRate: p.LatencyStatsSampleRate,
		MessageTTLInSeconds:    p.MessageTTLInSeconds,
	}

	for k, v := range p.AuthPolicies.NamespaceAuth {
		clone.AuthPolicies.NamespaceAuth[k] = append([]string{}, v...)
	}
	for dest, roles := range p.AuthPolicies.DestinationAuth {
		m := map[string][]string{}
		for k, v := range roles {
			m[k] = append([]string{}, v...)
		}
		clone.AuthPolicies.DestinationAuth[dest] = m
	}

	if p.BacklogQuotaMap != nil {
		clone.BacklogQuotaMap = map[string]BacklogQuota{}
		for k, v := range p.BacklogQuotaMap {
			clone.BacklogQuotaMap[k] = v
		}
	}
	if p.Persistence != nil {
		persistence := *p.Persistence
		clone.Persistence = &persistence
	}
	if p.Retention != nil {
		retention := *p.Retention
		clone.Retention = &retention
	}
	return clone
}
