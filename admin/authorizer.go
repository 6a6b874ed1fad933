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

	"github.com/streamnative/talus/policies"
)

// Authorizer is the pass/fail authorization collaborator. Rule evaluation
// happens elsewhere; this layer only sequences the checks before privileged
// operations and propagates a denial verbatim.
type Authorizer interface {
	// ValidateSuperUserAccess passes only for the super-user roles.
	ValidateSuperUserAccess(ctx context.Context) error

	// ValidateAdminAccessOnProperty passes for super-users and for the
	// admin roles of the property.
	ValidateAdminAccessOnProperty(ctx context.Context, property string) error

	// ValidateBundleOwnership passes when this broker may act on the given
	// bundle of the namespace.
	ValidateBundleOwnership(ctx context.Context, namespace policies.NamespaceName, bundle string) error
}

// AllowAll authorizes everything. Used in standalone mode and tests.
type AllowAll struct{}

func (AllowAll) ValidateSuperUserAccess(context.Context) error { return nil }

func (AllowAll) ValidateAdminAccessOnProperty(context.Context, string) error { return nil }

func (AllowAll) ValidateBundleOwnership(context.Context, policies.NamespaceName, string) error {
	return nil
}
