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

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NamespaceName identifies one namespace as the
// (property, cluster, namespace) triple.
type NamespaceName struct {
	Property  string
	Cluster   string
	Namespace string
}

func NewNamespaceName(property, cluster, namespace string) NamespaceName {
	return NamespaceName{
		Property:  property,
		Cluster:   cluster,
		Namespace: namespace,
	}
}

// ParseNamespaceName parses the "property/cluster/namespace" form.
func ParseNamespaceName(name string) (NamespaceName, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return NamespaceName{}, status.Errorf(codes.InvalidArgument,
			"talus: invalid namespace name: %s", name)
	}
	return NewNamespaceName(parts[0], parts[1], parts[2]), nil
}

func (n NamespaceName) String() string {
	return fmt.Sprintf("%s/%s/%s", n.Property, n.Cluster, n.Namespace)
}
