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

package common

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrPoliciesReadOnly rejects every mutating operation while the
	// cluster-wide read-only flag is set.
	ErrPoliciesReadOnly = status.Error(codes.PermissionDenied,
		"talus: policies are in read-only mode")

	// ErrGlobalStoreNotConnected rejects mutations whose effect could not
	// be observed because the session to the global store is down.
	ErrGlobalStoreNotConnected = status.Error(codes.FailedPrecondition,
		"talus: global configuration store is not connected")

	ErrNamespaceNotFound = status.Error(codes.NotFound,
		"talus: namespace does not exist")

	ErrPropertyNotFound = status.Error(codes.NotFound,
		"talus: property does not exist")
)

// StatusCode extracts the canonical code of an error, looking through
// wrapping applied along the way. Errors that carry no code map to Unknown.
func StatusCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	s, _ := status.FromError(errors.Cause(err))
	return s.Code()
}

func IsNotFound(err error) bool {
	return StatusCode(err) == codes.NotFound
}

func IsForbidden(err error) bool {
	return StatusCode(err) == codes.PermissionDenied
}

func IsPreconditionFailed(err error) bool {
	return StatusCode(err) == codes.FailedPrecondition
}
