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

	"github.com/streamnative/talus/cache"
	"github.com/streamnative/talus/common"
	"github.com/streamnative/talus/metadata"
)

// ReadOnlyGate decides whether mutating operations are currently permitted,
// from the read-only flag document on the global tier and the live
// connectivity of the global store.
//
// The two failure modes are deliberately distinct: an operator freeze is
// user-correctable (PermissionDenied), while missing global connectivity is
// transient (FailedPrecondition). Callers surface the first and retry the
// second.
type ReadOnlyGate struct {
	global     *cache.Tier
	globalMeta *cache.MetaCache
	log        *slog.Logger
}

func NewReadOnlyGate(global *cache.Tier, globalMeta *cache.MetaCache) *ReadOnlyGate {
	return &ReadOnlyGate{
		global:     global,
		globalMeta: globalMeta,
		log:        slog.With(slog.String("component", "read-only-gate")),
	}
}

// CheckWritable fails unless a mutating operation can safely proceed.
// If the flag lookup itself fails the gate treats the system as read-only:
// fail safe, never fail open.
func (g *ReadOnlyGate) CheckWritable(ctx context.Context) error {
	readOnly, err := g.globalMeta.Exists(ctx, metadata.PoliciesReadOnlyFlagPath)
	if err != nil {
		g.log.Warn(
			"Unable to fetch read-only flag from the global store",
			slog.String("path", metadata.PoliciesReadOnlyFlagPath),
			slog.Any("error", err),
		)
		return status.Errorf(codes.Internal,
			"talus: failed to fetch read-only flag: %s", err)
	}

	if readOnly {
		g.log.Debug("Policies are read-only. Broker cannot do read-write operations")
		return common.ErrPoliciesReadOnly
	}

	if state := g.global.ConnectionState(); state != metadata.StateConnected {
		g.log.Debug(
			"Broker is not connected to the global store",
			slog.String("state", state.String()),
		)
		return common.ErrGlobalStoreNotConnected
	}

	return nil
}
