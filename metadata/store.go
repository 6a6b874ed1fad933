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

import (
	"context"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Version is the per-path modification counter reported by a store.
type Version int64

const VersionNotExists Version = -1

var (
	ErrPathNotFound      = status.Error(codes.NotFound, "talus: path not found")
	ErrPathAlreadyExists = status.Error(codes.AlreadyExists, "talus: path already exists")
	ErrInvalidPath       = status.Error(codes.InvalidArgument, "talus: invalid path")
	ErrStoreClosed       = status.Error(codes.Unavailable, "talus: store is closed")
)

// State is the live connectivity state of a store client.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type NotificationType int

const (
	NotificationCreated NotificationType = iota
	NotificationModified
	NotificationDeleted
)

func (n NotificationType) String() string {
	switch n {
	case NotificationCreated:
		return "Created"
	case NotificationModified:
		return "Modified"
	case NotificationDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Notification is a single change event on a store path. Child-set changes
// surface as events on the child path itself.
type Notification struct {
	Type NotificationType
	Path string
}

// Store is the hierarchical coordination store consumed by the control
// plane. Two independent instances are in play at runtime: one scoped to
// this cluster ("local" tier) and one shared across clusters ("global"
// tier).
//
// Every call is potentially blocking up to the store's own timeout; callers
// apply deadlines through the context.
type Store interface {
	io.Closer

	// Get returns the payload and version stored at path.
	// Returns ErrPathNotFound if the path is absent.
	Get(ctx context.Context, path string) ([]byte, Version, error)

	// Exists checks whether a document is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// ListChildren returns the sorted child names under path.
	// Returns ErrPathNotFound if path itself is absent, as opposed to an
	// empty child list for a present leaf.
	ListChildren(ctx context.Context, path string) ([]string, error)

	// CreateRecursive stores payload at path, creating any missing
	// intermediate levels. Returns ErrPathAlreadyExists if a document is
	// already present at path.
	CreateRecursive(ctx context.Context, path string, payload []byte) (Version, error)

	// Put replaces the payload of an existing document.
	Put(ctx context.Context, path string, payload []byte) (Version, error)

	// Delete removes the document at path together with its subtree.
	Delete(ctx context.Context, path string) error

	// ConnectionState reports the live connectivity state of the client.
	ConnectionState() State

	// Notifications registers a new subscription to the store change feed
	// and returns its channel. The channel is closed when the store is
	// closed.
	Notifications() <-chan *Notification
}
