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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, version, err := s.Get(context.Background(), "/admin/policies/p1")
	assert.ErrorIs(t, err, ErrPathNotFound)
	assert.Equal(t, VersionNotExists, version)

	exists, err := s.Exists(context.Background(), "/admin/policies/p1")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_CreateRecursive(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	version, err := s.CreateRecursive(context.Background(), "/admin/policies/p1/c1/ns1", []byte(`{"a":1}`))
	assert.NoError(t, err)
	assert.EqualValues(t, 0, version)

	// Intermediate levels materialize with empty payloads
	for _, path := range []string{"/admin", "/admin/policies", "/admin/policies/p1", "/admin/policies/p1/c1"} {
		exists, err := s.Exists(context.Background(), path)
		assert.NoError(t, err)
		assert.True(t, exists, path)
	}

	payload, _, err := s.Get(context.Background(), "/admin/policies/p1/c1/ns1")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), payload)

	_, err = s.CreateRecursive(context.Background(), "/admin/policies/p1/c1/ns1", []byte(`{}`))
	assert.ErrorIs(t, err, ErrPathAlreadyExists)
}

func TestMemoryStore_ListChildren(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.ListChildren(context.Background(), "/admin/policies/p1")
	assert.ErrorIs(t, err, ErrPathNotFound)

	_, err = s.CreateRecursive(context.Background(), "/admin/policies/p1/c2/ns1", nil)
	assert.NoError(t, err)
	_, err = s.CreateRecursive(context.Background(), "/admin/policies/p1/c1/ns2", nil)
	assert.NoError(t, err)
	_, err = s.CreateRecursive(context.Background(), "/admin/policies/p1/c1/ns1", nil)
	assert.NoError(t, err)

	children, err := s.ListChildren(context.Background(), "/admin/policies/p1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, children)

	children, err = s.ListChildren(context.Background(), "/admin/policies/p1/c1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"ns1", "ns2"}, children)

	// A leaf has no children but is not an error
	children, err = s.ListChildren(context.Background(), "/admin/policies/p1/c1/ns1")
	assert.NoError(t, err)
	assert.Empty(t, children)
}

func TestMemoryStore_PutAndDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Put(context.Background(), "/admin/flags/x", []byte("1"))
	assert.ErrorIs(t, err, ErrPathNotFound)

	_, err = s.CreateRecursive(context.Background(), "/admin/flags/x", []byte("1"))
	assert.NoError(t, err)

	version, err := s.Put(context.Background(), "/admin/flags/x", []byte("2"))
	assert.NoError(t, err)
	assert.EqualValues(t, 1, version)

	payload, _, err := s.Get(context.Background(), "/admin/flags/x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("2"), payload)

	assert.NoError(t, s.Delete(context.Background(), "/admin/flags"))
	_, _, err = s.Get(context.Background(), "/admin/flags/x")
	assert.ErrorIs(t, err, ErrPathNotFound)

	assert.ErrorIs(t, s.Delete(context.Background(), "/admin/flags"), ErrPathNotFound)
}

func TestMemoryStore_Notifications(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ch := s.Notifications()

	_, err := s.CreateRecursive(context.Background(), "/admin/p", []byte("v"))
	assert.NoError(t, err)

	n := <-ch
	assert.Equal(t, NotificationCreated, n.Type)
	assert.Equal(t, "/admin", n.Path)
	n = <-ch
	assert.Equal(t, NotificationCreated, n.Type)
	assert.Equal(t, "/admin/p", n.Path)

	_, err = s.Put(context.Background(), "/admin/p", []byte("v2"))
	assert.NoError(t, err)
	n = <-ch
	assert.Equal(t, NotificationModified, n.Type)
	assert.Equal(t, "/admin/p", n.Path)

	assert.NoError(t, s.Delete(context.Background(), "/admin/p"))
	n = <-ch
	assert.Equal(t, NotificationDeleted, n.Type)
	assert.Equal(t, "/admin/p", n.Path)
}

func TestMemoryStore_SaturatedSubscriberDoesNotBlock(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ch := s.Notifications()

	// Far more events than the subscriber buffer holds, with no reader:
	// every mutation must still complete
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_, err := s.CreateRecursive(context.Background(), fmt.Sprintf("/admin/flags/f%03d", i), nil)
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		assert.Fail(t, "store mutations blocked on an undrained subscriber")
	}

	// The buffered prefix was delivered in order before the overflow
	n := <-ch
	assert.Equal(t, "/admin", n.Path)
	assert.Len(t, ch, notificationChanSize-1)
}

func TestMemoryStore_ConnectionState(t *testing.T) {
	s := NewMemoryStore()
	assert.Equal(t, StateConnected, s.ConnectionState())

	s.SetConnectionState(StateDisconnected)
	assert.Equal(t, StateDisconnected, s.ConnectionState())

	assert.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.ConnectionState())

	_, _, err := s.Get(context.Background(), "/admin/x")
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Closing twice is fine, subscriptions after close are closed channels
	assert.NoError(t, s.Close())
	_, ok := <-s.Notifications()
	assert.False(t, ok)
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, _, err := s.Get(context.Background(), "no-leading-slash")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.CreateRecursive(context.Background(), "/trailing/", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
}
