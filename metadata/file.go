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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/streamnative/talus/common"
)

// valueFileName holds a node's payload inside its directory. Intermediate
// hierarchy levels are plain directories without it.
const valueFileName = ".value"

// FileStore keeps the hierarchy as a directory tree under a root path and
// derives change notifications from filesystem events, so out-of-process
// edits are observed the same way as store mutations.
type FileStore struct {
	sync.Mutex

	root    string
	watcher *fsnotify.Watcher
	log     *slog.Logger

	state       State
	subscribers []chan *Notification
	closed      bool
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create store root")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filesystem watcher")
	}

	f := &FileStore{
		root:    root,
		watcher: watcher,
		state:   StateConnected,
		log: slog.With(
			slog.String("component", "file-metadata-store"),
			slog.String("root", root),
		),
	}

	if err = f.watchTree(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go common.DoWithLabels(map[string]string{
		"talus": "file-store-watcher",
	}, f.run)

	return f, nil
}

func (f *FileStore) run() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handleEvent(event)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn(
				"Filesystem watcher error",
				slog.Any("error", err),
			)
			f.Lock()
			if !f.closed {
				f.state = StateDisconnected
			}
			f.Unlock()
		}
	}
}

func (f *FileStore) handleEvent(event fsnotify.Event) {
	path, isValue := f.storePath(event.Name)
	if path == "" {
		return
	}

	var n *Notification
	switch {
	case event.Op.Has(fsnotify.Create):
		if !isValue {
			// Newly created node directory: start watching it so nested
			// changes are observed as well
			if err := f.watcher.Add(event.Name); err != nil {
				f.log.Warn(
					"Failed to watch new node",
					slog.String("path", path),
					slog.Any("error", err),
				)
			}
		}
		n = &Notification{Type: NotificationCreated, Path: path}
	case event.Op.Has(fsnotify.Write):
		n = &Notification{Type: NotificationModified, Path: path}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		n = &Notification{Type: NotificationDeleted, Path: path}
	default:
		return
	}

	f.Lock()
	defer f.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subscribers {
		select {
		case ch <- n:
		default:
			f.log.Warn(
				"Dropping notification on saturated subscriber",
				slog.String("path", n.Path),
			)
		}
	}
}

// storePath maps a filesystem path back to the store path it represents.
// The second result is true when the event was on a node's value file.
func (f *FileStore) storePath(fsPath string) (string, bool) {
	rel, err := filepath.Rel(f.root, fsPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	path := "/" + filepath.ToSlash(rel)
	if strings.HasSuffix(path, "/"+valueFileName) {
		return strings.TrimSuffix(path, "/"+valueFileName), true
	}
	if strings.Contains(filepath.Base(path), ".") {
		// Ignore editor temp files and other non-node artifacts
		return "", false
	}
	return path, false
}

func (f *FileStore) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return f.watcher.Add(p)
		}
		return nil
	})
}

func (f *FileStore) nodeDir(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

func (f *FileStore) ConnectionState() State {
	f.Lock()
	defer f.Unlock()
	return f.state
}

func (f *FileStore) Notifications() <-chan *Notification {
	f.Lock()
	defer f.Unlock()

	ch := make(chan *Notification, notificationChanSize)
	if f.closed {
		close(ch)
		return ch
	}
	f.subscribers = append(f.subscribers, ch)
	return ch
}

func (f *FileStore) Get(ctx context.Context, path string) ([]byte, Version, error) {
	if err := f.check(ctx, path); err != nil {
		return nil, VersionNotExists, err
	}

	dir := f.nodeDir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, VersionNotExists, ErrPathNotFound
		}
		return nil, VersionNotExists, errors.Wrapf(err, "failed to read %s", path)
	}
	if !info.IsDir() {
		return nil, VersionNotExists, ErrPathNotFound
	}

	payload, err := os.ReadFile(filepath.Join(dir, valueFileName))
	if err != nil {
		if os.IsNotExist(err) {
			// Intermediate node without a payload
			return nil, 0, nil
		}
		return nil, VersionNotExists, errors.Wrapf(err, "failed to read %s", path)
	}

	valueInfo, err := os.Stat(filepath.Join(dir, valueFileName))
	if err != nil {
		return nil, VersionNotExists, errors.Wrapf(err, "failed to read %s", path)
	}
	return payload, Version(valueInfo.ModTime().UnixNano()), nil
}

func (f *FileStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := f.check(ctx, path); err != nil {
		return false, err
	}

	info, err := os.Stat(f.nodeDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat %s", path)
	}
	return info.IsDir(), nil
}

func (f *FileStore) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := f.check(ctx, path); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.nodeDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotFound
		}
		return nil, errors.Wrapf(err, "failed to list children of %s", path)
	}

	// os.ReadDir returns entries sorted by name
	children := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			children = append(children, entry.Name())
		}
	}
	return children, nil
}

func (f *FileStore) CreateRecursive(ctx context.Context, path string, payload []byte) (Version, error) {
	if err := f.check(ctx, path); err != nil {
		return VersionNotExists, err
	}

	dir := f.nodeDir(path)
	valueFile := filepath.Join(dir, valueFileName)
	if _, err := os.Stat(valueFile); err == nil {
		return VersionNotExists, ErrPathAlreadyExists
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return VersionNotExists, errors.Wrapf(err, "failed to create %s", path)
	}
	if err := f.watchTree(dir); err != nil {
		return VersionNotExists, errors.Wrapf(err, "failed to watch %s", path)
	}
	if err := os.WriteFile(valueFile, payload, 0640); err != nil {
		return VersionNotExists, errors.Wrapf(err, "failed to create %s", path)
	}

	return 0, nil
}

func (f *FileStore) Put(ctx context.Context, path string, payload []byte) (Version, error) {
	if err := f.check(ctx, path); err != nil {
		return VersionNotExists, err
	}

	exists, err := f.Exists(ctx, path)
	if err != nil {
		return VersionNotExists, err
	}
	if !exists {
		return VersionNotExists, ErrPathNotFound
	}

	valueFile := filepath.Join(f.nodeDir(path), valueFileName)
	if err := os.WriteFile(valueFile, payload, 0640); err != nil {
		return VersionNotExists, errors.Wrapf(err, "failed to update %s", path)
	}

	info, err := os.Stat(valueFile)
	if err != nil {
		return VersionNotExists, errors.Wrapf(err, "failed to update %s", path)
	}
	return Version(info.ModTime().UnixNano()), nil
}

func (f *FileStore) Delete(ctx context.Context, path string) error {
	if err := f.check(ctx, path); err != nil {
		return err
	}

	exists, err := f.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPathNotFound
	}

	return errors.Wrapf(os.RemoveAll(f.nodeDir(path)), "failed to delete %s", path)
}

func (f *FileStore) Close() error {
	f.Lock()
	defer f.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.state = StateClosed
	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
	return f.watcher.Close()
}

func (f *FileStore) check(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}

	f.Lock()
	defer f.Unlock()
	if f.closed {
		return ErrStoreClosed
	}
	return nil
}
