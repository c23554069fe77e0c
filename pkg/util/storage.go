/*
Copyright 2020 The OpenYurt Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

const tmpPrefix = "tmp_"

type diskStorage struct {
	baseDir          string
	keyPendingStatus map[string]struct{}
	sync.Mutex
}

// NewDiskStorage creates a storage.Store for writing reports into local disk
func NewDiskStorage(dir string) (storage.Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty dir")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	ds := &diskStorage{
		keyPendingStatus: make(map[string]struct{}),
		baseDir:          dir,
	}
	return ds, nil
}

// Create writes contents into the file named by key. The file is
// written under a tmp name first and renamed into place, so readers
// never see a half written report.
func (ds *diskStorage) Create(key string, contents []byte) error {
	if key == "" {
		return storage.ErrKeyIsEmpty
	}

	if !ds.lockKey(key) {
		return storage.ErrStorageAccessConflict
	}
	defer ds.unLockKey(key)

	return ds.create(key, contents)
}

func (ds *diskStorage) create(key string, contents []byte) error {
	keyPath := filepath.Join(ds.baseDir, key)
	dir, file := filepath.Split(keyPath)
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err = os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpPath := filepath.Join(dir, tmpPrefix+file)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_SYNC, 0644)
	if err != nil {
		return err
	}
	n, err := f.Write(contents)
	if err == nil && n < len(contents) {
		err = io.ErrShortWrite
	}
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, keyPath)
}

// Get get contents from the file that specified by key
func (ds *diskStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return []byte{}, storage.ErrKeyIsEmpty
	}

	if !ds.lockKey(key) {
		return nil, storage.ErrStorageAccessConflict
	}
	defer ds.unLockKey(key)
	return ds.get(filepath.Join(ds.baseDir, key))
}

func (ds *diskStorage) get(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte{}, storage.ErrStorageNotFound
		}
		return nil, fmt.Errorf("failed to get bytes from %s, %w", path, err)
	} else if info.Mode().IsRegular() {
		b, err := os.ReadFile(path)
		if err != nil {
			return []byte{}, err
		}

		return b, nil
	} else if info.IsDir() {
		return []byte{}, storage.ErrKeyHasNoContent
	}

	return nil, fmt.Errorf("%s is exist, but not recognized, %v", path, info.Mode())
}

// Path returns the file path of key
func (ds *diskStorage) Path(key string) string {
	return filepath.Join(ds.baseDir, key)
}

// Recover removes the tmp file an interrupted Create left behind for key.
// Only the store's own tmp file of that key is touched.
func (ds *diskStorage) Recover(key string) error {
	if key == "" {
		return storage.ErrKeyIsEmpty
	}
	if !ds.lockKey(key) {
		return storage.ErrStorageAccessConflict
	}
	defer ds.unLockKey(key)

	dir, file := filepath.Split(filepath.Join(ds.baseDir, key))
	tmpPath := filepath.Join(dir, tmpPrefix+file)
	info, err := os.Lstat(tmpPath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	if err := os.Remove(tmpPath); err != nil {
		return fmt.Errorf("failed to remove stale report %s, %w", tmpPath, err)
	}
	klog.V(2).Infof("stale report %s removed", tmpPath)
	return nil
}

func (ds *diskStorage) lockKey(key string) bool {
	ds.Lock()
	defer ds.Unlock()
	if _, ok := ds.keyPendingStatus[key]; ok {
		klog.Infof("key(%s) storage is pending, just skip it", key)
		return false
	}

	for pendingKey := range ds.keyPendingStatus {
		if len(key) > len(pendingKey) {
			if strings.HasPrefix(key, fmt.Sprintf("%s/", pendingKey)) || pendingKey == "" {
				klog.Infof("key(%s) storage is pending, skip to store key(%s)", pendingKey, key)
				return false
			}
		} else {
			if strings.HasPrefix(pendingKey, fmt.Sprintf("%s/", key)) || key == "" {
				klog.Infof("key(%s) storage is pending, skip to store key(%s)", pendingKey, key)
				return false
			}
		}
	}
	ds.keyPendingStatus[key] = struct{}{}
	return true
}

func (ds *diskStorage) unLockKey(key string) {
	ds.Lock()
	defer ds.Unlock()
	delete(ds.keyPendingStatus, key)
}
