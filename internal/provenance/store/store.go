// Copyright 2026 The RepeatFS Authors
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

// Package store implements the Provenance Store (component C3): a
// transactional key/value persistence over four logical tables (file,
// process, io, fork), backed by go.etcd.io/bbolt. Writes commit durably
// before returning; reads are consistent with the latest commit; bbolt's
// own single-writer semantics serialize concurrent commits at transaction
// boundaries, so no additional locking is layered on top.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

var (
	bucketFile    = []byte("file")
	bucketProcess = []byte("process")
	bucketIO      = []byte("io")
	bucketFork    = []byte("fork")
)

// Store is the durable provenance persistence layer.
type Store struct {
	db *bolt.DB

	// maxAttempts bounds the internal retry of transient persistence
	// errors before the store reports StoreUnavailable, per spec §4.3.
	maxAttempts int
	retryDelay  time.Duration
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithRetry overrides the default bounded-retry policy for transient
// commit failures.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Store) {
		s.maxAttempts = attempts
		s.retryDelay = delay
	}
}

// Open opens (creating if necessary) a bbolt-backed store at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening provenance store %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFile, bucketProcess, bucketIO, bucketFork} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing provenance store buckets: %w", err)
	}

	s := &Store{db: db, maxAttempts: 3, retryDelay: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn inside a bbolt write transaction, retrying a failed
// transaction up to maxAttempts times before surfacing StoreUnavailable.
// Every error is retried; transient and permanent failures are not told
// apart. A
// successful return only happens after the transaction has committed.
func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		lastErr = s.db.Update(fn)
		if lastErr == nil {
			return nil
		}
		if attempt < s.maxAttempts-1 {
			time.Sleep(s.retryDelay)
		}
	}
	return fmt.Errorf("%w: %v", repeatfserr.StoreUnavailable, lastErr)
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// PutFile upserts a File record.
func (s *Store) PutFile(f model.File) error {
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketFile), string(f.ID), f)
	})
}

// GetFile fetches a File record by ID.
func (s *Store) GetFile(id model.FileID) (model.File, bool, error) {
	var f model.File
	found := false
	err := s.view(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketFile), string(id), &f)
		found = ok
		return err
	})
	return f, found, err
}

// PutProcess upserts a Process record.
func (s *Store) PutProcess(p model.Process) error {
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketProcess), string(p.ID), p)
	})
}

// GetProcess fetches a Process record by ID.
func (s *Store) GetProcess(id model.ProcessID) (model.Process, bool, error) {
	var p model.Process
	found := false
	err := s.view(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketProcess), string(id), &p)
		found = ok
		return err
	})
	return p, found, err
}

// PutIOInterval upserts an IOInterval record. Every IO Interval must
// reference a File and Process that already exist in the store; callers
// (the Tracker) are responsible for creating those first, per spec §3's
// global invariant.
func (s *Store) PutIOInterval(io model.IOInterval) error {
	return s.update(func(tx *bolt.Tx) error {
		if ok, _ := bucketHas(tx.Bucket(bucketFile), string(io.FileID)); !ok {
			return fmt.Errorf("io interval %s references unknown file %s", io.ID, io.FileID)
		}
		if ok, _ := bucketHas(tx.Bucket(bucketProcess), string(io.ProcessID)); !ok {
			return fmt.Errorf("io interval %s references unknown process %s", io.ID, io.ProcessID)
		}
		return putJSON(tx.Bucket(bucketIO), string(io.ID), io)
	})
}

// GetIOInterval fetches an IOInterval record by ID.
func (s *Store) GetIOInterval(id model.IOIntervalID) (model.IOInterval, bool, error) {
	var rec model.IOInterval
	found := false
	err := s.view(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketIO), string(id), &rec)
		found = ok
		return err
	})
	return rec, found, err
}

// PutForkEdge upserts a ForkEdge record.
func (s *Store) PutForkEdge(fe model.ForkEdge) error {
	key := string(fe.ParentID) + "|" + string(fe.ChildID)
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketFork), key, fe)
	})
}

// AllIOIntervals returns every IO interval in the store, for graph
// traversal (C7) and export. Order is unspecified; callers sort as needed.
func (s *Store) AllIOIntervals() ([]model.IOInterval, error) {
	var out []model.IOInterval
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIO).ForEach(func(k, v []byte) error {
			var rec model.IOInterval
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// AllForkEdges returns every fork edge in the store.
func (s *Store) AllForkEdges() ([]model.ForkEdge, error) {
	var out []model.ForkEdge
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFork).ForEach(func(k, v []byte) error {
			var rec model.ForkEdge
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// AllProcesses returns every process in the store.
func (s *Store) AllProcesses() ([]model.Process, error) {
	var out []model.Process
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcess).ForEach(func(k, v []byte) error {
			var rec model.Process
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func bucketHas(b *bolt.Bucket, key string) (bool, error) {
	return b.Get([]byte(key)) != nil, nil
}
