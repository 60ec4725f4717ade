// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Buckets of a catalog store.
const (
	BucketDatabases = "databases"
	BucketTables    = "tables"
	BucketFunctions = "functions"
)

// Store is the key/value storage a Catalog keeps its objects in.
type Store interface {
	View(fn func(tx StoreTx) error) error
	Update(fn func(tx StoreTx) error) error
	Close() error
}

// StoreTx is a transaction on a Store. Get returns nil for a missing key.
type StoreTx interface {
	Get(bucket, key string) ([]byte, error)
	Put(bucket, key string, value []byte) error
	Delete(bucket, key string) error
	// Keys returns the sorted keys of bucket starting with prefix.
	Keys(bucket, prefix string) ([]string, error)
}

// Ensure type implements interface.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. Its contents live as long as the value.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		buckets: map[string]map[string][]byte{
			BucketDatabases: {},
			BucketTables:    {},
			BucketFunctions: {},
		},
	}
}

func (s *MemStore) View(fn func(tx StoreTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s})
}

// Update runs fn under the write lock. Writes are buffered and only applied
// when fn succeeds.
func (s *MemStore) Update(fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s, writable: true, pending: map[string]map[string][]byte{}}
	if err := fn(tx); err != nil {
		return err
	}
	for bucket, kv := range tx.pending {
		for k, v := range kv {
			if v == nil {
				delete(s.buckets[bucket], k)
			} else {
				s.buckets[bucket][k] = v
			}
		}
	}
	return nil
}

func (s *MemStore) Close() error { return nil }

type memTx struct {
	s        *MemStore
	writable bool
	// pending maps bucket to key to value; nil values are deletions.
	pending map[string]map[string][]byte
}

func (tx *memTx) Get(bucket, key string) ([]byte, error) {
	if kv, ok := tx.pending[bucket]; ok {
		if v, ok := kv[key]; ok {
			return v, nil
		}
	}
	return tx.s.buckets[bucket][key], nil
}

func (tx *memTx) set(bucket, key string, value []byte) {
	if tx.pending[bucket] == nil {
		tx.pending[bucket] = map[string][]byte{}
	}
	tx.pending[bucket][key] = value
}

func (tx *memTx) Put(bucket, key string, value []byte) error {
	if !tx.writable {
		return newErr("store transaction is read only")
	}
	tx.set(bucket, key, append([]byte(nil), value...))
	return nil
}

func (tx *memTx) Delete(bucket, key string) error {
	if !tx.writable {
		return newErr("store transaction is read only")
	}
	tx.set(bucket, key, nil)
	return nil
}

func (tx *memTx) Keys(bucket, prefix string) ([]string, error) {
	seen := map[string]bool{}
	for k := range tx.s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			seen[k] = true
		}
	}
	for k, v := range tx.pending[bucket] {
		if strings.HasPrefix(k, prefix) {
			seen[k] = v != nil
		}
	}
	keys := make([]string, 0, len(seen))
	for k, ok := range seen {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
