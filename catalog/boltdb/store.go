// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package boltdb keeps catalog objects in a bolt database file, so catalogs
// of type "bolt" survive gateway restarts.
package boltdb

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"

	"github.com/featurebasedb/sqlgateway/boltdb"
	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/errors"
	bolt "go.etcd.io/bbolt"
)

var buckets = []boltdb.Bucket{
	boltdb.Bucket(catalog.BucketDatabases),
	boltdb.Bucket(catalog.BucketTables),
	boltdb.Bucket(catalog.BucketFunctions),
}

// Ensure type implements interface.
var (
	_ catalog.Store   = (*Store)(nil)
	_ catalog.Factory = Factory
)

// Store is a catalog.Store on top of a bolt database.
type Store struct {
	db *boltdb.DB
}

// NewStore returns a Store using db, which must already be open and have the
// catalog buckets. Use Open to get both in one step.
func NewStore(db *boltdb.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the bolt file at path and returns a Store
// over it.
func Open(path string) (*Store, error) {
	db := boltdb.NewDB(boltdb.DSN(path))
	db.RegisterBuckets(buckets...)
	if err := db.Open(); err != nil {
		return nil, errors.Wrap(err, "opening catalog database")
	}
	return NewStore(db), nil
}

// Every session opening a bolt catalog gets its own *catalog.Catalog, but
// they share one open file per path: bolt holds an exclusive lock on it.
var shared = struct {
	sync.Mutex
	stores map[string]*sharedStore
}{stores: make(map[string]*sharedStore)}

type sharedStore struct {
	*Store
	path string
	refs int
}

// storeRef is one user's handle on a sharedStore.
type storeRef struct {
	*sharedStore
	once sync.Once
}

func (r *storeRef) Close() (err error) {
	r.once.Do(func() {
		shared.Lock()
		defer shared.Unlock()
		r.refs--
		if r.refs > 0 {
			return
		}
		delete(shared.stores, r.path)
		err = r.Store.Close()
	})
	return err
}

func acquire(path string) (catalog.Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolving catalog path")
	}

	shared.Lock()
	defer shared.Unlock()
	ss, ok := shared.stores[abs]
	if !ok {
		s, err := Open(abs)
		if err != nil {
			return nil, err
		}
		ss = &sharedStore{Store: s, path: abs}
		shared.stores[abs] = ss
	}
	ss.refs++
	return &storeRef{sharedStore: ss}, nil
}

// NewCatalog returns a persistent catalog stored in the bolt file at path.
func NewCatalog(ctx context.Context, name, defaultDB, path string) (*catalog.Catalog, error) {
	s, err := acquire(path)
	if err != nil {
		return nil, err
	}
	c := catalog.New(name, "bolt", defaultDB, s)
	if err := c.Open(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "opening catalog")
	}
	return c, nil
}

// Factory is the catalog.Factory of the "bolt" catalog type. It requires a
// path property; default-database defaults to "default".
func Factory(ctx context.Context, name string, props map[string]string) (*catalog.Catalog, error) {
	path := props["path"]
	if path == "" {
		return nil, errors.Newf(catalog.ErrCatalog, "catalog %s of type bolt requires a path", name)
	}
	db := props["default-database"]
	if db == "" {
		db = "default"
	}
	return NewCatalog(ctx, name, db, path)
}

func (s *Store) View(fn func(tx catalog.StoreTx) error) error {
	tx, err := s.db.BeginTx(context.Background(), false)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()
	return fn(&storeTx{tx: tx})
}

func (s *Store) Update(fn func(tx catalog.StoreTx) error) error {
	tx, err := s.db.BeginTx(context.Background(), true)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.db.Path()
}

type storeTx struct {
	tx *boltdb.Tx
}

func (t *storeTx) bucket(name string) (*bolt.Bucket, error) {
	return t.tx.MustBucket(boltdb.Bucket(name))
}

func (t *storeTx) Get(bucket, key string) ([]byte, error) {
	bkt, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	v := bkt.Get([]byte(key))
	if v == nil {
		return nil, nil
	}
	// bolt values are only valid for the life of the transaction.
	return append([]byte(nil), v...), nil
}

func (t *storeTx) Put(bucket, key string, value []byte) error {
	bkt, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return errors.Wrapf(bkt.Put([]byte(key), value), "putting %s", bucket)
}

func (t *storeTx) Delete(bucket, key string) error {
	bkt, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return errors.Wrapf(bkt.Delete([]byte(key)), "deleting from %s", bucket)
}

func (t *storeTx) Keys(bucket, prefix string) ([]string, error) {
	bkt, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	p := []byte(prefix)
	cur := bkt.Cursor()
	for k, _ := cur.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = cur.Next() {
		keys = append(keys, string(k))
	}
	return keys, nil
}
