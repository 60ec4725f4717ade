// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package boltdb wraps a bbolt database file for the gateway's persistent
// components.
package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/featurebasedb/sqlgateway/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	ErrFmtBucketNotFound = "boltdb: bucket '%s' not found"
)

type Bucket []byte

// DB represents the database connection.
type DB struct {
	db *bolt.DB

	// Datasource name.
	DSN string

	// Returns the current time. Defaults to time.Now().
	// Can be mocked for tests.
	Now func() time.Time

	// Timeout bounds how long Open waits for the file lock held by another
	// process.
	Timeout time.Duration

	filePath string

	// bucketQueue contains a list of buckets to create upon Open.
	bucketQueue []Bucket
}

// NewDB returns a new instance of DB associated with the given datasource name.
func NewDB(dsn string) *DB {
	return &DB{
		DSN:     dsn,
		Now:     time.Now,
		Timeout: time.Second,
	}
}

// DSN returns a "file:" datasource name for path, leaving DSNs as they are.
func DSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path
}

// path returns the file path to the boltdb database file.
func (db *DB) path() (string, error) {
	if !strings.HasPrefix(db.DSN, "file:") {
		return "", errors.New(errors.ErrUncoded, "boltdb package only supports a DSN beginning with `file:`")
	}

	return db.DSN[5:], nil
}

// RegisterBuckets queues up the buckets to be created when the database is
// first opened.
func (db *DB) RegisterBuckets(buckets ...Bucket) {
	db.bucketQueue = append(db.bucketQueue, buckets...)
}

// InitializeBuckets creates the given buckets if they do not already exist.
func (db *DB) InitializeBuckets(buckets ...Bucket) (err error) {
	return db.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return errors.Wrapf(err, "creating bucket: %s", bucket)
			}
		}
		return nil
	})
}

// Open opens the database connection.
func (db *DB) Open() (err error) {
	path, err := db.path()
	if err != nil {
		return errors.Wrap(err, "getting path from DSN")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	} else if db.db, err = bolt.Open(path, 0666, &bolt.Options{Timeout: db.Timeout}); err != nil {
		return errors.Wrapf(err, "open file: %s", path)
	}

	// cache the path in db.filePath.
	db.filePath = path

	if err := db.InitializeBuckets(db.bucketQueue...); err != nil {
		return errors.Wrap(err, "initializing buckets")
	}

	// Reset the bucketQueue.
	db.bucketQueue = make([]Bucket, 0)

	return nil
}

// Close closes the database connection.
func (db *DB) Close() (err error) {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// BeginTx starts a transaction and returns a wrapper Tx type. This type
// provides a reference to the database and a fixed timestamp at the start of
// the transaction. The timestamp allows us to mock time during tests as well.
// The wrapper also contains the context.
func (db *DB) BeginTx(ctx context.Context, writable bool) (*Tx, error) {
	tx, err := db.db.Begin(writable)
	if err != nil {
		return nil, err
	}

	// Return wrapper Tx that includes the transaction start time.
	return &Tx{
		Tx:  tx,
		ctx: ctx,
		db:  db,
		now: db.Now().UTC().Truncate(time.Second),
	}, nil
}

// Tx wraps the bolt Tx object to provide a timestamp at the start of the
// transaction.
type Tx struct {
	*bolt.Tx
	ctx context.Context
	db  *DB
	now time.Time
}

func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Now returns the time the transaction started.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// MustBucket returns the named bucket or an error if it was never created.
func (tx *Tx) MustBucket(name Bucket) (*bolt.Bucket, error) {
	bkt := tx.Bucket(name)
	if bkt == nil {
		return nil, errors.Errorf(ErrFmtBucketNotFound, name)
	}
	return bkt, nil
}

func (db *DB) Path() string {
	return db.filePath
}
