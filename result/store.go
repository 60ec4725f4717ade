// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package result

import (
	"context"
	"sort"
	"sync"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
	uuid "github.com/satori/go.uuid"
)

// Store holds the results of one session. Results are removed only by Drop
// and Close.
type Store struct {
	mu       sync.RWMutex
	results  map[string]Result
	capacity int
	closed   bool
}

// NewStore returns an empty store whose changelogs buffer up to capacity
// changes.
func NewStore(capacity int) *Store {
	return &Store{
		results:  make(map[string]Result),
		capacity: capacity,
	}
}

// Create adds an empty result for a query run with cfg. The result mode is
// fixed for the result's lifetime.
func (s *Store) Create(cfg environment.ExecutionConfig, schema types.Schema) (Result, error) {
	if !cfg.Streaming && !cfg.Materialized() {
		return nil, errors.New(ErrResultMode, "Results of batch queries can only be served in table mode.")
	}
	u, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "generating result id")
	}
	id := u.String()

	var r Result
	if cfg.Materialized() {
		r = NewMaterialized(id, schema, cfg.MaxTableResultRows)
	} else {
		r = NewChangelog(id, schema, s.capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	s.results[id] = r
	return r, nil
}

// Attach binds result id to the job producing its rows.
func (s *Store) Attach(id string, b Binding) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.attach(b)
	return nil
}

func (s *Store) get(id string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	r, ok := s.results[id]
	if !ok {
		return nil, errors.Newf(ErrResultNotFound, "Could not find a result with result identifier '%s'.", id)
	}
	return r, nil
}

// Get returns the descriptor of result id.
func (s *Store) Get(id string) (Descriptor, error) {
	r, err := s.get(id)
	if err != nil {
		return Descriptor{}, err
	}
	return r.Descriptor(), nil
}

// IDs returns the ids of every held result, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot takes a snapshot of the materialized result id.
func (s *Store) Snapshot(ctx context.Context, id string, pageSize int) (Status, int, error) {
	m, err := s.materialized(id)
	if err != nil {
		return "", 0, err
	}
	return m.Snapshot(ctx, pageSize)
}

// Page returns a page of the last snapshot of result id.
func (s *Store) Page(id string, page int) ([]types.Row, error) {
	m, err := s.materialized(id)
	if err != nil {
		return nil, err
	}
	return m.Page(page)
}

// Changes drains the changelog result id.
func (s *Store) Changes(ctx context.Context, id string) (Status, []types.Row, error) {
	r, err := s.get(id)
	if err != nil {
		return "", nil, err
	}
	c, ok := r.(*Changelog)
	if !ok {
		return "", nil, errors.Newf(ErrResultMode, "Result '%s' is materialized. Changes can only be retrieved from a changelog result.", id)
	}
	return c.Changes(ctx)
}

func (s *Store) materialized(id string) (*Materialized, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	m, ok := r.(*Materialized)
	if !ok {
		return nil, errors.Newf(ErrResultMode, "Result '%s' is a changelog. Snapshots can only be taken of a materialized result.", id)
	}
	return m, nil
}

// Drop removes result id and releases its rows. A producer still emitting
// into it fails.
func (s *Store) Drop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	r, ok := s.results[id]
	if !ok {
		return errors.Newf(ErrResultNotFound, "Could not find a result with result identifier '%s'.", id)
	}
	delete(s.results, id)
	r.close()
	return nil
}

// Len returns the number of held results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Close drops every result. Later calls fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.results {
		r.close()
		delete(s.results, id)
	}
	s.closed = true
}
