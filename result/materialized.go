// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package result

import (
	"context"
	"sync"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

// Materialized keeps the current state of a query's table. Inserts append
// rows and retractions remove the newest equal row. With a positive
// maxRows, the oldest rows are evicted once the table grows past it.
type Materialized struct {
	mu      sync.Mutex
	desc    Descriptor
	job     JobMonitor
	rows    []types.Row
	maxRows int
	closed  bool

	// snapshot is the table as of the last Snapshot call.
	snapshot []types.Row
	pageSize int
	// final is set once a snapshot taken after the job ended was
	// delivered.
	final bool
}

// NewMaterialized returns an empty table result.
func NewMaterialized(id string, schema types.Schema, maxRows int) *Materialized {
	return &Materialized{
		desc:    Descriptor{ID: id, Schema: schema, Materialized: true},
		maxRows: maxRows,
	}
}

func (m *Materialized) attach(b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job = b.Job
	m.desc.JobID = b.JobID
	m.desc.Bounded = b.Bounded
	m.desc.Statement = b.Statement
	if b.Schema != nil {
		m.desc.Schema = b.Schema
	}
}

// Descriptor returns the result's descriptor.
func (m *Materialized) Descriptor() Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}

// Emit applies one change to the table. It never blocks.
func (m *Materialized) Emit(ctx context.Context, row types.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	if row.Kind.IsRetraction() {
		for i := len(m.rows) - 1; i >= 0; i-- {
			if m.rows[i].SameValues(row) {
				m.rows = append(m.rows[:i], m.rows[i+1:]...)
				break
			}
		}
		return nil
	}

	m.rows = append(m.rows, types.Row{Kind: types.Insert, Values: row.Values})
	if m.maxRows > 0 && len(m.rows) > m.maxRows {
		// Copy once the evicted prefix dominates the backing array.
		n := len(m.rows) - m.maxRows
		if cap(m.rows) > 2*m.maxRows {
			m.rows = append(make([]types.Row, 0, m.maxRows+1), m.rows[n:]...)
		} else {
			m.rows = m.rows[n:]
		}
	}
	return nil
}

// Snapshot captures the table and splits it into pages of pageSize rows.
// It returns StatusEOS once the final snapshot of an ended job was
// delivered; a job failure is returned as an error.
func (m *Materialized) Snapshot(ctx context.Context, pageSize int) (Status, int, error) {
	if pageSize < 1 {
		return "", 0, errors.Newf(ErrInvalidPage, "Page size must be positive but was %d", pageSize)
	}
	// Sample the job before the table so that a terminal status implies
	// every row is already in the table.
	info, err := sample(ctx, m.monitor())
	if err != nil {
		return "", 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", 0, errClosed
	}
	if m.final {
		return StatusEOS, 0, nil
	}
	m.snapshot = append([]types.Row(nil), m.rows...)
	m.pageSize = pageSize
	if info.Status.Terminal() {
		m.final = true
	}
	return StatusPayload, m.pageCount(), nil
}

func (m *Materialized) monitor() JobMonitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

func (m *Materialized) pageCount() int {
	if len(m.snapshot) == 0 {
		return 1
	}
	n := len(m.snapshot) / m.pageSize
	if len(m.snapshot)%m.pageSize != 0 {
		n++
	}
	return n
}

// Page returns the rows of a page of the last snapshot. Pages are
// numbered from 1.
func (m *Materialized) Page(page int) ([]types.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if m.pageSize == 0 {
		return nil, errors.New(ErrInvalidPage, "A snapshot must be taken before retrieving a page")
	}
	if page < 1 || page > m.pageCount() {
		return nil, errors.Newf(ErrInvalidPage, "Invalid page '%d'.", page)
	}
	from := (page - 1) * m.pageSize
	to := len(m.snapshot)
	if to-from > m.pageSize {
		to = from + m.pageSize
	}
	return append([]types.Row(nil), m.snapshot[from:to]...), nil
}

func (m *Materialized) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.rows, m.snapshot = nil, nil
}
