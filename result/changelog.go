// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package result

import (
	"context"
	"sync"

	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/types"
)

// DefaultChangelogCapacity is the number of changes a changelog buffers
// before the producing job blocks.
const DefaultChangelogCapacity = 5000

// Changelog queues the changes of a query for a single consumer. A full
// queue blocks the producer until the consumer drains it.
type Changelog struct {
	mu   sync.Mutex
	desc Descriptor
	job  JobMonitor
	eos  bool

	queue     chan types.Row
	done      chan struct{}
	closeOnce sync.Once
}

// NewChangelog returns an empty changelog holding up to capacity changes.
func NewChangelog(id string, schema types.Schema, capacity int) *Changelog {
	if capacity <= 0 {
		capacity = DefaultChangelogCapacity
	}
	return &Changelog{
		desc:  Descriptor{ID: id, Schema: schema},
		queue: make(chan types.Row, capacity),
		done:  make(chan struct{}),
	}
}

func (c *Changelog) attach(b Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.job = b.Job
	c.desc.JobID = b.JobID
	c.desc.Bounded = b.Bounded
	c.desc.Statement = b.Statement
	if b.Schema != nil {
		c.desc.Schema = b.Schema
	}
}

// Descriptor returns the result's descriptor.
func (c *Changelog) Descriptor() Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}

// Emit queues a change, blocking while the queue is full.
func (c *Changelog) Emit(ctx context.Context, row types.Row) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.queue <- row:
		return nil
	default:
	}

	// The queue is full. Let the job's pool know this worker is parked.
	b := gwcontext.BlockerFrom(ctx)
	b.Block()
	defer b.Unblock()
	select {
	case c.queue <- row:
		return nil
	case <-c.done:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Changes drains the queue. It returns StatusEmpty when nothing is queued
// and the job is still running, and StatusEOS once the job ended and every
// change was delivered.
func (c *Changelog) Changes(ctx context.Context) (Status, []types.Row, error) {
	c.mu.Lock()
	job, eos := c.job, c.eos
	c.mu.Unlock()
	select {
	case <-c.done:
		return "", nil, errClosed
	default:
	}
	if eos {
		return StatusEOS, nil, nil
	}

	// Sample the job before draining so that a terminal status implies
	// every change is already queued.
	info, err := sample(ctx, job)
	if err != nil {
		return "", nil, err
	}

	var rows []types.Row
drain:
	for {
		select {
		case row := <-c.queue:
			rows = append(rows, row)
		default:
			break drain
		}
	}

	switch {
	case len(rows) > 0:
		return StatusPayload, rows, nil
	case info.Status.Terminal():
		c.mu.Lock()
		c.eos = true
		c.mu.Unlock()
		return StatusEOS, nil, nil
	default:
		return StatusEmpty, nil, nil
	}
}

func (c *Changelog) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
