// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package processor defines the contract between the gateway and the query
// processors that run its jobs.
package processor

import (
	"context"
	"sort"
	"sync"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

const (
	ErrJobNotFound    errors.Code = "JobNotFound"
	ErrUnknownTarget  errors.Code = "UnknownDeploymentTarget"
	ErrInvalidProgram errors.Code = "InvalidProgram"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobCreated  JobStatus = "CREATED"
	JobRunning  JobStatus = "RUNNING"
	JobFinished JobStatus = "FINISHED"
	JobFailed   JobStatus = "FAILED"
	JobCanceled JobStatus = "CANCELED"
)

// Terminal reports whether no transition leaves s.
func (s JobStatus) Terminal() bool {
	return s == JobFinished || s == JobFailed || s == JobCanceled
}

// JobID identifies a job within its processor.
type JobID string

// JobInfo is a sample of a job's state. Err holds the failure cause of a
// FAILED job.
type JobInfo struct {
	ID     JobID
	Status JobStatus
	Err    error
}

// RowSink receives the rows of a query job. Emit may block the job to
// apply backpressure.
type RowSink interface {
	Emit(ctx context.Context, row types.Row) error
}

// ProgramKind distinguishes queries, whose rows flow back to the gateway,
// from inserts, whose rows go to a table.
type ProgramKind int

const (
	ProgramQuery ProgramKind = iota
	ProgramInsert
)

// Program is a planned statement.
type Program struct {
	Kind ProgramKind
	// Schema is the output schema of a query.
	Schema types.Schema
	// Target is the table an insert writes to.
	Target catalog.ObjectPath
	// Bounded reports whether the job ends on its own.
	Bounded bool
}

// Request is a statement to run on behalf of a session.
type Request struct {
	SQL     string
	Catalog *catalog.Manager
	Config  environment.ExecutionConfig
	// Sink receives the rows of a query. It is ignored for inserts.
	Sink RowSink
}

// Processor plans and runs statements. Submit returns once the job is
// planned; the job itself runs in the background.
type Processor interface {
	Submit(ctx context.Context, req Request) (JobID, *Program, error)
	Status(ctx context.Context, id JobID) (JobInfo, error)
	// Cancel asks a job to stop. Termination is observed through Status.
	Cancel(ctx context.Context, id JobID) error
	// Forget releases a job. A running job is cancelled first; Status no
	// longer knows the job afterwards. Forgetting an unknown job is a no-op.
	Forget(ctx context.Context, id JobID) error
	// Explain returns the plan of a query without running it.
	Explain(ctx context.Context, cat *catalog.Manager, cfg environment.ExecutionConfig, sql string) (string, error)
	// Analyzer returns the query analyzer which validates views against
	// cat.
	Analyzer(cat *catalog.Manager) catalog.QueryAnalyzer
	Close() error
}

// Cluster maps deployment targets to processors. Sessions pick their
// processor by the deployment.target property.
type Cluster struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{processors: make(map[string]Processor)}
}

// Register makes p the processor of target.
func (c *Cluster) Register(target string, p Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processors[target] = p
}

// Processor returns the processor of target.
func (c *Cluster) Processor(target string) (Processor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.processors[target]
	if !ok {
		return nil, errors.Newf(ErrUnknownTarget, "Could not find a processor for deployment target '%s'", target)
	}
	return p, nil
}

// Targets lists the registered targets, sorted.
func (c *Cluster) Targets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.processors))
	for t := range c.processors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close closes every processor and returns the first error.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for t, p := range c.processors {
		if err := p.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing processor %s", t)
		}
	}
	c.processors = map[string]Processor{}
	return first
}
