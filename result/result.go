// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package result buffers the rows of running queries and serves them to
// polling clients, either as paged snapshots of a materialized table or as
// a destructively consumed changelog.
package result

import (
	"context"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/types"
)

const (
	ErrResultNotFound errors.Code = "ResultNotFound"
	ErrInvalidPage    errors.Code = "InvalidPage"
	ErrJobFailure     errors.Code = "JobFailure"
	ErrResultMode     errors.Code = "ResultMode"
	ErrClosed         errors.Code = "ResultClosed"
)

// Status is the outcome of a read.
type Status string

const (
	// StatusEmpty means no rows are available yet but more may come.
	StatusEmpty Status = "EMPTY"
	// StatusPayload means the read returned rows or pages.
	StatusPayload Status = "PAYLOAD"
	// StatusEOS means the result is exhausted. Every later read reports
	// StatusEOS again.
	StatusEOS Status = "EOS"
)

// JobMonitor samples the state of the job feeding a result.
type JobMonitor interface {
	Status(ctx context.Context) (processor.JobInfo, error)
}

// Descriptor describes a result to the client which polls it.
type Descriptor struct {
	ID           string          `json:"id"`
	Schema       types.Schema    `json:"schema"`
	Materialized bool            `json:"materialized"`
	Bounded      bool            `json:"bounded"`
	JobID        processor.JobID `json:"jobId"`
	Statement    string          `json:"statement"`
}

// Binding ties a result to the job producing its rows.
type Binding struct {
	Job       JobMonitor
	JobID     processor.JobID
	Schema    types.Schema
	Bounded   bool
	Statement string
}

// Result receives the rows of one query.
type Result interface {
	processor.RowSink
	Descriptor() Descriptor
	attach(b Binding)
	// close releases the buffered rows. Later reads and emits fail.
	close()
}

var errClosed = errors.New(ErrClosed, "The result has been closed")

// sample returns the job's state and fails if the job failed.
func sample(ctx context.Context, job JobMonitor) (processor.JobInfo, error) {
	if job == nil {
		return processor.JobInfo{Status: processor.JobCreated}, nil
	}
	info, err := job.Status(ctx)
	if err != nil {
		return info, err
	}
	if info.Status == processor.JobFailed {
		cause := info.Err
		if cause == nil {
			cause = errors.Newf(ErrJobFailure, "job %s failed", info.ID)
		}
		return info, errors.Wrapc(cause, ErrJobFailure, "Error while retrieving result")
	}
	return info, nil
}
