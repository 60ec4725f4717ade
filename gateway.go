// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package gateway is a session-oriented SQL gateway. Clients open
// sessions, run statements in them, and poll the results of the queries
// they submitted. Catalog statements run synchronously; queries and inserts
// run as jobs on a query processor.
package gateway

import (
	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/dispatch"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/result"
	"github.com/featurebasedb/sqlgateway/session"
	"github.com/featurebasedb/sqlgateway/types"
)

// Error codes of the gateway protocol. Errors carry every code of their
// chain, so for example a failed job read matches both
// ErrExecutionFailure and ErrJobFailure.
const (
	ErrSessionNotFound       = session.ErrSessionNotFound
	ErrDuplicateSession      = session.ErrDuplicateSession
	ErrSessionClosed         = session.ErrSessionClosed
	ErrExecutionContextBuild = session.ErrExecutionContextBuild
	ErrCatalog               = catalog.ErrCatalog
	ErrExecutionFailure      = dispatch.ErrExecutionFailure
	ErrJobFailure            = result.ErrJobFailure
	ErrResultNotFound        = result.ErrResultNotFound
	ErrInvalidPage           = result.ErrInvalidPage
	ErrSQLParse              = parser.ErrSQLParse
	ErrUnsupported           = parser.ErrUnsupported
)

// ResultDescriptor identifies the result a query's rows are served from.
type ResultDescriptor = result.Descriptor

// ResultStatus is the outcome of a result read.
type ResultStatus = result.Status

const (
	StatusEmpty   = result.StatusEmpty
	StatusPayload = result.StatusPayload
	StatusEOS     = result.StatusEOS
)

// ProgramTarget describes a submitted insert.
type ProgramTarget struct {
	JobID processor.JobID `json:"jobId"`
}

// StatementResult is what ExecuteSQL returns. Exactly one field is set.
type StatementResult struct {
	Table  *types.TableResult `json:"table,omitempty"`
	Result *ResultDescriptor  `json:"result,omitempty"`
	Target *ProgramTarget     `json:"target,omitempty"`
}

// Snapshot is the outcome of SnapshotResult. Pages is set with
// StatusPayload.
type Snapshot struct {
	Status ResultStatus `json:"status"`
	Pages  int          `json:"pages"`
}

// Changes is the outcome of RetrieveResultChanges. Rows is set with
// StatusPayload.
type Changes struct {
	Status ResultStatus `json:"status"`
	Rows   []types.Row  `json:"rows"`
}

// JobInfo is the state of a job as seen by its session.
type JobInfo struct {
	ID     processor.JobID     `json:"id"`
	Status processor.JobStatus `json:"status"`
	// Error is the failure cause of a FAILED job.
	Error string `json:"error,omitempty"`
}
