// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/featurebasedb/sqlgateway/catalog"
	catalogbolt "github.com/featurebasedb/sqlgateway/catalog/boltdb"
	"github.com/featurebasedb/sqlgateway/connector"
	"github.com/featurebasedb/sqlgateway/dispatch"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/processor/local"
	"github.com/featurebasedb/sqlgateway/session"
	"github.com/featurebasedb/sqlgateway/tracing"
	"github.com/featurebasedb/sqlgateway/types"
)

// Executor is the gateway protocol. LocalExecutor implements it in
// process; the http client implements it remotely.
type Executor interface {
	OpenSession(ctx context.Context, id string, env *environment.Environment) (string, error)
	CloseSession(ctx context.Context, id string) error

	GetSessionProperties(ctx context.Context, id string) (map[string]string, error)
	SetSessionProperty(ctx context.Context, id, key, value string) error
	ResetSessionProperties(ctx context.Context, id string) error
	ResetSessionProperty(ctx context.Context, id, key string) error

	// ExecuteSQL runs any statement.
	ExecuteSQL(ctx context.Context, id, sql string) (*StatementResult, error)
	// ExecuteQuery submits a query and returns the result serving its
	// rows.
	ExecuteQuery(ctx context.Context, id, sql string) (*ResultDescriptor, error)
	// ExecuteUpdate submits an INSERT.
	ExecuteUpdate(ctx context.Context, id, sql string) (*ProgramTarget, error)

	SnapshotResult(ctx context.Context, id, resultID string, pageSize int) (*Snapshot, error)
	// RetrieveResultPage returns a page of the last snapshot. Pages are
	// numbered from 1.
	RetrieveResultPage(ctx context.Context, id, resultID string, page int) ([]types.Row, error)
	RetrieveResultChanges(ctx context.Context, id, resultID string) (*Changes, error)
	// CancelQuery cancels the query's job and drops its result.
	CancelQuery(ctx context.Context, id, resultID string) error

	JobStatus(ctx context.Context, id string, jobID processor.JobID) (*JobInfo, error)
	CancelJob(ctx context.Context, id string, jobID processor.JobID) error

	ListModules(ctx context.Context, id string) ([]string, error)
	// CompleteStatement completes the word ending at cursor, counted in
	// characters of text.
	CompleteStatement(ctx context.Context, id, text string, cursor int) ([]string, error)

	// Close closes every session.
	Close(ctx context.Context) error
}

// Config configures a LocalExecutor.
type Config struct {
	// Defaults is the environment every session is layered on. It is
	// merged onto the system defaults.
	Defaults *environment.Environment
	// Cluster maps deployment targets to processors. When nil the executor
	// runs a local processor under the "local" target and closes it with
	// the executor.
	Cluster *processor.Cluster
	// Workers is the number of jobs the local processor runs without
	// blocking each other.
	Workers int
	// ChangelogCapacity bounds the changes a changelog result buffers.
	ChangelogCapacity int
	// Factories open catalogs by type, in addition to memory and bolt.
	Factories map[string]catalog.Factory
	Logger    logger.Logger
}

// LocalExecutor runs sessions in process.
type LocalExecutor struct {
	registry    *session.Registry
	cluster     *processor.Cluster
	ownCluster  bool
	collections *connector.Collections
	logger      logger.Logger
}

var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor returns an executor without sessions.
func NewLocalExecutor(cfg Config) *LocalExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger
	}
	e := &LocalExecutor{
		cluster: cfg.Cluster,
		logger:  cfg.Logger,
	}
	if e.cluster == nil {
		p := local.New(local.Config{
			Workers: cfg.Workers,
			Stats:   poolStats{},
			Logger:  cfg.Logger.WithPrefix("local: "),
		})
		e.collections = p.Collections()
		e.cluster = processor.NewCluster()
		e.cluster.Register(local.Target, p)
		e.ownCluster = true
	}

	factories := map[string]catalog.Factory{"bolt": catalogbolt.Factory}
	for typ, f := range cfg.Factories {
		factories[typ] = f
	}
	e.registry = session.NewRegistry(session.Config{
		Defaults:          environment.Merge(environment.Defaults(), cfg.Defaults),
		Cluster:           e.cluster,
		Factories:         factories,
		Registry:          functions.NewRegistry(),
		ChangelogCapacity: cfg.ChangelogCapacity,
		Logger:            cfg.Logger,
	})
	return e
}

// Collections returns the in-memory collections of the local processor,
// or nil when the executor was given a cluster.
func (e *LocalExecutor) Collections() *connector.Collections { return e.collections }

// Sessions returns the ids of the open sessions.
func (e *LocalExecutor) Sessions() []string { return e.registry.IDs() }

func (e *LocalExecutor) session(id string) (*session.Session, error) {
	return e.registry.Get(id)
}

// OpenSession opens session id. The identifier is chosen by the caller and
// returned unchanged.
func (e *LocalExecutor) OpenSession(ctx context.Context, id string, env *environment.Environment) (string, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Executor.OpenSession")
	defer span.Finish()

	if _, err := e.registry.Open(ctx, id, env); err != nil {
		return "", err
	}
	CounterSessionsOpened.Inc()
	GaugeSessions.Inc()
	return id, nil
}

// CloseSession cancels the session's jobs and frees its results.
func (e *LocalExecutor) CloseSession(ctx context.Context, id string) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "Executor.CloseSession")
	defer span.Finish()

	err := e.registry.Close(ctx, id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	GaugeSessions.Dec()
	return err
}

func (e *LocalExecutor) GetSessionProperties(ctx context.Context, id string) (map[string]string, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	return s.Properties()
}

func (e *LocalExecutor) SetSessionProperty(ctx context.Context, id, key, value string) error {
	s, err := e.session(id)
	if err != nil {
		return err
	}
	return s.SetProperty(key, value)
}

func (e *LocalExecutor) ResetSessionProperties(ctx context.Context, id string) error {
	s, err := e.session(id)
	if err != nil {
		return err
	}
	return s.ResetProperties()
}

func (e *LocalExecutor) ResetSessionProperty(ctx context.Context, id, key string) error {
	s, err := e.session(id)
	if err != nil {
		return err
	}
	return s.ResetProperty(key)
}

// ExecuteSQL classifies sql and runs it.
func (e *LocalExecutor) ExecuteSQL(ctx context.Context, id, sql string) (*StatementResult, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Executor.ExecuteSQL")
	defer span.Finish()

	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	out, err := dispatch.Execute(ctx, s, sql)
	CounterStatements.Inc()
	if err != nil {
		CounterStatementFailures.Inc()
		return nil, err
	}
	switch {
	case out.Result != nil:
		CounterJobsSubmitted.Inc()
		return &StatementResult{Result: out.Result}, nil
	case out.Job != "":
		CounterJobsSubmitted.Inc()
		return &StatementResult{Target: &ProgramTarget{JobID: out.Job}}, nil
	}
	return &StatementResult{Table: out.Table}, nil
}

// ExecuteQuery submits a query. Any other statement fails.
func (e *LocalExecutor) ExecuteQuery(ctx context.Context, id, sql string) (*ResultDescriptor, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Executor.ExecuteQuery")
	defer span.Finish()

	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	CounterStatements.Inc()
	desc, err := func() (*ResultDescriptor, error) {
		op, err := dispatch.Classify(sql)
		if err != nil {
			return nil, err
		}
		q, ok := op.(*dispatch.QueryOp)
		if !ok {
			return nil, errors.New(ErrUnsupported, "Statement is not a query")
		}
		return dispatch.RunQuery(ctx, s, q.SQL)
	}()
	if err != nil {
		CounterStatementFailures.Inc()
		return nil, dispatch.Failure(id, sql, err)
	}
	CounterJobsSubmitted.Inc()
	return desc, nil
}

// ExecuteUpdate submits an INSERT. Any other statement fails.
func (e *LocalExecutor) ExecuteUpdate(ctx context.Context, id, sql string) (*ProgramTarget, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Executor.ExecuteUpdate")
	defer span.Finish()

	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	CounterStatements.Inc()
	jobID, err := func() (processor.JobID, error) {
		op, err := dispatch.Classify(sql)
		if err != nil {
			return "", err
		}
		u, ok := op.(*dispatch.UpdateOp)
		if !ok {
			return "", errors.New(ErrUnsupported, "Statement is not an INSERT")
		}
		return dispatch.RunUpdate(ctx, s, u.SQL)
	}()
	if err != nil {
		CounterStatementFailures.Inc()
		return nil, dispatch.Failure(id, sql, err)
	}
	CounterJobsSubmitted.Inc()
	return &ProgramTarget{JobID: jobID}, nil
}

// readError annotates the error of a result read. Job failures become
// execution failures of the query's statement; reads racing a session
// close report the closed session.
func (e *LocalExecutor) readError(s *session.Session, resultID string, err error) error {
	switch {
	case err == nil:
		return nil
	case s.Closed():
		return errors.Wrapc(err, ErrSessionClosed, "Session '"+s.ID()+"' has been closed")
	case errors.Is(err, ErrJobFailure):
		desc, derr := s.Results().Get(resultID)
		if derr != nil {
			return err
		}
		return dispatch.Failure(s.ID(), desc.Statement, err)
	}
	return err
}

// SnapshotResult snapshots a materialized result into pages of pageSize
// rows.
func (e *LocalExecutor) SnapshotResult(ctx context.Context, id, resultID string, pageSize int) (*Snapshot, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	status, pages, err := s.Results().Snapshot(ctx, resultID, pageSize)
	if err != nil {
		return nil, e.readError(s, resultID, err)
	}
	return &Snapshot{Status: status, Pages: pages}, nil
}

func (e *LocalExecutor) RetrieveResultPage(ctx context.Context, id, resultID string, page int) ([]types.Row, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.Results().Page(resultID, page)
	if err != nil {
		return nil, e.readError(s, resultID, err)
	}
	CounterRowsRetrieved.Add(float64(len(rows)))
	return rows, nil
}

func (e *LocalExecutor) RetrieveResultChanges(ctx context.Context, id, resultID string) (*Changes, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	status, rows, err := s.Results().Changes(ctx, resultID)
	if err != nil {
		return nil, e.readError(s, resultID, err)
	}
	CounterRowsRetrieved.Add(float64(len(rows)))
	return &Changes{Status: status, Rows: rows}, nil
}

// CancelQuery cancels the job of a result and drops the result.
func (e *LocalExecutor) CancelQuery(ctx context.Context, id, resultID string) error {
	s, err := e.session(id)
	if err != nil {
		return err
	}
	desc, err := s.Results().Get(resultID)
	if err != nil {
		return err
	}
	if h, err := s.Jobs().Get(desc.JobID); err == nil {
		if err := h.Cancel(ctx); err != nil {
			return dispatch.Failure(id, desc.Statement, err)
		}
		s.Jobs().Remove(ctx, desc.JobID)
	}
	return s.Results().Drop(resultID)
}

func (e *LocalExecutor) JobStatus(ctx context.Context, id string, jobID processor.JobID) (*JobInfo, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	h, err := s.Jobs().Get(jobID)
	if err != nil {
		return nil, err
	}
	info, err := h.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := &JobInfo{ID: info.ID, Status: info.Status}
	if info.Err != nil {
		out.Error = info.Err.Error()
	}
	return out, nil
}

func (e *LocalExecutor) CancelJob(ctx context.Context, id string, jobID processor.JobID) error {
	s, err := e.session(id)
	if err != nil {
		return err
	}
	h, err := s.Jobs().Get(jobID)
	if err != nil {
		return err
	}
	return h.Cancel(ctx)
}

// ListModules returns the loaded modules in resolution order.
func (e *LocalExecutor) ListModules(ctx context.Context, id string) ([]string, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	ec, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	return ec.Catalog().Modules(), nil
}

// CompleteStatement returns the completion candidates of the word ending
// at cursor.
func (e *LocalExecutor) CompleteStatement(ctx context.Context, id, text string, cursor int) ([]string, error) {
	hints, err := e.Completions(ctx, id, text, cursor)
	if err != nil {
		return nil, err
	}
	return hints.Collect(), nil
}

// Completions is CompleteStatement returning the candidates as a lazily
// computed sequence.
func (e *LocalExecutor) Completions(ctx context.Context, id, text string, cursor int) (*dispatch.Hints, error) {
	s, err := e.session(id)
	if err != nil {
		return nil, err
	}
	return dispatch.Complete(ctx, s, text, cursor)
}

// Close closes every session, then the processors the executor started.
func (e *LocalExecutor) Close(ctx context.Context) error {
	n := e.registry.Len()
	err := e.registry.CloseAll(ctx)
	GaugeSessions.Sub(float64(n))
	if e.ownCluster {
		if cerr := e.cluster.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
