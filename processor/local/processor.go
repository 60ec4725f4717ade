// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package local is an embedded query processor. It plans SELECT and INSERT
// statements against a session's catalog and runs them as jobs on a
// worker pool of the gateway process.
package local

import (
	"context"
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/connector"
	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/task"
	"github.com/featurebasedb/sqlgateway/types"
)

const (
	ErrValidation errors.Code = "ValidationError"
	ErrRuntime    errors.Code = "RuntimeError"

	ErrUnsupported = parser.ErrUnsupported
)

func newValidationError(format string, args ...interface{}) error {
	return errors.Newf(ErrValidation, format, args...)
}

// Target is the deployment target the processor registers under.
const Target = "local"

// Config holds what a Processor is built from.
type Config struct {
	// Workers is the number of jobs which run without blocking each
	// other.
	Workers int
	// Queue is the number of submitted jobs waiting for a worker.
	Queue int

	Collections *connector.Collections
	Stats       task.PoolStats
	Logger      logger.Logger
}

// Processor runs statements in the gateway process. A job is kept until
// it is forgotten, so its final status stays readable for its owner.
type Processor struct {
	mu     sync.Mutex
	jobs   map[processor.JobID]*job
	closed bool

	pool   *task.Pool
	env    connector.Env
	logger logger.Logger
}

var _ processor.Processor = (*Processor)(nil)

// New returns a processor with a running worker pool.
func New(cfg Config) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger
	}
	if cfg.Collections == nil {
		cfg.Collections = connector.NewCollections()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	return &Processor{
		jobs:   make(map[processor.JobID]*job),
		pool:   task.NewPool(cfg.Workers, cfg.Queue, cfg.Stats),
		env:    connector.Env{Collections: cfg.Collections, Logger: cfg.Logger},
		logger: cfg.Logger,
	}
}

// Collections returns the in-memory collections of the collection
// connector.
func (p *Processor) Collections() *connector.Collections {
	return p.env.Collections
}

type job struct {
	id     processor.JobID
	cancel context.CancelFunc

	mu     sync.Mutex
	status processor.JobStatus
	err    error
}

func (j *job) info() processor.JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return processor.JobInfo{ID: j.id, Status: j.status, Err: j.err}
}

// transition moves the job to status unless it already ended.
func (j *job) transition(status processor.JobStatus, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return false
	}
	j.status, j.err = status, err
	return true
}

func (p *Processor) planner(ctx context.Context, cat *catalog.Manager, cfg environment.ExecutionConfig) *planner {
	return &planner{ctx: ctx, cat: cat, cfg: cfg, env: p.env}
}

// plan parses and plans sql. The returned node of an insert is a
// *sinkNode.
func (p *Processor) plan(ctx context.Context, cat *catalog.Manager, cfg environment.ExecutionConfig, sql string) (node, sqlparser.Statement, error) {
	sql, overwrite := rewriteOverwrite(sql)
	stmt, err := parseSQL(sql)
	if err != nil {
		return nil, nil, err
	}
	pl := p.planner(ctx, cat, cfg)
	switch stmt := stmt.(type) {
	case sqlparser.SelectStatement:
		n, err := pl.planQuery(stmt)
		return n, stmt, err
	case *sqlparser.Insert:
		n, err := pl.planInsert(stmt, overwrite)
		return n, stmt, err
	case *sqlparser.Update:
		return nil, nil, errors.New(ErrUnsupported, "UPDATE statements are not supported by the local processor")
	case *sqlparser.Delete:
		return nil, nil, errors.New(ErrUnsupported, "DELETE statements are not supported by the local processor")
	}
	return nil, nil, errors.Newf(ErrUnsupported, "Unsupported statement '%s'", sqlparser.String(stmt))
}

// Submit plans req and starts a job running it.
func (p *Processor) Submit(ctx context.Context, req processor.Request) (processor.JobID, *processor.Program, error) {
	n, _, err := p.plan(ctx, req.Catalog, req.Config, req.SQL)
	if err != nil {
		return "", nil, err
	}

	prog := &processor.Program{Bounded: n.bounded()}
	var run func(ctx context.Context) error
	if sink, ok := n.(*sinkNode); ok {
		prog.Kind = processor.ProgramInsert
		prog.Target = sink.target()
		run = func(ctx context.Context) error { return sink.run(ctx, nil) }
	} else {
		if req.Sink == nil {
			return "", nil, errors.New(processor.ErrInvalidProgram, "a query needs a row sink")
		}
		prog.Kind = processor.ProgramQuery
		prog.Schema = n.fields().schema()
		run = func(ctx context.Context) error {
			return n.run(ctx, func(row types.Row) error { return req.Sink.Emit(ctx, row) })
		}
	}

	u, err := uuid.NewV4()
	if err != nil {
		return "", nil, errors.Wrap(err, "generating job id")
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	jobCtx = gwcontext.WithBlocker(jobCtx, p.pool)
	if sid, ok := gwcontext.SessionID(ctx); ok {
		jobCtx = gwcontext.WithSessionID(jobCtx, sid)
	}
	j := &job{id: processor.JobID(u.String()), cancel: cancel, status: processor.JobCreated}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return "", nil, errors.New(task.ErrPoolClosed, "processor is closed")
	}
	p.jobs[j.id] = j
	p.mu.Unlock()

	if err := p.pool.Submit(ctx, func() { p.runJob(jobCtx, j, run) }); err != nil {
		cancel()
		p.mu.Lock()
		delete(p.jobs, j.id)
		p.mu.Unlock()
		return "", nil, err
	}
	p.logger.Debugf("submitted job %s: %s", j.id, req.SQL)
	return j.id, prog, nil
}

func (p *Processor) runJob(ctx context.Context, j *job, run func(context.Context) error) {
	defer j.cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("job %s panicked: %v", j.id, r)
			j.transition(processor.JobFailed, errors.Newf(ErrRuntime, "job panicked: %v", r))
		}
	}()

	if !j.transition(processor.JobRunning, nil) {
		return
	}
	err := run(ctx)
	switch {
	case ctx.Err() != nil:
		j.transition(processor.JobCanceled, nil)
	case err != nil:
		p.logger.Infof("job %s failed: %v", j.id, err)
		j.transition(processor.JobFailed, err)
	default:
		j.transition(processor.JobFinished, nil)
	}
}

func (p *Processor) job(id processor.JobID) (*job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return nil, errors.Newf(processor.ErrJobNotFound, "Could not find job %s", id)
	}
	return j, nil
}

// Status samples the state of a job.
func (p *Processor) Status(ctx context.Context, id processor.JobID) (processor.JobInfo, error) {
	j, err := p.job(id)
	if err != nil {
		return processor.JobInfo{}, err
	}
	return j.info(), nil
}

// Cancel stops a job. A job which has not started yet ends as CANCELED at
// once; a running job ends once its operators notice.
func (p *Processor) Cancel(ctx context.Context, id processor.JobID) error {
	j, err := p.job(id)
	if err != nil {
		return err
	}
	j.cancel()
	j.mu.Lock()
	if j.status == processor.JobCreated {
		j.status = processor.JobCanceled
	}
	j.mu.Unlock()
	return nil
}

// Forget cancels job id and drops it.
func (p *Processor) Forget(ctx context.Context, id processor.JobID) error {
	p.mu.Lock()
	j, ok := p.jobs[id]
	delete(p.jobs, id)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	j.cancel()
	j.transition(processor.JobCanceled, nil)
	return nil
}

// Jobs returns the number of jobs not yet forgotten.
func (p *Processor) Jobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// Explain returns the syntax tree and the operator tree of sql.
func (p *Processor) Explain(ctx context.Context, cat *catalog.Manager, cfg environment.ExecutionConfig, sql string) (string, error) {
	n, stmt, err := p.plan(ctx, cat, cfg, sql)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("== Abstract Syntax Tree ==\n%s\n\n== Optimized Physical Plan ==\n%s", sqlparser.String(stmt), explain(n)), nil
}

// Analyzer returns an analyzer validating queries against cat.
func (p *Processor) Analyzer(cat *catalog.Manager) catalog.QueryAnalyzer {
	return &analyzer{p: p, cat: cat}
}

// Close cancels every job and stops the worker pool once the jobs ended.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, j := range p.jobs {
		j.cancel()
	}
	p.mu.Unlock()
	p.pool.Close()
	return nil
}
