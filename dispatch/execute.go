// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/job"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/result"
	"github.com/featurebasedb/sqlgateway/session"
	"github.com/featurebasedb/sqlgateway/tracing"
	"github.com/featurebasedb/sqlgateway/types"
)

// Outcome is what a statement produced. Exactly one field is set.
type Outcome struct {
	// Table is the immediate result of a property, catalog or explain
	// statement.
	Table *types.TableResult
	// Result describes the result a query's rows are served from.
	Result *result.Descriptor
	// Job is the job of an insert.
	Job processor.JobID
}

// Failure annotates err as the failure of sql in session sessionID. The
// cause chain of err is kept.
func Failure(sessionID, sql string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithMessagef(errors.Wrapc(err, ErrExecutionFailure, "Could not execute statement: "+sql), "session %s", sessionID)
}

// Execute classifies sql and runs it against s. Every error is returned as
// an ExecutionFailure.
func Execute(ctx context.Context, s *session.Session, sql string) (*Outcome, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "dispatch.Execute")
	defer span.Finish()

	op, err := Classify(sql)
	if err != nil {
		return nil, Failure(s.ID(), sql, err)
	}
	out, err := Run(ctx, s, op)
	if err != nil {
		return nil, Failure(s.ID(), sql, err)
	}
	return out, nil
}

// Run executes a classified operation.
func Run(ctx context.Context, s *session.Session, op Operation) (*Outcome, error) {
	switch op := op.(type) {
	case *PropertyOp:
		t, err := runProperty(s, op)
		return &Outcome{Table: t}, err
	case *CatalogOp:
		t, err := RunCatalog(ctx, s, op.Stmt)
		return &Outcome{Table: t}, err
	case *ExplainOp:
		t, err := RunExplain(ctx, s, op.Query)
		return &Outcome{Table: t}, err
	case *QueryOp:
		desc, err := RunQuery(ctx, s, op.SQL)
		return &Outcome{Result: desc}, err
	case *UpdateOp:
		id, err := RunUpdate(ctx, s, op.SQL)
		return &Outcome{Job: id}, err
	}
	return nil, errors.Newf(parser.ErrUnsupported, "unknown operation %T", op)
}

var propertySchema = types.Schema{
	{Name: "key", Type: types.TypeString},
	{Name: "value", Type: types.TypeString},
}

func runProperty(s *session.Session, op *PropertyOp) (*types.TableResult, error) {
	var err error
	switch {
	case op.List():
		props, err := s.Properties()
		if err != nil {
			return nil, err
		}
		res := &types.TableResult{Kind: types.ResultSuccessWithContent, Schema: propertySchema}
		for _, k := range session.PropertyKeys(props) {
			res.Rows = append(res.Rows, types.NewRow(k, props[k]))
		}
		return res, nil
	case op.Reset && op.Key == "":
		err = s.ResetProperties()
	case op.Reset:
		err = s.ResetProperty(op.Key)
	default:
		err = s.SetProperty(op.Key, op.Value)
	}
	if err != nil {
		return nil, err
	}
	return types.OK(), nil
}

// RunCatalog executes a catalog statement on the session's catalogs.
func RunCatalog(ctx context.Context, s *session.Session, stmt parser.Statement) (*types.TableResult, error) {
	ec, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	return ec.Catalog().Execute(ctx, stmt)
}

// RunExplain returns the plan of query as a one row result.
func RunExplain(ctx context.Context, s *session.Session, query string) (*types.TableResult, error) {
	ec, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := ec.Processor().Explain(ctx, ec.Catalog(), ec.Config(), query)
	if err != nil {
		return nil, err
	}
	return types.StringsResult("result", []string{plan}), nil
}

// RunQuery submits a query whose rows go to a new result of the session.
// It returns once the job is submitted.
func RunQuery(ctx context.Context, s *session.Session, sql string) (*result.Descriptor, error) {
	ec, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Results().Create(ec.Config(), nil)
	if err != nil {
		return nil, err
	}
	id := r.Descriptor().ID

	proc := ec.Processor()
	jobID, prog, err := proc.Submit(ctx, processor.Request{
		SQL:     sql,
		Catalog: ec.Catalog(),
		Config:  ec.Config(),
		Sink:    r,
	})
	if err == nil && prog.Kind != processor.ProgramQuery {
		err = errors.New(parser.ErrUnsupported, "Statement is not a query")
		abandon(ctx, s, proc, jobID)
	}
	var h *job.Handle
	if err == nil {
		if h, err = s.Jobs().Track(proc, jobID, sql); err != nil {
			abandon(ctx, s, proc, jobID)
		}
	}
	if err != nil {
		if derr := s.Results().Drop(id); derr != nil {
			s.Logger().Warnf("dropping result %s: %v", id, derr)
		}
		return nil, err
	}

	if err := s.Results().Attach(id, result.Binding{
		Job:       h,
		JobID:     jobID,
		Schema:    prog.Schema,
		Bounded:   prog.Bounded,
		Statement: sql,
	}); err != nil {
		// The session closed while the job was submitted.
		if cerr := h.Cancel(ctx); cerr != nil {
			s.Logger().Warnf("cancelling job %s: %v", jobID, cerr)
		}
		s.Jobs().Remove(ctx, jobID)
		return nil, err
	}
	s.Logger().Debugf("submitted query job %s for result %s", jobID, id)
	desc := r.Descriptor()
	return &desc, nil
}

// RunUpdate submits an insert and returns its job id. No result is
// created; the job is polled through the session's supervisor.
func RunUpdate(ctx context.Context, s *session.Session, sql string) (processor.JobID, error) {
	ec, err := s.Context(ctx)
	if err != nil {
		return "", err
	}
	proc := ec.Processor()
	jobID, prog, err := proc.Submit(ctx, processor.Request{
		SQL:     sql,
		Catalog: ec.Catalog(),
		Config:  ec.Config(),
	})
	if err != nil {
		return "", err
	}
	if prog.Kind != processor.ProgramInsert {
		abandon(ctx, s, proc, jobID)
		return "", errors.New(parser.ErrUnsupported, "Statement is not an INSERT")
	}
	if _, err := s.Jobs().Track(proc, jobID, sql); err != nil {
		// The session closed while the job was submitted.
		abandon(ctx, s, proc, jobID)
		return "", err
	}
	s.Logger().Debugf("submitted insert job %s into %s", jobID, prog.Target.Summary())
	return jobID, nil
}

// abandon cancels and releases a job no supervisor tracks.
func abandon(ctx context.Context, s *session.Session, proc processor.Processor, id processor.JobID) {
	if err := proc.Cancel(ctx, id); err != nil {
		s.Logger().Warnf("cancelling job %s: %v", id, err)
	}
	if err := proc.Forget(ctx, id); err != nil {
		s.Logger().Warnf("releasing job %s: %v", id, err)
	}
}
