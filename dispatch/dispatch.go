// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package dispatch classifies SQL statements and runs them against a
// session: property statements change the session overlay, catalog
// statements run synchronously, queries and inserts are submitted as jobs.
package dispatch

import (
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/parser"
)

const (
	ErrExecutionFailure errors.Code = "ExecutionFailure"
)

// Operation is the classification of one statement. It is one of
// *PropertyOp, *CatalogOp, *ExplainOp, *QueryOp or *UpdateOp.
type Operation interface {
	operation()
}

// PropertyOp changes or lists the session properties. It never touches
// the catalogs.
type PropertyOp struct {
	// Reset is set for RESET, which clears Key or, with no key, every
	// property.
	Reset bool
	Key   string
	Value string
}

// List reports whether the operation only lists the properties.
func (op *PropertyOp) List() bool { return !op.Reset && op.Key == "" }

// CatalogOp is DDL, USE, SHOW, DESCRIBE or a module statement. It runs
// synchronously and returns a small materialized result.
type CatalogOp struct {
	Stmt parser.Statement
}

// ExplainOp returns the plan of a query without running it.
type ExplainOp struct {
	Query string
}

// QueryOp is a query whose rows are served from a result.
type QueryOp struct {
	SQL string
}

// UpdateOp is a fire-and-forget INSERT. Its job status is polled
// directly.
type UpdateOp struct {
	SQL   string
	Table parser.QualifiedName
}

func (*PropertyOp) operation() {}
func (*CatalogOp) operation()  {}
func (*ExplainOp) operation()  {}
func (*QueryOp) operation()    {}
func (*UpdateOp) operation()   {}

// Classify parses sql and returns its operation. It has no side effects.
func Classify(sql string) (Operation, error) {
	stmt, err := parser.ParseStatement(sql)
	if err != nil {
		return nil, err
	}
	switch stmt := stmt.(type) {
	case *parser.SetStatement:
		return &PropertyOp{Key: stmt.Key, Value: stmt.Value}, nil
	case *parser.ResetStatement:
		return &PropertyOp{Reset: true, Key: stmt.Key}, nil
	case *parser.ExplainStatement:
		return &ExplainOp{Query: stmt.Query}, nil
	case *parser.QueryStatement:
		return &QueryOp{SQL: stmt.SQL}, nil
	case *parser.DMLStatement:
		if stmt.Kind != parser.DMLInsert {
			return nil, errors.Newf(parser.ErrUnsupported, "%s statements are not supported", stmt.Kind)
		}
		return &UpdateOp{SQL: stmt.SQL, Table: stmt.Table}, nil
	default:
		return &CatalogOp{Stmt: stmt}, nil
	}
}
