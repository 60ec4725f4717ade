// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/types"
)

// analyzer validates view queries and computed column expressions for a
// catalog manager.
type analyzer struct {
	p   *Processor
	cat *catalog.Manager
}

// AnalyzeQuery plans query without running it. Views are validated in
// batch mode so that ORDER BY is accepted; unbounded tables are accepted
// too.
func (a *analyzer) AnalyzeQuery(ctx context.Context, query string) (*catalog.QueryAnalysis, error) {
	stmt, err := parseSQL(query)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return nil, newValidationError("A view must be defined by a query")
	}
	pl := a.p.planner(ctx, a.cat, environment.ExecutionConfig{})
	pl.analyzing = true
	n, err := pl.planQuery(sel)
	if err != nil {
		return nil, err
	}
	return &catalog.QueryAnalysis{
		Schema:    n.fields().schema(),
		DependsOn: pl.deps,
		Expanded:  sqlparser.String(sel),
	}, nil
}

// ExpressionType compiles expr over a row of schema.
func (a *analyzer) ExpressionType(ctx context.Context, expr string, schema types.Schema) (string, error) {
	e, err := parseExpr(expr)
	if err != nil {
		return "", err
	}
	c := &compiler{ctx: ctx, cat: a.cat, scope: scopeOf(nil, schema)}
	x, err := c.compile(e)
	if err != nil {
		return "", err
	}
	if x.typ == types.TypeNull {
		return types.TypeString, nil
	}
	return x.typ, nil
}
