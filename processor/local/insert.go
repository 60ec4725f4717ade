// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"strconv"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/connector"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/types"
)

// rewriteOverwrite turns INSERT OVERWRITE t ... into INSERT INTO t ... and
// reports whether it did.
func rewriteOverwrite(sql string) (string, bool) {
	s := parser.NewScanner(sql)
	_, tok, lit := s.Scan()
	if tok != parser.IDENT || !strings.EqualFold(lit, "INSERT") {
		return sql, false
	}
	pos, tok, lit := s.Scan()
	if tok != parser.IDENT || !strings.EqualFold(lit, "OVERWRITE") {
		return sql, false
	}
	return sql[:pos.Offset] + "INTO" + sql[s.Offset():], true
}

func (p *planner) planInsert(ins *sqlparser.Insert, overwrite bool) (*sinkNode, error) {
	if ins.Action != sqlparser.InsertStr {
		return nil, errors.Newf(ErrUnsupported, "%s statements are not supported by the local processor", strings.ToUpper(ins.Action))
	}
	if overwrite && p.streaming() {
		return nil, errors.New(ErrUnsupported, "INSERT OVERWRITE expression is only supported in batch mode.")
	}

	path, t, err := p.cat.ResolveTable(p.ctx, tableNameParts(ins.Table))
	if err != nil {
		return nil, err
	}
	if t.IsView() {
		return nil, newValidationError("Cannot insert into view '%s'", path.Summary())
	}
	ct := connector.Table{Path: path, Table: t}
	physical := ct.PhysicalSchema()

	// columns maps every value of the query's rows to a sink column.
	var columns []int
	if len(ins.Columns) == 0 {
		for i := range physical {
			columns = append(columns, i)
		}
	} else {
		for _, c := range ins.Columns {
			i := physical.Index(c.String())
			if i < 0 {
				return nil, newValidationError("Unknown target column '%s' of table '%s'", c.String(), path.Summary())
			}
			columns = append(columns, i)
		}
	}

	var input node
	switch rows := ins.Rows.(type) {
	case sqlparser.Values:
		if input, err = p.planValues(rows); err != nil {
			return nil, err
		}
	case sqlparser.SelectStatement:
		if input, err = p.planQuery(rows); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf(ErrUnsupported, "Unsupported INSERT source '%s'", sqlparser.String(ins.Rows))
	}

	fields := input.fields()
	if len(fields) != len(columns) {
		return nil, newValidationError("Column types of query result and sink for registered table '%s' do not match. Query has %d columns but the sink expects %d.", path.Summary(), len(fields), len(columns))
	}
	for i, f := range fields {
		col := physical[columns[i]]
		if !assignable(f.typ, col.Type) {
			return nil, newValidationError("Column types of query result and sink for registered table '%s' do not match. Cannot assign %s to column '%s' of type %s.", path.Summary(), f.typ, col.Name, col.Type)
		}
	}

	if p.depth == 0 {
		p.deps = append(p.deps, path)
	}
	return &sinkNode{
		child:     input,
		env:       p.env,
		table:     ct,
		schema:    physical,
		columns:   columns,
		overwrite: overwrite,
	}, nil
}

// assignable reports whether values of type from can be written to a
// column of type to.
func assignable(from, to string) bool {
	from, to = types.BaseType(from), types.BaseType(to)
	switch {
	case from == to, from == types.TypeNull, to == types.TypeString:
		return true
	case isNumeric(from) && isNumeric(to):
		return true
	case from == types.TypeString && (to == types.TypeTimestamp || to == types.TypeDate):
		return true
	}
	return false
}

// planValues plans the literal rows of INSERT ... VALUES.
func (p *planner) planValues(rows sqlparser.Values) (node, error) {
	c := &compiler{ctx: p.ctx, cat: p.cat}
	n := &valuesNode{}
	for i, tuple := range rows {
		if i > 0 && len(tuple) != len(n.rows[0]) {
			return nil, newValidationError("Values rows have different numbers of columns")
		}
		row := make([]*compiled, len(tuple))
		for j, e := range tuple {
			x, err := c.compile(e)
			if err != nil {
				return nil, err
			}
			row[j] = x
			if i == 0 {
				n.scope = append(n.scope, field{name: "EXPR$" + strconv.Itoa(j), typ: x.typ, nullable: x.nullable})
			} else {
				n.scope[j].typ = commonType(n.scope[j].typ, x.typ)
				n.scope[j].nullable = n.scope[j].nullable || x.nullable
			}
		}
		n.rows = append(n.rows, row)
	}
	return n, nil
}

// valuesNode emits rows of literal expressions.
type valuesNode struct {
	rows  [][]*compiled
	scope scope
}

func (n *valuesNode) fields() scope  { return n.scope }
func (n *valuesNode) updating() bool { return false }
func (n *valuesNode) bounded() bool  { return true }

func (n *valuesNode) run(ctx context.Context, emit emitFunc) error {
	for _, exprs := range n.rows {
		values := make([]interface{}, len(exprs))
		for i, x := range exprs {
			v, err := x.eval(nil)
			if err != nil {
				return err
			}
			values[i] = v
		}
		if err := emit(types.Row{Kind: types.Insert, Values: values}); err != nil {
			return err
		}
	}
	return nil
}

func (n *valuesNode) describe() (string, []node) {
	return "Values(rows=[" + strconv.Itoa(len(n.rows)) + "])", nil
}

// sinkNode writes the rows of its input to a table. It emits nothing.
type sinkNode struct {
	child     node
	env       connector.Env
	table     connector.Table
	schema    types.Schema
	columns   []int
	overwrite bool
}

func (n *sinkNode) target() catalog.ObjectPath { return n.table.Path }

func (n *sinkNode) fields() scope  { return nil }
func (n *sinkNode) updating() bool { return false }
func (n *sinkNode) bounded() bool  { return n.child.bounded() }

func (n *sinkNode) run(ctx context.Context, _ emitFunc) (err error) {
	if n.overwrite {
		if err := connector.Truncate(ctx, n.env, n.table); err != nil {
			return err
		}
	}
	sink, err := connector.OpenSink(ctx, n.env, n.table)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing sink of table '%s'", n.table.Path.Summary())
		}
	}()

	return n.child.run(ctx, func(row types.Row) error {
		out := types.Row{Kind: row.Kind, Values: make([]interface{}, len(n.schema))}
		for i, v := range row.Values {
			col := n.schema[n.columns[i]]
			cv, err := types.Coerce(v, col.Type)
			if err != nil {
				return errors.Wrapf(err, "column '%s'", col.Name)
			}
			out.Values[n.columns[i]] = cv
		}
		for i, col := range n.schema {
			if out.Values[i] == nil && !col.Nullable {
				return errors.Newf(ErrRuntime, "Column '%s' of table '%s' is NOT NULL but received null", col.Name, n.table.Path.Summary())
			}
		}
		return sink.Write(ctx, out)
	})
}

func (n *sinkNode) describe() (string, []node) {
	p := n.table.Path
	return "Sink(table=[" + p.Catalog + "." + p.Database + "." + p.Object + "], fields=[" +
		strings.Join(n.schema.Names(), ", ") + "])", []node{n.child}
}
