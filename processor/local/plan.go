// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/connector"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

// maxViewDepth bounds view expansion.
const maxViewDepth = 32

type emitFunc func(types.Row) error

// node is an operator of a query plan. Rows are pushed from the sources
// through every operator to the emit function of the root.
type node interface {
	fields() scope
	// updating reports whether the node emits retractions.
	updating() bool
	bounded() bool
	run(ctx context.Context, emit emitFunc) error
	// describe returns the operator's explain text and its inputs. Nodes
	// which only rename their input return an empty text.
	describe() (string, []node)
}

// planner turns a parsed statement into a tree of nodes.
type planner struct {
	ctx context.Context
	cat *catalog.Manager
	cfg environment.ExecutionConfig
	env connector.Env

	// depth is the view nesting level of the query being planned.
	depth int
	// deps collects the tables and views the top level query reads.
	deps []catalog.ObjectPath
	// analyzing is set when the plan is only validated, never run.
	analyzing bool
}

func (p *planner) streaming() bool { return p.cfg.Streaming }

// planQuery plans a SELECT statement.
func (p *planner) planQuery(stmt sqlparser.SelectStatement) (node, error) {
	switch stmt := stmt.(type) {
	case *sqlparser.Select:
		return p.planSelect(stmt)
	case *sqlparser.ParenSelect:
		return p.planQuery(stmt.Select)
	case *sqlparser.Union:
		return nil, errors.New(ErrUnsupported, "UNION is not supported by the local processor")
	}
	return nil, errors.Newf(ErrUnsupported, "Unsupported query '%s'", sqlparser.String(stmt))
}

func (p *planner) planSelect(sel *sqlparser.Select) (node, error) {
	input, err := p.planFrom(sel.From)
	if err != nil {
		return nil, err
	}

	if sel.Where != nil {
		c := &compiler{ctx: p.ctx, cat: p.cat, scope: input.fields()}
		cond, err := c.compileBool(sel.Where.Expr)
		if err != nil {
			return nil, err
		}
		input = &filterNode{child: input, cond: cond, text: sqlparser.String(sel.Where.Expr)}
	}

	var out node
	if len(sel.GroupBy) > 0 || hasAggregate(sel.SelectExprs) || sel.Having != nil {
		out, err = p.planAggregate(sel, input)
	} else {
		out, err = p.planProject(sel.SelectExprs, &compiler{ctx: p.ctx, cat: p.cat, scope: input.fields()}, input)
	}
	if err != nil {
		return nil, err
	}

	if sel.Distinct != "" {
		out = newDistinct(out, p.streaming())
	}
	if len(sel.OrderBy) > 0 {
		if out, err = p.planSort(sel.OrderBy, out); err != nil {
			return nil, err
		}
	}
	if sel.Limit != nil {
		if out, err = p.planLimit(sel.Limit, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *planner) planFrom(from sqlparser.TableExprs) (node, error) {
	if len(from) != 1 {
		return nil, errors.New(ErrUnsupported, "Joins are not supported by the local processor")
	}
	return p.planTableExpr(from[0])
}

func (p *planner) planTableExpr(te sqlparser.TableExpr) (node, error) {
	switch te := te.(type) {
	case *sqlparser.AliasedTableExpr:
		var alias []string
		if !te.As.IsEmpty() {
			alias = []string{te.As.String()}
		}
		switch expr := te.Expr.(type) {
		case sqlparser.TableName:
			if expr.Qualifier.IsEmpty() && strings.EqualFold(expr.Name.String(), "dual") {
				return singleRowNode{}, nil
			}
			n, path, err := p.planTable(tableNameParts(expr), alias)
			if err != nil {
				return nil, err
			}
			if p.depth == 0 {
				// Record the fully qualified name for the expanded query.
				te.Expr = sqlparser.TableName{Name: sqlparser.NewTableIdent(path.Summary())}
			}
			return n, nil
		case *sqlparser.Subquery:
			n, err := p.planQuery(expr.Select)
			if err != nil {
				return nil, err
			}
			return &renameNode{child: n, scope: n.fields().requalify(alias)}, nil
		}
	case *sqlparser.ParenTableExpr:
		return p.planFrom(te.Exprs)
	case *sqlparser.JoinTableExpr:
		return nil, errors.New(ErrUnsupported, "Joins are not supported by the local processor")
	}
	return nil, errors.Newf(ErrUnsupported, "Unsupported table expression '%s'", sqlparser.String(te))
}

// planTable plans a read of the table or view called name.
func (p *planner) planTable(name []string, alias []string) (node, catalog.ObjectPath, error) {
	path, t, err := p.cat.ResolveTable(p.ctx, name)
	if err != nil {
		return nil, path, err
	}
	if p.depth == 0 {
		p.deps = append(p.deps, path)
	}
	qualifier := alias
	if len(qualifier) == 0 {
		qualifier = []string{path.Catalog, path.Database, path.Object}
	}

	if t.IsView() {
		n, err := p.planView(path, t)
		if err != nil {
			return nil, path, err
		}
		return &renameNode{child: n, scope: scopeOf(qualifier, t.Schema)}, path, nil
	}

	ct := connector.Table{Path: path, Table: t}
	src, err := connector.OpenSource(p.ctx, p.env, ct)
	if err != nil {
		return nil, path, err
	}
	if !p.streaming() && !p.analyzing && !src.Bounded() {
		return nil, path, newValidationError("Querying an unbounded table '%s' in batch mode is not allowed. The table source is unbounded.", path.Summary())
	}
	scan := &scanNode{path: path, src: src, scope: scopeOf(qualifier, t.Schema)}
	if err := scan.compileComputed(p, ct); err != nil {
		return nil, path, err
	}
	return scan, path, nil
}

func (p *planner) planView(path catalog.ObjectPath, t *catalog.Table) (node, error) {
	if p.depth >= maxViewDepth {
		return nil, newValidationError("View '%s' is nested too deeply", path.Summary())
	}
	stmt, err := parseSQL(t.Query)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding view '%s'", path.Summary())
	}
	q, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return nil, newValidationError("View '%s' is not defined by a query", path.Summary())
	}
	p.depth++
	defer func() { p.depth-- }()
	n, err := p.planQuery(q)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding view '%s'", path.Summary())
	}
	if len(n.fields()) != len(t.Schema) {
		return nil, newValidationError("View '%s' returns %d columns but is declared with %d", path.Summary(), len(n.fields()), len(t.Schema))
	}
	return n, nil
}

// exprName returns the output name of a select item without an alias.
func exprName(e sqlparser.Expr, i int) string {
	if col, ok := e.(*sqlparser.ColName); ok {
		_, name := colNameParts(col)
		return name
	}
	return "EXPR$" + strconv.Itoa(i)
}

func (p *planner) planProject(exprs sqlparser.SelectExprs, c *compiler, input node) (node, error) {
	proj := &projectNode{child: input}
	for _, se := range exprs {
		switch se := se.(type) {
		case *sqlparser.StarExpr:
			if c.groups != nil {
				return nil, newValidationError("SELECT * is not allowed with GROUP BY")
			}
			idx, err := c.scope.star(se.TableName)
			if err != nil {
				return nil, err
			}
			for _, i := range idx {
				i, f := i, c.scope[i]
				proj.exprs = append(proj.exprs, &compiled{
					eval:     func(row []interface{}) (interface{}, error) { return row[i], nil },
					typ:      f.typ,
					nullable: f.nullable,
				})
				proj.scope = append(proj.scope, field{name: f.name, typ: f.typ, nullable: f.nullable})
				proj.texts = append(proj.texts, f.name)
			}
		case *sqlparser.AliasedExpr:
			x, err := c.compile(se.Expr)
			if err != nil {
				return nil, err
			}
			name := exprName(se.Expr, len(proj.exprs))
			if !se.As.IsEmpty() {
				name = se.As.String()
			}
			typ := x.typ
			if typ == types.TypeNull {
				typ = types.TypeString
			}
			proj.exprs = append(proj.exprs, x)
			proj.scope = append(proj.scope, field{name: name, typ: typ, nullable: x.nullable})
			proj.texts = append(proj.texts, sqlparser.String(se.Expr))
		default:
			return nil, newValidationError("Unsupported select item '%s'", sqlparser.String(se))
		}
	}
	seen := make(map[string]bool)
	for _, f := range proj.scope {
		key := strings.ToLower(f.name)
		if seen[key] && !strings.HasPrefix(f.name, "EXPR$") {
			return nil, newValidationError("Duplicate column name '%s' in the result of the query", f.name)
		}
		seen[key] = true
	}
	return proj, nil
}

func (p *planner) planSort(orderBy sqlparser.OrderBy, input node) (node, error) {
	if p.streaming() {
		return nil, errors.New(ErrUnsupported, "Sort on a non-time-attribute field is not supported.")
	}
	c := &compiler{ctx: p.ctx, cat: p.cat, scope: input.fields()}
	s := &sortNode{child: input}
	for _, o := range orderBy {
		x, err := c.compile(o.Expr)
		if err != nil {
			return nil, err
		}
		s.keys = append(s.keys, sortKey{expr: x, desc: o.Direction == sqlparser.DescScr, text: sqlparser.String(o.Expr)})
	}
	return s, nil
}

func (p *planner) planLimit(limit *sqlparser.Limit, input node) (node, error) {
	if input.updating() {
		return nil, errors.New(ErrUnsupported, "LIMIT on an updating query is not supported in streaming mode")
	}
	n := &limitNode{child: input, count: -1}
	var err error
	if limit.Offset != nil {
		if n.offset, err = p.constantInt(limit.Offset, "OFFSET"); err != nil {
			return nil, err
		}
	}
	if limit.Rowcount != nil {
		if n.count, err = p.constantInt(limit.Rowcount, "LIMIT"); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *planner) constantInt(e sqlparser.Expr, clause string) (int64, error) {
	c := &compiler{ctx: p.ctx, cat: p.cat}
	x, err := c.compile(e)
	if err != nil {
		return 0, err
	}
	v, err := x.eval(nil)
	if err != nil || !x.constant {
		return 0, newValidationError("%s must be a constant", clause)
	}
	i, ok := v.(int64)
	if !ok || i < 0 {
		return 0, newValidationError("%s must be a non-negative integer", clause)
	}
	return i, nil
}

////////////////////////////////////////////////////////////////////////////////
// Nodes
////////////////////////////////////////////////////////////////////////////////

// scanNode reads a table through its connector.
type scanNode struct {
	path  catalog.ObjectPath
	src   connector.Source
	scope scope

	// computed holds, for every column of the table, the expression of a
	// computed column or nil.
	computed []*compiled
	// physical maps every column to its index in the connector's rows.
	physical []int
}

func (n *scanNode) compileComputed(p *planner, t connector.Table) error {
	phys := scopeOf(nil, t.PhysicalSchema())
	c := &compiler{ctx: p.ctx, cat: p.cat, scope: phys}
	j := 0
	for _, col := range t.Schema {
		if col.Expr == "" {
			n.computed = append(n.computed, nil)
			n.physical = append(n.physical, j)
			j++
			continue
		}
		e, err := parseExpr(col.Expr)
		if err != nil {
			return errors.Wrapf(err, "computed column '%s'", col.Name)
		}
		x, err := c.compile(e)
		if err != nil {
			return errors.Wrapf(err, "computed column '%s'", col.Name)
		}
		n.computed = append(n.computed, x)
		n.physical = append(n.physical, -1)
	}
	return nil
}

func (n *scanNode) fields() scope  { return n.scope }
func (n *scanNode) updating() bool { return false }
func (n *scanNode) bounded() bool  { return n.src.Bounded() }

func (n *scanNode) hasComputed() bool {
	for _, x := range n.computed {
		if x != nil {
			return true
		}
	}
	return false
}

func (n *scanNode) run(ctx context.Context, emit emitFunc) error {
	computed := n.hasComputed()
	return n.src.Read(ctx, func(row types.Row) error {
		if !computed {
			return emit(row)
		}
		out := make([]interface{}, len(n.scope))
		for i, x := range n.computed {
			if x == nil {
				out[i] = row.Values[n.physical[i]]
				continue
			}
			v, err := x.eval(row.Values)
			if err != nil {
				return err
			}
			if out[i], err = types.Coerce(v, n.scope[i].typ); err != nil {
				return err
			}
		}
		return emit(types.Row{Kind: row.Kind, Values: out})
	})
}

func (n *scanNode) describe() (string, []node) {
	return "TableSourceScan(table=[[" + n.path.Catalog + ", " + n.path.Database + ", " + n.path.Object + "]], fields=[" +
		strings.Join(n.scope.schema().Names(), ", ") + "])", nil
}

// singleRowNode produces one empty row, the input of a query without FROM.
type singleRowNode struct{}

func (singleRowNode) fields() scope  { return nil }
func (singleRowNode) updating() bool { return false }
func (singleRowNode) bounded() bool  { return true }

func (singleRowNode) run(ctx context.Context, emit emitFunc) error {
	return emit(types.Row{Kind: types.Insert, Values: []interface{}{}})
}

func (singleRowNode) describe() (string, []node) {
	return "Values(tuples=[[{ 0 }]])", nil
}

// renameNode exposes its input's rows under other names.
type renameNode struct {
	child node
	scope scope
}

func (n *renameNode) fields() scope                                { return n.scope }
func (n *renameNode) updating() bool                               { return n.child.updating() }
func (n *renameNode) bounded() bool                                { return n.child.bounded() }
func (n *renameNode) run(ctx context.Context, emit emitFunc) error { return n.child.run(ctx, emit) }
func (n *renameNode) describe() (string, []node)                   { return "", []node{n.child} }

type filterNode struct {
	child node
	cond  *compiled
	text  string
}

func (n *filterNode) fields() scope  { return n.child.fields() }
func (n *filterNode) updating() bool { return n.child.updating() }
func (n *filterNode) bounded() bool  { return n.child.bounded() }

func (n *filterNode) run(ctx context.Context, emit emitFunc) error {
	return n.child.run(ctx, func(row types.Row) error {
		v, err := n.cond.eval(row.Values)
		if err != nil {
			return err
		}
		if v == true {
			return emit(row)
		}
		return nil
	})
}

func (n *filterNode) describe() (string, []node) {
	return "Filter(condition=[" + n.text + "])", []node{n.child}
}

type projectNode struct {
	child node
	exprs []*compiled
	scope scope
	texts []string
}

func (n *projectNode) fields() scope  { return n.scope }
func (n *projectNode) updating() bool { return n.child.updating() }
func (n *projectNode) bounded() bool  { return n.child.bounded() }

func (n *projectNode) run(ctx context.Context, emit emitFunc) error {
	return n.child.run(ctx, func(row types.Row) error {
		out := make([]interface{}, len(n.exprs))
		for i, x := range n.exprs {
			v, err := x.eval(row.Values)
			if err != nil {
				return err
			}
			out[i] = v
		}
		return emit(types.Row{Kind: row.Kind, Values: out})
	})
}

func (n *projectNode) describe() (string, []node) {
	parts := make([]string, len(n.texts))
	for i, t := range n.texts {
		if t == n.scope[i].name {
			parts[i] = t
		} else {
			parts[i] = t + " AS " + n.scope[i].name
		}
	}
	return "Project(fields=[" + strings.Join(parts, ", ") + "])", []node{n.child}
}

type sortKey struct {
	expr *compiled
	desc bool
	text string
}

// sortNode orders a bounded input.
type sortNode struct {
	child node
	keys  []sortKey
}

func (n *sortNode) fields() scope  { return n.child.fields() }
func (n *sortNode) updating() bool { return false }
func (n *sortNode) bounded() bool  { return true }

func (n *sortNode) run(ctx context.Context, emit emitFunc) error {
	type keyed struct {
		row  types.Row
		keys []interface{}
	}
	var rows []keyed
	err := n.child.run(ctx, func(row types.Row) error {
		k := keyed{row: row, keys: make([]interface{}, len(n.keys))}
		for i, key := range n.keys {
			v, err := key.expr.eval(row.Values)
			if err != nil {
				return err
			}
			k.keys[i] = v
		}
		rows = append(rows, k)
		return nil
	})
	if err != nil {
		return err
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for i, key := range n.keys {
			cmp := types.Compare(rows[a].keys[i], rows[b].keys[i])
			if cmp == 0 {
				continue
			}
			if key.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	for _, r := range rows {
		if err := emit(r.row); err != nil {
			return err
		}
	}
	return nil
}

func (n *sortNode) describe() (string, []node) {
	parts := make([]string, len(n.keys))
	for i, k := range n.keys {
		dir := "ASC"
		if k.desc {
			dir = "DESC"
		}
		parts[i] = k.text + " " + dir
	}
	return "Sort(orderBy=[" + strings.Join(parts, ", ") + "])", []node{n.child}
}

// errLimitReached stops the sources of a query once its LIMIT is reached.
var errLimitReached = errors.New(errCodeLimitReached, "limit reached")

const errCodeLimitReached errors.Code = "LimitReached"

type limitNode struct {
	child  node
	offset int64
	// count is -1 without a row count.
	count int64
}

func (n *limitNode) fields() scope  { return n.child.fields() }
func (n *limitNode) updating() bool { return false }
func (n *limitNode) bounded() bool  { return n.count >= 0 || n.child.bounded() }

func (n *limitNode) run(ctx context.Context, emit emitFunc) error {
	if n.count == 0 {
		return nil
	}
	var seen, emitted int64
	err := n.child.run(ctx, func(row types.Row) error {
		seen++
		if seen <= n.offset {
			return nil
		}
		if err := emit(row); err != nil {
			return err
		}
		emitted++
		if n.count >= 0 && emitted >= n.count {
			return errLimitReached
		}
		return nil
	})
	if errors.Is(err, errCodeLimitReached) {
		return nil
	}
	return err
}

func (n *limitNode) describe() (string, []node) {
	return "Limit(offset=[" + strconv.FormatInt(n.offset, 10) + "], fetch=[" + strconv.FormatInt(n.count, 10) + "])", []node{n.child}
}

// explain renders the plan rooted at n, one operator per line.
func explain(n node) string {
	var sb strings.Builder
	var walk func(n node, depth int)
	walk = func(n node, depth int) {
		text, inputs := n.describe()
		if text != "" {
			if depth > 0 {
				sb.WriteString(strings.Repeat("   ", depth-1))
				sb.WriteString("+- ")
			}
			sb.WriteString(text)
			sb.WriteString("\n")
			depth++
		}
		for _, in := range inputs {
			walk(in, depth)
		}
	}
	walk(n, 0)
	return sb.String()
}
