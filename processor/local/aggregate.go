// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/types"
)

// hasAggregate reports whether any select item calls an aggregate function.
func hasAggregate(exprs sqlparser.SelectExprs) bool {
	found := false
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		if f, ok := n.(*sqlparser.FuncExpr); ok && f.IsAggregate() {
			found = true
			return false, nil
		}
		_, sub := n.(*sqlparser.Subquery)
		return !found && !sub, nil
	}, exprs)
	return found
}

// aggCall is an aggregate function call of a query.
type aggCall struct {
	name     string
	distinct bool
	// arg is nil for COUNT(*).
	arg  *compiled
	typ  string
	text string
}

// grouping maps the grouping expressions and the aggregate calls of a
// query to slots of the aggregated row: keys first, then calls.
type grouping struct {
	input scope
	keys  []groupKey
	calls []aggCall
}

type groupKey struct {
	expr *compiled
	text string
	// col is the input column of a plain column key, or -1.
	col int
}

func (g *grouping) slot(i int, typ string, nullable bool) *compiled {
	return &compiled{
		eval:     func(row []interface{}) (interface{}, error) { return row[i], nil },
		typ:      typ,
		nullable: nullable,
	}
}

// lookup returns the slot of e if e is a grouping expression or an
// aggregate call. Calls which are not known yet are added.
func (g *grouping) lookup(c *compiler, e sqlparser.Expr) (*compiled, bool, error) {
	text := sqlparser.String(e)
	if f, ok := e.(*sqlparser.FuncExpr); ok && f.IsAggregate() {
		for i, call := range g.calls {
			if call.text == text {
				return g.slot(len(g.keys)+i, call.typ, true), true, nil
			}
		}
		call, err := g.compileCall(c, f)
		if err != nil {
			return nil, false, err
		}
		g.calls = append(g.calls, call)
		return g.slot(len(g.keys)+len(g.calls)-1, call.typ, call.name != "count"), true, nil
	}

	for i, k := range g.keys {
		if k.text == text {
			return g.slot(i, k.expr.typ, k.expr.nullable), true, nil
		}
	}
	if col, ok := e.(*sqlparser.ColName); ok {
		idx, err := g.input.resolve(col)
		if err != nil {
			return nil, false, err
		}
		for i, k := range g.keys {
			if k.col == idx {
				return g.slot(i, k.expr.typ, k.expr.nullable), true, nil
			}
		}
	}
	return nil, false, nil
}

func (g *grouping) compileCall(c *compiler, f *sqlparser.FuncExpr) (aggCall, error) {
	call := aggCall{name: f.Name.Lowered(), distinct: f.Distinct, text: sqlparser.String(f)}
	switch call.name {
	case "count", "sum", "min", "max", "avg":
	default:
		return call, newValidationError("Aggregate function %s is not supported", strings.ToUpper(call.name))
	}
	if len(f.Exprs) != 1 {
		return call, newValidationError("Invalid number of arguments to function %s", strings.ToUpper(call.name))
	}

	switch arg := f.Exprs[0].(type) {
	case *sqlparser.StarExpr:
		if call.name != "count" {
			return call, newValidationError("%s(*) is not supported", strings.ToUpper(call.name))
		}
	case *sqlparser.AliasedExpr:
		if hasAggregate(sqlparser.SelectExprs{arg}) {
			return call, newValidationError("Aggregate calls cannot be nested: '%s'", call.text)
		}
		inner := &compiler{ctx: c.ctx, cat: c.cat, scope: g.input}
		x, err := inner.compile(arg.Expr)
		if err != nil {
			return call, err
		}
		if call.name == "sum" || call.name == "avg" {
			if !isNumeric(x.typ) {
				return call, newValidationError("Cannot apply '%s' to arguments of type '%s(<%s>)'", strings.ToUpper(call.name), strings.ToUpper(call.name), x.typ)
			}
		}
		call.arg = x
	default:
		return call, newValidationError("Invalid argument to function %s", strings.ToUpper(call.name))
	}

	switch {
	case call.name == "count":
		call.typ = types.TypeBigInt
	case types.BaseType(call.arg.typ) == types.TypeNull:
		call.typ = types.TypeInt
	default:
		call.typ = types.BaseType(call.arg.typ)
	}
	return call, nil
}

// scope returns the fields of the aggregated row.
func (g *grouping) scope() scope {
	s := make(scope, 0, len(g.keys)+len(g.calls))
	for _, k := range g.keys {
		s = append(s, field{name: k.text, typ: k.expr.typ, nullable: k.expr.nullable})
	}
	for _, c := range g.calls {
		s = append(s, field{name: c.text, typ: c.typ, nullable: c.name != "count"})
	}
	return s
}

func (p *planner) planAggregate(sel *sqlparser.Select, input node) (node, error) {
	g := &grouping{input: input.fields()}
	c := &compiler{ctx: p.ctx, cat: p.cat, scope: input.fields()}
	for _, e := range sel.GroupBy {
		if hasAggregate(sqlparser.SelectExprs{&sqlparser.AliasedExpr{Expr: e}}) {
			return nil, newValidationError("Aggregate functions are not allowed in GROUP BY")
		}
		x, err := c.compile(e)
		if err != nil {
			return nil, err
		}
		k := groupKey{expr: x, text: sqlparser.String(e), col: -1}
		if col, ok := e.(*sqlparser.ColName); ok {
			k.col, _ = g.input.resolve(col)
		}
		g.keys = append(g.keys, k)
	}

	// Compiling the output registers the aggregate calls. The aggregate
	// node reads them after planning.
	agg := &aggregateNode{child: input, groups: g, streaming: p.streaming()}
	out := &compiler{ctx: p.ctx, cat: p.cat, groups: g}

	var having *filterNode
	if sel.Having != nil {
		cond, err := out.compileBool(sel.Having.Expr)
		if err != nil {
			return nil, err
		}
		having = &filterNode{cond: cond, text: sqlparser.String(sel.Having.Expr)}
	}
	proj, err := p.planProject(sel.SelectExprs, out, agg)
	if err != nil {
		return nil, err
	}
	if having != nil {
		having.child = agg
		proj.(*projectNode).child = having
	}
	return proj, nil
}

// newDistinct removes duplicate rows of input by grouping on every column.
func newDistinct(input node, streaming bool) node {
	fields := input.fields()
	g := &grouping{input: fields}
	for i, f := range fields {
		g.keys = append(g.keys, groupKey{
			expr: &compiled{
				eval:     func(i int) evalFunc { return func(row []interface{}) (interface{}, error) { return row[i], nil } }(i),
				typ:      f.typ,
				nullable: f.nullable,
			},
			text: f.name,
			col:  i,
		})
	}
	return &renameNode{
		child: &aggregateNode{child: input, groups: g, streaming: streaming, distinct: true},
		scope: fields,
	}
}

// aggregateNode groups its input. In streaming mode every input row
// updates the result of its group at once, retracting the previous
// result; in batch mode the final results are emitted once the input ends.
type aggregateNode struct {
	child     node
	groups    *grouping
	streaming bool
	distinct  bool
}

func (n *aggregateNode) fields() scope  { return n.groups.scope() }
func (n *aggregateNode) updating() bool { return n.streaming }
func (n *aggregateNode) bounded() bool  { return n.child.bounded() }

type group struct {
	key   []interface{}
	accs  []accumulator
	count int64
	// last is the result emitted for the group, nil if none.
	last []interface{}
}

func (n *aggregateNode) newGroup(key []interface{}) *group {
	g := &group{key: key, accs: make([]accumulator, len(n.groups.calls))}
	for i, c := range n.groups.calls {
		g.accs[i] = newAccumulator(c)
	}
	return g
}

func (g *group) result() []interface{} {
	out := make([]interface{}, 0, len(g.key)+len(g.accs))
	out = append(out, g.key...)
	for _, a := range g.accs {
		out = append(out, a.result())
	}
	return out
}

func (n *aggregateNode) run(ctx context.Context, emit emitFunc) error {
	groups := make(map[string]*group)
	var order []string

	err := n.child.run(ctx, func(row types.Row) error {
		key := make([]interface{}, len(n.groups.keys))
		for i, k := range n.groups.keys {
			v, err := k.expr.eval(row.Values)
			if err != nil {
				return err
			}
			key[i] = v
		}
		id := types.Row{Values: key}.Key()
		g, ok := groups[id]
		if !ok {
			g = n.newGroup(key)
			groups[id] = g
			order = append(order, id)
		}

		retract := row.Kind.IsRetraction()
		for i, c := range n.groups.calls {
			var v interface{} = true
			if c.arg != nil {
				var err error
				if v, err = c.arg.eval(row.Values); err != nil {
					return err
				}
			}
			g.accs[i].add(v, retract)
		}
		if retract {
			g.count--
		} else {
			g.count++
		}

		if !n.streaming {
			return nil
		}
		return n.emitChange(id, g, groups, emit)
	})
	if err != nil || n.streaming {
		return err
	}

	if len(n.groups.keys) == 0 && len(groups) == 0 && !n.distinct {
		// A global aggregate has a result even without input.
		return emit(types.Row{Kind: types.Insert, Values: n.newGroup(nil).result()})
	}
	for _, id := range order {
		g := groups[id]
		if g == nil || g.count <= 0 {
			continue
		}
		if err := emit(types.Row{Kind: types.Insert, Values: g.result()}); err != nil {
			return err
		}
	}
	return nil
}

// emitChange emits the change of group g's result after an update.
func (n *aggregateNode) emitChange(id string, g *group, groups map[string]*group, emit emitFunc) error {
	if g.count <= 0 {
		delete(groups, id)
		if g.last == nil {
			return nil
		}
		return emit(types.Row{Kind: types.Delete, Values: g.last})
	}
	cur := g.result()
	prev := g.last
	g.last = cur
	if prev == nil {
		return emit(types.Row{Kind: types.Insert, Values: cur})
	}
	if (types.Row{Values: prev}).SameValues(types.Row{Values: cur}) {
		return nil
	}
	if err := emit(types.Row{Kind: types.UpdateBefore, Values: prev}); err != nil {
		return err
	}
	return emit(types.Row{Kind: types.UpdateAfter, Values: cur})
}

func (n *aggregateNode) describe() (string, []node) {
	keys := make([]string, len(n.groups.keys))
	for i, k := range n.groups.keys {
		keys[i] = k.text
	}
	if n.distinct {
		return "Distinct(fields=[" + strings.Join(keys, ", ") + "])", []node{n.child}
	}
	calls := make([]string, len(n.groups.calls))
	for i, c := range n.groups.calls {
		calls[i] = c.text
	}
	return "Aggregate(groupBy=[" + strings.Join(keys, ", ") + "], select=[" + strings.Join(calls, ", ") + "])", []node{n.child}
}

////////////////////////////////////////////////////////////////////////////////
// Accumulators
////////////////////////////////////////////////////////////////////////////////

// accumulator folds the values of one aggregate call within a group.
// Retracting a value undoes a previous add of it.
type accumulator interface {
	add(v interface{}, retract bool)
	result() interface{}
}

func newAccumulator(c aggCall) accumulator {
	var a accumulator
	switch c.name {
	case "count":
		a = &countAcc{}
	case "sum":
		a = &sumAcc{float: c.typ == types.TypeDouble}
	case "avg":
		a = &avgAcc{sumAcc{float: c.typ == types.TypeDouble}}
	case "min":
		a = newExtremeAcc(-1)
	default:
		a = newExtremeAcc(1)
	}
	if c.distinct {
		a = &distinctAcc{inner: a, seen: make(map[string]int)}
	}
	return a
}

type countAcc struct{ n int64 }

func (a *countAcc) add(v interface{}, retract bool) {
	if v == nil {
		return
	}
	if retract {
		a.n--
	} else {
		a.n++
	}
}

func (a *countAcc) result() interface{} { return a.n }

type sumAcc struct {
	float bool
	i     int64
	f     float64
	n     int64
}

func (a *sumAcc) add(v interface{}, retract bool) {
	if v == nil {
		return
	}
	sign := int64(1)
	if retract {
		sign = -1
	}
	a.n += sign
	if a.float {
		f, _ := types.AsFloat64(v)
		a.f += float64(sign) * f
		return
	}
	i, _ := types.AsInt64(v)
	a.i += sign * i
}

func (a *sumAcc) result() interface{} {
	if a.n <= 0 {
		return nil
	} else if a.float {
		return a.f
	}
	return a.i
}

// avgAcc averages in the argument's type, so the average of integers is
// truncated.
type avgAcc struct{ sumAcc }

func (a *avgAcc) result() interface{} {
	if a.n <= 0 {
		return nil
	} else if a.float {
		return a.f / float64(a.n)
	}
	return a.i / a.n
}

// extremeAcc computes MIN (dir -1) or MAX (dir 1). It counts every value
// so a retracted extreme can be replaced.
type extremeAcc struct {
	dir    int
	counts map[string]int
	values map[string]interface{}
}

func newExtremeAcc(dir int) *extremeAcc {
	return &extremeAcc{dir: dir, counts: make(map[string]int), values: make(map[string]interface{})}
}

func (a *extremeAcc) add(v interface{}, retract bool) {
	if v == nil {
		return
	}
	k := types.NewRow(v).Key()
	if retract {
		if a.counts[k]--; a.counts[k] <= 0 {
			delete(a.counts, k)
			delete(a.values, k)
		}
		return
	}
	a.counts[k]++
	a.values[k] = v
}

func (a *extremeAcc) result() interface{} {
	var out interface{}
	for _, v := range a.values {
		if out == nil || types.Compare(v, out)*a.dir > 0 {
			out = v
		}
	}
	return out
}

// distinctAcc passes only the first occurrence of each value to inner.
type distinctAcc struct {
	inner accumulator
	seen  map[string]int
}

func (a *distinctAcc) add(v interface{}, retract bool) {
	if v == nil {
		return
	}
	k := types.NewRow(v).Key()
	if retract {
		if a.seen[k]--; a.seen[k] <= 0 {
			delete(a.seen, k)
			a.inner.add(v, true)
		}
		return
	}
	if a.seen[k]++; a.seen[k] == 1 {
		a.inner.add(v, false)
	}
}

func (a *distinctAcc) result() interface{} { return a.inner.result() }
