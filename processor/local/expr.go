// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

// evalFunc computes an expression over one row.
type evalFunc func(row []interface{}) (interface{}, error)

// compiled is an expression ready to evaluate.
type compiled struct {
	eval     evalFunc
	typ      string
	nullable bool
	// constant is set when eval ignores its row.
	constant bool
}

// compiler turns parsed expressions into evalFuncs over rows of a scope.
type compiler struct {
	ctx   context.Context
	cat   *catalog.Manager
	scope scope

	// groups is set when compiling the output of an aggregation. Grouping
	// expressions and aggregate calls then read slots of the aggregated
	// row instead of the input row.
	groups *grouping
}

func (c *compiler) compile(e sqlparser.Expr) (*compiled, error) {
	if c.groups != nil {
		if x, ok, err := c.groups.lookup(c, e); err != nil || ok {
			return x, err
		}
	}

	switch e := e.(type) {
	case *sqlparser.ColName:
		if c.groups != nil {
			_, name := colNameParts(e)
			return nil, newValidationError("Expression '%s' is not being grouped", name)
		}
		i, err := c.scope.resolve(e)
		if err != nil {
			return nil, err
		}
		f := c.scope[i]
		return &compiled{
			eval:     func(row []interface{}) (interface{}, error) { return row[i], nil },
			typ:      f.typ,
			nullable: f.nullable,
		}, nil

	case *sqlparser.SQLVal:
		return compileLiteral(e)
	case *sqlparser.NullVal:
		return constant(nil, types.TypeNull), nil
	case sqlparser.BoolVal:
		return constant(bool(e), types.TypeBoolean), nil
	case *sqlparser.ParenExpr:
		return c.compile(e.Expr)

	case *sqlparser.AndExpr:
		return c.compileLogic(e.Left, e.Right, true)
	case *sqlparser.OrExpr:
		return c.compileLogic(e.Left, e.Right, false)
	case *sqlparser.NotExpr:
		x, err := c.compileBool(e.Expr)
		if err != nil {
			return nil, err
		}
		return &compiled{typ: types.TypeBoolean, nullable: x.nullable, eval: func(row []interface{}) (interface{}, error) {
			v, err := x.eval(row)
			if v == nil || err != nil {
				return nil, err
			}
			return !v.(bool), nil
		}}, nil

	case *sqlparser.ComparisonExpr:
		return c.compileComparison(e)
	case *sqlparser.RangeCond:
		return c.compileBetween(e)
	case *sqlparser.IsExpr:
		return c.compileIs(e)
	case *sqlparser.BinaryExpr:
		return c.compileArithmetic(e)
	case *sqlparser.UnaryExpr:
		return c.compileUnary(e)
	case *sqlparser.CaseExpr:
		return c.compileCase(e)
	case *sqlparser.FuncExpr:
		if e.IsAggregate() {
			return nil, newValidationError("Aggregate function %s is not allowed here", strings.ToUpper(e.Name.String()))
		}
		return c.compileCall(funcNameParts(e), e.Exprs)
	case *sqlparser.SubstrExpr:
		return c.compileSubstr(e)
	case *sqlparser.ConvertExpr:
		return c.compileCast(e)
	case *sqlparser.Subquery, *sqlparser.ExistsExpr:
		return nil, newValidationError("Subqueries in expressions are not supported")
	}
	return nil, newValidationError("Unsupported expression '%s'", sqlparser.String(e))
}

func constant(v interface{}, typ string) *compiled {
	return &compiled{
		eval:     func([]interface{}) (interface{}, error) { return v, nil },
		typ:      typ,
		nullable: v == nil,
		constant: true,
	}
}

func compileLiteral(v *sqlparser.SQLVal) (*compiled, error) {
	s := string(v.Val)
	switch v.Type {
	case sqlparser.StrVal:
		return constant(s, types.TypeString), nil
	case sqlparser.IntVal:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return nil, newValidationError("Numeric literal '%s' out of range", s)
			}
			return constant(f, types.TypeDouble), nil
		}
		if i > 1<<31-1 || i < -1<<31 {
			return constant(i, types.TypeBigInt), nil
		}
		return constant(i, types.TypeInt), nil
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, newValidationError("Invalid numeric literal '%s'", s)
		}
		return constant(f, types.TypeDouble), nil
	case sqlparser.HexNum:
		i, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
		if err != nil {
			return nil, newValidationError("Invalid hexadecimal literal '%s'", s)
		}
		return constant(i, types.TypeBigInt), nil
	}
	return nil, newValidationError("Unsupported literal '%s'", sqlparser.String(v))
}

func isNumeric(typ string) bool {
	switch types.BaseType(typ) {
	case types.TypeInt, types.TypeBigInt, types.TypeDouble, types.TypeNull:
		return true
	}
	return false
}

// numericResult is the type of arithmetic between a and b.
func numericResult(a, b string) string {
	a, b = types.BaseType(a), types.BaseType(b)
	switch {
	case a == types.TypeDouble || b == types.TypeDouble:
		return types.TypeDouble
	case a == types.TypeBigInt || b == types.TypeBigInt:
		return types.TypeBigInt
	case a == types.TypeNull:
		return b
	}
	return a
}

func (c *compiler) compileBool(e sqlparser.Expr) (*compiled, error) {
	x, err := c.compile(e)
	if err != nil {
		return nil, err
	}
	if t := types.BaseType(x.typ); t != types.TypeBoolean && t != types.TypeNull {
		return nil, newValidationError("Expression '%s' must be boolean but is %s", sqlparser.String(e), x.typ)
	}
	return x, nil
}

// compileLogic compiles AND and OR with three valued logic.
func (c *compiler) compileLogic(left, right sqlparser.Expr, and bool) (*compiled, error) {
	l, err := c.compileBool(left)
	if err != nil {
		return nil, err
	}
	r, err := c.compileBool(right)
	if err != nil {
		return nil, err
	}
	return &compiled{typ: types.TypeBoolean, nullable: l.nullable || r.nullable, eval: func(row []interface{}) (interface{}, error) {
		lv, err := l.eval(row)
		if err != nil {
			return nil, err
		}
		// FALSE AND x, TRUE OR x
		if lv != nil && lv.(bool) != and {
			return lv, nil
		}
		rv, err := r.eval(row)
		if err != nil {
			return nil, err
		}
		if rv != nil && rv.(bool) != and {
			return rv, nil
		}
		if lv == nil || rv == nil {
			return nil, nil
		}
		return and, nil
	}}, nil
}

func (c *compiler) compileComparison(e *sqlparser.ComparisonExpr) (*compiled, error) {
	l, err := c.compile(e.Left)
	if err != nil {
		return nil, err
	}

	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, newValidationError("IN requires a list of values")
		}
		items := make([]*compiled, len(tuple))
		for i, item := range tuple {
			if items[i], err = c.compile(item); err != nil {
				return nil, err
			}
		}
		negate := e.Operator == sqlparser.NotInStr
		return &compiled{typ: types.TypeBoolean, nullable: true, eval: func(row []interface{}) (interface{}, error) {
			lv, err := l.eval(row)
			if lv == nil || err != nil {
				return nil, err
			}
			sawNull := false
			for _, item := range items {
				v, err := item.eval(row)
				if err != nil {
					return nil, err
				} else if v == nil {
					sawNull = true
				} else if types.Compare(lv, v) == 0 {
					return !negate, nil
				}
			}
			if sawNull {
				return nil, nil
			}
			return negate, nil
		}}, nil

	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		return c.compileLike(l, e)
	}

	r, err := c.compile(e.Right)
	if err != nil {
		return nil, err
	}
	var test func(cmp int) bool
	switch e.Operator {
	case sqlparser.EqualStr, sqlparser.NullSafeEqualStr:
		test = func(cmp int) bool { return cmp == 0 }
	case sqlparser.NotEqualStr:
		test = func(cmp int) bool { return cmp != 0 }
	case sqlparser.LessThanStr:
		test = func(cmp int) bool { return cmp < 0 }
	case sqlparser.LessEqualStr:
		test = func(cmp int) bool { return cmp <= 0 }
	case sqlparser.GreaterThanStr:
		test = func(cmp int) bool { return cmp > 0 }
	case sqlparser.GreaterEqualStr:
		test = func(cmp int) bool { return cmp >= 0 }
	default:
		return nil, newValidationError("Unsupported operator '%s'", e.Operator)
	}
	nullSafe := e.Operator == sqlparser.NullSafeEqualStr
	return &compiled{typ: types.TypeBoolean, nullable: !nullSafe && (l.nullable || r.nullable), eval: func(row []interface{}) (interface{}, error) {
		lv, err := l.eval(row)
		if err != nil {
			return nil, err
		}
		rv, err := r.eval(row)
		if err != nil {
			return nil, err
		}
		if lv == nil || rv == nil {
			if nullSafe {
				return lv == nil && rv == nil, nil
			}
			return nil, nil
		}
		return test(types.Compare(lv, rv)), nil
	}}, nil
}

// likePattern converts a LIKE pattern to an anchored regular expression.
func likePattern(pattern string, escape rune) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?s)^")
	escaped := false
	for _, ch := range pattern {
		switch {
		case escaped:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
			escaped = false
		case escape != 0 && ch == escape:
			escaped = true
		case ch == '%':
			sb.WriteString(".*")
		case ch == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, newValidationError("Invalid LIKE pattern '%s'", pattern)
	}
	return re, nil
}

func (c *compiler) compileLike(l *compiled, e *sqlparser.ComparisonExpr) (*compiled, error) {
	r, err := c.compile(e.Right)
	if err != nil {
		return nil, err
	}
	var escape rune
	if e.Escape != nil {
		x, err := c.compile(e.Escape)
		if err != nil {
			return nil, err
		}
		v, err := x.eval(nil)
		if err != nil || !x.constant {
			return nil, newValidationError("LIKE escape must be a constant")
		}
		if s := types.FormatValue(v); len([]rune(s)) == 1 {
			escape = []rune(s)[0]
		} else {
			return nil, newValidationError("LIKE escape must be a single character")
		}
	}

	var fixed *regexp.Regexp
	if r.constant {
		v, _ := r.eval(nil)
		if v != nil {
			if fixed, err = likePattern(types.FormatValue(v), escape); err != nil {
				return nil, err
			}
		}
	}
	negate := e.Operator == sqlparser.NotLikeStr
	return &compiled{typ: types.TypeBoolean, nullable: true, eval: func(row []interface{}) (interface{}, error) {
		lv, err := l.eval(row)
		if lv == nil || err != nil {
			return nil, err
		}
		re := fixed
		if re == nil {
			rv, err := r.eval(row)
			if rv == nil || err != nil {
				return nil, err
			}
			if re, err = likePattern(types.FormatValue(rv), escape); err != nil {
				return nil, err
			}
		}
		return re.MatchString(types.FormatValue(lv)) != negate, nil
	}}, nil
}

func (c *compiler) compileBetween(e *sqlparser.RangeCond) (*compiled, error) {
	x, err := c.compile(e.Left)
	if err != nil {
		return nil, err
	}
	from, err := c.compile(e.From)
	if err != nil {
		return nil, err
	}
	to, err := c.compile(e.To)
	if err != nil {
		return nil, err
	}
	negate := e.Operator == sqlparser.NotBetweenStr
	return &compiled{typ: types.TypeBoolean, nullable: true, eval: func(row []interface{}) (interface{}, error) {
		var vals [3]interface{}
		for i, y := range []*compiled{x, from, to} {
			v, err := y.eval(row)
			if v == nil || err != nil {
				return nil, err
			}
			vals[i] = v
		}
		in := types.Compare(vals[0], vals[1]) >= 0 && types.Compare(vals[0], vals[2]) <= 0
		return in != negate, nil
	}}, nil
}

func (c *compiler) compileIs(e *sqlparser.IsExpr) (*compiled, error) {
	x, err := c.compile(e.Expr)
	if err != nil {
		return nil, err
	}
	var test func(v interface{}) bool
	switch e.Operator {
	case sqlparser.IsNullStr:
		test = func(v interface{}) bool { return v == nil }
	case sqlparser.IsNotNullStr:
		test = func(v interface{}) bool { return v != nil }
	case sqlparser.IsTrueStr:
		test = func(v interface{}) bool { return v == true }
	case sqlparser.IsNotTrueStr:
		test = func(v interface{}) bool { return v != true }
	case sqlparser.IsFalseStr:
		test = func(v interface{}) bool { return v == false }
	case sqlparser.IsNotFalseStr:
		test = func(v interface{}) bool { return v != false }
	default:
		return nil, newValidationError("Unsupported operator '%s'", e.Operator)
	}
	return &compiled{typ: types.TypeBoolean, eval: func(row []interface{}) (interface{}, error) {
		v, err := x.eval(row)
		if err != nil {
			return nil, err
		}
		return test(v), nil
	}}, nil
}

func (c *compiler) compileArithmetic(e *sqlparser.BinaryExpr) (*compiled, error) {
	l, err := c.compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.compile(e.Right)
	if err != nil {
		return nil, err
	}
	if !isNumeric(l.typ) || !isNumeric(r.typ) {
		return nil, newValidationError("Cannot apply '%s' to arguments of type '<%s> %s <%s>'", e.Operator, l.typ, e.Operator, r.typ)
	}
	typ := numericResult(l.typ, r.typ)
	op := e.Operator
	switch op {
	case sqlparser.PlusStr, sqlparser.MinusStr, sqlparser.MultStr, sqlparser.DivStr, sqlparser.IntDivStr, sqlparser.ModStr:
	default:
		return nil, newValidationError("Unsupported operator '%s'", op)
	}
	if op == sqlparser.IntDivStr {
		typ = types.TypeBigInt
	}
	return &compiled{typ: typ, nullable: l.nullable || r.nullable, eval: func(row []interface{}) (interface{}, error) {
		lv, err := l.eval(row)
		if lv == nil || err != nil {
			return nil, err
		}
		rv, err := r.eval(row)
		if rv == nil || err != nil {
			return nil, err
		}
		return arithmetic(op, lv, rv)
	}}, nil
}

func arithmetic(op string, lv, rv interface{}) (interface{}, error) {
	li, lok := lv.(int64)
	ri, rok := rv.(int64)
	if lok && rok {
		switch op {
		case sqlparser.PlusStr:
			return li + ri, nil
		case sqlparser.MinusStr:
			return li - ri, nil
		case sqlparser.MultStr:
			return li * ri, nil
		}
		if ri == 0 {
			return nil, errors.New(ErrRuntime, "Division by zero")
		}
		if op == sqlparser.ModStr {
			return li % ri, nil
		}
		return li / ri, nil
	}

	lf, lok := types.AsFloat64(lv)
	rf, rok := types.AsFloat64(rv)
	if !lok || !rok {
		return nil, errors.Newf(ErrRuntime, "Cannot apply '%s' to '%s' and '%s'", op, types.FormatValue(lv), types.FormatValue(rv))
	}
	switch op {
	case sqlparser.PlusStr:
		return lf + rf, nil
	case sqlparser.MinusStr:
		return lf - rf, nil
	case sqlparser.MultStr:
		return lf * rf, nil
	}
	if rf == 0 {
		return nil, errors.New(ErrRuntime, "Division by zero")
	}
	switch op {
	case sqlparser.ModStr:
		return lf - rf*float64(int64(lf/rf)), nil
	case sqlparser.IntDivStr:
		return int64(lf / rf), nil
	}
	return lf / rf, nil
}

func (c *compiler) compileUnary(e *sqlparser.UnaryExpr) (*compiled, error) {
	x, err := c.compile(e.Expr)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case sqlparser.UPlusStr:
		return x, nil
	case sqlparser.UMinusStr:
		if !isNumeric(x.typ) {
			return nil, newValidationError("Cannot apply '-' to arguments of type '<%s>'", x.typ)
		}
		return &compiled{typ: x.typ, nullable: x.nullable, constant: x.constant, eval: func(row []interface{}) (interface{}, error) {
			v, err := x.eval(row)
			if v == nil || err != nil {
				return nil, err
			}
			return arithmetic(sqlparser.MinusStr, int64(0), v)
		}}, nil
	case sqlparser.BangStr:
		return c.compile(&sqlparser.NotExpr{Expr: e.Expr})
	}
	return nil, newValidationError("Unsupported operator '%s'", e.Operator)
}

func (c *compiler) compileCase(e *sqlparser.CaseExpr) (*compiled, error) {
	var subject *compiled
	var err error
	if e.Expr != nil {
		if subject, err = c.compile(e.Expr); err != nil {
			return nil, err
		}
	}
	type branch struct{ cond, val *compiled }
	branches := make([]branch, len(e.Whens))
	typ := types.TypeNull
	for i, w := range e.Whens {
		if subject != nil {
			branches[i].cond, err = c.compile(w.Cond)
		} else {
			branches[i].cond, err = c.compileBool(w.Cond)
		}
		if err != nil {
			return nil, err
		}
		if branches[i].val, err = c.compile(w.Val); err != nil {
			return nil, err
		}
		typ = commonType(typ, branches[i].val.typ)
	}
	var els *compiled
	if e.Else != nil {
		if els, err = c.compile(e.Else); err != nil {
			return nil, err
		}
		typ = commonType(typ, els.typ)
	}
	return &compiled{typ: typ, nullable: true, eval: func(row []interface{}) (interface{}, error) {
		var sv interface{}
		if subject != nil {
			v, err := subject.eval(row)
			if err != nil {
				return nil, err
			}
			sv = v
		}
		for _, b := range branches {
			cv, err := b.cond.eval(row)
			if err != nil {
				return nil, err
			}
			hit := cv == true
			if subject != nil {
				hit = sv != nil && cv != nil && types.Compare(sv, cv) == 0
			}
			if hit {
				return b.val.eval(row)
			}
		}
		if els == nil {
			return nil, nil
		}
		return els.eval(row)
	}}, nil
}

// commonType is the type both a and b convert to.
func commonType(a, b string) string {
	switch {
	case types.BaseType(a) == types.TypeNull:
		return b
	case types.BaseType(b) == types.TypeNull:
		return a
	case isNumeric(a) && isNumeric(b):
		return numericResult(a, b)
	case types.BaseType(a) == types.BaseType(b):
		return a
	}
	return types.TypeString
}

func funcNameParts(e *sqlparser.FuncExpr) []string {
	var parts []string
	if !e.Qualifier.IsEmpty() {
		parts = splitName(e.Qualifier.String())
	}
	return append(parts, splitName(e.Name.String())...)
}

func (c *compiler) compileCall(name []string, exprs sqlparser.SelectExprs) (*compiled, error) {
	def, err := c.cat.ResolveFunction(c.ctx, name)
	if err != nil {
		return nil, err
	}
	args := make([]*compiled, len(exprs))
	argTypes := make([]string, len(exprs))
	for i, se := range exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, newValidationError("Invalid argument to function %s", strings.Join(name, "."))
		}
		if args[i], err = c.compile(ae.Expr); err != nil {
			return nil, err
		}
		argTypes[i] = args[i].typ
	}
	if len(args) < def.MinArgs || (def.MaxArgs >= 0 && len(args) > def.MaxArgs) {
		_, err := def.Call(make([]interface{}, len(args)))
		return nil, err
	}
	return &compiled{typ: def.ResultType(argTypes), nullable: true, eval: func(row []interface{}) (interface{}, error) {
		vals := make([]interface{}, len(args))
		for i, a := range args {
			v, err := a.eval(row)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		v, err := def.Call(vals)
		return types.Normalize(v), err
	}}, nil
}

func (c *compiler) compileSubstr(e *sqlparser.SubstrExpr) (*compiled, error) {
	if e.Name == nil {
		return nil, newValidationError("SUBSTRING requires a column argument")
	}
	args := sqlparser.SelectExprs{&sqlparser.AliasedExpr{Expr: e.Name}, &sqlparser.AliasedExpr{Expr: e.From}}
	if e.To != nil {
		args = append(args, &sqlparser.AliasedExpr{Expr: e.To})
	}
	return c.compileCall([]string{"substring"}, args)
}

// castTypes maps the target types of CAST to column types.
var castTypes = map[string]string{
	"signed":   types.TypeBigInt,
	"unsigned": types.TypeBigInt,
	"char":     types.TypeString,
	"nchar":    types.TypeString,
	"binary":   types.TypeString,
	"decimal":  types.TypeDouble,
	"date":     types.TypeDate,
	"datetime": types.TypeTimestamp,
	"time":     types.TypeString,
}

func (c *compiler) compileCast(e *sqlparser.ConvertExpr) (*compiled, error) {
	x, err := c.compile(e.Expr)
	if err != nil {
		return nil, err
	}
	typ, ok := castTypes[strings.ToLower(e.Type.Type)]
	if !ok {
		return nil, newValidationError("Unsupported cast to %s", e.Type.Type)
	}
	return &compiled{typ: typ, nullable: x.nullable, constant: x.constant, eval: func(row []interface{}) (interface{}, error) {
		v, err := x.eval(row)
		if err != nil {
			return nil, err
		}
		return types.Coerce(v, typ)
	}}, nil
}
