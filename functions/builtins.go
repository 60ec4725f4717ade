// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package functions

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

func itoa(i int) string { return strconv.Itoa(i) }

func def(name string, minArgs, maxArgs int, fn Func) *Definition {
	return &Definition{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Fn: fn}
}

// strict wraps fn so that any null argument yields null.
func strict(fn Func) Func {
	return func(args []interface{}) (interface{}, error) {
		for _, a := range args {
			if a == nil {
				return nil, nil
			}
		}
		return fn(args)
	}
}

func str(v interface{}) string { return types.FormatValue(v) }

func num(name string, v interface{}) (float64, error) {
	f, ok := types.AsFloat64(v)
	if !ok {
		return 0, errors.Newf(ErrFunctionCall, "function '%s' expects a numeric argument but got '%s'", name, str(v))
	}
	return f, nil
}

func integer(name string, v interface{}) (int64, error) {
	i, ok := types.AsInt64(v)
	if !ok {
		return 0, errors.Newf(ErrFunctionCall, "function '%s' expects an integer argument but got '%s'", name, str(v))
	}
	return i, nil
}

var coreFunctions = map[string]*Definition{
	"upper": def("upper", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		return strings.ToUpper(str(a[0])), nil
	})),
	"lower": def("lower", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		return strings.ToLower(str(a[0])), nil
	})),
	"char_length": def("char_length", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		return int64(len([]rune(str(a[0])))), nil
	})),
	"trim": def("trim", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		return strings.TrimSpace(str(a[0])), nil
	})),
	"concat": def("concat", 1, -1, strict(func(a []interface{}) (interface{}, error) {
		var sb strings.Builder
		for _, v := range a {
			sb.WriteString(str(v))
		}
		return sb.String(), nil
	})),
	"substring": def("substring", 2, 3, strict(func(a []interface{}) (interface{}, error) {
		r := []rune(str(a[0]))
		start, err := integer("substring", a[1])
		if err != nil {
			return nil, err
		}
		if start < 1 {
			start = 1
		}
		end := int64(len(r))
		if len(a) == 3 {
			n, err := integer("substring", a[2])
			if err != nil {
				return nil, err
			}
			if start-1+n < end {
				end = start - 1 + n
			}
		}
		if start-1 >= end {
			return "", nil
		}
		return string(r[start-1 : end]), nil
	})),
	"abs": def("abs", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		if i, ok := a[0].(int64); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		f, err := num("abs", a[0])
		if err != nil {
			return nil, err
		}
		return math.Abs(f), nil
	})),
	"mod": def("mod", 2, 2, strict(func(a []interface{}) (interface{}, error) {
		x, err := integer("mod", a[0])
		if err != nil {
			return nil, err
		}
		y, err := integer("mod", a[1])
		if err != nil {
			return nil, err
		}
		if y == 0 {
			return nil, errors.New(ErrFunctionCall, "division by zero")
		}
		return x % y, nil
	})),
	"round": def("round", 1, 2, strict(func(a []interface{}) (interface{}, error) {
		f, err := num("round", a[0])
		if err != nil {
			return nil, err
		}
		var places int64
		if len(a) == 2 {
			if places, err = integer("round", a[1]); err != nil {
				return nil, err
			}
		}
		if _, ok := a[0].(int64); ok && places >= 0 {
			return a[0], nil
		}
		p := math.Pow(10, float64(places))
		return math.Round(f*p) / p, nil
	})),
	"coalesce": def("coalesce", 1, -1, func(a []interface{}) (interface{}, error) {
		for _, v := range a {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	}),
}

var textFunctions = map[string]*Definition{
	"reverse": def("reverse", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		r := []rune(str(a[0]))
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	})),
	"initcap": def("initcap", 1, 1, strict(func(a []interface{}) (interface{}, error) {
		r := []rune(strings.ToLower(str(a[0])))
		start := true
		for i, c := range r {
			if start && unicode.IsLetter(c) {
				r[i] = unicode.ToUpper(c)
			}
			start = !unicode.IsLetter(c) && !unicode.IsDigit(c)
		}
		return string(r), nil
	})),
	"repeat": def("repeat", 2, 2, strict(func(a []interface{}) (interface{}, error) {
		n, err := integer("repeat", a[1])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			n = 0
		}
		return strings.Repeat(str(a[0]), int(n)), nil
	})),
	"substring_index": def("substring_index", 3, 3, strict(func(a []interface{}) (interface{}, error) {
		s, delim := str(a[0]), str(a[1])
		n, err := integer("substring_index", a[2])
		if err != nil {
			return nil, err
		}
		if delim == "" || n == 0 {
			return "", nil
		}
		parts := strings.Split(s, delim)
		if n > 0 {
			if int(n) >= len(parts) {
				return s, nil
			}
			return strings.Join(parts[:n], delim), nil
		}
		if int(-n) >= len(parts) {
			return s, nil
		}
		return strings.Join(parts[len(parts)+int(n):], delim), nil
	})),
	"lpad": def("lpad", 3, 3, strict(func(a []interface{}) (interface{}, error) {
		return pad("lpad", a, true)
	})),
	"rpad": def("rpad", 3, 3, strict(func(a []interface{}) (interface{}, error) {
		return pad("rpad", a, false)
	})),
}

func init() {
	for _, name := range []string{"upper", "lower", "trim", "concat", "substring"} {
		coreFunctions[name].Returns = types.TypeString
	}
	coreFunctions["char_length"].Returns = types.TypeInt
	for name := range textFunctions {
		textFunctions[name].Returns = types.TypeString
	}
}

func pad(name string, a []interface{}, left bool) (interface{}, error) {
	s, filler := []rune(str(a[0])), []rune(str(a[2]))
	n, err := integer(name, a[1])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	if int(n) <= len(s) {
		return string(s[:n]), nil
	}
	if len(filler) == 0 {
		return string(s), nil
	}
	fill := make([]rune, 0, int(n)-len(s))
	for len(fill) < int(n)-len(s) {
		fill = append(fill, filler[len(fill)%len(filler)])
	}
	if left {
		return string(fill) + string(s), nil
	}
	return string(s) + string(fill), nil
}
