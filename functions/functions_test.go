// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package functions_test

import (
	"strings"
	"testing"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, m functions.Module, name string, args ...interface{}) interface{} {
	t.Helper()
	d, ok := m.Function(name)
	require.True(t, ok, name)
	v, err := d.Call(args)
	require.NoError(t, err)
	return v
}

func TestCoreModule(t *testing.T) {
	m, err := functions.NewModule(environment.ModuleDef{Name: "core", Type: "core"})
	require.NoError(t, err)

	assert.Equal(t, "HELLO", call(t, m, "UPPER", "hello"))
	assert.Equal(t, "hello", call(t, m, "lower", "HeLLo"))
	assert.Equal(t, int64(5), call(t, m, "char_length", "héllo"))
	assert.Equal(t, "ab1", call(t, m, "concat", "a", "b", int64(1)))
	assert.Nil(t, call(t, m, "concat", "a", nil))
	assert.Equal(t, "ell", call(t, m, "substring", "hello", int64(2), int64(3)))
	assert.Equal(t, "llo", call(t, m, "substring", "hello", int64(3)))
	assert.Equal(t, int64(4), call(t, m, "abs", int64(-4)))
	assert.Equal(t, 1.5, call(t, m, "abs", -1.5))
	assert.Equal(t, int64(1), call(t, m, "mod", int64(7), int64(3)))
	assert.Equal(t, 1.24, call(t, m, "round", 1.2351, int64(2)))
	assert.Equal(t, "x", call(t, m, "coalesce", nil, "x", "y"))

	_, ok := m.Function("reverse")
	assert.False(t, ok)
	assert.Contains(t, m.Functions(), "upper")

	d, _ := m.Function("mod")
	_, err = d.Call([]interface{}{int64(1), int64(0)})
	assert.True(t, errors.Is(err, functions.ErrFunctionCall))
	_, err = d.Call([]interface{}{int64(1)})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Was expecting 2 arguments")
	}
}

func TestTextModule(t *testing.T) {
	m, err := functions.NewModule(environment.ModuleDef{Name: "mytext", Type: "text"})
	require.NoError(t, err)

	assert.Equal(t, "olleh", call(t, m, "reverse", "hello"))
	assert.Equal(t, "Hello World", call(t, m, "initcap", "hELLO wORLD"))
	assert.Equal(t, "ababab", call(t, m, "repeat", "ab", int64(3)))
	assert.Equal(t, "www.apache", call(t, m, "substring_index", "www.apache.org", ".", int64(2)))
	assert.Equal(t, "apache.org", call(t, m, "substring_index", "www.apache.org", ".", int64(-2)))
	assert.Equal(t, "??hi", call(t, m, "lpad", "hi", int64(4), "?"))
	assert.Equal(t, "hi?!?", call(t, m, "rpad", "hi", int64(5), "?!"))
	assert.Equal(t, "h", call(t, m, "rpad", "hi", int64(1), "?"))
}

func TestNewModuleUnknownType(t *testing.T) {
	_, err := functions.NewModule(environment.ModuleDef{Name: "hive", Type: "hive"})
	if assert.Error(t, err) {
		assert.True(t, errors.Is(err, functions.ErrModuleType))
		assert.True(t, strings.Contains(err.Error(), "'hive'"))
	}
}

func TestRegistry(t *testing.T) {
	r := functions.NewRegistry()

	d, err := r.Lookup("UPPER")
	require.NoError(t, err)
	v, err := d.Call([]interface{}{"x"})
	require.NoError(t, err)
	assert.Equal(t, "X", v)

	_, err = r.Lookup("add_five")
	assert.True(t, errors.Is(err, functions.ErrFunctionNotFound))

	r.Register("add_five", 1, 1, func(args []interface{}) (interface{}, error) {
		return args[0].(int64) + 5, nil
	})
	d, err = r.Lookup("add_five")
	require.NoError(t, err)
	v, err = d.Call([]interface{}{int64(42)})
	require.NoError(t, err)
	assert.Equal(t, int64(47), v)
}
