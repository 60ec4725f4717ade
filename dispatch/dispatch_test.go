// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package dispatch

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		sql  string
		want Operation
	}{
		{sql: "SET", want: &PropertyOp{}},
		{sql: "SET execution.result-mode=changelog", want: &PropertyOp{Key: "execution.result-mode", Value: "changelog"}},
		{sql: "RESET", want: &PropertyOp{Reset: true}},
		{sql: "RESET 'execution.parallelism'", want: &PropertyOp{Reset: true, Key: "execution.parallelism"}},
		{sql: "EXPLAIN PLAN FOR SELECT 1", want: &ExplainOp{Query: "SELECT 1"}},
		{sql: "SELECT a FROM T", want: &QueryOp{SQL: "SELECT a FROM T"}},
		{sql: "INSERT INTO c.d.t SELECT 1", want: &UpdateOp{SQL: "INSERT INTO c.d.t SELECT 1", Table: parser.QualifiedName{"c", "d", "t"}}},
		{sql: "SHOW TABLES", want: &CatalogOp{Stmt: &parser.ShowStatement{Kind: parser.ShowTables}}},
	} {
		t.Run(tt.sql, func(t *testing.T) {
			op, err := Classify(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}

	t.Run("Listing", func(t *testing.T) {
		op, err := Classify("SET")
		require.NoError(t, err)
		assert.True(t, op.(*PropertyOp).List())
		op, err = Classify("RESET")
		require.NoError(t, err)
		assert.False(t, op.(*PropertyOp).List())
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := Classify("")
		assert.True(t, errors.Is(err, parser.ErrSQLParse))
		_, err = Classify("UPDATE t SET a = 1")
		assert.True(t, errors.Is(err, parser.ErrUnsupported))
		_, err = Classify("DELETE FROM t")
		assert.True(t, errors.Is(err, parser.ErrUnsupported))
	})
}

func TestFailure(t *testing.T) {
	cause := errors.New(catalog.ErrCatalog, "Table (or view) db.t does not exist in Catalog c.")
	err := Failure("s1", "DROP TABLE c.db.t", cause)
	assert.True(t, errors.Is(err, ErrExecutionFailure))
	assert.True(t, errors.Is(err, catalog.ErrCatalog))
	assert.Contains(t, err.Error(), "Could not execute statement: DROP TABLE c.db.t")
	assert.Contains(t, err.Error(), "session s1")
	assert.Contains(t, err.Error(), "does not exist")
}

func newCatalog(t *testing.T) *catalog.Manager {
	t.Helper()
	ctx := context.Background()
	m, err := catalog.NewManager(ctx, catalog.ManagerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Apply(ctx, environment.Defaults()))

	for _, name := range []string{"Orders", "TableNumber1"} {
		path, err := m.QualifyPath([]string{name})
		require.NoError(t, err)
		require.NoError(t, m.CreateTemporaryTable(ctx, path, &catalog.Table{
			Kind: catalog.KindTable,
			Schema: types.Schema{
				{Name: "IntegerField1", Type: types.TypeInt, Nullable: true},
				{Name: "StringField1", Type: types.TypeString, Nullable: true},
			},
		}, false))
	}
	return m
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	m := newCatalog(t)

	for _, tt := range []struct {
		name   string
		text   string
		cursor int
		want   []string
	}{
		{name: "Statement", text: "SE", want: []string{"SELECT", "SET"}},
		{name: "Empty", text: "", want: statementKeywords},
		{name: "Tables", text: "SELECT * FROM Ta", want: []string{"default_catalog.default_database.TableNumber1"}},
		{name: "Qualified", text: "SELECT * FROM default_catalog.default_database.O", want: []string{"default_catalog.default_database.Orders"}},
		{name: "Clause", text: "SELECT * FROM Orders WH", want: []string{"WHERE"}},
		{name: "Column", text: "SELECT * FROM TableNumber1 WHERE Inte", want: []string{"IntegerField1"}},
		{name: "Function", text: "SELECT up", want: []string{"upper"}},
		{name: "UseCatalog", text: "USE CATALOG d", want: []string{"default_catalog"}},
		{name: "Use", text: "USE ", want: []string{"CATALOG", "default_database"}},
		{name: "Cursor", text: "SELECT * FROM Ta WHERE", cursor: 16, want: []string{"default_catalog.default_database.TableNumber1"}},
		{name: "NoMatch", text: "SELECT * FROM Zz", want: []string{}},
		{name: "NonASCII", text: "SELECT 'üüüü' FROM Ta", want: []string{"default_catalog.default_database.TableNumber1"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cursor := tt.cursor
			if cursor == 0 {
				cursor = utf8.RuneCountInString(tt.text)
			}
			assert.Equal(t, tt.want, complete(ctx, m, tt.text, cursor).Collect())
		})
	}
}

func TestHints_Lazy(t *testing.T) {
	calls := 0
	h := &Hints{
		prefix: "a",
		seen:   make(map[string]struct{}),
		sources: []func() []string{
			func() []string { calls++; return []string{"ab", "b", "ab"} },
			func() []string { calls++; return []string{"ac"} },
		},
	}
	c, ok := h.Next()
	require.True(t, ok)
	assert.Equal(t, "ab", c)
	assert.Equal(t, 1, calls)

	assert.Equal(t, []string{"ac"}, h.Collect())
	assert.Equal(t, 2, calls)
	_, ok = h.Next()
	assert.False(t, ok)
}

func TestByteOffset(t *testing.T) {
	for _, tt := range []struct {
		text   string
		cursor int
		want   int
	}{
		{text: "abc", cursor: 2, want: 2},
		{text: "abc", cursor: 9, want: 3},
		{text: "abc", cursor: -1, want: 0},
		{text: "éa", cursor: 1, want: 2},
		{text: "éa", cursor: 2, want: 3},
	} {
		assert.Equal(t, tt.want, byteOffset(tt.text, tt.cursor), tt.text)
	}
}
