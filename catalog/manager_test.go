// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/featurebasedb/sqlgateway/catalog"
	catalogbolt "github.com/featurebasedb/sqlgateway/catalog/boltdb"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnalyzer understands "SELECT <literal>" and "SELECT * FROM <name>".
type stubAnalyzer struct {
	m *catalog.Manager
}

func (a *stubAnalyzer) AnalyzeQuery(ctx context.Context, query string) (*catalog.QueryAnalysis, error) {
	fields := strings.Fields(query)
	for i, f := range fields {
		if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
			path, t, err := a.m.ResolveTable(ctx, strings.Split(fields[i+1], "."))
			if err != nil {
				return nil, err
			}
			return &catalog.QueryAnalysis{
				Schema:    t.Schema,
				DependsOn: []catalog.ObjectPath{path},
				Expanded:  "SELECT * FROM " + path.String(),
			}, nil
		}
	}
	return &catalog.QueryAnalysis{
		Schema:   types.Schema{{Name: "EXPR$0", Type: types.TypeInt}},
		Expanded: query,
	}, nil
}

func (a *stubAnalyzer) ExpressionType(ctx context.Context, expr string, schema types.Schema) (string, error) {
	return types.TypeBigInt, nil
}

func mustManager(tb testing.TB) *catalog.Manager {
	tb.Helper()
	m, err := catalog.NewManager(context.Background(), catalog.ManagerConfig{
		Factories: map[string]catalog.Factory{"bolt": catalogbolt.Factory},
	})
	require.NoError(tb, err)
	m.SetAnalyzer(&stubAnalyzer{m: m})
	tb.Cleanup(func() { m.Close() })
	return m
}

func mustExec(tb testing.TB, m *catalog.Manager, sql string) *types.TableResult {
	tb.Helper()
	res, err := exec(m, sql)
	require.NoError(tb, err, sql)
	return res
}

func exec(m *catalog.Manager, sql string) (*types.TableResult, error) {
	stmt, err := parser.ParseStatement(sql)
	if err != nil {
		return nil, err
	}
	return m.Execute(context.Background(), stmt)
}

func assertExecError(tb testing.TB, m *catalog.Manager, sql, contains string) {
	tb.Helper()
	_, err := exec(m, sql)
	if assert.Error(tb, err, sql) {
		assert.True(tb, errors.Is(err, catalog.ErrCatalog) || errors.Is(err, functions.ErrFunctionNotFound), "code of %v", err)
		assert.Contains(tb, err.Error(), contains)
	}
}

func TestManager_Defaults(t *testing.T) {
	m := mustManager(t)
	assert.Equal(t, []string{"default_catalog"}, m.Catalogs())
	assert.Equal(t, "default_catalog", m.CurrentCatalog())
	assert.Equal(t, "default_database", m.CurrentDatabase())
	assert.Empty(t, m.Modules())
	assert.Equal(t, []string{"default_catalog"}, mustExec(t, m, "SHOW CATALOGS").Strings())
	assert.Equal(t, []string{"default_database"}, mustExec(t, m, "SHOW CURRENT DATABASE").Strings())
}

func TestManager_Tables(t *testing.T) {
	m := mustManager(t)

	t.Run("CreateIfNotExists", func(t *testing.T) {
		mustExec(t, m, "CREATE TABLE IF NOT EXISTS t (a INT)")
		mustExec(t, m, "CREATE TABLE IF NOT EXISTS t (a INT)")
		assert.Equal(t, []string{"t"}, mustExec(t, m, "SHOW TABLES").Strings())
		assertExecError(t, m, "CREATE TABLE t (a INT)", "already exists")
	})

	t.Run("DropIfExists", func(t *testing.T) {
		mustExec(t, m, "DROP TABLE IF EXISTS nonexistent")
		mustExec(t, m, "DROP TABLE IF EXISTS missing_catalog.db.t")
		assertExecError(t, m, "DROP TABLE nonexistent", "Table with identifier 'default_catalog.default_database.nonexistent' does not exist.")
		assertExecError(t, m, "DROP VIEW t", "View with identifier 'default_catalog.default_database.t' does not exist.")
	})

	t.Run("Temporary", func(t *testing.T) {
		mustExec(t, m, "CREATE TEMPORARY TABLE tmp (a INT)")
		assertExecError(t, m, "CREATE TEMPORARY TABLE tmp (a INT)", "Temporary table '`default_catalog`.`default_database`.`tmp`' already exists")
		assert.Equal(t, []string{"t", "tmp"}, mustExec(t, m, "SHOW TABLES").Strings())

		// temporary objects shadow permanent ones
		mustExec(t, m, "CREATE TEMPORARY TABLE t (b STRING)")
		res := mustExec(t, m, "DESCRIBE t")
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "b", res.Rows[0].Values[0])
		assertExecError(t, m, "DROP TABLE t", "Temporary table with identifier 'default_catalog.default_database.t' exists. Drop it first before removing the permanent table.")
		mustExec(t, m, "DROP TEMPORARY TABLE t")
		mustExec(t, m, "DROP TABLE t")
		mustExec(t, m, "DROP TEMPORARY TABLE tmp")
		assert.Empty(t, mustExec(t, m, "SHOW TABLES").Strings())
	})

	t.Run("AlterRename", func(t *testing.T) {
		mustExec(t, m, "CREATE TABLE r (a INT) WITH ('connector' = 'values')")
		mustExec(t, m, "ALTER TABLE r SET ('k' = 'v')")
		tbl, temporary, err := m.GetTable(context.Background(), catalog.ObjectPath{Catalog: "default_catalog", Database: "default_database", Object: "r"})
		require.NoError(t, err)
		assert.False(t, temporary)
		assert.Equal(t, map[string]string{"connector": "values", "k": "v"}, tbl.Options)

		mustExec(t, m, "ALTER TABLE r RENAME TO r2")
		assert.Equal(t, []string{"r2"}, mustExec(t, m, "SHOW TABLES").Strings())
		assertExecError(t, m, "ALTER TABLE r RENAME TO r3", "does not exist")
		mustExec(t, m, "DROP TABLE r2")
	})
}

func TestManager_Describe(t *testing.T) {
	m := mustManager(t)
	mustExec(t, m, `CREATE TABLE TableNumber1 (
		IntegerField1 INT NOT NULL,
		IntegerField2 INT,
		ts TIMESTAMP(3),
		doubled AS IntegerField1 * 2,
		WATERMARK FOR ts AS ts - INTERVAL '1' SECOND,
		PRIMARY KEY (IntegerField1) NOT ENFORCED
	)`)

	res := mustExec(t, m, "DESCRIBE TableNumber1")
	assert.Equal(t, catalog.DescribeSchema, res.Schema)
	assert.Equal(t, []types.Row{
		types.NewRow("IntegerField1", "INT", false, "PRI(IntegerField1)", nil, nil),
		types.NewRow("IntegerField2", "INT", true, nil, nil, nil),
		types.NewRow("ts", "TIMESTAMP(3)", true, nil, nil, "ts - INTERVAL '1' SECOND"),
		types.NewRow("doubled", "BIGINT", true, nil, "AS IntegerField1 * 2", nil),
	}, res.Rows)

	assertExecError(t, m, "DESCRIBE nope", "Object 'nope' not found within 'default_catalog.default_database'")
	assertExecError(t, m, "CREATE TABLE bad (a INT, WATERMARK FOR b AS b)", "The rowtime attribute field 'b' is not defined in the table schema")
	assertExecError(t, m, "CREATE TABLE bad (a INT, PRIMARY KEY (b))", "Column 'b' does not exist.")
	assertExecError(t, m, "CREATE TABLE bad (a INT, a STRING)", "Duplicate column name 'a'")
}

func TestManager_ViewDependencies(t *testing.T) {
	m := mustManager(t)

	mustExec(t, m, "CREATE TEMPORARY VIEW v1 AS SELECT 1")
	assert.Equal(t, []string{"v1"}, mustExec(t, m, "SHOW TABLES").Strings())
	assertExecError(t, m, "CREATE TEMPORARY VIEW v1 AS SELECT 1", "already exists")
	mustExec(t, m, "CREATE TEMPORARY VIEW IF NOT EXISTS v1 AS SELECT 1")

	mustExec(t, m, "CREATE TEMPORARY VIEW v2 AS SELECT * FROM v1")
	assert.Equal(t, []string{"v1", "v2"}, mustExec(t, m, "SHOW VIEWS").Strings())
	assertExecError(t, m, "DROP TEMPORARY VIEW v1", "Cannot drop view 'default_catalog.default_database.v1': it is referenced by view 'default_catalog.default_database.v2'")
	assertExecError(t, m, "DROP VIEW v2", "Temporary view with identifier 'default_catalog.default_database.v2' exists. Drop it first before removing the permanent view.")

	mustExec(t, m, "DROP TEMPORARY VIEW v2")
	mustExec(t, m, "DROP TEMPORARY VIEW v1")
	assert.Empty(t, mustExec(t, m, "SHOW TABLES").Strings())
	mustExec(t, m, "DROP TEMPORARY VIEW IF EXISTS v1")

	// permanent views are checked too
	mustExec(t, m, "CREATE TABLE base (a INT)")
	mustExec(t, m, "CREATE VIEW pv (x) AS SELECT * FROM base")
	res := mustExec(t, m, "DESCRIBE pv")
	assert.Equal(t, "x", res.Rows[0].Values[0])
	mustExec(t, m, "CREATE TEMPORARY VIEW tv AS SELECT * FROM pv")
	assertExecError(t, m, "DROP VIEW pv", "it is referenced by view 'default_catalog.default_database.tv'")
	assertExecError(t, m, "CREATE VIEW bad (x, y) AS SELECT * FROM base", "View column list has 2 columns but the query returns 1")
}

func TestManager_Databases(t *testing.T) {
	m := mustManager(t)
	ctx := context.Background()

	mustExec(t, m, "CREATE DATABASE db1 COMMENT 'first' WITH ('k1' = 'v1')")
	mustExec(t, m, "CREATE DATABASE IF NOT EXISTS db1")
	assertExecError(t, m, "CREATE DATABASE db1", "Database db1 already exists in Catalog default_catalog.")
	assert.Equal(t, []string{"db1", "default_database"}, mustExec(t, m, "SHOW DATABASES").Strings())

	mustExec(t, m, "ALTER DATABASE db1 SET ('k2' = 'v2')")
	c, err := m.Catalog("default_catalog")
	require.NoError(t, err)
	db, err := c.GetDatabase(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "first", db.Comment)
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, db.Properties)

	mustExec(t, m, "USE db1")
	assert.Equal(t, "db1", m.CurrentDatabase())
	mustExec(t, m, "CREATE TEMPORARY TABLE t (a INT)")
	assertExecError(t, m, "DROP DATABASE db1", "Cannot drop a database which is currently in use.")
	assertExecError(t, m, "USE nope", "Database nope does not exist in Catalog default_catalog.")

	mustExec(t, m, "USE default_catalog.default_database")
	mustExec(t, m, "DROP DATABASE db1")
	path := catalog.ObjectPath{Catalog: "default_catalog", Database: "db1", Object: "t"}
	_, _, err = m.GetTable(ctx, path)
	assert.Error(t, err, "temporary tables of a dropped database are dropped too")
	mustExec(t, m, "DROP DATABASE IF EXISTS db1")
	mustExec(t, m, "DROP DATABASE IF EXISTS nocatalog.db1")
}

func TestManager_Catalogs(t *testing.T) {
	m := mustManager(t)
	path := filepath.Join(t.TempDir(), "c1.boltdb")

	mustExec(t, m, "CREATE CATALOG c1 WITH ('type' = 'bolt', 'path' = '"+path+"', 'default-database' = 'mydb')")
	assertExecError(t, m, "CREATE CATALOG c1 WITH ('type' = 'memory')", "Catalog c1 already exists.")
	assertExecError(t, m, "CREATE CATALOG c2 WITH ('type' = 'nope')", "Could not find a catalog factory for type 'nope' of catalog 'c2'")
	assert.Equal(t, []string{"c1", "default_catalog"}, mustExec(t, m, "SHOW CATALOGS").Strings())

	mustExec(t, m, "USE CATALOG c1")
	assert.Equal(t, "mydb", m.CurrentDatabase())
	assertExecError(t, m, "USE CATALOG nope", "Catalog nope does not exist")
	assertExecError(t, m, "DROP CATALOG c1", "Cannot drop a catalog which is currently in use.")

	mustExec(t, m, "USE CATALOG default_catalog")
	mustExec(t, m, "DROP CATALOG c1")
	mustExec(t, m, "DROP CATALOG IF EXISTS c1")
	assertExecError(t, m, "DROP CATALOG c1", "Catalog c1 does not exist")
}

func TestManager_HiveDialect(t *testing.T) {
	m := mustManager(t)
	m.SetDialect(environment.DialectHive)

	assertExecError(t, m, "CREATE TABLE t (a INT)", "Dialect hive requires a persistent catalog")
	mustExec(t, m, "CREATE TEMPORARY TABLE t (a INT)")

	path := filepath.Join(t.TempDir(), "hive.boltdb")
	mustExec(t, m, "CREATE CATALOG hive WITH ('type' = 'bolt', 'path' = '"+path+"')")
	mustExec(t, m, "USE CATALOG hive")
	mustExec(t, m, "CREATE TABLE t (a INT)")
	assert.Equal(t, []string{"t"}, mustExec(t, m, "SHOW TABLES").Strings())
}

func TestManager_Functions(t *testing.T) {
	m := mustManager(t)
	ctx := context.Background()
	core, err := functions.NewModule(environment.ModuleDef{Name: "core", Type: "core"})
	require.NoError(t, err)
	require.NoError(t, m.LoadModule("core", core))

	call := func(name string, args ...interface{}) interface{} {
		t.Helper()
		d, err := m.ResolveFunction(ctx, strings.Split(name, "."))
		require.NoError(t, err, name)
		v, err := d.Call(args)
		require.NoError(t, err, name)
		return v
	}

	// modules resolve before catalog functions
	mustExec(t, m, "CREATE FUNCTION upper AS 'lower'")
	assert.Equal(t, "ABC", call("upper", "aBc"))
	assert.Equal(t, "abc", call("default_database.upper", "aBc"))

	// temporary system functions resolve before modules
	mustExec(t, m, "CREATE TEMPORARY SYSTEM FUNCTION upper AS 'reverse'")
	assert.Equal(t, "cBa", call("upper", "aBc"))
	assertExecError(t, m, "CREATE TEMPORARY SYSTEM FUNCTION upper AS 'reverse'", "Could not register temporary system function. A function named 'upper' does already exist.")
	mustExec(t, m, "DROP TEMPORARY SYSTEM FUNCTION upper")
	assertExecError(t, m, "DROP TEMPORARY SYSTEM FUNCTION upper", "doesn't exist")
	assertExecError(t, m, "CREATE TEMPORARY SYSTEM FUNCTION f AS 'no_such_impl'", "function implementation 'no_such_impl' is not registered")

	// temporary catalog functions resolve before permanent ones
	mustExec(t, m, "CREATE FUNCTION func1 AS 'lower'")
	mustExec(t, m, "CREATE TEMPORARY FUNCTION func1 AS 'upper'")
	assert.Equal(t, "ABC", call("func1", "aBc"))
	assertExecError(t, m, "CREATE TEMPORARY FUNCTION func1 AS 'upper'", "Could not register temporary catalog function. A function 'default_catalog.default_database.func1' does already exist.")
	assertExecError(t, m, "ALTER TEMPORARY FUNCTION func1 AS 'lower'", "Alter temporary catalog function is not supported")
	assertExecError(t, m, "DROP FUNCTION func1", "A temporary function 'default_catalog.default_database.func1' does already exist.")
	mustExec(t, m, "DROP TEMPORARY FUNCTION func1")
	assert.Equal(t, "abc", call("func1", "aBc"))

	mustExec(t, m, "ALTER FUNCTION func1 AS 'char_length'")
	assert.Equal(t, int64(3), call("func1", "aBc"))
	assert.Contains(t, mustExec(t, m, "SHOW USER FUNCTIONS").Strings(), "func1")
	assert.NotContains(t, mustExec(t, m, "SHOW USER FUNCTIONS").Strings(), "lower")
	assert.Contains(t, mustExec(t, m, "SHOW FUNCTIONS").Strings(), "lower")

	// the identifier is only checked when the function is used
	mustExec(t, m, "CREATE FUNCTION lazy AS 'no_such_impl' LANGUAGE JAVA")
	_, err = m.ResolveFunction(ctx, []string{"lazy"})
	assert.True(t, errors.Is(err, functions.ErrFunctionNotFound))

	_, err = m.ResolveFunction(ctx, []string{"nope"})
	if assert.Error(t, err) {
		assert.Equal(t, "No match found for function signature nope", err.Error())
	}

	mustExec(t, m, "DROP FUNCTION IF EXISTS nope")
	assertExecError(t, m, "DROP FUNCTION IF EXISTS nocatalog.db.f", "Catalog nocatalog does not exist")
	mustExec(t, m, "DROP FUNCTION IF EXISTS func1")
	assert.NotContains(t, mustExec(t, m, "SHOW USER FUNCTIONS").Strings(), "func1")
}

func TestManager_Modules(t *testing.T) {
	m := mustManager(t)

	mustExec(t, m, "LOAD MODULE core")
	mustExec(t, m, "LOAD MODULE mytext WITH ('type' = 'text')")
	assert.Equal(t, []string{"core", "mytext"}, mustExec(t, m, "SHOW MODULES").Strings())
	assertExecError(t, m, "LOAD MODULE core", "A module with name core already exists")

	res := mustExec(t, m, "SHOW FULL MODULES")
	assert.Equal(t, []types.Row{types.NewRow("core", true), types.NewRow("mytext", true)}, res.Rows)

	mustExec(t, m, "UNLOAD MODULE core")
	assert.Equal(t, []string{"mytext"}, m.Modules())
	assertExecError(t, m, "UNLOAD MODULE core", "No module with name core exists")

	_, err := exec(m, "LOAD MODULE hive")
	assert.True(t, errors.Is(err, functions.ErrModuleType))
}

func TestManager_Apply(t *testing.T) {
	env, err := environment.ParseBytes([]byte(`
catalogs:
  - name: catalog1
    type: memory
    default-database: mydatabase
modules:
  - name: core
  - name: mytext
    type: text
tables:
  - name: TableNumber1
    type: source-table
    connector:
      type: values
    schema:
      - name: IntegerField1
        data-type: INT
      - name: StringField1
        data-type: STRING NOT NULL
    data:
      - [1, "a"]
  - name: TestView1
    type: view
    query: SELECT * FROM TableNumber1
functions:
  - name: myupper
    identifier: upper
execution:
  current-catalog: catalog1
configuration:
  table.sql-dialect: hive
`))
	require.NoError(t, err)

	m := mustManager(t)
	require.NoError(t, m.Apply(context.Background(), env))

	assert.Equal(t, []string{"catalog1", "default_catalog"}, m.Catalogs())
	assert.Equal(t, "catalog1", m.CurrentCatalog())
	assert.Equal(t, "mydatabase", m.CurrentDatabase())
	assert.Equal(t, []string{"core", "mytext"}, m.Modules())
	assert.Equal(t, environment.DialectHive, m.Dialect())

	ctx := context.Background()
	_, tbl, err := m.ResolveTable(ctx, []string{"default_catalog", "default_database", "TableNumber1"})
	require.NoError(t, err)
	assert.Equal(t, types.Schema{
		{Name: "IntegerField1", Type: "INT", Nullable: true},
		{Name: "StringField1", Type: "STRING NOT NULL", Nullable: false},
	}, tbl.Schema)
	assert.Equal(t, "values", tbl.Option("connector"))
	assert.Equal(t, environment.TableSource, tbl.Option("table-type"))

	_, view, err := m.ResolveTable(ctx, []string{"default_catalog", "default_database", "TestView1"})
	require.NoError(t, err)
	assert.True(t, view.IsView())
	assert.Equal(t, "SELECT * FROM `default_catalog`.`default_database`.`TableNumber1`", view.Query)

	d, err := m.ResolveFunction(ctx, []string{"myupper"})
	require.NoError(t, err)
	v, err := d.Call([]interface{}{"x"})
	require.NoError(t, err)
	assert.Equal(t, "X", v)
}
