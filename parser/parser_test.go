// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser_test

import (
	"testing"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseStatement(t *testing.T) {
	t.Run("Set", func(t *testing.T) {
		AssertParseStatement(t, `SET`, &parser.SetStatement{})
		AssertParseStatement(t, `SET execution.result-mode=table;`, &parser.SetStatement{
			Key:   "execution.result-mode",
			Value: "table",
		})
		AssertParseStatement(t, `SET 'table.sql-dialect' = 'hive'`, &parser.SetStatement{
			Key:   "table.sql-dialect",
			Value: "hive",
		})
		AssertParseStatementError(t, `SET foo`, `1:5: expected '=' after property key 'foo'`)
	})

	t.Run("Reset", func(t *testing.T) {
		AssertParseStatement(t, `RESET`, &parser.ResetStatement{})
		AssertParseStatement(t, `RESET 'execution.parallelism'`, &parser.ResetStatement{Key: "execution.parallelism"})
	})

	t.Run("Show", func(t *testing.T) {
		for sql, kind := range map[string]parser.ShowKind{
			"SHOW CATALOGS":         parser.ShowCatalogs,
			"show databases":        parser.ShowDatabases,
			"SHOW TABLES;":          parser.ShowTables,
			"SHOW VIEWS":            parser.ShowViews,
			"SHOW FUNCTIONS":        parser.ShowFunctions,
			"SHOW USER FUNCTIONS":   parser.ShowUserFunctions,
			"SHOW MODULES":          parser.ShowModules,
			"SHOW FULL MODULES":     parser.ShowFullModules,
			"SHOW CURRENT CATALOG":  parser.ShowCurrentCatalog,
			"SHOW CURRENT DATABASE": parser.ShowCurrentDatabase,
		} {
			AssertParseStatement(t, sql, &parser.ShowStatement{Kind: kind})
		}
		AssertParseStatementError(t, `SHOW CURRENT TABLE`, `1:14: expected CATALOG or DATABASE, found 'TABLE'`)
		AssertParseStatementError(t, `SHOW TABLES x`, `1:13: expected EOF, found 'x'`)
	})

	t.Run("Describe", func(t *testing.T) {
		AssertParseStatement(t, "DESCRIBE `default_catalog`.`default_database`.TableNumber1", &parser.DescribeStatement{
			Name: parser.QualifiedName{"default_catalog", "default_database", "TableNumber1"},
		})
		AssertParseStatement(t, `DESC t`, &parser.DescribeStatement{Name: parser.QualifiedName{"t"}})
		AssertParseStatementError(t, `DESC a.b.c.d`, `1:13: table name has too many parts: `+"`a`.`b`.`c`.`d`")
	})

	t.Run("Explain", func(t *testing.T) {
		AssertParseStatement(t, `EXPLAIN PLAN FOR SELECT * FROM t`, &parser.ExplainStatement{Query: "SELECT * FROM t"})
		AssertParseStatement(t, `EXPLAIN SELECT 1`, &parser.ExplainStatement{Query: "SELECT 1"})
	})

	t.Run("Use", func(t *testing.T) {
		AssertParseStatement(t, `USE CATALOG catalog1`, &parser.UseCatalogStatement{Name: "catalog1"})
		AssertParseStatement(t, `USE db1`, &parser.UseStatement{Name: parser.QualifiedName{"db1"}})
		AssertParseStatement(t, "USE `catalog1`.db1", &parser.UseStatement{Name: parser.QualifiedName{"catalog1", "db1"}})
		AssertParseStatementError(t, `USE CATALOG`, `1:12: expected catalog name, found 'EOF'`)
	})

	t.Run("Catalog", func(t *testing.T) {
		AssertParseStatement(t, `CREATE CATALOG c1 WITH ('type'='bolt', 'path'='/tmp/c1.db')`, &parser.CreateCatalogStatement{
			Name:       "c1",
			Properties: parser.Properties{{Key: "type", Value: "bolt"}, {Key: "path", Value: "/tmp/c1.db"}},
		})
		AssertParseStatement(t, `DROP CATALOG IF EXISTS c1`, &parser.DropCatalogStatement{Name: "c1", IfExists: true})
	})

	t.Run("Database", func(t *testing.T) {
		AssertParseStatement(t, `CREATE DATABASE IF NOT EXISTS c1.db1 COMMENT 'test' WITH (k1 = 'v1')`, &parser.CreateDatabaseStatement{
			Name:        parser.QualifiedName{"c1", "db1"},
			IfNotExists: true,
			Comment:     "test",
			Properties:  parser.Properties{{Key: "k1", Value: "v1"}},
		})
		AssertParseStatement(t, `ALTER DATABASE db1 SET ('k1' = 'v2')`, &parser.AlterDatabaseStatement{
			Name:       parser.QualifiedName{"db1"},
			Properties: parser.Properties{{Key: "k1", Value: "v2"}},
		})
		AssertParseStatement(t, `DROP DATABASE IF EXISTS db1 CASCADE`, &parser.DropDatabaseStatement{
			Name:     parser.QualifiedName{"db1"},
			IfExists: true,
			Cascade:  true,
		})
		AssertParseStatement(t, `DROP DATABASE db1 RESTRICT`, &parser.DropDatabaseStatement{Name: parser.QualifiedName{"db1"}})
		AssertParseStatementError(t, `CREATE TEMPORARY DATABASE db1`, `1:18: expected TABLE, VIEW or FUNCTION, found 'DATABASE'`)
	})

	t.Run("CreateTable", func(t *testing.T) {
		AssertParseStatement(t, `CREATE TABLE IF NOT EXISTS db1.tbl1 (
			a INT NOT NULL,
			b VARCHAR(10) COMMENT 'name',
			ts TIMESTAMP(3),
			c AS a + 1,
			m MAP<STRING, INT>,
			WATERMARK FOR ts AS ts - INTERVAL '5' SECOND,
			PRIMARY KEY (a) NOT ENFORCED
		) COMMENT 'test table' WITH (
			'connector' = 'filesystem',
			format.type = 'csv',
			'path' = '/tmp/x.csv'
		)`, &parser.CreateTableStatement{
			Name:        parser.QualifiedName{"db1", "tbl1"},
			IfNotExists: true,
			Columns: []parser.ColumnDef{
				{Name: "a", Type: "INT", Nullable: false},
				{Name: "b", Type: "VARCHAR(10)", Nullable: true, Comment: "name"},
				{Name: "ts", Type: "TIMESTAMP(3)", Nullable: true},
				{Name: "c", Expr: "a + 1", Nullable: true},
				{Name: "m", Type: "MAP<STRING, INT>", Nullable: true},
			},
			Watermarks: []parser.WatermarkDef{{Column: "ts", Expr: "ts - INTERVAL '5' SECOND"}},
			PrimaryKey: []string{"a"},
			Comment:    "test table",
			Properties: parser.Properties{
				{Key: "connector", Value: "filesystem"},
				{Key: "format.type", Value: "csv"},
				{Key: "path", Value: "/tmp/x.csv"},
			},
		})
		AssertParseStatement(t, `CREATE TEMPORARY TABLE t (id bigint PRIMARY KEY NOT ENFORCED, name string)`, &parser.CreateTableStatement{
			Name:      parser.QualifiedName{"t"},
			Temporary: true,
			Columns: []parser.ColumnDef{
				{Name: "id", Type: "BIGINT", Nullable: false},
				{Name: "name", Type: "STRING", Nullable: true},
			},
			PrimaryKey: []string{"id"},
		})
		AssertParseStatementError(t, `CREATE TABLE t (a INT, PRIMARY KEY (a), CONSTRAINT pk PRIMARY KEY (a))`, `1:55: duplicate primary key definition`)
		AssertParseStatementError(t, `CREATE TABLE t (a INT`, `1:22: expected ), found 'EOF'`)
		AssertParseStatementError(t, `CREATE TABLE t (a ARRAY<INT`, `1:28: expected closing bracket of column type, found 'EOF'`)
	})

	t.Run("AlterTable", func(t *testing.T) {
		AssertParseStatement(t, `ALTER TABLE t RENAME TO t1`, &parser.AlterTableStatement{
			Name:     parser.QualifiedName{"t"},
			RenameTo: parser.QualifiedName{"t1"},
		})
		AssertParseStatement(t, `ALTER TABLE c.d.t SET ('k' = 'v')`, &parser.AlterTableStatement{
			Name:       parser.QualifiedName{"c", "d", "t"},
			Properties: parser.Properties{{Key: "k", Value: "v"}},
		})
		AssertParseStatementError(t, `ALTER TABLE t DROP x`, `1:15: expected RENAME or SET, found 'DROP'`)
	})

	t.Run("DropTable", func(t *testing.T) {
		AssertParseStatement(t, `DROP TEMPORARY TABLE IF EXISTS t`, &parser.DropTableStatement{
			Name:      parser.QualifiedName{"t"},
			Temporary: true,
			IfExists:  true,
		})
	})

	t.Run("View", func(t *testing.T) {
		AssertParseStatement(t, `CREATE TEMPORARY VIEW v1 AS SELECT 1;`, &parser.CreateViewStatement{
			Name:      parser.QualifiedName{"v1"},
			Temporary: true,
			Query:     "SELECT 1",
		})
		AssertParseStatement(t, `CREATE VIEW IF NOT EXISTS v2 (x, y) COMMENT 'c' AS SELECT a, b FROM t WHERE a > 1`, &parser.CreateViewStatement{
			Name:        parser.QualifiedName{"v2"},
			IfNotExists: true,
			Columns:     []string{"x", "y"},
			Comment:     "c",
			Query:       "SELECT a, b FROM t WHERE a > 1",
		})
		AssertParseStatement(t, `DROP VIEW v2`, &parser.DropViewStatement{Name: parser.QualifiedName{"v2"}})
		AssertParseStatementError(t, `CREATE VIEW v AS`, `1:17: expected query, found 'EOF'`)
	})

	t.Run("Function", func(t *testing.T) {
		AssertParseStatement(t, `CREATE TEMPORARY SYSTEM FUNCTION IF NOT EXISTS func1 AS 'core.upper' LANGUAGE JAVA`, &parser.CreateFunctionStatement{
			Name:        parser.QualifiedName{"func1"},
			Temporary:   true,
			System:      true,
			IfNotExists: true,
			Identifier:  "core.upper",
			Language:    "JAVA",
		})
		AssertParseStatement(t, `ALTER FUNCTION c.d.func2 AS 'text.reverse'`, &parser.AlterFunctionStatement{
			Name:       parser.QualifiedName{"c", "d", "func2"},
			Identifier: "text.reverse",
		})
		AssertParseStatement(t, `DROP TEMPORARY SYSTEM FUNCTION IF EXISTS func1`, &parser.DropFunctionStatement{
			Name:      parser.QualifiedName{"func1"},
			Temporary: true,
			System:    true,
			IfExists:  true,
		})
		AssertParseStatementError(t, `CREATE FUNCTION f AS upper`, `1:22: expected function identifier, found 'upper'`)
		AssertParseStatementError(t, `CREATE TEMPORARY SYSTEM TABLE t (a INT)`, `1:25: expected TABLE, VIEW or FUNCTION, found 'TABLE'`)
	})

	t.Run("Module", func(t *testing.T) {
		AssertParseStatement(t, `LOAD MODULE text WITH ('version' = '1')`, &parser.LoadModuleStatement{
			Name:       "text",
			Properties: parser.Properties{{Key: "version", Value: "1"}},
		})
		AssertParseStatement(t, `UNLOAD MODULE core`, &parser.UnloadModuleStatement{Name: "core"})
	})

	t.Run("Query", func(t *testing.T) {
		AssertParseStatement(t, `SELECT * FROM t;`, &parser.QueryStatement{SQL: "SELECT * FROM t"})
		AssertParseStatement(t, `  (SELECT 1)`, &parser.QueryStatement{SQL: "  (SELECT 1)"})
		AssertParseStatement(t, `WITH x AS (SELECT 1) SELECT * FROM x`, &parser.QueryStatement{SQL: "WITH x AS (SELECT 1) SELECT * FROM x"})
	})

	t.Run("DML", func(t *testing.T) {
		AssertParseStatement(t, `INSERT INTO db1.t SELECT * FROM s`, &parser.DMLStatement{
			SQL:   "INSERT INTO db1.t SELECT * FROM s",
			Kind:  parser.DMLInsert,
			Table: parser.QualifiedName{"db1", "t"},
		})
		AssertParseStatement(t, `INSERT OVERWRITE t VALUES (1)`, &parser.DMLStatement{
			SQL:       "INSERT OVERWRITE t VALUES (1)",
			Kind:      parser.DMLInsert,
			Table:     parser.QualifiedName{"t"},
			Overwrite: true,
		})
		AssertParseStatement(t, `DELETE FROM t WHERE a = 1`, &parser.DMLStatement{
			SQL:   "DELETE FROM t WHERE a = 1",
			Kind:  parser.DMLDelete,
			Table: parser.QualifiedName{"t"},
		})
	})
}

func TestParseStatement_Errors(t *testing.T) {
	_, err := parser.ParseStatement(`CREATE TABLE`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrSQLParse))
	assert.Equal(t, "SQL parse failed: 1:13: expected table name, found 'EOF'", err.Error())

	_, err = parser.ParseStatement(`GRANT ALL ON t`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrUnsupported))
	assert.False(t, errors.Is(err, parser.ErrSQLParse))
	assert.True(t, errors.Contains(err, "unsupported statement 'GRANT'"))

	_, err = parser.ParseStatement(`  ;`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrSQLParse))
}

func TestQualifiedName(t *testing.T) {
	n := parser.QualifiedName{"c", "d", "my`tbl"}
	assert.Equal(t, "`c`.`d`.`my``tbl`", n.String())
	assert.Equal(t, "my`tbl", n.Last())
	assert.Equal(t, "", parser.QualifiedName{}.Last())
}

// AssertParseStatement asserts the value of the first parse of s.
func AssertParseStatement(tb testing.TB, s string, want parser.Statement) {
	tb.Helper()
	stmt, err := parser.NewParser(s).ParseStatement()
	if err != nil {
		tb.Fatalf("%q: unexpected error: %s", s, err)
	}
	if diff := cmp.Diff(want, stmt); diff != "" {
		tb.Fatalf("%q: mismatch (-want +got):\n%s", s, diff)
	}
}

// AssertParseStatementError asserts s produces the given parse error.
func AssertParseStatementError(tb testing.TB, s string, want string) {
	tb.Helper()
	_, err := parser.NewParser(s).ParseStatement()
	if err == nil || err.Error() != want {
		tb.Fatalf("%q: unexpected error: exp=%s got=%v", s, want, err)
	}
}
