// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/connector"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowCollector is a RowSink remembering every row as text.
type rowCollector struct {
	mu   sync.Mutex
	rows []string
}

func (c *rowCollector) Emit(ctx context.Context, row types.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row.String())
	return nil
}

func (c *rowCollector) Rows() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rows...)
}

type testEnv struct {
	p   *Processor
	cat *catalog.Manager
}

func newTestEnv(tb testing.TB) *testEnv {
	tb.Helper()
	ctx := context.Background()
	p := New(Config{Workers: 2, Logger: logger.NewLogfLogger(tb)})
	tb.Cleanup(func() { p.Close() })

	m, err := catalog.NewManager(ctx, catalog.ManagerConfig{})
	require.NoError(tb, err)
	tb.Cleanup(func() { m.Close() })
	m.SetAnalyzer(p.Analyzer(m))
	require.NoError(tb, m.Apply(ctx, environment.Defaults()))

	path, err := m.QualifyPath([]string{"T"})
	require.NoError(tb, err)
	require.NoError(tb, m.CreateTemporaryTable(ctx, path, &catalog.Table{
		Kind: catalog.KindTable,
		Schema: types.Schema{
			{Name: "a", Type: types.TypeInt, Nullable: true},
			{Name: "b", Type: types.TypeString, Nullable: true},
		},
		Data: [][]interface{}{{1, "Hello"}, {2, "World"}, {3, "Hello"}},
	}, false))
	return &testEnv{p: p, cat: m}
}

func (e *testEnv) exec(tb testing.TB, sql string) {
	tb.Helper()
	stmt, err := parser.ParseStatement(sql)
	require.NoError(tb, err)
	_, err = e.cat.Execute(context.Background(), stmt)
	require.NoError(tb, err)
}

func config(streaming bool) environment.ExecutionConfig {
	return environment.ExecutionConfig{Streaming: streaming, ResultMode: environment.ResultModeTable}
}

// run submits sql and waits for the job to end.
func (e *testEnv) run(tb testing.TB, sql string, streaming bool) ([]string, *processor.Program, processor.JobInfo) {
	tb.Helper()
	ctx := context.Background()
	sink := &rowCollector{}
	id, prog, err := e.p.Submit(ctx, processor.Request{SQL: sql, Catalog: e.cat, Config: config(streaming), Sink: sink})
	require.NoError(tb, err)

	var info processor.JobInfo
	require.Eventually(tb, func() bool {
		info, err = e.p.Status(ctx, id)
		require.NoError(tb, err)
		return info.Status.Terminal()
	}, 5*time.Second, time.Millisecond)
	return sink.Rows(), prog, info
}

func TestRewriteNames(t *testing.T) {
	for _, tt := range []struct {
		in, out string
	}{
		{"SELECT * FROM t", "SELECT * FROM t"},
		{"SELECT t.a FROM db.t", "SELECT t.a FROM db.t"},
		{"SELECT * FROM cat.db.t", "SELECT * FROM `cat.db.t`"},
		{"SELECT cat.db.t.a FROM cat.db.t WHERE a = 'x.y.z'", "SELECT `cat.db.t.a` FROM `cat.db.t` WHERE a = 'x.y.z'"},
		{"SELECT * FROM a . b . c", "SELECT * FROM a . b . c"},
	} {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.out, rewriteNames(tt.in))
		})
	}
}

func TestRewriteOverwrite(t *testing.T) {
	sql, ok := rewriteOverwrite("INSERT OVERWRITE t SELECT * FROM s")
	assert.True(t, ok)
	assert.Equal(t, "INSERT INTO t SELECT * FROM s", sql)

	sql, ok = rewriteOverwrite("insert into t select * from s")
	assert.False(t, ok)
	assert.Equal(t, "insert into t select * from s", sql)
}

func TestProcessor_Query(t *testing.T) {
	e := newTestEnv(t)

	t.Run("Project", func(t *testing.T) {
		rows, prog, info := e.run(t, "SELECT a + 1 AS x, UPPER(b) FROM T WHERE a > 1", false)
		require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
		assert.Equal(t, []string{"+I[3, WORLD]", "+I[4, HELLO]"}, rows)
		assert.Equal(t, processor.ProgramQuery, prog.Kind)
		assert.True(t, prog.Bounded)
		assert.Equal(t, types.Schema{
			{Name: "x", Type: types.TypeInt, Nullable: true},
			{Name: "EXPR$1", Type: types.TypeString, Nullable: true},
		}, prog.Schema)
	})

	t.Run("QualifiedNames", func(t *testing.T) {
		rows, _, info := e.run(t, "SELECT T.b FROM default_catalog.default_database.T WHERE default_catalog.default_database.T.a = 2", true)
		require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
		assert.Equal(t, []string{"+I[World]"}, rows)
	})

	t.Run("Star", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT * FROM T WHERE b LIKE 'H%' AND a IN (1, 2)", true)
		assert.Equal(t, []string{"+I[1, Hello]"}, rows)
	})

	t.Run("NoFrom", func(t *testing.T) {
		rows, prog, _ := e.run(t, "SELECT 1, 'x', 7 / 2, 1.5 * 2", true)
		assert.Equal(t, []string{"+I[1, x, 3, 3.0]"}, rows)
		assert.Equal(t, types.TypeDouble, prog.Schema[3].Type)
	})

	t.Run("Case", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT CASE WHEN a < 2 THEN 'small' ELSE 'big' END FROM T", true)
		assert.Equal(t, []string{"+I[small]", "+I[big]", "+I[big]"}, rows)
	})

	t.Run("OrderByLimit", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT a, b FROM T ORDER BY a DESC LIMIT 2", false)
		assert.Equal(t, []string{"+I[3, Hello]", "+I[2, World]"}, rows)
	})

	t.Run("Limit", func(t *testing.T) {
		rows, _, info := e.run(t, "SELECT a FROM T LIMIT 1", true)
		assert.Equal(t, processor.JobFinished, info.Status)
		assert.Equal(t, []string{"+I[1]"}, rows)
	})

	t.Run("Distinct", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT DISTINCT b FROM T", false)
		assert.Equal(t, []string{"+I[Hello]", "+I[World]"}, rows)
	})

	t.Run("DerivedTable", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT s.x FROM (SELECT a * 10 AS x FROM T) AS s WHERE s.x > 10", true)
		assert.Equal(t, []string{"+I[20]", "+I[30]"}, rows)
	})

	t.Run("DivisionByZero", func(t *testing.T) {
		_, _, info := e.run(t, "SELECT a / 0 FROM T", true)
		assert.Equal(t, processor.JobFailed, info.Status)
		assert.True(t, errors.Is(info.Err, ErrRuntime))
		assert.Contains(t, info.Err.Error(), "Division by zero")
	})
}

func TestProcessor_Aggregate(t *testing.T) {
	e := newTestEnv(t)
	const sql = "SELECT b, COUNT(*) AS c, SUM(a) AS s FROM T GROUP BY b"

	t.Run("Streaming", func(t *testing.T) {
		rows, prog, _ := e.run(t, sql, true)
		assert.Equal(t, []string{
			"+I[Hello, 1, 1]",
			"+I[World, 1, 2]",
			"-U[Hello, 1, 1]",
			"+U[Hello, 2, 4]",
		}, rows)
		assert.Equal(t, types.TypeBigInt, prog.Schema[1].Type)
		assert.Equal(t, types.TypeInt, prog.Schema[2].Type)
	})

	t.Run("Batch", func(t *testing.T) {
		rows, _, _ := e.run(t, sql, false)
		assert.Equal(t, []string{"+I[Hello, 2, 4]", "+I[World, 1, 2]"}, rows)
	})

	t.Run("Having", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT b, MAX(a), MIN(a), AVG(a) FROM T GROUP BY b HAVING COUNT(*) > 1", false)
		assert.Equal(t, []string{"+I[Hello, 3, 1, 2]"}, rows)
	})

	t.Run("GlobalEmpty", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT COUNT(*), MAX(a) FROM T WHERE a > 100", false)
		assert.Equal(t, []string{"+I[0, null]"}, rows)
	})

	t.Run("CountDistinct", func(t *testing.T) {
		rows, _, _ := e.run(t, "SELECT COUNT(DISTINCT b) FROM T", false)
		assert.Equal(t, []string{"+I[2]"}, rows)
	})

	t.Run("NotGrouped", func(t *testing.T) {
		_, _, err := e.p.Submit(context.Background(), processor.Request{
			SQL: "SELECT a, COUNT(*) FROM T GROUP BY b", Catalog: e.cat, Config: config(true), Sink: &rowCollector{},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "Expression 'a' is not being grouped")
	})
}

func TestProcessor_Errors(t *testing.T) {
	e := newTestEnv(t)
	for _, tt := range []struct {
		name      string
		sql       string
		streaming bool
		code      errors.Code
		msg       string
	}{
		{"Parse", "SELEC 1", true, parser.ErrSQLParse, "SQL parse failed"},
		{"UnknownTable", "SELECT * FROM nope", true, catalog.ErrCatalog, "Object 'nope' not found"},
		{"UnknownColumn", "SELECT c FROM T", true, ErrValidation, "Column 'c' not found in any table"},
		{"UnknownFunction", "SELECT nope(a) FROM T", true, "", "No match found for function signature nope"},
		{"StreamingSort", "SELECT a FROM T ORDER BY a", true, ErrUnsupported, "Sort on a non-time-attribute field is not supported."},
		{"UpdatingLimit", "SELECT b, COUNT(*) FROM T GROUP BY b LIMIT 1", true, ErrUnsupported, "LIMIT on an updating query"},
		{"Arithmetic", "SELECT b + 1 FROM T", true, ErrValidation, "Cannot apply '+' to arguments of type '<STRING> + <INT>'"},
		{"Join", "SELECT * FROM T, T AS u", true, ErrUnsupported, "Joins are not supported"},
		{"Update", "UPDATE T SET a = 1", true, ErrUnsupported, "UPDATE statements are not supported"},
		{"OverwriteStreaming", "INSERT OVERWRITE T SELECT * FROM T", true, ErrUnsupported, "only supported in batch mode"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.p.Submit(context.Background(), processor.Request{
				SQL: tt.sql, Catalog: e.cat, Config: config(tt.streaming), Sink: &rowCollector{},
			})
			require.Error(t, err)
			if tt.code != "" {
				assert.True(t, errors.Is(err, tt.code), "%v", err)
			}
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestProcessor_Views(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.exec(t, "CREATE VIEW v1 AS SELECT a, b FROM T WHERE a > 1")
	e.exec(t, "CREATE VIEW v2 (x) AS SELECT a FROM v1")

	path, err := e.cat.QualifyPath([]string{"v1"})
	require.NoError(t, err)
	v1, _, err := e.cat.GetTable(ctx, path)
	require.NoError(t, err)
	assert.Contains(t, v1.Query, "`default_catalog.default_database.T`")
	assert.Equal(t, []catalog.ObjectPath{{Catalog: "default_catalog", Database: "default_database", Object: "T"}}, v1.DependsOn)
	assert.Equal(t, []string{"a", "b"}, v1.Schema.Names())

	path, err = e.cat.QualifyPath([]string{"v2"})
	require.NoError(t, err)
	v2, _, err := e.cat.GetTable(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ObjectPath{{Catalog: "default_catalog", Database: "default_database", Object: "v1"}}, v2.DependsOn)

	rows, _, info := e.run(t, "SELECT v2.x FROM v2", true)
	require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
	assert.Equal(t, []string{"+I[2]", "+I[3]"}, rows)
}

func TestProcessor_Insert(t *testing.T) {
	e := newTestEnv(t)
	e.exec(t, "CREATE TABLE sink (b STRING, n BIGINT) WITH ('connector' = 'collection', 'collection' = 'out')")

	_, prog, info := e.run(t, "INSERT INTO sink SELECT b, COUNT(*) FROM T GROUP BY b", true)
	require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
	assert.Equal(t, processor.ProgramInsert, prog.Kind)
	assert.Equal(t, "sink", prog.Target.Object)

	// Retractions remove the rows they update.
	rowStrings := func() []string {
		var out []string
		for _, r := range e.p.Collections().Rows("out") {
			out = append(out, r.String())
		}
		return out
	}
	assert.Equal(t, []string{"+I[World, 1]", "+I[Hello, 2]"}, rowStrings())

	_, _, info = e.run(t, "INSERT INTO sink (n, b) VALUES (7, 'x')", true)
	require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
	assert.Equal(t, []string{"+I[World, 1]", "+I[Hello, 2]", "+I[x, 7]"}, rowStrings())

	_, _, info = e.run(t, "INSERT OVERWRITE sink SELECT b, a FROM T WHERE a = 1", false)
	require.Equal(t, processor.JobFinished, info.Status, "%v", info.Err)
	assert.Equal(t, []string{"+I[Hello, 1]"}, rowStrings())

	_, _, err := e.p.Submit(context.Background(), processor.Request{SQL: "INSERT INTO sink SELECT a FROM T", Catalog: e.cat, Config: config(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Query has 1 columns but the sink expects 2")
}

// blockingSink holds every row until release is closed.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(ctx context.Context, row types.Row) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestProcessor_Cancel(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sink := &blockingSink{release: make(chan struct{})}
	id, _, err := e.p.Submit(ctx, processor.Request{SQL: "SELECT * FROM T", Catalog: e.cat, Config: config(true), Sink: sink})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := e.p.Status(ctx, id)
		require.NoError(t, err)
		return info.Status == processor.JobRunning
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, e.p.Cancel(ctx, id))
	require.Eventually(t, func() bool {
		info, err := e.p.Status(ctx, id)
		require.NoError(t, err)
		return info.Status == processor.JobCanceled
	}, 5*time.Second, time.Millisecond)

	_, err = e.p.Status(ctx, "nope")
	assert.True(t, errors.Is(err, processor.ErrJobNotFound))
}

func TestProcessor_Explain(t *testing.T) {
	e := newTestEnv(t)
	plan, err := e.p.Explain(context.Background(), e.cat, config(true), "SELECT b FROM T WHERE a > 1")
	require.NoError(t, err)
	assert.Contains(t, plan, "== Abstract Syntax Tree ==")
	assert.Contains(t, plan, "Project(fields=[b])\n"+
		"+- Filter(condition=[a > 1])\n"+
		"   +- TableSourceScan(table=[[default_catalog, default_database, T]], fields=[a, b])\n")
}

func TestAnalyzer_ExpressionType(t *testing.T) {
	e := newTestEnv(t)
	a := e.p.Analyzer(e.cat)
	schema := types.Schema{{Name: "a", Type: types.TypeInt}, {Name: "d", Type: types.TypeDouble}}
	for expr, typ := range map[string]string{
		"a + 1":           types.TypeInt,
		"a * d":           types.TypeDouble,
		"a > 1":           types.TypeBoolean,
		"UPPER('x')":      types.TypeString,
		"a + 10000000000": types.TypeBigInt,
	} {
		got, err := a.ExpressionType(context.Background(), expr, schema)
		require.NoError(t, err, expr)
		assert.Equal(t, typ, got, expr)
	}

	_, err := a.ExpressionType(context.Background(), "x + 1", schema)
	assert.Error(t, err)
}

func TestConnectorEnv(t *testing.T) {
	c := connector.NewCollections()
	p := New(Config{Collections: c})
	defer p.Close()
	assert.Same(t, c, p.Collections())
}

func TestProcessor_Forget(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Finished jobs stay readable until forgotten.
	for i := 0; i < 5; i++ {
		e.run(t, "SELECT * FROM T", false)
	}
	assert.Equal(t, 5, e.p.Jobs())

	sink := &blockingSink{release: make(chan struct{})}
	id, _, err := e.p.Submit(ctx, processor.Request{SQL: "SELECT * FROM T", Catalog: e.cat, Config: config(true), Sink: sink})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		info, err := e.p.Status(ctx, id)
		require.NoError(t, err)
		return info.Status == processor.JobRunning
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, e.p.Forget(ctx, id))
	_, err = e.p.Status(ctx, id)
	assert.True(t, errors.Is(err, processor.ErrJobNotFound))
	assert.Equal(t, 5, e.p.Jobs())
	require.NoError(t, e.p.Forget(ctx, id))
}
