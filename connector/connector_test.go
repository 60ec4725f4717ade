// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(name string, options map[string]string, schema types.Schema) Table {
	return Table{
		Path:  catalog.ObjectPath{Catalog: "default_catalog", Database: "default_database", Object: name},
		Table: &catalog.Table{Kind: catalog.KindTable, Schema: schema, Options: options},
	}
}

var testSchema = types.Schema{
	{Name: "id", Type: "INT", Nullable: true},
	{Name: "name", Type: "STRING", Nullable: true},
}

func readAll(t *testing.T, src Source) []string {
	t.Helper()
	var out []string
	err := src.Read(context.Background(), func(row types.Row) error {
		out = append(out, row.String())
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestValuesSource(t *testing.T) {
	tbl := testTable("v", nil, append(testSchema, types.Column{Name: "plus", Type: "INT", Expr: "id + 1"}))
	tbl.Data = [][]interface{}{{1, "a"}, {"2", "b"}, {nil, "c"}}

	src, err := OpenSource(context.Background(), Env{}, tbl)
	require.NoError(t, err)
	assert.True(t, src.Bounded())
	assert.Equal(t, []string{"+I[1, a]", "+I[2, b]", "+I[null, c]"}, readAll(t, src))

	tbl.Data = [][]interface{}{{"x", "a"}}
	_, err = OpenSource(context.Background(), Env{}, tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse 'x' as INT")
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	env := Env{Collections: NewCollections()}
	tbl := testTable("c", map[string]string{"connector": "collection", "collection": "shared"}, testSchema)

	sink, err := OpenSink(ctx, env, tbl)
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, types.NewRow(int64(1), "a")))
	require.NoError(t, sink.Write(ctx, types.NewRow(int64(2), "b")))
	require.NoError(t, sink.Write(ctx, types.NewRow(int64(1), "a")))
	require.NoError(t, sink.Write(ctx, types.Row{Kind: types.UpdateBefore, Values: []interface{}{int64(2), "b"}}))
	require.NoError(t, sink.Close())

	src, err := OpenSource(ctx, env, tbl)
	require.NoError(t, err)
	env.Collections.Append("shared", types.NewRow(int64(9), "late"))
	assert.Equal(t, []string{"+I[1, a]", "+I[1, a]"}, readAll(t, src))
	assert.Equal(t, []string{"shared"}, env.Collections.Names())

	env.Collections.Clear("shared")
	assert.Empty(t, env.Collections.Rows("shared"))
}

func TestFilesystem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id;name\n1;Hello World\n# skipped\n2;Bye\n"), 0600))

	tbl := testTable("f", map[string]string{
		"connector":             "filesystem",
		"path":                  path,
		"format":                "csv",
		"csv.field-delimiter":   ";",
		"csv.ignore-first-line": "true",
		"csv.comment-prefix":    "#",
	}, testSchema)
	src, err := OpenSource(ctx, Env{}, tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"+I[1, Hello World]", "+I[2, Bye]"}, readAll(t, src))

	t.Run("Missing", func(t *testing.T) {
		missing := testTable("f", map[string]string{"connector": "filesystem", "path": filepath.Join(dir, "nope.csv")}, testSchema)
		src, err := OpenSource(ctx, Env{}, missing)
		require.NoError(t, err)
		err = src.Read(ctx, func(types.Row) error { return nil })
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConnector))
		assert.Equal(t, "File "+filepath.Join(dir, "nope.csv")+" does not exist", err.Error())
	})

	t.Run("Sink", func(t *testing.T) {
		out := filepath.Join(dir, "out.csv")
		tbl := testTable("o", map[string]string{"connector": "filesystem", "path": out}, testSchema)
		sink, err := OpenSink(ctx, Env{}, tbl)
		require.NoError(t, err)
		require.NoError(t, sink.Write(ctx, types.NewRow(int64(3), "x,y")))
		require.NoError(t, sink.Write(ctx, types.NewRow(nil, "z")))
		require.NoError(t, sink.Close())

		b, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "3,\"x,y\"\n,z\n", string(b))

		src, err := OpenSource(ctx, Env{}, tbl)
		require.NoError(t, err)
		assert.Equal(t, []string{"+I[3, x,y]", "+I[null, z]"}, readAll(t, src))
	})

	t.Run("BadFormat", func(t *testing.T) {
		tbl := testTable("f", map[string]string{"connector": "filesystem", "path": path, "format": "avro"}, testSchema)
		_, err := OpenSource(ctx, Env{}, tbl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unsupported format 'avro'")
	})
}

func TestDatagen(t *testing.T) {
	ctx := context.Background()

	t.Run("Sequence", func(t *testing.T) {
		tbl := testTable("g", map[string]string{
			"connector":         "datagen",
			"rows-per-second":   "100000",
			"fields.id.kind":    "sequence",
			"fields.id.start":   "1",
			"fields.id.end":     "5",
			"fields.name.kind":  "sequence",
			"fields.name.start": "10",
			"fields.name.end":   "100",
		}, testSchema)
		src, err := OpenSource(ctx, Env{}, tbl)
		require.NoError(t, err)
		assert.False(t, src.Bounded())
		assert.Equal(t, []string{"+I[1, 10]", "+I[2, 11]", "+I[3, 12]", "+I[4, 13]", "+I[5, 14]"}, readAll(t, src))
	})

	t.Run("Random", func(t *testing.T) {
		tbl := testTable("g", map[string]string{
			"connector":          "datagen",
			"rows-per-second":    "100000",
			"number-of-rows":     "50",
			"fields.id.min":      "3",
			"fields.id.max":      "4",
			"fields.name.length": "6",
		}, testSchema)
		src, err := OpenSource(ctx, Env{}, tbl)
		require.NoError(t, err)
		assert.True(t, src.Bounded())

		n := 0
		require.NoError(t, src.Read(ctx, func(row types.Row) error {
			n++
			id := row.Values[0].(int64)
			assert.True(t, id == 3 || id == 4, "id %d out of range", id)
			assert.Len(t, row.Values[1], 6)
			return nil
		}))
		assert.Equal(t, 50, n)
	})

	t.Run("Cancel", func(t *testing.T) {
		tbl := testTable("g", map[string]string{"connector": "datagen", "rows-per-second": "1000000"}, testSchema)
		src, err := OpenSource(ctx, Env{}, tbl)
		require.NoError(t, err)
		cctx, cancel := context.WithCancel(ctx)
		n := 0
		err = src.Read(cctx, func(types.Row) error {
			if n++; n == 10 {
				cancel()
			}
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("MissingSequenceEnd", func(t *testing.T) {
		tbl := testTable("g", map[string]string{"connector": "datagen", "fields.id.kind": "sequence", "fields.id.start": "1"}, testSchema)
		_, err := OpenSource(ctx, Env{}, tbl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fields.id.end")
	})
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		name    string
		options map[string]string
		sink    bool
		err     string
	}{
		{name: "NoConnector", err: "Table 'default_catalog.default_database.t' has no connector"},
		{name: "Unknown", options: map[string]string{"connector": "foo"}, err: "Could not find a suitable table factory for connector 'foo'"},
		{name: "SinkOnly", options: map[string]string{"connector": "collection", "table-type": "sink-table"}, err: "declared as a sink table"},
		{name: "SourceOnly", options: map[string]string{"connector": "collection", "table-type": "source-table"}, sink: true, err: "declared as a source table"},
		{name: "ValuesSink", options: map[string]string{"connector": "values"}, sink: true, err: "does not support writing"},
		{name: "KafkaTopic", options: map[string]string{"connector": "kafka"}, err: "Missing required option 'topic'"},
		{name: "KafkaServers", options: map[string]string{"connector": "kafka", "topic": "x"}, err: "Missing required option 'properties.bootstrap.servers'"},
		{name: "SQLDriver", options: map[string]string{"connector": "sql", "url": "user@/db", "table-name": "t"}, err: "Missing required option 'driver'"},
		{name: "SQLUnknownDriver", options: map[string]string{"connector": "sql", "driver": "oracle", "url": "x", "table-name": "t"}, err: "Unsupported driver 'oracle'"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tbl := testTable("t", tt.options, testSchema)
			env := Env{Collections: NewCollections()}
			var err error
			if tt.sink {
				_, err = OpenSink(ctx, env, tbl)
			} else {
				_, err = OpenSource(ctx, env, tbl)
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSQLOptions(t *testing.T) {
	tbl := testTable("t", map[string]string{"url": "postgres://u@localhost/db", "table-name": "public.orders"}, testSchema)
	o, err := tbl.sqlOptions()
	require.NoError(t, err)
	assert.Equal(t, "postgres", o.dialect.driver)
	assert.Equal(t, `"public"."orders"`, o.tableName())
	assert.Equal(t, `"id", "name"`, o.columns(testSchema))
	assert.Equal(t, "$2", o.dialect.placeholder(2))

	tbl.Options["driver"] = "mssql"
	o, err = tbl.sqlOptions()
	require.NoError(t, err)
	assert.Equal(t, "[public].[orders]", o.tableName())
	assert.Equal(t, "@p1", o.dialect.placeholder(1))

	tbl.Options["driver"] = "mysql"
	o, err = tbl.sqlOptions()
	require.NoError(t, err)
	assert.Equal(t, "`id`, `name`", o.columns(testSchema))
	assert.Equal(t, "?", o.dialect.placeholder(3))
}

func TestDecodeJSONRow(t *testing.T) {
	row, err := decodeJSONRow([]byte(`{"ID": 7, "name": "seven", "extra": true}`), testSchema)
	require.NoError(t, err)
	assert.Equal(t, "+I[7, seven]", row.String())

	_, err = decodeJSONRow([]byte(`{"id": `), testSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling message")
}
