// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package environment_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionYAML = `
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
      type: filesystem
      path: /tmp/table-1.csv
    format:
      type: csv
      field-delimiter: ","
    schema:
      - name: IntegerField1
        data-type: INT
      - name: StringField1
        data-type: STRING
  - name: TestView1
    type: view
    query: SELECT scalarUDF(IntegerField1) FROM default_catalog.default_database.TableNumber1
functions:
  - name: scalarUDF
    identifier: add_five
execution:
  result-mode: changelog
  max-table-result-rows: 100
  restart-strategy:
    type: failure-rate
    max-failures-per-interval: 10
configuration:
  table.optimizer.join-reorder-enabled: false
deployment:
  response-timeout: 5000
`

func TestParse(t *testing.T) {
	env, err := environment.ParseBytes([]byte(sessionYAML))
	require.NoError(t, err)

	require.Len(t, env.Catalogs, 1)
	assert.Equal(t, "catalog1", env.Catalogs[0].Name)
	assert.Equal(t, "memory", env.Catalogs[0].Type)
	assert.Equal(t, "mydatabase", env.Catalogs[0].Properties.GetOr("default-database", ""))

	require.Len(t, env.Modules, 2)
	assert.Equal(t, "core", env.Modules[0].Type)
	assert.Equal(t, "text", env.Modules[1].Type)

	require.Len(t, env.Tables, 2)
	tbl := env.Tables[0]
	assert.Equal(t, environment.TableSource, tbl.Kind)
	assert.Equal(t, map[string]string{
		"connector":           "filesystem",
		"path":                "/tmp/table-1.csv",
		"format":              "csv",
		"csv.field-delimiter": ",",
	}, tbl.Options.Map(""))
	assert.Equal(t, []environment.ColumnDef{{Name: "IntegerField1", DataType: "INT"}, {Name: "StringField1", DataType: "STRING"}}, tbl.Schema)
	assert.Equal(t, environment.TableView, env.Tables[1].Kind)

	assert.Equal(t, []environment.FunctionDef{{Name: "scalarUDF", Identifier: "add_five"}}, env.Functions)

	flat := env.Flatten()
	assert.Equal(t, "changelog", flat["execution.result-mode"])
	assert.Equal(t, "failure-rate", flat["execution.restart-strategy.type"])
	assert.Equal(t, "10", flat["execution.restart-strategy.max-failures-per-interval"])
	assert.Equal(t, "false", flat["table.optimizer.join-reorder-enabled"])
	assert.Equal(t, "5000", flat["deployment.response-timeout"])
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":     "catalogz: []",
		"unnamed catalog": "catalogs:\n  - type: memory",
		"bad table type":  "tables:\n  - name: t\n    type: temporal",
		"view no query":   "tables:\n  - name: v\n    type: view",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := environment.ParseBytes([]byte(doc))
			if assert.Error(t, err) {
				assert.True(t, errors.Is(err, environment.ErrInvalidEnvironment), err.Error())
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sessionYAML), 0600))
	env, err := environment.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, env.Tables, 2)

	_, err = environment.ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := &environment.Environment{
		Modules:   []environment.ModuleDef{{Name: "core", Type: "core"}},
		Catalogs:  []environment.CatalogDef{{Name: "c1", Type: "memory"}, {Name: "c2", Type: "memory"}},
		Execution: environment.NewProperties(map[string]string{"type": "streaming", "parallelism": "1"}),
	}
	b := &environment.Environment{
		Modules:   []environment.ModuleDef{{Name: "mytext", Type: "text"}, {Name: "core", Type: "core"}},
		Catalogs:  []environment.CatalogDef{{Name: "c1", Type: "bolt"}},
		Execution: environment.NewProperties(map[string]string{"parallelism": "4"}),
	}
	m := environment.Merge(a, b)

	names := func(mods []environment.ModuleDef) []string {
		var out []string
		for _, m := range mods {
			out = append(out, m.Name)
		}
		return out
	}
	assert.Equal(t, []string{"core", "mytext"}, names(m.Modules))
	assert.Equal(t, "bolt", m.Catalogs[0].Type)
	assert.Equal(t, "c2", m.Catalogs[1].Name)
	assert.Equal(t, map[string]string{"type": "streaming", "parallelism": "4"}, m.Execution.Map(""))

	// inputs are untouched.
	assert.Equal(t, "memory", a.Catalogs[0].Type)
	assert.Equal(t, "1", a.Execution.GetOr("parallelism", ""))
}

func TestEnrich(t *testing.T) {
	base := environment.Merge(environment.Defaults(), nil)
	before := base.Flatten()

	enriched := environment.Enrich(base, map[string]string{
		"execution.result-mode": "changelog",
		"deployment.target":     "local",
		"table.sql-dialect":     "hive",
	})
	assert.Equal(t, "changelog", enriched.Execution.GetOr("result-mode", ""))
	assert.Equal(t, "hive", enriched.Configuration.GetOr("table.sql-dialect", ""))

	if diff := cmp.Diff(before, base.Flatten()); diff != "" {
		t.Fatalf("base environment changed: %s", diff)
	}
}

func TestExecutionConfig(t *testing.T) {
	c, err := environment.Defaults().ExecutionConfig()
	require.NoError(t, err)
	assert.True(t, c.Streaming)
	assert.True(t, c.Materialized())
	assert.Equal(t, 1000000, c.MaxTableResultRows)
	assert.Equal(t, environment.DialectDefault, c.Dialect)
	assert.Equal(t, "local", c.DeploymentTarget)

	bad := []map[string]string{
		{"execution.type": "micro-batch"},
		{"execution.result-mode": "tableau"},
		{"execution.max-table-result-rows": "many"},
		{"execution.parallelism": "0"},
		{"table.sql-dialect": "oracle"},
	}
	for _, overlay := range bad {
		_, err := environment.Enrich(environment.Defaults(), overlay).ExecutionConfig()
		if assert.Error(t, err, overlay) {
			assert.True(t, errors.Is(err, environment.ErrInvalidProperty))
		}
	}
}

func TestProperties(t *testing.T) {
	p := environment.NewProperties(map[string]string{"b": "2", "a": "1"})
	q := p.Set("c", "3").Delete("a")
	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.Equal(t, []string{"b", "c"}, q.Keys())
	assert.Equal(t, map[string]string{"x.b": "2", "x.a": "1"}, p.Map("x."))

	var zero environment.Properties
	assert.Equal(t, 0, zero.Len())
	_, ok := zero.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, zero.Set("a", "1").Len())

	n, err := environment.NewProperties(map[string]string{"n": " 7 "}).GetInt("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	sub := environment.NewProperties(map[string]string{"csv.field-delimiter": ";", "path": "x"}).WithPrefix("csv.")
	assert.Equal(t, map[string]string{"field-delimiter": ";"}, sub.Map(""))
	assert.True(t, strings.HasPrefix(strings.Join(p.Keys(), ""), "a"))
}

func TestEnvironment_JSON(t *testing.T) {
	env, err := environment.ParseBytes([]byte(sessionYAML))
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	var back environment.Environment
	require.NoError(t, json.Unmarshal(b, &back))

	assert.Equal(t, env.Flatten(), back.Flatten())
	require.Len(t, back.Tables, len(env.Tables))
	assert.Equal(t, env.Tables[0].Options.Map(""), back.Tables[0].Options.Map(""))
	assert.Equal(t, env.Tables[0].Schema, back.Tables[0].Schema)
	assert.Equal(t, env.Functions, back.Functions)
	assert.Equal(t, "mydatabase", back.Catalogs[0].Properties.GetOr("default-database", ""))
}
