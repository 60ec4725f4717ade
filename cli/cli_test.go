// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gateway "github.com/featurebasedb/sqlgateway"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEnvironment = `
tables:
  - name: T
    type: source-table
    connector:
      type: values
    schema:
      - name: a
        data-type: INT
      - name: b
        data-type: STRING
    data:
      - [1, Hello]
      - [2, World]
      - [3, Hello]
`

// recorder is an executor which records the statements it is given.
type recorder struct {
	gateway.Executor
	statements []string
}

func (r *recorder) ExecuteSQL(ctx context.Context, id, sql string) (*gateway.StatementResult, error) {
	r.statements = append(r.statements, sql)
	return &gateway.StatementResult{Table: types.OK()}, nil
}

func TestProcessLine(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		name    string
		lines   []string
		want    []string
		partial bool
	}{
		{name: "Single", lines: []string{"SELECT 1;"}, want: []string{"SELECT 1"}},
		{name: "Multiple", lines: []string{"SELECT 1; SELECT 2;"}, want: []string{"SELECT 1", "SELECT 2"}},
		{name: "MultiLine", lines: []string{"SELECT a", "FROM T;"}, want: []string{"SELECT a\nFROM T"}},
		{name: "Pending", lines: []string{"SELECT 1; SELECT"}, want: []string{"SELECT 1"}, partial: true},
		{name: "Blank", lines: []string{"", " ;;", "SELECT 1;"}, want: []string{"SELECT 1"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			cmd := NewCLICommand(logger.NopLogger)
			cmd.Executor = rec
			cmd.Stdout, cmd.Stderr = &bytes.Buffer{}, &bytes.Buffer{}

			var history []string
			for _, line := range tt.lines {
				quit, err := cmd.processLine(ctx, line, func(stmts []string) { history = append(history, stmts...) })
				require.NoError(t, err)
				require.False(t, quit)
			}
			assert.Equal(t, tt.want, rec.statements)
			assert.Equal(t, tt.want, history)
			assert.Equal(t, tt.partial, cmd.partialCommand != "")
		})
	}

	t.Run("Exit", func(t *testing.T) {
		cmd := NewCLICommand(logger.NopLogger)
		cmd.Executor = &recorder{}
		for _, line := range []string{"exit", "quit;", "  exit ; "} {
			quit, err := cmd.processLine(ctx, line, nil)
			require.NoError(t, err)
			assert.True(t, quit, line)
		}

		// Inside a statement exit is an identifier.
		cmd.Stdout = &bytes.Buffer{}
		_, err := cmd.processLine(ctx, "SELECT", nil)
		require.NoError(t, err)
		quit, err := cmd.processLine(ctx, "exit", nil)
		require.NoError(t, err)
		assert.False(t, quit)
	})
}

func newTestCommand(t *testing.T) (*CLICommand, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	e := gateway.NewLocalExecutor(gateway.Config{Logger: logger.NewLogfLogger(t)})
	t.Cleanup(func() { e.Close(context.Background()) })

	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testEnvironment), 0o600))

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewCLICommand(logger.NewLogfLogger(t))
	cmd.Executor = e
	cmd.Environment = path
	cmd.PollInterval = 5 * time.Millisecond
	cmd.Stdout, cmd.Stderr = stdout, stderr
	require.NoError(t, cmd.openSession(context.Background()))
	require.NotEmpty(t, cmd.SessionID)
	return cmd, stdout, stderr
}

func TestCLI(t *testing.T) {
	ctx := context.Background()
	cmd, stdout, stderr := newTestCommand(t)

	run := func(t *testing.T, line string) {
		t.Helper()
		stdout.Reset()
		stderr.Reset()
		_, err := cmd.processLine(ctx, line, nil)
		require.NoError(t, err)
	}

	t.Run("Catalog", func(t *testing.T) {
		run(t, "SHOW TABLES;")
		assert.Contains(t, stdout.String(), "| T ")
		assert.Contains(t, stdout.String(), "1 row in set")
		assert.Empty(t, stderr.String())
	})

	t.Run("Materialized", func(t *testing.T) {
		run(t, "SELECT a, b FROM T WHERE a > 1;")
		out := stdout.String()
		assert.Contains(t, out, "| 2 | World |")
		assert.Contains(t, out, "| 3 | Hello |")
		assert.NotContains(t, out, "| 1 |")
		assert.Contains(t, out, "2 rows in set")
	})

	t.Run("Empty", func(t *testing.T) {
		run(t, "SELECT a FROM T WHERE a > 10;")
		assert.Contains(t, stdout.String(), "Empty set")
	})

	t.Run("Changelog", func(t *testing.T) {
		run(t, "SET execution.result-mode=changelog;")
		assert.Contains(t, stdout.String(), "[INFO] Execute statement succeeded.")

		run(t, "SELECT a, b FROM T WHERE b = 'Hello';")
		out := stdout.String()
		assert.Contains(t, out, "+I[1, Hello]")
		assert.Contains(t, out, "+I[3, Hello]")
		assert.Contains(t, out, "Received a total of 2 rows")

		run(t, "RESET;")
	})

	t.Run("Insert", func(t *testing.T) {
		run(t, "CREATE TABLE sink (a INT) WITH ('connector' = 'collection');")
		run(t, "INSERT INTO sink SELECT a FROM T;")
		assert.Contains(t, stdout.String(), "[INFO] Submitted insert as job")
	})

	t.Run("Error", func(t *testing.T) {
		run(t, "SELECT * FROM Missing;")
		assert.Contains(t, stderr.String(), "[ERROR] ")
		assert.Empty(t, stdout.String())

		// The session keeps working after a failed statement.
		run(t, "SHOW CATALOGS;")
		assert.Contains(t, stdout.String(), "default_catalog")
	})

	t.Run("JobFailure", func(t *testing.T) {
		run(t, "SELECT a / 0 FROM T;")
		assert.Contains(t, stderr.String(), "Division by zero")
	})
}

func TestCompleter(t *testing.T) {
	cmd, _, _ := newTestCommand(t)
	c := &completer{ctx: context.Background(), cmd: cmd}

	line := []rune("SHOW CAT")
	got, n := c.Do(line, len(line))
	assert.Equal(t, [][]rune{[]rune("ALOGS")}, got)
	assert.Equal(t, 3, n)

	// Lines typed before the current one are part of the statement.
	cmd.partialCommand = "SELECT *\n"
	line = []rune("FROM ")
	got, n = c.Do(line, len(line))
	assert.Contains(t, got, []rune("default_catalog.default_database.T"))
	assert.Equal(t, 0, n)
}

func TestCompletionSuffix(t *testing.T) {
	for _, tt := range []struct {
		candidate, word string
		want            string
		ok              bool
	}{
		{candidate: "SELECT", word: "SE", want: "LECT", ok: true},
		{candidate: "SELECT", word: "se", want: "lect", ok: true},
		{candidate: "IntegerField1", word: "int", want: "egerField1", ok: true},
		{candidate: "c.db.Orders", word: "c.db.O", want: "rders", ok: true},
		{candidate: "c.db.Orders", word: "Or", want: "ders", ok: true},
		{candidate: "c.db.Orders", word: "x.Or", ok: false},
		{candidate: "WHERE", word: "GR", ok: false},
	} {
		got, ok := completionSuffix(tt.candidate, tt.word)
		assert.Equal(t, tt.ok, ok, tt.candidate+"/"+tt.word)
		assert.Equal(t, tt.want, got, tt.candidate+"/"+tt.word)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&types.TableResult{
		Kind:   types.ResultSuccessWithContent,
		Schema: types.Schema{{Name: "key"}, {Name: "value"}},
		Rows:   []types.Row{types.NewRow("k", nil)},
	}, &buf))
	assert.Contains(t, buf.String(), "| key | value |")
	assert.Contains(t, buf.String(), "| k   | NULL  |")

	assert.Error(t, writeTable(nil, &buf))
}
