// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cli

import (
	"fmt"
	"io"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

const nullValue string = "NULL"

// writeTable writes the result of a statement which did not run as a job.
func writeTable(r *types.TableResult, w io.Writer) error {
	if r == nil {
		return errors.Errorf("attempt to write out nil result")
	}
	if r.Kind == types.ResultSuccess {
		_, err := w.Write([]byte("[INFO] Execute statement succeeded.\n"))
		return errors.Wrap(err, "writing result")
	}
	b := newRowBuffer(r.Schema)
	b.append(r.Rows...)
	return b.render(w)
}

// rowBuffer holds the rows of a materialized result until they are
// rendered as a table.
type rowBuffer struct {
	schema types.Schema
	rows   []types.Row
}

func newRowBuffer(schema types.Schema) *rowBuffer {
	return &rowBuffer{schema: schema}
}

func (b *rowBuffer) reset() { b.rows = b.rows[:0] }

func (b *rowBuffer) append(rows ...types.Row) { b.rows = append(b.rows, rows...) }

func (b *rowBuffer) render(w io.Writer) error {
	if len(b.rows) == 0 {
		_, err := w.Write([]byte("Empty set\n"))
		return errors.Wrap(err, "writing result")
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(schemaToRow(b.schema))
	for _, row := range b.rows {
		t.AppendRow(valuesToRow(row.Values))
	}
	t.Render()

	_, err := fmt.Fprintf(w, "%d row%s in set\n", len(b.rows), plural(len(b.rows)))
	return errors.Wrap(err, "writing row count")
}

// changeWriter prints the changes of a changelog result as they arrive.
type changeWriter struct {
	w     io.Writer
	count int
}

func newChangeWriter(schema types.Schema, w io.Writer) *changeWriter {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(append(table.Row{"op"}, schemaToRow(schema)...))
	t.Render()
	return &changeWriter{w: w}
}

func (c *changeWriter) write(rows []types.Row) {
	for _, row := range rows {
		fmt.Fprintln(c.w, row.String())
	}
	c.count += len(rows)
}

func (c *changeWriter) close() {
	fmt.Fprintf(c.w, "Received a total of %d row%s\n", c.count, plural(c.count))
}

func schemaToRow(schema types.Schema) table.Row {
	ret := make(table.Row, len(schema))
	for i, col := range schema {
		ret[i] = col.Name
	}
	return ret
}

func valuesToRow(values []interface{}) table.Row {
	ret := make(table.Row, len(values))
	for i, v := range values {
		// go-pretty doesn't expect nil pointers in the data values.
		if v == nil {
			ret[i] = nullValue
			continue
		}
		ret[i] = types.FormatValue(v)
	}
	return ret
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
