// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package types

// ResultKind tells a statement that only succeeded apart from one which also
// produced rows.
type ResultKind string

const (
	ResultSuccess            ResultKind = "SUCCESS"
	ResultSuccessWithContent ResultKind = "SUCCESS_WITH_CONTENT"
)

// TableResult is the small, fully materialized outcome of a statement which
// does not run as a job.
type TableResult struct {
	Kind   ResultKind `json:"kind"`
	Schema Schema     `json:"schema"`
	Rows   []Row      `json:"rows"`
}

// OK is the result of a statement without content.
func OK() *TableResult {
	return &TableResult{
		Kind:   ResultSuccess,
		Schema: Schema{{Name: "result", Type: TypeString}},
		Rows:   []Row{NewRow("OK")},
	}
}

// StringsResult is a single-column result, for example the names listed by
// SHOW TABLES.
func StringsResult(column string, values []string) *TableResult {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = NewRow(v)
	}
	return &TableResult{
		Kind:   ResultSuccessWithContent,
		Schema: Schema{{Name: column, Type: TypeString}},
		Rows:   rows,
	}
}

// Strings returns the first column of every row formatted as text.
func (r *TableResult) Strings() []string {
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if len(row.Values) > 0 {
			out = append(out, FormatValue(row.Values[0]))
		}
	}
	return out
}
