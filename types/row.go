// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package types holds the row and schema types shared by the gateway's
// catalog, processor and result packages.
package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RowKind tags a row of a changelog.
type RowKind int8

const (
	Insert RowKind = iota
	UpdateBefore
	UpdateAfter
	Delete
)

func (k RowKind) String() string {
	switch k {
	case Insert:
		return "+I"
	case UpdateBefore:
		return "-U"
	case UpdateAfter:
		return "+U"
	case Delete:
		return "-D"
	}
	return "??"
}

// IsRetraction reports whether the row removes a previously emitted row.
func (k RowKind) IsRetraction() bool {
	return k == UpdateBefore || k == Delete
}

// ParseRowKind is the inverse of RowKind.String.
func ParseRowKind(s string) (RowKind, bool) {
	for k := Insert; k <= Delete; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return Insert, false
}

// MarshalText implements encoding.TextMarshaler.
func (k RowKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RowKind) UnmarshalText(b []byte) error {
	kind, ok := ParseRowKind(string(b))
	if !ok {
		return errInvalidRowKind(string(b))
	}
	*k = kind
	return nil
}

// Row is one record of a result, tagged with its change kind.
type Row struct {
	Kind   RowKind       `json:"kind"`
	Values []interface{} `json:"values"`
}

// NewRow returns an insert row.
func NewRow(values ...interface{}) Row {
	return Row{Kind: Insert, Values: values}
}

// String formats the row like "+I[47, Hello World, ABC]".
func (r Row) String() string {
	return r.Kind.String() + "[" + r.ValuesString() + "]"
}

// ValuesString formats the values like "47, Hello World, ABC".
func (r Row) ValuesString() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON writes doubles with a fraction or exponent so that they decode
// back to doubles rather than integers.
func (r Row) MarshalJSON() ([]byte, error) {
	values := make([]interface{}, len(r.Values))
	for i, v := range r.Values {
		if f, ok := v.(float64); ok {
			s := strconv.FormatFloat(f, 'g', -1, 64)
			if !strings.ContainsAny(s, ".eE") {
				s += ".0"
			}
			values[i] = json.Number(s)
			continue
		}
		values[i] = v
	}
	return json.Marshal(struct {
		Kind   RowKind       `json:"kind"`
		Values []interface{} `json:"values"`
	}{r.Kind, values})
}

// UnmarshalJSON decodes integral numbers as int64 and other numbers as
// float64.
func (r *Row) UnmarshalJSON(b []byte) error {
	var raw struct {
		Kind   RowKind       `json:"kind"`
		Values []interface{} `json:"values"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	for i, v := range raw.Values {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if iv, err := n.Int64(); err == nil && !strings.ContainsAny(string(n), ".eE") {
			raw.Values[i] = iv
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return err
		}
		raw.Values[i] = f
	}
	r.Kind, r.Values = raw.Kind, raw.Values
	return nil
}

// Key returns a string identifying the row's values regardless of kind.
func (r Row) Key() string {
	var sb strings.Builder
	for i, v := range r.Values {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(typeTag(v))
		sb.WriteString(FormatValue(v))
	}
	return sb.String()
}

// SameValues reports whether r and o hold equal values.
func (r Row) SameValues(o Row) bool {
	if len(r.Values) != len(o.Values) {
		return false
	}
	for i := range r.Values {
		if typeTag(r.Values[i]) != typeTag(o.Values[i]) || FormatValue(r.Values[i]) != FormatValue(o.Values[i]) {
			return false
		}
	}
	return true
}

// Column describes one result or table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`

	// Expr is the defining expression of a computed column.
	Expr string `json:"expr,omitempty"`
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, matching case
// insensitively, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	for i, c := range s {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
