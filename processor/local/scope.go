// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/types"
)

// field is a column visible to expressions, together with the name of the
// relation it comes from.
type field struct {
	// qualifier is an alias, or the object path of a table or view.
	qualifier []string
	name      string
	typ       string
	nullable  bool
}

// scope lists the fields of a row in order.
type scope []field

func scopeOf(qualifier []string, schema types.Schema) scope {
	s := make(scope, len(schema))
	for i, c := range schema {
		s[i] = field{qualifier: qualifier, name: c.Name, typ: c.Type, nullable: c.Nullable}
	}
	return s
}

// schema returns the fields as result columns.
func (s scope) schema() types.Schema {
	out := make(types.Schema, len(s))
	for i, f := range s {
		out[i] = types.Column{Name: f.name, Type: f.typ, Nullable: f.nullable}
	}
	return out
}

// requalify returns the fields under a new qualifier, as a view or a
// derived table exposes them.
func (s scope) requalify(qualifier []string) scope {
	out := make(scope, len(s))
	for i, f := range s {
		f.qualifier = qualifier
		out[i] = f
	}
	return out
}

// matches reports whether the written qualifier q names f's relation. A
// written qualifier may leave out leading parts: t, db.t and cat.db.t all
// name cat.db.t.
func (f field) matches(q []string) bool {
	if len(q) == 0 {
		return true
	}
	if len(q) > len(f.qualifier) {
		return false
	}
	off := len(f.qualifier) - len(q)
	for i := range q {
		if !strings.EqualFold(q[i], f.qualifier[off+i]) {
			return false
		}
	}
	return true
}

// colNameParts splits a column reference into its qualifier and name.
func colNameParts(col *sqlparser.ColName) ([]string, string) {
	var q []string
	if !col.Qualifier.IsEmpty() {
		q = tableNameParts(col.Qualifier)
	}
	parts := splitName(col.Name.String())
	return append(q, parts[:len(parts)-1]...), parts[len(parts)-1]
}

// resolve returns the index of the referenced field.
func (s scope) resolve(col *sqlparser.ColName) (int, error) {
	q, name := colNameParts(col)
	found := -1
	for i, f := range s {
		if !strings.EqualFold(f.name, name) || !f.matches(q) {
			continue
		}
		if found >= 0 {
			return -1, newValidationError("Column '%s' is ambiguous", name)
		}
		found = i
	}
	if found < 0 {
		if len(q) > 0 {
			return -1, newValidationError("Column '%s' not found in table '%s'", name, strings.Join(q, "."))
		}
		return -1, newValidationError("Column '%s' not found in any table", name)
	}
	return found, nil
}

// star returns the indexes of the fields a * or t.* selects.
func (s scope) star(tn sqlparser.TableName) ([]int, error) {
	var q []string
	if !tn.IsEmpty() {
		q = tableNameParts(tn)
	}
	var out []int
	for i, f := range s {
		if f.matches(q) {
			out = append(out, i)
		}
	}
	if len(q) > 0 && len(out) == 0 {
		return nil, newValidationError("Unknown identifier '%s'", strings.Join(q, "."))
	}
	return out, nil
}
