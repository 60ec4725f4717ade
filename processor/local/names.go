// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/parser"
)

// rewriteNames turns every dotted name of three or more parts into a single
// quoted identifier, so catalog.database.table becomes
// `catalog.database.table`. The query AST only has room for two-part table
// names; splitName recovers the parts.
func rewriteNames(sql string) string {
	type token struct {
		tok        parser.Token
		lit        string
		start, end int
	}
	var toks []token
	s := parser.NewScanner(sql)
	for {
		pos, tok, lit := s.Scan()
		if tok == parser.EOF {
			break
		}
		toks = append(toks, token{tok: tok, lit: lit, start: pos.Offset, end: s.Offset()})
	}

	isName := func(i int) bool {
		if i >= len(toks) {
			return false
		}
		// A double quoted token is a string unless it is part of a
		// dotted name.
		return toks[i].tok == parser.IDENT || toks[i].tok == parser.QIDENT
	}

	var sb strings.Builder
	last := 0
	for i := 0; i < len(toks); i++ {
		if !isName(i) {
			continue
		}
		j := i
		parts := []string{toks[i].lit}
		for j+2 < len(toks) && toks[j+1].tok == parser.DOT && toks[j+1].start == toks[j].end && isName(j+2) && toks[j+2].start == toks[j+1].end {
			parts = append(parts, toks[j+2].lit)
			j += 2
		}
		if len(parts) < 3 {
			i = j
			continue
		}
		sb.WriteString(sql[last:toks[i].start])
		sb.WriteString("`" + strings.ReplaceAll(strings.Join(parts, "."), "`", "``") + "`")
		last = toks[j].end
		i = j
	}
	if last == 0 {
		return sql
	}
	sb.WriteString(sql[last:])
	return sb.String()
}

// splitName returns the parts of an identifier written by rewriteNames.
func splitName(name string) []string {
	return strings.Split(name, ".")
}

// tableNameParts returns the parts of a table name as written.
func tableNameParts(tn sqlparser.TableName) []string {
	var parts []string
	if !tn.Qualifier.IsEmpty() {
		parts = append(parts, splitName(tn.Qualifier.String())...)
	}
	return append(parts, splitName(tn.Name.String())...)
}

// parseSQL parses a query or insert statement.
func parseSQL(sql string) (sqlparser.Statement, error) {
	stmt, err := sqlparser.Parse(rewriteNames(sql))
	if err != nil {
		return nil, errors.Wrapc(err, parser.ErrSQLParse, "SQL parse failed")
	}
	return stmt, nil
}

// parseExpr parses a standalone scalar expression.
func parseExpr(expr string) (sqlparser.Expr, error) {
	stmt, err := parseSQL("SELECT " + expr)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || len(sel.SelectExprs) != 1 {
		return nil, errors.Newf(parser.ErrSQLParse, "invalid expression '%s'", expr)
	}
	ae, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, errors.Newf(parser.ErrSQLParse, "invalid expression '%s'", expr)
	}
	return ae.Expr, nil
}
