// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser_test

import (
	"testing"

	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/stretchr/testify/assert"
)

func TestScanner_Scan(t *testing.T) {
	t.Run("IDENT", func(t *testing.T) {
		AssertScan(t, `foo_BAR123`, parser.IDENT, `foo_BAR123`)
	})
	t.Run("QIDENT", func(t *testing.T) {
		AssertScan(t, "`my table`", parser.QIDENT, `my table`)
		AssertScan(t, "`a``b`", parser.QIDENT, "a`b")
		AssertScan(t, "`unterminated", parser.ILLEGAL, "`unterminated")
	})
	t.Run("STRING", func(t *testing.T) {
		AssertScan(t, `'hello world'`, parser.STRING, `hello world`)
		AssertScan(t, `'it''s'`, parser.STRING, `it's`)
		AssertScan(t, `''`, parser.STRING, ``)
		AssertScan(t, `'unterminated`, parser.ILLEGAL, `'unterminated`)
	})
	t.Run("Numbers", func(t *testing.T) {
		AssertScan(t, `123`, parser.INTEGER, `123`)
		AssertScan(t, `123.45`, parser.FLOAT, `123.45`)
		AssertScan(t, `.5`, parser.FLOAT, `.5`)
		AssertScan(t, `1e10`, parser.FLOAT, `1e10`)
		AssertScan(t, `1e+`, parser.ILLEGAL, `1e+`)
	})
	t.Run("Punctuation", func(t *testing.T) {
		AssertScan(t, `(`, parser.LP, `(`)
		AssertScan(t, `)`, parser.RP, `)`)
		AssertScan(t, `,`, parser.COMMA, `,`)
		AssertScan(t, `.`, parser.DOT, `.`)
		AssertScan(t, `;`, parser.SEMI, `;`)
		AssertScan(t, `=`, parser.EQ, `=`)
		AssertScan(t, `<`, parser.LT, `<`)
		AssertScan(t, `>`, parser.GT, `>`)
		AssertScan(t, `+`, parser.OP, `+`)
	})
	t.Run("Comments", func(t *testing.T) {
		AssertScan(t, "-- comment\nfoo", parser.IDENT, `foo`)
		AssertScan(t, "/* comment */ foo", parser.IDENT, `foo`)
		AssertScan(t, "-- comment", parser.EOF, ``)
	})
	t.Run("EOF", func(t *testing.T) {
		AssertScan(t, " \n\t", parser.EOF, ``)
	})
}

func TestScanner_Pos(t *testing.T) {
	s := parser.NewScanner("SELECT\n  a, b")
	pos, tok, lit := s.Scan()
	assert.Equal(t, parser.Pos{Offset: 0, Line: 1, Column: 1}, pos)
	assert.Equal(t, parser.IDENT, tok)
	assert.Equal(t, "SELECT", lit)

	pos, _, lit = s.Scan()
	assert.Equal(t, parser.Pos{Offset: 9, Line: 2, Column: 3}, pos)
	assert.Equal(t, "a", lit)
	assert.Equal(t, "2:3", pos.String())

	assert.Equal(t, "-", parser.Pos{}.String())
}

// AssertScan asserts the first token produced by s.
func AssertScan(tb testing.TB, s string, expectedTok parser.Token, expectedLit string) {
	tb.Helper()
	_, tok, lit := parser.NewScanner(s).Scan()
	if tok != expectedTok {
		tb.Fatalf("%q token mismatch: exp=%s got=%s <%s>", s, expectedTok, tok, lit)
	} else if lit != expectedLit {
		tb.Fatalf("%q literal mismatch: exp=%q got=%q", s, expectedLit, lit)
	}
}
