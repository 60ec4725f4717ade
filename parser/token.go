// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser

import (
	"fmt"
	"strings"
)

// Token is the lexical class of a scanned item. Keywords are scanned as
// IDENT and matched by name, so a word is only a keyword where the grammar
// expects one.
type Token int

const (
	ILLEGAL Token = iota
	EOF
	IDENT   // main
	QIDENT  // `main`
	STRING  // 'abc'
	INTEGER // 123
	FLOAT   // 1.5
	LP      // (
	RP      // )
	COMMA   // ,
	DOT     // .
	SEMI    // ;
	EQ      // =
	LT      // <
	GT      // >
	OP      // any other operator character
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",
	IDENT:   "IDENT",
	QIDENT:  "QIDENT",
	STRING:  "STRING",
	INTEGER: "INTEGER",
	FLOAT:   "FLOAT",
	LP:      "(",
	RP:      ")",
	COMMA:   ",",
	DOT:     ".",
	SEMI:    ";",
	EQ:      "=",
	LT:      "<",
	GT:      ">",
	OP:      "OP",
}

func (t Token) String() string {
	if t >= 0 && int(t) < len(tokens) {
		return tokens[t]
	}
	return ""
}

// Pos specifies the line and character position of a token. The Column and
// Line are 1-based.
type Pos struct {
	Offset int // offset, starting at 0
	Line   int // line number, starting at 1
	Column int // column number, starting at 1 (byte count)
}

// String returns a string representation of the position.
func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid returns true if p is non-zero.
func (p Pos) IsValid() bool {
	return p != Pos{}
}

// isWord reports whether lit is the (unquoted) keyword kw.
func isWord(tok Token, lit, kw string) bool {
	return tok == IDENT && strings.EqualFold(lit, kw)
}
