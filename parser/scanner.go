// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scanner splits SQL text into tokens.
type Scanner struct {
	src string
	off int // next byte to read

	line, col int // position of the next byte
}

// NewScanner returns a scanner over src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src, line: 1, col: 1}
}

func (s *Scanner) pos() Pos {
	return Pos{Offset: s.off, Line: s.line, Column: s.col}
}

func (s *Scanner) peek() rune {
	if s.off >= len(s.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.off:])
	return r
}

func (s *Scanner) peekAt(n int) byte {
	if s.off+n >= len(s.src) {
		return 0
	}
	return s.src[s.off+n]
}

func (s *Scanner) read() rune {
	if s.off >= len(s.src) {
		return -1
	}
	r, n := utf8.DecodeRuneInString(s.src[s.off:])
	s.off += n
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col += n
	}
	return r
}

// Offset returns the offset of the next unread byte.
func (s *Scanner) Offset() int { return s.off }

// Scan returns the next token, its position and its literal value. Quoted
// identifiers and strings are returned unquoted.
func (s *Scanner) Scan() (pos Pos, tok Token, lit string) {
	s.skipBlankAndComments()
	pos = s.pos()

	ch := s.peek()
	switch {
	case ch == -1:
		return pos, EOF, ""
	case isIdentStart(ch):
		return pos, IDENT, s.scanIdent()
	case ch == '`':
		return s.scanQuoted(pos, '`', QIDENT)
	case ch == '\'':
		return s.scanQuoted(pos, '\'', STRING)
	case ch == '"':
		return s.scanQuoted(pos, '"', QIDENT)
	case isDigit(ch) || (ch == '.' && isDigit(rune(s.peekAt(1)))):
		return s.scanNumber(pos)
	}

	s.read()
	switch ch {
	case '(':
		return pos, LP, "("
	case ')':
		return pos, RP, ")"
	case ',':
		return pos, COMMA, ","
	case '.':
		return pos, DOT, "."
	case ';':
		return pos, SEMI, ";"
	case '=':
		return pos, EQ, "="
	case '<':
		return pos, LT, "<"
	case '>':
		return pos, GT, ">"
	}
	return pos, OP, string(ch)
}

func (s *Scanner) skipBlankAndComments() {
	for {
		ch := s.peek()
		switch {
		case ch == -1:
			return
		case unicode.IsSpace(ch):
			s.read()
		case ch == '-' && s.peekAt(1) == '-':
			for ch := s.peek(); ch != -1 && ch != '\n'; ch = s.peek() {
				s.read()
			}
		case ch == '/' && s.peekAt(1) == '*':
			s.read()
			s.read()
			for {
				ch := s.read()
				if ch == -1 || (ch == '*' && s.peek() == '/') {
					s.read()
					break
				}
			}
		default:
			return
		}
	}
}

func (s *Scanner) scanIdent() string {
	start := s.off
	for ch := s.peek(); isIdentStart(ch) || isDigit(ch) || ch == '$'; ch = s.peek() {
		s.read()
	}
	return s.src[start:s.off]
}

// scanQuoted reads a quoted token where a doubled quote stands for one quote
// character.
func (s *Scanner) scanQuoted(pos Pos, quote rune, tok Token) (Pos, Token, string) {
	start := s.off
	s.read()
	var sb strings.Builder
	for {
		ch := s.read()
		switch ch {
		case -1:
			return pos, ILLEGAL, s.src[start:s.off]
		case quote:
			if s.peek() != quote {
				return pos, tok, sb.String()
			}
			s.read()
		}
		sb.WriteRune(ch)
	}
}

func (s *Scanner) scanNumber(pos Pos) (Pos, Token, string) {
	start := s.off
	tok := INTEGER
	for isDigit(s.peek()) {
		s.read()
	}
	if s.peek() == '.' {
		tok = FLOAT
		s.read()
		for isDigit(s.peek()) {
			s.read()
		}
	}
	if ch := s.peek(); ch == 'e' || ch == 'E' {
		tok = FLOAT
		s.read()
		if ch := s.peek(); ch == '+' || ch == '-' {
			s.read()
		}
		if !isDigit(s.peek()) {
			return pos, ILLEGAL, s.src[start:s.off]
		}
		for isDigit(s.peek()) {
			s.read()
		}
	}
	return pos, tok, s.src[start:s.off]
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch > utf8.RuneSelf && unicode.IsLetter(ch))
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}
